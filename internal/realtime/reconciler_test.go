package realtime

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/internal/notifications"
	"github.com/richxcame/ride-booking/internal/trips"
	"github.com/richxcame/ride-booking/pkg/httpclient"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	args := m.Called(ctx, userID)
	bookings, _ := args.Get(0).([]models.Booking)
	return bookings, args.Error(1)
}

func (m *mockSource) UpdateBookingStatus(ctx context.Context, bookingID string, req api.UpdateStatusRequest) error {
	args := m.Called(ctx, bookingID, req)
	return args.Error(0)
}

type fixture struct {
	reconciler *Reconciler
	source     *mockSource
	trips      *trips.Store
	inbox      *notifications.Inbox
}

func newFixture() *fixture {
	f := &fixture{
		source: new(mockSource),
		trips:  trips.NewStore(),
		inbox:  notifications.NewInbox(0),
	}
	f.reconciler = NewReconciler(Config{
		UserID: "rider-1",
		Remote: f.source,
		Trips:  f.trips,
		Inbox:  f.inbox,
		ResyncRetry: resilience.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	})
	return f
}

func statusEvent(id string, status models.BookingStatus) models.StatusEvent {
	return models.StatusEvent{BookingID: id, NewStatus: status}
}

func TestOnStatusEvent_OverwritesKnownBooking(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusRequested})

	f.reconciler.OnStatusEvent(context.Background(), statusEvent("bk-1", models.BookingStatusDriverAssigned))

	got, _ := f.trips.Get("bk-1")
	assert.Equal(t, models.BookingStatusDriverAssigned, got.Status)

	pending := f.inbox.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "bk-1", pending[0].BookingID)
	assert.Equal(t, models.BookingStatusDriverAssigned, pending[0].Status)
}

func TestOnStatusEvent_Idempotent(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusInProgress})

	f.reconciler.OnStatusEvent(context.Background(), statusEvent("bk-1", models.BookingStatusCompleted))
	once := f.trips.List()
	f.reconciler.OnStatusEvent(context.Background(), statusEvent("bk-1", models.BookingStatusCompleted))

	assert.Equal(t, once, f.trips.List())
	assert.Len(t, f.inbox.Pending(), 1)
}

func TestOnStatusEvent_UnknownBookingIsNoop(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusRequested})
	before := f.trips.List()

	assert.NotPanics(t, func() {
		f.reconciler.OnStatusEvent(context.Background(), statusEvent("other", models.BookingStatusCompleted))
	})
	assert.Equal(t, before, f.trips.List())
	assert.Empty(t, f.inbox.Pending())
}

func TestOnStatusEvent_NoTransitionValidation(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusCompleted})

	f.reconciler.OnStatusEvent(context.Background(), statusEvent("bk-1", models.BookingStatusDriverArrived))

	got, _ := f.trips.Get("bk-1")
	assert.Equal(t, models.BookingStatusDriverArrived, got.Status)
}

func TestOnStatusEvent_UnmappedStatusHasNoNotification(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusInProgress})

	f.reconciler.OnStatusEvent(context.Background(), statusEvent("bk-1", models.BookingStatusDisputed))

	got, _ := f.trips.Get("bk-1")
	assert.Equal(t, models.BookingStatusDisputed, got.Status)
	assert.Empty(t, f.inbox.Pending())
}

func TestResync_ReplacesTripsAndGoesLive(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "stale", Status: models.BookingStatusRequested})
	f.source.On("GetBookings", mock.Anything, "rider-1").Return([]models.Booking{
		{ID: "a", Status: models.BookingStatusCompleted},
		{ID: "b", Status: models.BookingStatusDriverAssigned},
	}, nil).Once()

	require.NoError(t, f.reconciler.Resync(context.Background()))

	assert.True(t, f.reconciler.Live())
	assert.False(t, f.reconciler.LastSynced().IsZero())
	assert.Equal(t, 2, f.trips.Len())
	_, ok := f.trips.Get("stale")
	assert.False(t, ok)
}

func TestResync_KeepsBookingCreatedDuringFetch(t *testing.T) {
	f := newFixture()
	f.source.On("GetBookings", mock.Anything, "rider-1").
		Run(func(mock.Arguments) {
			f.trips.Upsert(models.Booking{ID: "new-1", Status: models.BookingStatusRequested})
		}).
		Return([]models.Booking{}, nil).Once()

	require.NoError(t, f.reconciler.Resync(context.Background()))

	_, ok := f.trips.Get("new-1")
	require.True(t, ok, "booking confirmed during the fetch must survive the resync")

	f.reconciler.OnStatusEvent(context.Background(), statusEvent("new-1", models.BookingStatusDriverAssigned))
	got, _ := f.trips.Get("new-1")
	assert.Equal(t, models.BookingStatusDriverAssigned, got.Status)
	assert.Len(t, f.inbox.Pending(), 1)
}

func TestResync_RetriesTransientFailures(t *testing.T) {
	f := newFixture()
	f.source.On("GetBookings", mock.Anything, "rider-1").
		Return(nil, &httpclient.HTTPError{StatusCode: http.StatusServiceUnavailable}).Twice()
	f.source.On("GetBookings", mock.Anything, "rider-1").
		Return([]models.Booking{{ID: "a", Status: models.BookingStatusRequested}}, nil).Once()

	require.NoError(t, f.reconciler.Resync(context.Background()))
	f.source.AssertNumberOfCalls(t, "GetBookings", 3)
	assert.True(t, f.reconciler.Live())
}

func TestResync_DoesNotRetryClientErrors(t *testing.T) {
	f := newFixture()
	f.source.On("GetBookings", mock.Anything, "rider-1").
		Return(nil, &httpclient.HTTPError{StatusCode: http.StatusUnauthorized}).Once()

	err := f.reconciler.Resync(context.Background())
	require.Error(t, err)
	f.source.AssertNumberOfCalls(t, "GetBookings", 1)
	assert.False(t, f.reconciler.Live())
}

func TestRun_ReconnectTriggersResync(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "a", Status: models.BookingStatusRequested})

	// The event for "a" completing was missed while disconnected; the resync
	// snapshot carries it.
	f.source.On("GetBookings", mock.Anything, "rider-1").Return([]models.Booking{
		{ID: "a", Status: models.BookingStatusCompleted},
		{ID: "b", Status: models.BookingStatusRequested},
	}, nil).Once()

	events := make(chan models.StreamEvent, 8)
	events <- models.StreamEvent{Kind: models.StreamDisconnected, Err: errors.New("read: connection reset")}
	events <- models.StreamEvent{Kind: models.StreamConnected}
	events <- models.StreamEvent{Kind: models.StreamStatus, Status: &models.StatusEvent{BookingID: "b", NewStatus: models.BookingStatusDriverAssigned}}
	events <- models.StreamEvent{Kind: models.StreamNotification, Notification: &models.InboundNotification{Title: "Promo", Message: "Weekend deal", MessageID: "m-1"}}
	close(events)

	require.NoError(t, f.reconciler.Run(context.Background(), events))

	a, _ := f.trips.Get("a")
	b, _ := f.trips.Get("b")
	assert.Equal(t, models.BookingStatusCompleted, a.Status)
	assert.Equal(t, models.BookingStatusDriverAssigned, b.Status)

	pending := f.inbox.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, models.NotificationTripStatus, pending[0].Kind)
	assert.Equal(t, models.NotificationServer, pending[1].Kind)
	assert.Equal(t, "m-1", pending[1].ID)

	assert.False(t, f.reconciler.Live())
	f.source.AssertExpectations(t)
}

func TestRun_DisconnectClearsLive(t *testing.T) {
	f := newFixture()
	f.source.On("GetBookings", mock.Anything, "rider-1").Return([]models.Booking{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan models.StreamEvent)
	done := make(chan error, 1)
	go func() { done <- f.reconciler.Run(ctx, events) }()

	events <- models.StreamEvent{Kind: models.StreamConnected}
	assert.Eventually(t, f.reconciler.Live, time.Second, 5*time.Millisecond)

	events <- models.StreamEvent{Kind: models.StreamDisconnected}
	assert.Eventually(t, func() bool { return !f.reconciler.Live() }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusDriverAssigned})
	f.source.On("UpdateBookingStatus", mock.Anything, "bk-1", api.UpdateStatusRequest{
		Status:    models.BookingStatusCanceledByClient,
		ActorID:   "rider-1",
		ActorRole: "client",
		Reason:    "changed plans",
	}).Return(nil).Once()

	updated, err := f.reconciler.CancelBooking(context.Background(), "bk-1", "changed plans")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCanceledByClient, updated.Status)
	f.source.AssertExpectations(t)
}

func TestCancelBooking_EchoedFrameKeepsRiderCancellation(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "b1", DriverID: "driver-9", Status: models.BookingStatusDriverAssigned})
	f.source.On("UpdateBookingStatus", mock.Anything, "b1", mock.Anything).Return(nil).Once()

	_, err := f.reconciler.CancelBooking(context.Background(), "b1", "changed plans")
	require.NoError(t, err)

	echo, ok, err := models.DecodeEnvelope([]byte(`{"type":"booking_cancelled","payload":{"booking_id":"b1","reason":"changed plans","cancelled_by":"rider-1"}}`))
	require.NoError(t, err)
	require.True(t, ok)
	f.reconciler.OnStatusEvent(context.Background(), *echo.Status)

	got, _ := f.trips.Get("b1")
	assert.Equal(t, models.BookingStatusCanceledByClient, got.Status)
	assert.Empty(t, f.inbox.Pending())
}

func TestOnStatusEvent_DriverCancellation(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "b1", DriverID: "driver-9", Status: models.BookingStatusDriverAssigned})

	ev, _, err := models.DecodeEnvelope([]byte(`{"type":"booking_cancelled","payload":{"booking_id":"b1","cancelled_by":"driver-9"}}`))
	require.NoError(t, err)
	f.reconciler.OnStatusEvent(context.Background(), *ev.Status)

	got, _ := f.trips.Get("b1")
	assert.Equal(t, models.BookingStatusCanceledByDriver, got.Status)
	require.Len(t, f.inbox.Pending(), 1)
}

func TestCancelBooking_Guards(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "arrived", Status: models.BookingStatusDriverArrived})

	_, err := f.reconciler.CancelBooking(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrUnknownBooking)

	_, err = f.reconciler.CancelBooking(context.Background(), "arrived", "")
	assert.ErrorIs(t, err, ErrNotCancelable)

	f.source.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBooking_RemoteFailureLeavesStatus(t *testing.T) {
	f := newFixture()
	f.trips.Upsert(models.Booking{ID: "bk-1", Status: models.BookingStatusRequested})
	f.source.On("UpdateBookingStatus", mock.Anything, "bk-1", mock.Anything).
		Return(&httpclient.HTTPError{StatusCode: http.StatusConflict}).Once()

	_, err := f.reconciler.CancelBooking(context.Background(), "bk-1", "")
	require.Error(t, err)

	got, _ := f.trips.Get("bk-1")
	assert.Equal(t, models.BookingStatusRequested, got.Status)
}
