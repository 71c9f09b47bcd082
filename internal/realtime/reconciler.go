package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/internal/notifications"
	"github.com/richxcame/ride-booking/internal/trips"
	"github.com/richxcame/ride-booking/pkg/httpclient"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"go.uber.org/zap"
)

var (
	ErrUnknownBooking = errors.New("booking not found in trip list")
	ErrNotCancelable  = errors.New("booking can no longer be canceled by the rider")
)

// RiderActorRole is the actor role sent with rider-initiated status changes.
const RiderActorRole = "client"

// BookingSource is the slice of the ride API the reconciler uses.
type BookingSource interface {
	GetBookings(ctx context.Context, userID string) ([]models.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, req api.UpdateStatusRequest) error
}

// Config wires a reconciler.
type Config struct {
	UserID      string
	Remote      BookingSource
	Trips       *trips.Store
	Inbox       *notifications.Inbox
	ResyncRetry resilience.RetryConfig
}

// Reconciler keeps a rider's trip list in line with the server. It consumes
// one channel of stream events from a single goroutine.
type Reconciler struct {
	userID string
	remote BookingSource
	trips  *trips.Store
	inbox  *notifications.Inbox
	retry  resilience.RetryConfig

	live atomic.Bool

	mu         sync.Mutex
	lastSynced time.Time
}

// NewReconciler creates a reconciler. It is not live until the first
// successful resync.
func NewReconciler(cfg Config) *Reconciler {
	retry := cfg.ResyncRetry
	if retry.RetryableChecker == nil {
		retry.RetryableChecker = httpclient.IsRetryable
	}
	return &Reconciler{
		userID: cfg.UserID,
		remote: cfg.Remote,
		trips:  cfg.Trips,
		inbox:  cfg.Inbox,
		retry:  retry,
	}
}

// Run consumes events until ctx is done or events is closed.
func (r *Reconciler) Run(ctx context.Context, events <-chan models.StreamEvent) error {
	defer r.live.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, ev models.StreamEvent) {
	streamEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case models.StreamConnected:
		if err := r.Resync(ctx); err != nil {
			logger.ErrorContext(ctx, "trip list resync failed",
				zap.String("user_id", r.userID),
				zap.Error(err),
			)
		}
	case models.StreamDisconnected:
		r.live.Store(false)
		logger.WarnContext(ctx, "status stream disconnected",
			zap.String("user_id", r.userID),
			zap.Error(ev.Err),
		)
	case models.StreamStatus:
		if ev.Status != nil {
			r.OnStatusEvent(ctx, *ev.Status)
		}
	case models.StreamNotification:
		if ev.Notification != nil {
			r.inbox.Push(models.Notification{
				ID:        ev.Notification.MessageID,
				Kind:      models.NotificationServer,
				Title:     ev.Notification.Title,
				Message:   ev.Notification.Message,
				CreatedAt: ev.Notification.SentAt,
			})
		}
	default:
		logger.DebugContext(ctx, "ignoring stream event", zap.String("kind", string(ev.Kind)))
	}
}

// OnStatusEvent overwrites the status of a known booking. Events for
// bookings not in the list are dropped. Transitions are not checked; the
// server is authoritative. A notification is pushed only when the status
// actually changed.
func (r *Reconciler) OnStatusEvent(ctx context.Context, ev models.StatusEvent) {
	current, ok := r.trips.Get(ev.BookingID)
	if !ok {
		r.dropUnknown(ctx, ev.BookingID, ev.NewStatus)
		return
	}
	status := ev.ResolveStatus(r.userID, current.DriverID)

	previous, ok := r.trips.ApplyStatus(ev.BookingID, status)
	if !ok {
		r.dropUnknown(ctx, ev.BookingID, status)
		return
	}

	if previous == status {
		statusEventsTotal.WithLabelValues("unchanged").Inc()
		return
	}

	statusEventsTotal.WithLabelValues("applied").Inc()
	logger.InfoContext(ctx, "booking status updated",
		zap.String("booking_id", ev.BookingID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	r.inbox.PushStatus(ev.BookingID, status)
}

func (r *Reconciler) dropUnknown(ctx context.Context, bookingID string, status models.BookingStatus) {
	statusEventsTotal.WithLabelValues("unknown").Inc()
	logger.DebugContext(ctx, "status event for unknown booking dropped",
		zap.String("booking_id", bookingID),
		zap.String("status", string(status)),
	)
}

// Resync replaces the trip list with the server's. The fetch is read-only
// and retried with backoff. Bookings written locally while it is in flight
// survive the swap. The reconciler is live after it succeeds.
func (r *Reconciler) Resync(ctx context.Context) error {
	since := r.trips.Generation()
	result, err := resilience.RetryWithName(ctx, r.retry, func(ctx context.Context) (interface{}, error) {
		return r.remote.GetBookings(ctx, r.userID)
	}, "resync_bookings")
	if err != nil {
		resyncsTotal.WithLabelValues("failure").Inc()
		r.live.Store(false)
		return fmt.Errorf("resync bookings for %s: %w", r.userID, err)
	}

	bookings, _ := result.([]models.Booking)
	r.trips.Replace(bookings, since)

	r.mu.Lock()
	r.lastSynced = time.Now().UTC()
	r.mu.Unlock()

	r.live.Store(true)
	resyncsTotal.WithLabelValues("success").Inc()
	logger.InfoContext(ctx, "trip list resynced",
		zap.String("user_id", r.userID),
		zap.Int("bookings", len(bookings)),
	)
	return nil
}

// CancelBooking asks the server to cancel a trip on the rider's behalf and
// applies the result locally once accepted.
func (r *Reconciler) CancelBooking(ctx context.Context, bookingID, reason string) (models.Booking, error) {
	current, ok := r.trips.Get(bookingID)
	if !ok {
		return models.Booking{}, fmt.Errorf("%w: %s", ErrUnknownBooking, bookingID)
	}
	if !current.Status.IsRiderCancelable() {
		return models.Booking{}, fmt.Errorf("%w: booking %s is %s", ErrNotCancelable, bookingID, current.Status)
	}

	err := r.remote.UpdateBookingStatus(ctx, bookingID, api.UpdateStatusRequest{
		Status:    models.BookingStatusCanceledByClient,
		ActorID:   r.userID,
		ActorRole: RiderActorRole,
		Reason:    reason,
	})
	if err != nil {
		return models.Booking{}, err
	}

	r.trips.ApplyStatus(bookingID, models.BookingStatusCanceledByClient)
	updated, _ := r.trips.Get(bookingID)
	return updated, nil
}

// Live reports whether the stream is connected and the list is in sync.
func (r *Reconciler) Live() bool {
	return r.live.Load()
}

// LastSynced returns the time of the last successful resync.
func (r *Reconciler) LastSynced() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSynced
}
