package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Classification(t *testing.T) {
	tests := []struct {
		status     BookingStatus
		terminal   bool
		active     bool
		cancelable bool
	}{
		{BookingStatusRequested, false, true, true},
		{BookingStatusDriverAssigned, false, true, true},
		{BookingStatusDriverEnRoutePickup, false, true, true},
		{BookingStatusDriverArrived, false, true, false},
		{BookingStatusInProgress, false, true, false},
		{BookingStatusCompleted, true, false, false},
		{BookingStatusCanceledByClient, true, false, false},
		{BookingStatusNoShowDriver, true, false, false},
		{BookingStatusRefunded, true, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.active, tt.status.IsActive())
			assert.Equal(t, tt.cancelable, tt.status.IsRiderCancelable())
		})
	}
}

func TestVehicleClass_Valid(t *testing.T) {
	for _, c := range VehicleClasses {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, VehicleClass("limo").Valid())
	assert.False(t, VehicleClass("").Valid())
}

func TestBooking_CloneDoesNotAlias(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	original := Booking{
		ID:                "b1",
		Legs:              []Leg{{Sequence: 1, Pickup: "A", Dropoff: "B"}},
		Accessibility:     []AccessibilityOption{AccessibilityWheelchair},
		DriverPreferences: []DriverPreference{PreferenceQuietRide},
		RequestedPickupAt: &at,
	}

	clone := original.Clone()
	clone.Legs[0].Pickup = "Z"
	clone.Accessibility[0] = AccessibilityServiceAnimal
	clone.DriverPreferences[0] = PreferencePetFriendly
	*clone.RequestedPickupAt = at.Add(time.Hour)

	assert.Equal(t, "A", original.Legs[0].Pickup)
	assert.Equal(t, AccessibilityWheelchair, original.Accessibility[0])
	assert.Equal(t, PreferenceQuietRide, original.DriverPreferences[0])
	assert.Equal(t, at, *original.RequestedPickupAt)
}

func TestDecodeEnvelope_StatusChanged(t *testing.T) {
	raw := []byte(`{
		"type": "booking_status_changed",
		"channel": "user:u1",
		"payload": {"booking_id": "b1", "status": "driver_en_route_pickup", "previous_status": "driver_assigned"},
		"timestamp": "2024-01-01T12:00:00.123456",
		"message_id": "m1"
	}`)

	event, ok, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StreamStatus, event.Kind)
	require.NotNil(t, event.Status)
	assert.Equal(t, "b1", event.Status.BookingID)
	assert.Equal(t, BookingStatusDriverEnRoutePickup, event.Status.NewStatus)
	assert.Equal(t, BookingStatusDriverAssigned, event.Status.PreviousStatus)
	assert.Equal(t, "m1", event.Status.MessageID)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 123456000, time.UTC), event.Status.OccurredAt)
}

func TestDecodeEnvelope_ImpliedStatus(t *testing.T) {
	tests := []struct {
		msgType string
		want    BookingStatus
	}{
		{MessageDriverAssigned, BookingStatusDriverAssigned},
		{MessageDriverArrived, BookingStatusDriverArrived},
		{MessageBookingCancelled, BookingStatusCanceledBySystem},
	}

	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			raw := []byte(`{"type":"` + tt.msgType + `","payload":{"booking_id":"b1","driver":{"id":"d1"}},"timestamp":"2024-01-01T12:00:00Z"}`)
			event, ok, err := DecodeEnvelope(raw)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, event.Status.NewStatus)
		})
	}
}

func TestDecodeEnvelope_CancelledWithExplicitStatus(t *testing.T) {
	raw := []byte(`{"type":"booking_cancelled","payload":{"booking_id":"b1","status":"canceled_by_driver"}}`)
	event, ok, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BookingStatusCanceledByDriver, event.Status.NewStatus)
	assert.True(t, event.Status.OccurredAt.IsZero())
}

func TestDecodeEnvelope_CancelledAttributedToActor(t *testing.T) {
	tests := []struct {
		name        string
		cancelledBy string
		want        BookingStatus
	}{
		{"rider", "rider-1", BookingStatusCanceledByClient},
		{"driver", "driver-9", BookingStatusCanceledByDriver},
		{"support agent", "agent-3", BookingStatusCanceledBySystem},
		{"nobody", "", BookingStatusCanceledBySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"type":"booking_cancelled","payload":{"booking_id":"b1","reason":"x","cancelled_by":"` + tt.cancelledBy + `"}}`)
			event, ok, err := DecodeEnvelope(raw)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.cancelledBy, event.Status.CancelledBy)
			assert.Equal(t, tt.want, event.Status.ResolveStatus("rider-1", "driver-9"))
		})
	}
}

func TestResolveStatus_ExplicitStatusWins(t *testing.T) {
	raw := []byte(`{"type":"booking_cancelled","payload":{"booking_id":"b1","status":"canceled_by_system","cancelled_by":"rider-1"}}`)
	event, ok, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BookingStatusCanceledBySystem, event.Status.ResolveStatus("rider-1", ""))

	plain := StatusEvent{BookingID: "b1", NewStatus: BookingStatusCompleted, CancelledBy: "rider-1"}
	assert.Equal(t, BookingStatusCompleted, plain.ResolveStatus("rider-1", ""))
}

func TestDecodeEnvelope_Notification(t *testing.T) {
	raw := []byte(`{"type":"notification_new","payload":{"title":"Promo","message":"20% off this weekend","notification_type":"marketing"},"message_id":"m9"}`)
	event, ok, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StreamNotification, event.Kind)
	require.NotNil(t, event.Notification)
	assert.Equal(t, "Promo", event.Notification.Title)
	assert.Equal(t, "20% off this weekend", event.Notification.Message)
	assert.Equal(t, "marketing", event.Notification.Type)
	assert.Equal(t, "m9", event.Notification.MessageID)
}

func TestDecodeEnvelope_Ignored(t *testing.T) {
	for _, raw := range []string{
		`{"type":"ping"}`,
		`{"type":"pong","payload":{}}`,
		`{"type":"chat_message","payload":{"text":"hi"}}`,
	} {
		_, ok, err := DecodeEnvelope([]byte(raw))
		assert.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"booking_status_changed","payload":{"status":"completed"}}`,
		`{"type":"booking_status_changed","payload":{"booking_id":"b1"}}`,
		`{"type":"booking_status_changed","payload":"oops"}`,
		`{"type":"notification_new","payload":{}}`,
	} {
		_, ok, err := DecodeEnvelope([]byte(raw))
		assert.False(t, ok, raw)
		assert.True(t, errors.Is(err, ErrMalformedEnvelope), raw)
	}
}
