package models

import "time"

// NotificationKind separates reconciler-generated trip notices from messages
// the server pushed directly.
type NotificationKind string

const (
	NotificationTripStatus NotificationKind = "trip_status"
	NotificationServer     NotificationKind = "server"
)

// Notification is a rider-facing inbox entry.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	BookingID string           `json:"booking_id,omitempty"`
	Status    BookingStatus    `json:"status,omitempty"`
	Title     string           `json:"title,omitempty"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}
