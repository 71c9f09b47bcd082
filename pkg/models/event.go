package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StreamEventKind tags a StreamEvent.
type StreamEventKind string

const (
	StreamConnected    StreamEventKind = "connected"
	StreamDisconnected StreamEventKind = "disconnected"
	StreamStatus       StreamEventKind = "status"
	StreamNotification StreamEventKind = "notification"
)

// StatusEvent asserts a new status for one booking.
type StatusEvent struct {
	BookingID      string        `json:"booking_id"`
	NewStatus      BookingStatus `json:"status"`
	PreviousStatus BookingStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
	MessageID      string        `json:"message_id,omitempty"`
	CancelledBy    string        `json:"cancelled_by,omitempty"`

	impliedStatus bool
}

// ResolveStatus returns the status to apply for a booking with the given
// rider and driver. A cancellation frame without an explicit status is
// attributed to whoever it names in cancelled_by; anyone else, or nobody,
// means the system.
func (e StatusEvent) ResolveStatus(riderID, driverID string) BookingStatus {
	if !e.impliedStatus || e.NewStatus != BookingStatusCanceledBySystem || e.CancelledBy == "" {
		return e.NewStatus
	}
	switch {
	case e.CancelledBy == riderID:
		return BookingStatusCanceledByClient
	case driverID != "" && e.CancelledBy == driverID:
		return BookingStatusCanceledByDriver
	}
	return BookingStatusCanceledBySystem
}

// InboundNotification is a free-form message pushed by the server.
type InboundNotification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"notification_type,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// StreamEvent is the single message type consumed by the reconciler. Exactly
// one of Status or Notification is set for the matching kinds.
type StreamEvent struct {
	Kind         StreamEventKind
	Status       *StatusEvent
	Notification *InboundNotification
	Err          error
}

// Envelope is the server's stream message frame.
type Envelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
	MessageID string          `json:"message_id,omitempty"`
}

// Server message types the gateway understands.
const (
	MessageBookingStatusChanged = "booking_status_changed"
	MessageBookingCancelled     = "booking_cancelled"
	MessageDriverAssigned       = "driver_assigned"
	MessageDriverArrived        = "driver_arrived"
	MessageNotificationNew      = "notification_new"
	MessagePing                 = "ping"
	MessagePong                 = "pong"
)

// ErrMalformedEnvelope wraps every decode failure.
var ErrMalformedEnvelope = errors.New("malformed stream message")

// statusImpliedByType covers messages that may omit payload.status.
var statusImpliedByType = map[string]BookingStatus{
	MessageDriverAssigned:   BookingStatusDriverAssigned,
	MessageDriverArrived:    BookingStatusDriverArrived,
	MessageBookingCancelled: BookingStatusCanceledBySystem,
}

type statusPayload struct {
	BookingID      string        `json:"booking_id"`
	Status         BookingStatus `json:"status"`
	PreviousStatus BookingStatus `json:"previous_status"`
	CancelledBy    string        `json:"cancelled_by"`
}

// DecodeEnvelope turns a raw stream frame into a StreamEvent. ok is false for
// frames the reconciler does not consume (keepalives, chat, location).
func DecodeEnvelope(data []byte) (event StreamEvent, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return StreamEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	occurredAt := parseTimestamp(env.Timestamp)

	switch env.Type {
	case MessageBookingStatusChanged, MessageBookingCancelled, MessageDriverAssigned, MessageDriverArrived:
		var p statusPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return StreamEvent{}, false, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, env.Type, err)
			}
		}
		if p.BookingID == "" {
			return StreamEvent{}, false, fmt.Errorf("%w: %s without booking_id", ErrMalformedEnvelope, env.Type)
		}
		implied := p.Status == ""
		if implied {
			status, found := statusImpliedByType[env.Type]
			if !found {
				return StreamEvent{}, false, fmt.Errorf("%w: %s without status", ErrMalformedEnvelope, env.Type)
			}
			p.Status = status
		}
		return StreamEvent{
			Kind: StreamStatus,
			Status: &StatusEvent{
				BookingID:      p.BookingID,
				NewStatus:      p.Status,
				PreviousStatus: p.PreviousStatus,
				OccurredAt:     occurredAt,
				MessageID:      env.MessageID,
				CancelledBy:    p.CancelledBy,
				impliedStatus:  implied,
			},
		}, true, nil

	case MessageNotificationNew:
		var n InboundNotification
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			return StreamEvent{}, false, fmt.Errorf("%w: notification payload: %v", ErrMalformedEnvelope, err)
		}
		if strings.TrimSpace(n.Message) == "" && strings.TrimSpace(n.Title) == "" {
			return StreamEvent{}, false, fmt.Errorf("%w: empty notification", ErrMalformedEnvelope)
		}
		n.MessageID = env.MessageID
		n.SentAt = occurredAt
		return StreamEvent{Kind: StreamNotification, Notification: &n}, true, nil
	}

	return StreamEvent{}, false, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseTimestamp accepts RFC3339 and zone-less ISO-8601 (read as UTC).
// Unparseable values yield the zero time.
func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
