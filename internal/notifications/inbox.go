package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ride-booking/pkg/models"
)

// DefaultCapacity bounds the number of undismissed notifications kept.
const DefaultCapacity = 100

// statusMessages is the rider-facing text for each status that warrants a
// notification. Statuses not listed produce none.
var statusMessages = map[models.BookingStatus]struct{ title, message string }{
	models.BookingStatusDriverAssigned:      {"Driver assigned", "A driver has accepted your ride request."},
	models.BookingStatusDriverEnRoutePickup: {"Driver on the way", "Your driver is heading to the pickup location."},
	models.BookingStatusDriverArrived:       {"Driver has arrived", "Your driver is waiting at the pickup location."},
	models.BookingStatusInProgress:          {"Ride started", "Your ride is in progress. Enjoy the trip!"},
	models.BookingStatusCompleted:           {"Ride complete", "You have arrived. Rate your driver when you have a moment."},
	models.BookingStatusCanceledByDriver:    {"Ride canceled", "Your driver canceled the ride."},
	models.BookingStatusCanceledBySystem:    {"Ride canceled", "Your ride was canceled."},
	models.BookingStatusNoShowDriver:        {"Driver did not arrive", "Your driver did not show up. You have not been charged."},
	models.BookingStatusRefunded:            {"Refund issued", "Your ride has been refunded."},
}

// StatusMessage returns the notification text for status, if any.
func StatusMessage(status models.BookingStatus) (title, message string, ok bool) {
	text, ok := statusMessages[status]
	return text.title, text.message, ok
}

// Inbox holds one-shot notifications until the rider dismisses them.
type Inbox struct {
	mu       sync.Mutex
	items    []models.Notification
	capacity int
	now      func() time.Time
}

// NewInbox creates an inbox. A non-positive capacity uses DefaultCapacity.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Inbox{capacity: capacity, now: time.Now}
}

// Push stores n, assigning an id and timestamp when missing. The oldest
// entry is dropped once the inbox is full.
func (i *Inbox) Push(n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = i.now().UTC()
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.items = append(i.items, n)
	if over := len(i.items) - i.capacity; over > 0 {
		i.items = append([]models.Notification(nil), i.items[over:]...)
	}
	return n
}

// PushStatus stores the mapped notification for a booking's new status.
// ok is false when the status has no mapped text.
func (i *Inbox) PushStatus(bookingID string, status models.BookingStatus) (models.Notification, bool) {
	title, message, ok := StatusMessage(status)
	if !ok {
		return models.Notification{}, false
	}
	return i.Push(models.Notification{
		Kind:      models.NotificationTripStatus,
		BookingID: bookingID,
		Status:    status,
		Title:     title,
		Message:   message,
	}), true
}

// Pending returns undismissed notifications, oldest first.
func (i *Inbox) Pending() []models.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]models.Notification(nil), i.items...)
}

// Dismiss removes a notification. It reports whether id was pending.
func (i *Inbox) Dismiss(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	for idx, n := range i.items {
		if n.ID == id {
			i.items = append(i.items[:idx], i.items[idx+1:]...)
			return true
		}
	}
	return false
}
