package trips

import (
	"sync"

	"github.com/richxcame/ride-booking/pkg/models"
)

// Store is a rider's local trip list. It is written by the wizard when a
// booking is created and by the reconciler on status events and resyncs.
// Every operation is atomic; reads return copies.
//
// Each local write bumps a generation counter and stamps the record with it,
// so a resync can tell which records changed while its fetch was in flight.
type Store struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]*models.Booking
	gen     uint64
	touched map[string]uint64
}

// NewStore creates an empty trip list.
func NewStore() *Store {
	return &Store{
		byID:    make(map[string]*models.Booking),
		touched: make(map[string]uint64),
	}
}

// Generation returns the current write generation. Pass it to Replace to
// keep writes made after this call.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Store) touch(id string) {
	s.gen++
	s.touched[id] = s.gen
}

// Upsert appends b, or replaces the record with the same id in place.
func (s *Store) Upsert(b models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := b.Clone()
	if _, exists := s.byID[b.ID]; !exists {
		s.order = append(s.order, b.ID)
	}
	s.byID[b.ID] = &clone
	s.touch(b.ID)
}

// ApplyStatus overwrites the status of a known booking. ok is false when id
// is not in the list, in which case nothing changes.
func (s *Store) ApplyStatus(id string, status models.BookingStatus) (previous models.BookingStatus, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.byID[id]
	if !exists {
		return "", false
	}
	previous = b.Status
	b.Status = status
	s.touch(id)
	return previous, true
}

// Replace swaps the list for an authoritative snapshot, keeping the
// snapshot's order. Records written locally after generation since win over
// the snapshot; those the snapshot lacks are appended after it.
func (s *Store) Replace(bookings []models.Booking, since uint64) {
	order := make([]string, 0, len(bookings))
	byID := make(map[string]*models.Booking, len(bookings))
	for _, b := range bookings {
		clone := b.Clone()
		if _, dup := byID[b.ID]; !dup {
			order = append(order, b.ID)
		}
		byID[b.ID] = &clone
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.touched[id] <= since {
			continue
		}
		if _, inSnapshot := byID[id]; !inSnapshot {
			order = append(order, id)
		}
		local := s.byID[id].Clone()
		byID[id] = &local
	}
	s.order = order
	s.byID = byID
	s.touched = make(map[string]uint64)
}

// Get returns a copy of the booking with the given id.
func (s *Store) Get(id string) (models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byID[id]
	if !ok {
		return models.Booking{}, false
	}
	return b.Clone(), true
}

// List returns copies of every booking in insertion order.
func (s *Store) List() []models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Booking, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len returns the number of bookings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
