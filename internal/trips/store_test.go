package trips

import (
	"fmt"
	"sync"
	"testing"

	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booking(id string, status models.BookingStatus) models.Booking {
	return models.Booking{
		ID:     id,
		Status: status,
		Legs:   []models.Leg{{Sequence: 1, Pickup: "A", Dropoff: "B"}},
	}
}

func TestUpsert_AppendsThenUpdatesInPlace(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("a", models.BookingStatusRequested))
	s.Upsert(booking("b", models.BookingStatusRequested))
	s.Upsert(booking("a", models.BookingStatusDriverAssigned))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, models.BookingStatusDriverAssigned, list[0].Status)
	assert.Equal(t, "b", list[1].ID)
}

func TestApplyStatus(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("a", models.BookingStatusInProgress))

	prev, ok := s.ApplyStatus("a", models.BookingStatusCompleted)
	assert.True(t, ok)
	assert.Equal(t, models.BookingStatusInProgress, prev)

	got, _ := s.Get("a")
	assert.Equal(t, models.BookingStatusCompleted, got.Status)
}

func TestApplyStatus_Idempotent(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("a", models.BookingStatusInProgress))

	s.ApplyStatus("a", models.BookingStatusCompleted)
	once := s.List()
	prev, ok := s.ApplyStatus("a", models.BookingStatusCompleted)
	twice := s.List()

	assert.True(t, ok)
	assert.Equal(t, models.BookingStatusCompleted, prev)
	assert.Equal(t, once, twice)
}

func TestApplyStatus_UnknownIsNoop(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("a", models.BookingStatusRequested))
	before := s.List()

	_, ok := s.ApplyStatus("missing", models.BookingStatusCompleted)
	assert.False(t, ok)
	assert.Equal(t, before, s.List())
}

func TestApplyStatus_NoTransitionChecks(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("a", models.BookingStatusCompleted))

	_, ok := s.ApplyStatus("a", models.BookingStatusRequested)
	assert.True(t, ok)
	got, _ := s.Get("a")
	assert.Equal(t, models.BookingStatusRequested, got.Status)
}

func TestReplace(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("stale", models.BookingStatusRequested))

	s.Replace([]models.Booking{
		booking("x", models.BookingStatusCompleted),
		booking("y", models.BookingStatusRequested),
		booking("x", models.BookingStatusRefunded),
	}, s.Generation())

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "x", list[0].ID)
	assert.Equal(t, models.BookingStatusRefunded, list[0].Status)
	_, ok := s.Get("stale")
	assert.False(t, ok)
}

func TestReplace_KeepsWritesMadeDuringFetch(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("old", models.BookingStatusRequested))
	s.Upsert(booking("moving", models.BookingStatusRequested))

	since := s.Generation()
	s.Upsert(booking("new-1", models.BookingStatusRequested))
	s.ApplyStatus("moving", models.BookingStatusCanceledByClient)

	s.Replace([]models.Booking{
		booking("moving", models.BookingStatusRequested),
		booking("server-only", models.BookingStatusCompleted),
	}, since)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "moving", list[0].ID)
	assert.Equal(t, models.BookingStatusCanceledByClient, list[0].Status)
	assert.Equal(t, "server-only", list[1].ID)
	assert.Equal(t, "new-1", list[2].ID)
	_, ok := s.Get("old")
	assert.False(t, ok)

	// The next resync is authoritative again.
	s.Replace([]models.Booking{booking("server-only", models.BookingStatusCompleted)}, s.Generation())
	assert.Equal(t, 1, s.Len())
}

func TestReadsReturnCopies(t *testing.T) {
	s := NewStore()
	s.Upsert(booking("a", models.BookingStatusRequested))

	got, _ := s.Get("a")
	got.Legs[0].Pickup = "mutated"
	got.Status = models.BookingStatusCompleted

	list := s.List()
	list[0].Legs[0].Dropoff = "mutated"

	fresh, _ := s.Get("a")
	assert.Equal(t, "A", fresh.Legs[0].Pickup)
	assert.Equal(t, "B", fresh.Legs[0].Dropoff)
	assert.Equal(t, models.BookingStatusRequested, fresh.Status)
}

func TestConcurrentUpsertAndApply(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("b-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Upsert(booking(id, models.BookingStatusRequested))
		}()
		go func() {
			defer wg.Done()
			s.ApplyStatus(id, models.BookingStatusDriverAssigned)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}
