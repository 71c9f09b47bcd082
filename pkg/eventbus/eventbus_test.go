package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSubject(t *testing.T) {
	assert.Equal(t, "bookings.user.rider-42", UserSubject("rider-42"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "rider-gateway", cfg.Name)
	assert.Equal(t, defaultBuffer, cfg.Buffer)
}

func TestSubscribe_RequiresConnection(t *testing.T) {
	bus := newBus(DefaultConfig())
	assert.False(t, bus.Connected())
	_, err := bus.Subscribe(context.Background(), "rider-1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscription_HandleDecodesEnvelopes(t *testing.T) {
	s := newSubscription(context.Background(), 4)
	defer s.Close()

	s.handle([]byte(`{"type":"driver_assigned","payload":{"booking_id":"bk-1"}}`))
	s.handle([]byte(`{"type":"ping","payload":{}}`))
	s.handle([]byte(`{broken`))
	s.handle([]byte(`{"type":"notification_new","payload":{"title":"Heads up"}}`))

	first := <-s.Events()
	require.Equal(t, models.StreamStatus, first.Kind)
	assert.Equal(t, "bk-1", first.Status.BookingID)
	assert.Equal(t, models.BookingStatusDriverAssigned, first.Status.NewStatus)

	second := <-s.Events()
	require.Equal(t, models.StreamNotification, second.Kind)
	assert.Equal(t, "Heads up", second.Notification.Title)

	assert.Empty(t, s.Events())
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	released := 0
	s := newSubscription(context.Background(), 1)
	s.release = func() { released++ }

	s.Close()
	s.Close()

	_, open := <-s.Events()
	assert.False(t, open)
	assert.Equal(t, 1, released)

	assert.NotPanics(t, func() {
		s.deliver(models.StreamEvent{Kind: models.StreamConnected})
	})
}

func TestSubscription_DeliverUnblocksOnClose(t *testing.T) {
	s := newSubscription(context.Background(), 1)
	s.deliver(models.StreamEvent{Kind: models.StreamConnected})

	done := make(chan struct{})
	go func() {
		s.deliver(models.StreamEvent{Kind: models.StreamDisconnected})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	s.cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver did not return after cancel")
	}
	s.Close()
}

func TestBus_BroadcastReachesEverySubscription(t *testing.T) {
	bus := newBus(DefaultConfig())
	a := newSubscription(context.Background(), 2)
	b := newSubscription(context.Background(), 2)
	a.release = func() { bus.remove(a) }
	bus.add(a)
	bus.add(b)

	dropErr := errors.New("connection reset")
	bus.broadcast(models.StreamEvent{Kind: models.StreamDisconnected, Err: dropErr})

	for _, s := range []*Subscription{a, b} {
		ev := <-s.Events()
		assert.Equal(t, models.StreamDisconnected, ev.Kind)
		assert.ErrorIs(t, ev.Err, dropErr)
	}

	a.Close()
	bus.broadcast(models.StreamEvent{Kind: models.StreamConnected})
	assert.Equal(t, models.StreamConnected, (<-b.Events()).Kind)
	assert.Len(t, bus.subs, 1)
	b.Close()
}
