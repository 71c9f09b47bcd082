package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"go.uber.org/zap"
)

// SubjectUserBookings prefixes the per-rider status subject. The ride API
// publishes the same envelopes it sends over the websocket stream.
const SubjectUserBookings = "bookings.user."

const defaultBuffer = 64

var ErrNotConnected = errors.New("nats connection is closed")

// UserSubject returns the subject carrying one rider's booking events.
func UserSubject(userID string) string {
	return SubjectUserBookings + userID
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string // client connection name
	ReconnectWait time.Duration
	Buffer        int // per-subscription event buffer
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "rider-gateway",
		ReconnectWait: 2 * time.Second,
		Buffer:        defaultBuffer,
	}
}

// Bus shares one NATS connection between rider subscriptions. Connection
// state changes are fanned out to every subscription as stream events.
type Bus struct {
	conn *nats.Conn
	cfg  Config

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Connect dials NATS. The connection retries in the background when the
// server is not up yet.
func Connect(cfg Config) (*Bus, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	b := newBus(cfg)
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
			b.broadcast(models.StreamEvent{Kind: models.StreamDisconnected, Err: err})
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
			b.broadcast(models.StreamEvent{Kind: models.StreamConnected})
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS connected after retry")
			b.broadcast(models.StreamEvent{Kind: models.StreamConnected})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b.conn = nc

	logger.Info("NATS event bus connected", zap.String("url", cfg.URL))
	return b, nil
}

func newBus(cfg Config) *Bus {
	return &Bus{cfg: cfg, subs: make(map[*Subscription]struct{})}
}

// Subscribe starts delivering the rider's booking events. The subscription
// is closed when ctx ends. If the connection is already up the first event
// is StreamConnected.
func (b *Bus) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if b.conn == nil || b.conn.IsClosed() {
		return nil, ErrNotConnected
	}

	s := newSubscription(ctx, b.cfg.Buffer)
	sub, err := b.conn.Subscribe(UserSubject(userID), func(msg *nats.Msg) {
		s.handle(msg.Data)
	})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("subscribe %s: %w", UserSubject(userID), err)
	}
	s.sub = sub
	s.release = func() { b.remove(s) }

	b.add(s)
	if b.Connected() {
		s.deliver(models.StreamEvent{Kind: models.StreamConnected})
	}

	go func() {
		<-s.ctx.Done()
		s.Close()
	}()

	logger.Debug("subscribed to booking events", zap.String("subject", UserSubject(userID)))
	return s, nil
}

func (b *Bus) add(s *Subscription) {
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (b *Bus) broadcast(ev models.StreamEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev)
	}
}

// Close drains subscriptions and closes the NATS connection.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Drain()
	}
	logger.Info("NATS event bus closed")
}

// Connected returns true if the NATS connection is active.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Subscription is one rider's event feed.
type Subscription struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sub     *nats.Subscription
	release func()

	mu     sync.Mutex
	closed bool
	events chan models.StreamEvent
}

func newSubscription(ctx context.Context, buffer int) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan models.StreamEvent, buffer),
	}
}

// Events is closed after Close.
func (s *Subscription) Events() <-chan models.StreamEvent {
	return s.events
}

func (s *Subscription) handle(data []byte) {
	ev, ok, err := models.DecodeEnvelope(data)
	if err != nil {
		logger.Warn("dropping malformed booking event", zap.Error(err))
		return
	}
	if ok {
		s.deliver(ev)
	}
}

// deliver blocks while the buffer is full, until the subscription closes.
func (s *Subscription) deliver(ev models.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Close unsubscribes and closes Events. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			logger.Warn("nats unsubscribe failed", zap.Error(err))
		}
	}
	if s.release != nil {
		s.release()
	}
	close(s.events)
}
