package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/richxcame/ride-booking/internal/booking"
	"github.com/richxcame/ride-booking/internal/fare"
	"github.com/richxcame/ride-booking/internal/notifications"
	"github.com/richxcame/ride-booking/internal/promos"
	"github.com/richxcame/ride-booking/internal/realtime"
	"github.com/richxcame/ride-booking/internal/schedule"
	"github.com/richxcame/ride-booking/internal/trips"
	"github.com/richxcame/ride-booking/pkg/async"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"go.uber.org/zap"
)

var ErrNoSession = errors.New("no open session")

// StreamDialer opens the status event feed for a rider. The feed must stop
// and close its channel once ctx ends.
type StreamDialer func(ctx context.Context, id Identity) (<-chan models.StreamEvent, error)

// Config wires a Manager.
type Config struct {
	Remote        RemoteFactory
	Streams       StreamDialer
	Estimator     *fare.Estimator
	Schedule      *schedule.Validator
	SubmitTimeout time.Duration
	ResyncRetry   resilience.RetryConfig
	InboxCapacity int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is everything the gateway holds for one signed-in rider.
type Session struct {
	Trips      *trips.Store
	Inbox      *notifications.Inbox
	Reconciler *realtime.Reconciler
	Wizard     *booking.Wizard

	mu       sync.RWMutex
	identity Identity

	remote *remoteProxy
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Identity returns who the session acts for.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) setIdentity(id Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Close stops the stream and waits for the reconciler to exit.
func (s *Session) Close() {
	s.cancel()
	<-s.done
	s.Wizard.Close()
}

// Manager owns the open sessions, keyed by user id.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager with no sessions.
func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Estimator == nil {
		cfg.Estimator = fare.NewEstimator(fare.DefaultPolicy())
	}
	if cfg.Schedule == nil {
		cfg.Schedule = schedule.NewValidator(schedule.DefaultMinLead, schedule.DefaultMaxLead)
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// Open returns the rider's session, creating it on first use. Opening again
// with a new token keeps the session and switches its token.
func (m *Manager) Open(ctx context.Context, token string) (*Session, error) {
	id, err := IdentityFromToken(token, m.cfg.Now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id.UserID]; ok {
		if existing.Identity().Token != token {
			existing.remote.set(m.cfg.Remote(token))
			existing.setIdentity(id)
		}
		m.mu.Unlock()
		return existing, nil
	}

	s, err := m.start(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.sessions[id.UserID] = s
	m.mu.Unlock()

	sessionsOpen.Inc()
	logger.InfoContext(ctx, "rider session opened", zap.String("user_id", id.UserID))

	if m.cfg.Streams == nil {
		if err := s.Reconciler.Resync(ctx); err != nil {
			logger.WarnContext(ctx, "initial trip list resync failed", zap.Error(err))
		}
	}
	return s, nil
}

func (m *Manager) start(id Identity) (*Session, error) {
	remote := &remoteProxy{}
	remote.set(m.cfg.Remote(id.Token))

	store := trips.NewStore()
	inbox := notifications.NewInbox(m.cfg.InboxCapacity)
	reconciler := realtime.NewReconciler(realtime.Config{
		UserID:      id.UserID,
		Remote:      remote,
		Trips:       store,
		Inbox:       inbox,
		ResyncRetry: m.cfg.ResyncRetry,
	})
	wizard := booking.NewWizard(booking.Config{
		RiderID:       id.UserID,
		Estimator:     m.cfg.Estimator,
		Schedule:      m.cfg.Schedule,
		Promos:        promos.NewService(remote),
		Creator:       remote,
		Trips:         store,
		SubmitTimeout: m.cfg.SubmitTimeout,
		Now:           m.cfg.Now,
	})

	// The session outlives the request that opened it.
	streamCtx, cancel := context.WithCancel(logger.ContextWithUserID(context.Background(), id.UserID))

	s := &Session{
		identity:   id,
		Trips:      store,
		Inbox:      inbox,
		Reconciler: reconciler,
		Wizard:     wizard,
		remote:     remote,
		cancel:     cancel,
	}

	if m.cfg.Streams == nil {
		done := make(chan struct{})
		close(done)
		s.done = done
		return s, nil
	}

	events, err := m.cfg.Streams(streamCtx, id)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open status stream: %w", err)
	}
	s.done = async.Supervise(streamCtx, "reconciler", func(ctx context.Context) error {
		return reconciler.Run(ctx, events)
	})
	return s, nil
}

// Get returns the open session for userID.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close tears down the rider's session. It reports whether one was open.
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	sessionsOpen.Dec()
	logger.Info("rider session closed", zap.String("user_id", userID))
	return true
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
