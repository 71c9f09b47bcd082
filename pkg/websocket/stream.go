package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	defaultBuffer = 64
)

// Config configures a Stream.
type Config struct {
	URL   string
	Token string
	// Reconnect bounds the delay between dial attempts. MaxAttempts is
	// ignored; the stream redials until its context ends.
	Reconnect resilience.RetryConfig
	PongWait  time.Duration
	Buffer    int
	Dialer    *websocket.Dialer
}

// Stream is a reconnecting client for the ride API's status stream. Every
// (re)connect emits StreamConnected and every drop emits StreamDisconnected,
// so the consumer knows when to resync.
type Stream struct {
	cfg    Config
	events chan models.StreamEvent

	writeMu sync.Mutex
}

// NewStream creates a stream; call Run to start it.
func NewStream(cfg Config) *Stream {
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Reconnect.InitialBackoff <= 0 {
		cfg.Reconnect = resilience.DefaultRetryConfig()
	}
	return &Stream{
		cfg:    cfg,
		events: make(chan models.StreamEvent, cfg.Buffer),
	}
}

// Events is closed when Run returns.
func (s *Stream) Events() <-chan models.StreamEvent {
	return s.events
}

// Run dials, reads and redials until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	failures := 0
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			failures = 0
			if !s.emit(ctx, models.StreamEvent{Kind: models.StreamConnected}) {
				conn.Close()
				return ctx.Err()
			}
			err = s.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !s.emit(ctx, models.StreamEvent{Kind: models.StreamDisconnected, Err: err}) {
				return ctx.Err()
			}
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WarnContext(ctx, "status stream dial failed", zap.Error(err))
		}

		failures++
		delay := resilience.Backoff(failures, s.cfg.Reconnect)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
		query := target.Query()
		query.Set("token", s.cfg.Token)
		target.RawQuery = query.Encode()
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		header.Set("X-Correlation-ID", id)
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, target.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve reads until the connection fails or ctx ends. Pings are written on
// a ticker; a missing pong trips the read deadline.
func (s *Stream) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.write(conn, websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	pingPeriod := (s.cfg.PongWait * 9) / 10
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.write(conn, websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "status stream read failed", zap.Error(err))
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		if err := s.handleMessage(ctx, conn, data); err != nil {
			return err
		}
	}
}

func (s *Stream) handleMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type == models.MessagePing {
		pong, _ := json.Marshal(models.Envelope{
			Type:      models.MessagePong,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return s.write(conn, websocket.TextMessage, pong)
	}

	ev, ok, err := models.DecodeEnvelope(data)
	if err != nil {
		logger.WarnContext(ctx, "dropping malformed stream message", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if !s.emit(ctx, ev) {
		return ctx.Err()
	}
	return nil
}

func (s *Stream) write(conn *websocket.Conn, messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if messageType == websocket.CloseMessage {
		err := conn.WriteControl(messageType, data, time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return conn.WriteMessage(messageType, data)
}

func (s *Stream) emit(ctx context.Context, ev models.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
