package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the breaker refuses a request because it is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// DefaultBreakerName labels a breaker built without a name.
const DefaultBreakerName = "upstream"

// Operation represents a call wrapped by the circuit breaker.
type Operation func(ctx context.Context) (interface{}, error)

// FallbackFunc answers a call the breaker refused.
type FallbackFunc func(ctx context.Context, err error) (interface{}, error)

// Settings defines runtime options for the circuit breaker.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsSuccessful decides which errors count against the breaker. Errors it
	// accepts are still returned to the caller. Nil counts every error except
	// context cancellation.
	IsSuccessful func(err error) bool
}

// CircuitBreaker wraps gobreaker with the gateway's logging and metrics.
type CircuitBreaker struct {
	name     string
	breaker  *gobreaker.CircuitBreaker
	fallback FallbackFunc
}

// NewCircuitBreaker constructs a breaker with logging and optional fallback behaviour.
func NewCircuitBreaker(settings Settings, fallback FallbackFunc) *CircuitBreaker {
	name := settings.Name
	if name == "" {
		name = DefaultBreakerName
	}

	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	isSuccessful := settings.IsSuccessful
	if isSuccessful == nil {
		isSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}

	breakerSettings := gobreaker.Settings{
		Name:     name,
		Timeout:  settings.Timeout,
		Interval: settings.Interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			observeBreakerTransition(name, to)
			logger.Get().Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	if settings.SuccessThreshold > 0 {
		breakerSettings.MaxRequests = settings.SuccessThreshold
	}

	observeBreakerState(name, gobreaker.StateClosed)

	return &CircuitBreaker{
		name:     name,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings),
		fallback: fallback,
	}
}

// Name returns the breaker's metric label.
func (c *CircuitBreaker) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Execute runs the supplied operation through the breaker.
func (c *CircuitBreaker) Execute(ctx context.Context, operation Operation) (interface{}, error) {
	if operation == nil {
		return nil, errors.New("operation cannot be nil")
	}

	if c == nil || c.breaker == nil {
		return operation(ctx)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return operation(ctx)
	})
	if err == nil {
		observeBreakerCall(c.name, "ok")
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observeBreakerCall(c.name, "rejected")
		if c.fallback != nil {
			return c.fallback(ctx, err)
		}
		return nil, ErrCircuitOpen
	}

	observeBreakerCall(c.name, "error")
	return nil, err
}

// Allow reports whether the breaker would allow a request without executing it.
func (c *CircuitBreaker) Allow() bool {
	if c == nil || c.breaker == nil {
		return true
	}
	return c.breaker.State() != gobreaker.StateOpen
}
