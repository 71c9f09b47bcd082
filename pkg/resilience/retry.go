package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/richxcame/ride-booking/pkg/logger"
	"go.uber.org/zap"
)

// RetryConfig defines the configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// EnableJitter applies full jitter to every delay.
	EnableJitter bool
	// RetryableErrors, when set, is the allow-list of retryable errors.
	RetryableErrors []error
	// RetryableChecker takes precedence over RetryableErrors.
	RetryableChecker func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// ResyncRetryConfig is used for read-only trip list fetches, which are safe
// to repeat.
func ResyncRetryConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialBackoff = 500 * time.Millisecond
	cfg.MaxBackoff = 10 * time.Second
	return cfg
}

// Retry executes the given operation with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, operation Operation) (interface{}, error) {
	return RetryWithName(ctx, config, operation, "unknown")
}

// RetryWithName executes the operation with retry logic and records metrics with the given operation name
func RetryWithName(ctx context.Context, config RetryConfig, operation Operation, operationName string) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	started := time.Now()
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			observeRetry(operationName, started, false)
			return nil, err
		}

		result, err := operation(ctx)
		if err == nil {
			observeAttempt(operationName, true)
			observeRetry(operationName, started, true)

			if attempt > 1 {
				logger.WithContext(ctx).Info("operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", config.MaxAttempts),
					zap.String("operation", operationName),
				)
			}
			return result, nil
		}

		observeAttempt(operationName, false)
		lastErr = err

		if !shouldRetry(err, config) {
			logger.WithContext(ctx).Debug("error is not retryable",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.String("operation", operationName),
			)
			observeRetry(operationName, started, false)
			return nil, err
		}

		if attempt == config.MaxAttempts {
			logger.WithContext(ctx).Warn("operation failed after all retry attempts",
				zap.Error(err),
				zap.Int("attempts", attempt),
				zap.String("operation", operationName),
			)
			break
		}

		backoff := Backoff(attempt, config)

		logger.WithContext(ctx).Info("retrying operation after backoff",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", config.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.String("operation", operationName),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			observeRetry(operationName, started, false)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	observeRetry(operationName, started, false)
	return nil, lastErr
}

// Backoff returns the delay before the attempt following attempt (1-based).
// Stream reconnect loops use it directly.
func Backoff(attempt int, config RetryConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := config.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if config.EnableJitter {
		duration = addJitter(duration)
	}
	return duration
}

// addJitter implements full jitter: a uniform value in [0, duration).
func addJitter(duration time.Duration) time.Duration {
	if duration <= 0 {
		return duration
	}
	return time.Duration(rand.Int63n(int64(duration)))
}

func shouldRetry(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}

	if config.RetryableChecker != nil {
		return config.RetryableChecker(err)
	}

	if len(config.RetryableErrors) > 0 {
		for _, retryableErr := range config.RetryableErrors {
			if errors.Is(err, retryableErr) {
				return true
			}
		}
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// An open breaker will not close within one backoff window.
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	return true
}

// IsRetryableHTTPStatus reports whether a response status is worth retrying:
// 408, 429, 500, 502, 503 and 504.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
