package errors

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/richxcame/ride-booking/pkg/logger"
)

// SentryConfig holds configuration for Sentry integration
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	ServerName  string
	Debug       bool
}

// InitSentry initializes the Sentry SDK. An empty DSN leaves capture disabled
// and is not an error.
func InitSentry(config SentryConfig) (bool, error) {
	if config.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		SampleRate:       config.SampleRate,
		Debug:            config.Debug,
		ServerName:       config.ServerName,
		AttachStacktrace: true,
		BeforeBreadcrumb: func(breadcrumb *sentry.Breadcrumb, hint *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			if breadcrumb.Category == "http" && breadcrumb.Data != nil {
				delete(breadcrumb.Data, "Authorization")
				delete(breadcrumb.Data, "Cookie")
			}
			return breadcrumb
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	return true, nil
}

// Flush flushes the Sentry buffer
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// CaptureError reports err with the request's correlation and rider IDs as
// tags. It is a no-op when Sentry was not initialised.
func CaptureError(ctx context.Context, err error, extras map[string]interface{}) *sentry.EventID {
	if err == nil {
		return nil
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	var eventID *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		if userID := logger.UserIDFromContext(ctx); userID != "" {
			scope.SetUser(sentry.User{ID: userID})
		}
		eventID = hub.CaptureException(err)
	})
	return eventID
}
