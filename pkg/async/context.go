package async

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/richxcame/ride-booking/pkg/logger"
	"go.uber.org/zap"
)

// TaskContext holds the request values a background task keeps logging with.
type TaskContext struct {
	CorrelationID string
	UserID        string
	StartTime     time.Time
	TaskName      string
}

// CaptureContext captures the current context values for async propagation
func CaptureContext(ctx context.Context, taskName string) TaskContext {
	return TaskContext{
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		UserID:        logger.UserIDFromContext(ctx),
		StartTime:     time.Now(),
		TaskName:      taskName,
	}
}

// NewContext returns a background context carrying the captured values. It
// is not cancelled with the request it was captured from.
func (tc TaskContext) NewContext() context.Context {
	ctx := context.Background()
	if tc.CorrelationID != "" {
		ctx = logger.ContextWithCorrelationID(ctx, tc.CorrelationID)
	}
	if tc.UserID != "" {
		ctx = logger.ContextWithUserID(ctx, tc.UserID)
	}
	return ctx
}

// Supervise runs fn in a goroutine on ctx. Panics are recovered and logged,
// as are errors other than cancellation. The returned channel closes when fn
// has returned.
//
// Usage:
//
//	done := async.Supervise(ctx, "reconciler", func(ctx context.Context) error {
//	    return reconciler.Run(ctx, events)
//	})
func Supervise(ctx context.Context, taskName string, fn func(ctx context.Context) error) <-chan struct{} {
	tc := CaptureContext(ctx, taskName)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer recoverWithLogging(tc)

		err := fn(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			logger.DebugContext(ctx, "async task finished",
				zap.String("task", tc.TaskName),
				zap.Duration("duration", time.Since(tc.StartTime)),
			)
		default:
			logger.WarnContext(ctx, "async task stopped",
				zap.String("task", tc.TaskName),
				zap.Duration("duration", time.Since(tc.StartTime)),
				zap.Error(err),
			)
		}
	}()

	return done
}

func recoverWithLogging(tc TaskContext) {
	if r := recover(); r != nil {
		logger.ErrorContext(tc.NewContext(), "async task panicked",
			zap.String("task", tc.TaskName),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
