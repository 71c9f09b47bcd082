package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log   *zap.Logger
	logMu sync.Mutex
)

type contextKey string

const (
	correlationIDContextKey contextKey = "correlation_id"
	userIDContextKey        contextKey = "user_id"
)

// FileOptions configures an optional rotated log file written next to stdout.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init initializes the global logger
func Init(environment string) error {
	return InitWithFile(environment, FileOptions{})
}

// InitWithFile initializes the global logger and, when opts.Path is set,
// tees every entry into a lumberjack-rotated JSON file.
func InitWithFile(environment string, opts FileOptions) error {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := config.Build()
	if err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()

	if opts.Path == "" {
		log = built
		return nil
	}

	fileEncoder := zap.NewProductionEncoderConfig()
	fileEncoder.TimeKey = "timestamp"
	fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileEncoder),
		zapcore.AddSync(newRotatingWriter(opts)),
		config.Level,
	)

	log = built.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	return nil
}

func newRotatingWriter(opts FileOptions) *lumberjack.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}

// Get returns the global logger instance
func Get() *zap.Logger {
	logMu.Lock()
	defer logMu.Unlock()

	if log == nil {
		// Fallback to a basic logger if Init wasn't called
		l, err := zap.NewDevelopment()
		if err != nil {
			l = zap.New(zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stderr),
				zapcore.DebugLevel,
			))
		}
		log = l
	}
	return log
}

// WithContext returns a logger enriched with the correlation ID and rider ID
// carried by ctx.
func WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return Get()
	}

	l := Get()
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		l = l.With(zap.String(string(correlationIDContextKey), correlationID))
	}
	if userID := UserIDFromContext(ctx); userID != "" {
		l = l.With(zap.String(string(userIDContextKey), userID))
	}

	return l
}

// ContextWithCorrelationID returns a context containing the provided correlation ID.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// CorrelationIDFromContext extracts a correlation ID from the provided context if available.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDContextKey)
}

// ContextWithUserID tags ctx with the rider the work is done for.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the rider ID stored by ContextWithUserID.
func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userIDContextKey)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// InfoContext logs an info message enriched with context-aware fields.
func InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Info(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// ErrorContext logs an error message enriched with context-aware fields.
func ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Error(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// DebugContext logs a debug message enriched with context-aware fields.
func DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// WarnContext logs a warning message enriched with context-aware fields.
func WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Warn(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	logMu.Lock()
	l := log
	logMu.Unlock()

	if l != nil {
		return l.Sync()
	}
	return nil
}
