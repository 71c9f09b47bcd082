package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Upper bounds for operator supplied timeouts, in seconds.
const (
	MaxHTTPClientTimeout = 120
	MaxSubmitTimeout     = 120
	MaxRequestTimeout    = 300
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Upstream   UpstreamConfig
	Stream     StreamConfig
	Fare       FareConfig
	Schedule   ScheduleConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Resilience ResilienceConfig
	Tracing    TracingConfig
	Sentry     SentryConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port                  string
	Environment           string
	ServiceName           string
	ReadTimeout           int
	WriteTimeout          int
	RequestTimeoutSeconds int
	CORSOrigins           string // Comma-separated list of allowed origins
}

// LogConfig controls the optional rotated log file.
type LogConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// UpstreamConfig points at the ride API the gateway fronts.
type UpstreamConfig struct {
	BaseURL              string
	HTTPTimeoutSeconds   int
	SubmitTimeoutSeconds int
	ResyncAttempts       int
}

// StreamConfig selects and tunes the status event source.
type StreamConfig struct {
	WebSocketURL        string
	NATSURL             string
	NATSEnabled         bool
	ReconnectMinSeconds int
	ReconnectMaxSeconds int
}

// FareConfig tunes the local estimator. Amounts are minor currency units.
type FareConfig struct {
	Currency        string
	TaxBasisPoints  int
	PerStopFee      int
	OptionSurcharge int
}

// ScheduleConfig bounds how far ahead a pickup may be scheduled.
type ScheduleConfig struct {
	MinLeadMinutes int
	MaxLeadDays    int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host                string
	Port                string
	Password            string
	DB                  int
	IdempotencyTTLHours int
}

// RateLimitConfig throttles promo code attempts per rider.
type RateLimitConfig struct {
	Enabled       bool
	WindowSeconds int
	PromoLimit    int
	PromoBurst    int
	RedisPrefix   string
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// TracingConfig enables the OTLP exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

// SentryConfig enables error capture.
type SentryConfig struct {
	DSN        string
	SampleRate float64
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:                  getEnv("PORT", "8080"),
			Environment:           getEnv("ENVIRONMENT", "development"),
			ServiceName:           serviceName,
			ReadTimeout:           getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:          getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeoutSeconds: getEnvAsInt("DEFAULT_REQUEST_TIMEOUT", 30),
			CORSOrigins:           getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Log: LogConfig{
			FilePath:   getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
		},
		Upstream: UpstreamConfig{
			BaseURL:              getEnv("RIDE_API_URL", "http://localhost:8000"),
			HTTPTimeoutSeconds:   getEnvAsInt("HTTP_CLIENT_TIMEOUT", 15),
			SubmitTimeoutSeconds: getEnvAsInt("SUBMIT_TIMEOUT", 20),
			ResyncAttempts:       getEnvAsInt("RESYNC_ATTEMPTS", 5),
		},
		Stream: StreamConfig{
			WebSocketURL:        getEnv("STREAM_WS_URL", "ws://localhost:8000/ws"),
			NATSURL:             getEnv("NATS_URL", "nats://localhost:4222"),
			NATSEnabled:         getEnvAsBool("NATS_ENABLED", false),
			ReconnectMinSeconds: getEnvAsInt("STREAM_RECONNECT_MIN_SECONDS", 1),
			ReconnectMaxSeconds: getEnvAsInt("STREAM_RECONNECT_MAX_SECONDS", 30),
		},
		Fare: FareConfig{
			Currency:        getEnv("FARE_CURRENCY", "USD"),
			TaxBasisPoints:  getEnvAsInt("FARE_TAX_BASIS_POINTS", 800),
			PerStopFee:      getEnvAsInt("FARE_PER_STOP_FEE", 150),
			OptionSurcharge: getEnvAsInt("FARE_OPTION_SURCHARGE", 200),
		},
		Schedule: ScheduleConfig{
			MinLeadMinutes: getEnvAsInt("SCHEDULE_MIN_LEAD_MINUTES", 15),
			MaxLeadDays:    getEnvAsInt("SCHEDULE_MAX_LEAD_DAYS", 30),
		},
		Redis: RedisConfig{
			Host:                getEnv("REDIS_HOST", "localhost"),
			Port:                getEnv("REDIS_PORT", "6379"),
			Password:            getEnv("REDIS_PASSWORD", ""),
			DB:                  getEnvAsInt("REDIS_DB", 0),
			IdempotencyTTLHours: getEnvAsInt("IDEMPOTENCY_TTL_HOURS", 24),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			PromoLimit:    getEnvAsInt("RATE_LIMIT_PROMO_LIMIT", 10),
			PromoBurst:    getEnvAsInt("RATE_LIMIT_PROMO_BURST", 2),
			RedisPrefix:   getEnv("RATE_LIMIT_REDIS_PREFIX", "rate_limit"),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
		Sentry: SentryConfig{
			DSN:        getEnv("SENTRY_DSN", ""),
			SampleRate: getEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		},
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Resilience.CircuitBreaker.TimeoutSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.TimeoutSeconds = 30
	}
	if cfg.Resilience.CircuitBreaker.IntervalSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.IntervalSeconds = 60
	}
	if cfg.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.Resilience.CircuitBreaker.SuccessThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 1
	}
	if cfg.Upstream.ResyncAttempts <= 0 {
		cfg.Upstream.ResyncAttempts = 1
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("RIDE_API_URL must not be empty")
	}
	if err := checkRange("HTTP_CLIENT_TIMEOUT", c.Upstream.HTTPTimeoutSeconds, MaxHTTPClientTimeout); err != nil {
		return err
	}
	if err := checkRange("SUBMIT_TIMEOUT", c.Upstream.SubmitTimeoutSeconds, MaxSubmitTimeout); err != nil {
		return err
	}
	if err := checkRange("DEFAULT_REQUEST_TIMEOUT", c.Server.RequestTimeoutSeconds, MaxRequestTimeout); err != nil {
		return err
	}
	if c.Schedule.MinLeadMinutes < 0 || c.Schedule.MaxLeadDays <= 0 {
		return fmt.Errorf("SCHEDULE_MIN_LEAD_MINUTES and SCHEDULE_MAX_LEAD_DAYS must be positive")
	}
	if c.Schedule.MinLead() >= c.Schedule.MaxLead() {
		return fmt.Errorf("SCHEDULE_MIN_LEAD_MINUTES must be shorter than SCHEDULE_MAX_LEAD_DAYS")
	}
	if c.Fare.TaxBasisPoints < 0 || c.Fare.PerStopFee < 0 || c.Fare.OptionSurcharge < 0 {
		return fmt.Errorf("fare settings must not be negative")
	}
	return nil
}

func checkRange(key string, value, max int) error {
	if value <= 0 || value > max {
		return fmt.Errorf("%s must be between 1 and %d seconds, got %d", key, max, value)
	}
	return nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// MinLead returns the minimum lead time as a duration.
func (c ScheduleConfig) MinLead() time.Duration {
	return time.Duration(c.MinLeadMinutes) * time.Minute
}

// MaxLead returns the maximum lead time as a duration.
func (c ScheduleConfig) MaxLead() time.Duration {
	return time.Duration(c.MaxLeadDays) * 24 * time.Hour
}

// HTTPTimeout returns the per-call timeout for the ride API.
func (c UpstreamConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// SubmitTimeout bounds a single create-booking attempt.
func (c UpstreamConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSeconds) * time.Second
}

// ReconnectBackoff returns the bounds for stream reconnect delays.
func (c StreamConfig) ReconnectBackoff() (time.Duration, time.Duration) {
	minDelay := time.Duration(c.ReconnectMinSeconds) * time.Second
	maxDelay := time.Duration(c.ReconnectMaxSeconds) * time.Second
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return minDelay, maxDelay
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IdempotencyTTL is how long a confirmed response is replayable.
func (c RedisConfig) IdempotencyTTL() time.Duration {
	if c.IdempotencyTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// Window returns the rate limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// AllowedOrigins splits CORSOrigins into a clean list.
func (c ServerConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
