package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richxcame/ride-booking/internal/api"
	"github.com/richxcame/ride-booking/internal/fare"
	"github.com/richxcame/ride-booking/internal/gateway"
	"github.com/richxcame/ride-booking/internal/schedule"
	"github.com/richxcame/ride-booking/internal/session"
	"github.com/richxcame/ride-booking/pkg/async"
	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/config"
	"github.com/richxcame/ride-booking/pkg/errors"
	"github.com/richxcame/ride-booking/pkg/eventbus"
	"github.com/richxcame/ride-booking/pkg/health"
	"github.com/richxcame/ride-booking/pkg/httpclient"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/middleware"
	"github.com/richxcame/ride-booking/pkg/models"
	"github.com/richxcame/ride-booking/pkg/ratelimit"
	redisclient "github.com/richxcame/ride-booking/pkg/redis"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"github.com/richxcame/ride-booking/pkg/tracing"
	"github.com/richxcame/ride-booking/pkg/websocket"
	"go.uber.org/zap"
)

const (
	serviceName = "rider-gateway"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.InitWithFile(cfg.Server.Environment, logger.FileOptions{
		Path:       cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting rider gateway",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("ride_api", cfg.Upstream.BaseURL),
	)

	// Initialize Sentry for error tracking
	sentryEnabled, err := errors.InitSentry(errors.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Server.Environment,
		Release:     version,
		SampleRate:  cfg.Sentry.SampleRate,
		ServerName:  serviceName,
	})
	if err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else if sentryEnabled {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.Config{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.SampleRatio,
			Enabled:        true,
		}, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized successfully")
		}
	}

	var idempotencyStore redisclient.ClientInterface
	var promoLimiter *ratelimit.Limiter
	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, confirm requests will not be deduplicated", zap.Error(err))
	} else {
		idempotencyStore = redisClient
		if cfg.RateLimit.Enabled {
			promoLimiter = ratelimit.NewLimiter(redisClient.Cmdable(), cfg.RateLimit.RedisPrefix, ratelimit.Rule{
				Limit:  cfg.RateLimit.PromoLimit,
				Burst:  cfg.RateLimit.PromoBurst,
				Window: cfg.RateLimit.Window(),
			})
			logger.Info("Promo rate limiting enabled",
				zap.Int("limit", cfg.RateLimit.PromoLimit),
				zap.Int("burst", cfg.RateLimit.PromoBurst),
				zap.Duration("window", cfg.RateLimit.Window()),
			)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}()
	}

	breaker := api.NewBreaker(cfg.Resilience.CircuitBreaker)
	if breaker != nil {
		breakerCfg := cfg.Resilience.CircuitBreaker.SettingsFor("ride-api")
		logger.Info("Circuit breaker configured for ride API",
			zap.Int("failure_threshold", breakerCfg.FailureThreshold),
			zap.Int("success_threshold", breakerCfg.SuccessThreshold),
			zap.Int("timeout_seconds", breakerCfg.TimeoutSeconds),
			zap.Int("interval_seconds", breakerCfg.IntervalSeconds),
		)
	}
	rideAPI := api.NewClient(httpclient.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.HTTPTimeout()), breaker)

	policy := fare.DefaultPolicy()
	policy.Currency = cfg.Fare.Currency
	policy.TaxBasisPoints = int64(cfg.Fare.TaxBasisPoints)
	policy.PerStop = int64(cfg.Fare.PerStopFee)
	policy.OptionSurcharge = int64(cfg.Fare.OptionSurcharge)

	streams, streamPing, closeStreams, err := streamDialer(cfg)
	if err != nil {
		logger.Fatal("Failed to set up status stream", zap.Error(err))
	}
	defer closeStreams()

	sessions := session.NewManager(session.Config{
		Remote:        session.APIRemote(rideAPI),
		Streams:       streams,
		Estimator:     fare.NewEstimator(policy),
		Schedule:      schedule.NewValidator(cfg.Schedule.MinLead(), cfg.Schedule.MaxLead()),
		SubmitTimeout: cfg.Upstream.SubmitTimeout(),
		ResyncRetry:   resilience.ResyncRetryConfig(cfg.Upstream.ResyncAttempts),
	})
	defer sessions.CloseAll()

	handler := gateway.NewHandler(sessions, idempotencyStore, cfg.Redis.IdempotencyTTL())
	if promoLimiter != nil {
		handler.WithPromoLimiter(promoLimiter)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Sentry())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	if cfg.Tracing.Enabled {
		router.Use(middleware.Tracing(serviceName))
	}

	// Health check endpoints
	router.GET("/healthz", common.LivenessProbe(serviceName, version))

	healthChecks := make(map[string]func() error)
	if idempotencyStore != nil {
		healthChecks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return idempotencyStore.Ping(ctx)
		}
	}
	router.GET("/health/ready", common.ReadinessProbe(serviceName, version, healthChecks))

	deepCfg := health.DefaultDeepCheckerConfig()
	deepCfg.Version = version
	deep := health.NewDeepChecker(deepCfg)
	deep.AddEndpoint("ride-api", strings.TrimRight(cfg.Upstream.BaseURL, "/")+"/healthz", false)
	deep.AddCircuitBreaker("ride-api", breaker)
	if idempotencyStore != nil {
		deep.AddDependency("redis", false, idempotencyStore.Ping)
	}
	if streamPing != nil {
		deep.AddDependency("nats", true, streamPing)
	}
	deep.AddGauge("open_sessions", sessions.Len)
	router.GET("/health/deep", deep.GinHandler())

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"version": version,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// streamDialer picks the status event source: NATS when enabled, otherwise
// the ride API's websocket stream. Only the shared NATS connection has a
// health ping.
func streamDialer(cfg *config.Config) (session.StreamDialer, health.PingFunc, func(), error) {
	minDelay, maxDelay := cfg.Stream.ReconnectBackoff()
	reconnect := resilience.RetryConfig{
		InitialBackoff:    minDelay,
		MaxBackoff:        maxDelay,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}

	if cfg.Stream.NATSEnabled {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = cfg.Stream.NATSURL
		busCfg.Name = serviceName
		busCfg.ReconnectWait = minDelay
		bus, err := eventbus.Connect(busCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		dial := func(ctx context.Context, id session.Identity) (<-chan models.StreamEvent, error) {
			sub, err := bus.Subscribe(ctx, id.UserID)
			if err != nil {
				return nil, err
			}
			return sub.Events(), nil
		}
		ping := func(ctx context.Context) error {
			if !bus.Connected() {
				return eventbus.ErrNotConnected
			}
			return nil
		}
		return dial, ping, bus.Close, nil
	}

	logger.Info("Status stream configured", zap.String("url", cfg.Stream.WebSocketURL))
	dial := func(ctx context.Context, id session.Identity) (<-chan models.StreamEvent, error) {
		stream := websocket.NewStream(websocket.Config{
			URL:       cfg.Stream.WebSocketURL,
			Token:     id.Token,
			Reconnect: reconnect,
		})
		async.Supervise(ctx, "status-stream", stream.Run)
		return stream.Events(), nil
	}
	return dial, nil, func() {}, nil
}
