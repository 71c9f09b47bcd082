package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Breakers are labelled by upstream ("ride-api"). Retries are labelled by
// operation ("resync_bookings", "redis.get", "GET <path>").
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rider_gateway",
		Subsystem: "upstream_breaker",
		Name:      "state",
		Help:      "Breaker state per upstream (0=closed, 0.5=half-open, 1=open)",
	}, []string{"upstream"})

	breakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rider_gateway",
		Subsystem: "upstream_breaker",
		Name:      "calls_total",
		Help:      "Upstream calls through a breaker by outcome (ok, error, rejected)",
	}, []string{"upstream", "outcome"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rider_gateway",
		Subsystem: "upstream_breaker",
		Name:      "transitions_total",
		Help:      "Breaker state transitions per upstream",
	}, []string{"upstream", "to"})

	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rider_gateway",
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Individual attempts made by retried operations",
	}, []string{"operation", "result"})

	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rider_gateway",
		Subsystem: "retry",
		Name:      "operation_duration_seconds",
		Help:      "Wall time of a retried operation including backoff",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"operation", "result"})
)

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	}
	return 0
}

func observeBreakerState(upstream string, to gobreaker.State) {
	breakerState.WithLabelValues(upstream).Set(stateValue(to))
}

func observeBreakerTransition(upstream string, to gobreaker.State) {
	breakerTransitions.WithLabelValues(upstream, to.String()).Inc()
	observeBreakerState(upstream, to)
}

func observeBreakerCall(upstream, outcome string) {
	breakerCalls.WithLabelValues(upstream, outcome).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func observeAttempt(operation string, ok bool) {
	retryAttempts.WithLabelValues(operation, resultLabel(ok)).Inc()
}

func observeRetry(operation string, started time.Time, ok bool) {
	retryDuration.WithLabelValues(operation, resultLabel(ok)).Observe(time.Since(started).Seconds())
}
