package booking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wizardTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_wizard_transitions_total",
		Help: "Booking wizard state transitions",
	}, []string{"from", "to"})

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_submissions_total",
		Help: "Create-booking submissions by result",
	}, []string{"result"})

	submissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booking_submission_duration_seconds",
		Help:    "Latency of create-booking calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	promoApplicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_promo_applications_total",
		Help: "Promo code applications by outcome",
	}, []string{"outcome"})
)

func recordTransition(from, to State) {
	wizardTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func recordSubmission(result string) {
	submissionsTotal.WithLabelValues(result).Inc()
}

func recordPromo(outcome string) {
	promoApplicationsTotal.WithLabelValues(outcome).Inc()
}
