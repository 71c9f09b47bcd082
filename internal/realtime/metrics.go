package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_status_events_total",
		Help: "Booking status events by outcome (applied, unchanged, unknown)",
	}, []string{"outcome"})

	streamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_stream_events_total",
		Help: "Stream events consumed by the reconciler, by kind",
	}, []string{"kind"})

	resyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_resyncs_total",
		Help: "Full trip list resynchronisations by result",
	}, []string{"result"})
)
