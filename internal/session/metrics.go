package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rider_sessions_open",
	Help: "Rider sessions currently held by the gateway",
})
