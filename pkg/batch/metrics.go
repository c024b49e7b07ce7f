package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoforge",
		Subsystem: "batch",
		Name:      "requests_total",
		Help:      "Provider requests by outcome.",
	}, []string{"provider", "outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoforge",
		Subsystem: "batch",
		Name:      "retries_total",
		Help:      "Retry attempts per provider.",
	}, []string{"provider"})

	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seoforge",
		Subsystem: "batch",
		Name:      "circuit_state",
		Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open).",
	}, []string{"provider"})
)
