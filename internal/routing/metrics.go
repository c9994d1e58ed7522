package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diag_router",
		Subsystem: "executor",
		Name:      "attempt_total",
		Help:      "Backend call attempts by backend and outcome: success, transport_error, bad_status, soft_failure",
	}, []string{"backend", "outcome"})

	attemptLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diag_router",
		Subsystem: "executor",
		Name:      "attempt_latency_seconds",
		Help:      "Latency of individual backend call attempts",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"backend"})

	chainExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diag_router",
		Subsystem: "executor",
		Name:      "chain_exhausted_total",
		Help:      "Requests for which the primary backend and its whole fallback chain failed",
	})

	fallbackAdvanceTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diag_router",
		Subsystem: "executor",
		Name:      "fallback_advance_total",
		Help:      "Times execution advanced from a failed backend to the next chain candidate",
	})
)
