// Package metrics registers the engine's internal Prometheus instruments,
// wired the way mercator-hq/jupiter and etalazz/vsa expose their
// prometheus.Collector sets: New builds every instrument against a fresh
// prometheus.Registry owned by the returned Metrics value.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every instrument the engine exposes. A single instance
// is constructed at engine startup and threaded to the components that
// need it.
type Metrics struct {
	Registry *prometheus.Registry

	PoolSize          *prometheus.GaugeVec
	TierTransitions   *prometheus.CounterVec
	FetchCycles       prometheus.Counter
	FetchErrors       *prometheus.CounterVec
	ValidationsTotal  *prometheus.CounterVec
	ValidationLatency prometheus.Histogram
	ScoreAvg          prometheus.Gauge
	PersistWrites     *prometheus.CounterVec
}

// New constructs and registers the full instrument set against a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		PoolSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "pool",
			Name:      "size",
			Help:      "Current number of nodes per tier.",
		}, []string{"tier"}),

		TierTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "pool",
			Name:      "tier_transitions_total",
			Help:      "Count of tier transitions by from/to tier.",
		}, []string{"from", "to"}),

		FetchCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "scheduler",
			Name:      "fetch_cycles_total",
			Help:      "Number of completed fetch cycles.",
		}),

		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "adapters",
			Name:      "fetch_errors_total",
			Help:      "Adapter fetch errors by source and kind.",
		}, []string{"source", "kind"}),

		ValidationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "validator",
			Name:      "validations_total",
			Help:      "Validation attempts by outcome.",
		}, []string{"outcome"}),

		ValidationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "validator",
			Name:      "latency_ms",
			Help:      "Observed validation request latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),

		ScoreAvg: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "scorer",
			Name:      "avg_score",
			Help:      "Average score across all non-blacklisted nodes.",
		}),

		PersistWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "persistence",
			Name:      "writes_total",
			Help:      "Persistence write attempts by result.",
		}, []string{"result"}),
	}
}
