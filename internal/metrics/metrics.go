// Package metrics holds the Prometheus collectors shared by the factoring
// pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for synthesis, execution and the two
// controllers.
type Metrics struct {
	// Order finding
	OrderRoundsTotal *prometheus.CounterVec

	// Executor
	ExecutionsTotal  prometheus.Counter
	ExecuteDuration  prometheus.Histogram
	DistributionHits *prometheus.CounterVec

	// Shor controller
	ShorRoundsTotal *prometheus.CounterVec

	// Synthesis memoization
	SynthCacheTotal *prometheus.CounterVec
}

// Get creates and registers the metrics on first use and returns the same
// instance afterwards. All names are prefixed with "qfactor_".
//
// Metrics:
//   - qfactor_order_rounds_total{outcome} - order-finding rounds by outcome
//   - qfactor_executions_total - circuit executions
//   - qfactor_execute_duration_seconds - wall time per execution
//   - qfactor_distribution_cache_total{result} - executor distribution cache lookups
//   - qfactor_shor_rounds_total{outcome} - witness rounds by outcome
//   - qfactor_synth_cache_total{result} - sub-circuit cache lookups
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			OrderRoundsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qfactor_order_rounds_total",
					Help: "Total number of order-finding rounds",
				},
				[]string{"outcome"}, // "verified" or "retry"
			),

			ExecutionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "qfactor_executions_total",
					Help: "Total number of circuit executions",
				},
			),

			ExecuteDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "qfactor_execute_duration_seconds",
					Help:    "Duration of circuit execution in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
				},
			),

			DistributionHits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qfactor_distribution_cache_total",
					Help: "Executor distribution cache lookups",
				},
				[]string{"result"}, // "hit" or "miss"
			),

			ShorRoundsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qfactor_shor_rounds_total",
					Help: "Total number of Shor witness rounds",
				},
				[]string{"outcome"}, // "gcd", "factor", "inconclusive"
			),

			SynthCacheTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "qfactor_synth_cache_total",
					Help: "Sub-circuit synthesis cache lookups",
				},
				[]string{"result"}, // "hit" or "miss"
			),
		}
	})
	return globalMetrics
}
