package metrics

import (
	"time"

	"openboard/rowguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationMetrics tracks filter evaluation metrics.
//
// Metrics:
//   - rowguard_rls_evaluations_total: Total evaluations by outcome
//   - rowguard_rls_evaluation_duration_seconds: Evaluation latency histogram
//   - rowguard_rls_snapshot_generation: Active policy snapshot generation
type EvaluationMetrics struct {
	// Evaluation counter by outcome
	evaluationsTotal *prometheus.CounterVec

	// Evaluation latency histogram
	duration prometheus.Histogram

	// Active snapshot generation
	snapshotGeneration prometheus.Gauge
}

// NewEvaluationMetrics creates and registers evaluation metrics with the
// provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of filter evaluations by outcome",
			},
			[]string{"outcome"},
		),

		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Filter evaluation duration in seconds",
				Buckets:   cfg.EvaluationDurationBuckets,
			},
		),

		snapshotGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "snapshot_generation",
				Help:      "Policy snapshot generation currently evaluated against",
			},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.duration,
		em.snapshotGeneration,
	)

	return em
}

// RecordEvaluation records a completed evaluation with its outcome and
// duration.
func (em *EvaluationMetrics) RecordEvaluation(outcome string, duration time.Duration) {
	em.evaluationsTotal.WithLabelValues(outcome).Inc()
	em.duration.Observe(duration.Seconds())
}

// UpdateGeneration updates the active snapshot generation gauge.
func (em *EvaluationMetrics) UpdateGeneration(generation uint64) {
	em.snapshotGeneration.Set(float64(generation))
}
