// Package metrics provides Prometheus metrics collection for Rowguard.
//
// # Overview
//
// The metrics package implements Prometheus metrics for monitoring filter
// evaluations and the decision cache. The Collector satisfies the
// evaluation engine's Metrics interface, so wiring is a single call.
//
// # Metrics Categories
//
//   - Evaluation Metrics: evaluation count by outcome, evaluation latency,
//     active snapshot generation
//   - Cache Metrics: decision cache hits, misses, entries, and evictions
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng.SetMetrics(collector)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Prometheus Endpoint
//
// All metrics are exposed in standard Prometheus format:
//
//	# HELP rowguard_rls_evaluations_total Total number of filter evaluations by outcome
//	# TYPE rowguard_rls_evaluations_total counter
//	rowguard_rls_evaluations_total{outcome="filtered"} 1234
//
// Histogram buckets default to a sub-millisecond range because
// evaluations run entirely in memory; override them via
// MetricsConfig.EvaluationDurationBuckets for slower deployments.
package metrics
