package metrics

import (
	"time"

	"openboard/rowguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// decisionCacheName labels decision-cache metrics.
const decisionCacheName = "decisions"

// Collector records Rowguard's Prometheus metrics. It satisfies the
// engine's Metrics interface, so it can be attached to an Engine
// directly:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng.SetMetrics(collector)
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Evaluation metrics
	evaluationMetrics *EvaluationMetrics

	// Decision cache metrics
	cacheMetrics *CacheMetrics
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = "rowguard"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "rls"
	}
	if len(cfg.EvaluationDurationBuckets) == 0 {
		// Evaluations are in-memory; sub-millisecond is the common case.
		cfg.EvaluationDurationBuckets = []float64{
			0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05,
		}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.evaluationMetrics = NewEvaluationMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// ObserveEvaluation records one completed filter evaluation.
//
// Parameters:
//   - outcome: evaluation outcome ("unrestricted", "filtered", "denied", "unavailable")
//   - duration: evaluation wall-clock duration
func (c *Collector) ObserveEvaluation(outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.evaluationMetrics.RecordEvaluation(outcome, duration)
}

// SetSnapshotGeneration publishes the snapshot generation the engine is
// currently evaluating against.
func (c *Collector) SetSnapshotGeneration(generation uint64) {
	if !c.config.Enabled {
		return
	}

	c.evaluationMetrics.UpdateGeneration(generation)
}

// CacheHit records a decision cache hit.
func (c *Collector) CacheHit() {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordHit(decisionCacheName)
}

// CacheMiss records a decision cache miss.
func (c *Collector) CacheMiss() {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordMiss(decisionCacheName)
}

// CacheEvictions records evicted decision cache entries.
func (c *Collector) CacheEvictions(count int) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordEvictions(decisionCacheName, count)
}

// CacheEntries publishes the current decision cache size.
func (c *Collector) CacheEntries(count int) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.UpdateSize(decisionCacheName, count)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
