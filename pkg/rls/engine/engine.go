package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"openboard/rowguard/pkg/rls"
	"openboard/rowguard/pkg/rls/store"
)

// Evaluation outcomes reported to the metrics collector.
const (
	OutcomeUnrestricted = "unrestricted"
	OutcomeFiltered     = "filtered"
	OutcomeDenied       = "denied"
	OutcomeUnavailable  = "unavailable"
)

// Metrics receives engine instrumentation. A nil Metrics disables it.
type Metrics interface {
	CacheObserver

	// ObserveEvaluation records one completed evaluation with its outcome
	// and wall-clock duration.
	ObserveEvaluation(outcome string, duration time.Duration)

	// SetSnapshotGeneration publishes the generation the engine is
	// currently evaluating against.
	SetSnapshotGeneration(generation uint64)
}

// DecisionRecord is the audit trail's view of one evaluation.
type DecisionRecord struct {
	EvaluatedAt  time.Time
	UserID       string
	Username     string
	RoleIDs      []string
	ConnectionID string
	SchemaName   string
	TableName    string

	// Decision is what the caller was told to enforce.
	Decision rls.FilterDecision

	// Enforced is the decision the policies produced. It differs from
	// Decision only in audit mode, where enforcement is withheld.
	Enforced rls.FilterDecision

	AuditOnly  bool
	CacheHit   bool
	Duration   time.Duration
	Generation uint64
}

// Auditor persists decision records. Implementations must not block the
// evaluation path; buffer and drop if necessary.
type Auditor interface {
	RecordDecision(record DecisionRecord)
}

// Engine evaluates row-level security for table access requests. One
// engine serves a whole process; Evaluate is safe for concurrent use.
type Engine struct {
	config   *Config
	logger   *slog.Logger
	loader   *Loader
	cache    *decisionCache
	compiler *Compiler

	metrics Metrics
	auditor Auditor

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates an engine over the given store. A nil config uses
// DefaultConfig; a nil logger uses slog.Default.
func NewEngine(st store.Store, config *Config, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rls-engine")

	e := &Engine{
		config:   config,
		logger:   logger,
		loader:   NewLoader(st, config, logger),
		compiler: NewCompiler(logger),
	}
	e.cache = newDecisionCache(config.CacheMaxEntries, engineCacheObserver{e})
	return e, nil
}

// engineCacheObserver forwards cache events to the engine's metrics
// collector, which may be attached after construction.
type engineCacheObserver struct{ e *Engine }

func (o engineCacheObserver) CacheHit() {
	if o.e.metrics != nil {
		o.e.metrics.CacheHit()
	}
}

func (o engineCacheObserver) CacheMiss() {
	if o.e.metrics != nil {
		o.e.metrics.CacheMiss()
	}
}

func (o engineCacheObserver) CacheEvictions(count int) {
	if o.e.metrics != nil {
		o.e.metrics.CacheEvictions(count)
	}
}

func (o engineCacheObserver) CacheEntries(count int) {
	if o.e.metrics != nil {
		o.e.metrics.CacheEntries(count)
	}
}

// SetMetrics attaches a metrics collector. Call before Start.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// SetAuditor attaches an audit sink. Call before Start.
func (e *Engine) SetAuditor(a Auditor) {
	e.auditor = a
}

// Start loads the initial snapshot and launches the background refresh
// and cache sweep loops. A failed initial load is logged, not fatal; the
// refresh loop keeps retrying and evaluations deny until a snapshot
// arrives.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	loadCtx, cancelLoad := context.WithTimeout(ctx, 10*time.Second)
	if _, err := e.loader.Refresh(loadCtx); err != nil {
		e.logger.Warn("initial snapshot load failed, evaluations deny until the store is reachable", "error", err)
	}
	cancelLoad()

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.loader.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.sweepLoop(runCtx)
	}()

	e.started = true
	e.logger.Info("engine started",
		"refresh_interval", e.config.RefreshInterval.String(),
		"max_staleness", e.config.MaxSnapshotStaleness.String(),
		"cache_max_entries", e.config.CacheMaxEntries)
	return nil
}

// Stop halts the background loops and waits for them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.started = false
	e.logger.Info("engine stopped")
}

// Snapshot exposes the current snapshot for health and admin surfaces.
// It may be nil before the first successful load.
func (e *Engine) Snapshot() *Snapshot {
	return e.loader.Current()
}

// InvalidateCache drops every cached decision. Mutations invalidate
// implicitly through the generation counter; this is for operators.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.purge()
	}
}

// Evaluate produces the filter decision for one table access. It never
// returns an error: when the engine cannot answer safely it denies with
// reason "engine_unavailable".
func (e *Engine) Evaluate(ctx context.Context, connectionID, schemaName, tableName string, user *rls.UserSecurityContext) rls.FilterDecision {
	start := time.Now()

	snap := e.usableSnapshot(ctx)
	if snap == nil {
		decision := rls.Denied(rls.DenialEngineUnavailable)
		e.observe(OutcomeUnavailable, start)
		e.logger.Error("denying access, no usable snapshot",
			"user_id", user.UserID,
			"connection_id", connectionID,
			"schema", schemaName,
			"table", tableName)
		return decision
	}
	if e.metrics != nil {
		e.metrics.SetSnapshotGeneration(snap.Generation)
	}

	settings := snap.Settings

	// The disabled path skips resolution and caching but still reaches the
	// logging and audit tail below: logAccess covers every evaluation,
	// emergency disablement included.
	var (
		effective rls.FilterDecision
		enforced  rls.FilterDecision
		hit       bool
	)
	if !settings.Enabled {
		effective, enforced = ApplyEnforcement(rls.Unrestricted(), settings)
	} else {
		key := cacheKey(connectionID, schemaName, tableName, user.RoleIDs)
		var combined rls.FilterDecision
		combined, hit = e.cache.get(key, snap.Generation, settings.CacheTTL())
		if !hit {
			combined = e.evaluateUncached(snap, connectionID, schemaName, tableName, user)
			e.cache.put(key, snap.Generation, settings.CacheTTL(), combined)
		}
		effective, enforced = ApplyEnforcement(combined, settings)
	}
	elapsed := time.Since(start)
	e.observeDecision(effective, elapsed)

	if settings.LogAccess {
		e.logger.Info("access evaluated",
			"user_id", user.UserID,
			"connection_id", connectionID,
			"schema", schemaName,
			"table", tableName,
			"has_filters", effective.HasFilters,
			"access_denied", effective.AccessDenied,
			"policies", effective.PoliciesApplied,
			"cache_hit", hit,
			"audit_mode", settings.AuditMode,
			"duration", elapsed.String())
	}

	if e.auditor != nil && (settings.LogAccess || settings.AuditMode) {
		e.auditor.RecordDecision(DecisionRecord{
			EvaluatedAt:  start,
			UserID:       user.UserID,
			Username:     user.Username,
			RoleIDs:      append([]string{}, user.RoleIDs...),
			ConnectionID: connectionID,
			SchemaName:   schemaName,
			TableName:    tableName,
			Decision:     effective.Clone(),
			Enforced:     enforced.Clone(),
			AuditOnly:    settings.AuditMode,
			CacheHit:     hit,
			Duration:     elapsed,
			Generation:   snap.Generation,
		})
	}

	return effective
}

// EvaluateRow answers the boolean access check for one already-fetched
// row: visible if at least one applicable policy's filter matches it.
// Enforcement settings apply the same way as in Evaluate, so a disabled
// engine or audit mode never hides a row.
func (e *Engine) EvaluateRow(ctx context.Context, connectionID, schemaName, tableName string, user *rls.UserSecurityContext, row map[string]interface{}) bool {
	snap := e.usableSnapshot(ctx)
	if snap == nil {
		return false
	}

	settings := snap.Settings
	if !settings.Enabled || settings.AuditMode {
		return true
	}

	resolved := ResolvePolicies(snap.Policies, connectionID, schemaName, tableName, user)
	if len(resolved) == 0 {
		return !settings.DefaultDeny
	}

	for i := range resolved {
		filter := e.compiler.Compile(&resolved[i].FilterGroup, user)
		if filter.Matches(row) {
			return true
		}
	}
	return false
}

// evaluateUncached runs the resolve/compile/combine pipeline against one
// snapshot.
func (e *Engine) evaluateUncached(snap *Snapshot, connectionID, schemaName, tableName string, user *rls.UserSecurityContext) rls.FilterDecision {
	resolved := ResolvePolicies(snap.Policies, connectionID, schemaName, tableName, user)

	filters := make([]*CompiledFilter, len(resolved))
	for i := range resolved {
		filters[i] = e.compiler.Compile(&resolved[i].FilterGroup, user)
	}

	return CombineFilters(resolved, filters)
}

// usableSnapshot returns a snapshot the engine may evaluate against, or
// nil when none exists or the last good one has aged past the staleness
// bound.
func (e *Engine) usableSnapshot(ctx context.Context) *Snapshot {
	snap, err := e.loader.Sync(ctx)
	if err != nil {
		snap = e.loader.Current()
		if snap != nil {
			e.logger.Warn("snapshot sync failed, serving last good snapshot",
				"error", err,
				"generation", snap.Generation,
				"age", snap.Age().String())
		}
	}
	if snap == nil {
		return nil
	}
	if snap.Age() > e.config.MaxSnapshotStaleness {
		e.logger.Error("snapshot exceeded staleness bound",
			"generation", snap.Generation,
			"age", snap.Age().String(),
			"max_staleness", e.config.MaxSnapshotStaleness.String())
		return nil
	}
	return snap
}

// sweepLoop periodically evicts expired and stale-generation cache
// entries.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := e.loader.Current()
			if snap == nil {
				continue
			}
			if dropped := e.cache.sweep(snap.Generation, snap.Settings.CacheTTL()); dropped > 0 {
				e.logger.Debug("cache sweep", "dropped", dropped, "remaining", e.cache.size())
			}
		}
	}
}

func (e *Engine) observe(outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveEvaluation(outcome, time.Since(start))
	}
}

func (e *Engine) observeDecision(decision rls.FilterDecision, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := OutcomeUnrestricted
	switch {
	case decision.AccessDenied:
		outcome = OutcomeDenied
	case decision.HasFilters:
		outcome = OutcomeFiltered
	}
	e.metrics.ObserveEvaluation(outcome, elapsed)
}
