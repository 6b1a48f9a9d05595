package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"openboard/rowguard/pkg/rls"
	"openboard/rowguard/pkg/rls/store"
)

// Snapshot is one immutable, internally consistent view of the policy
// configuration. The engine evaluates every request against exactly one
// snapshot; a refresh builds a new one and swaps it in atomically, so no
// evaluation ever sees a half-applied change.
type Snapshot struct {
	// Policies holds every policy, enabled or not, in store order.
	Policies []rls.Policy

	// Roles indexes all security roles by ID.
	Roles map[string]rls.SecurityRole

	// Settings is the process-wide enforcement configuration.
	Settings rls.Settings

	// Generation is the store generation the snapshot was built from.
	Generation uint64

	// LoadedAt is when the snapshot was read from the store. It marks the
	// last successful store contact, which bounds how stale the engine is
	// allowed to run.
	LoadedAt time.Time
}

// Age returns how long ago the snapshot was loaded.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.LoadedAt)
}

// Loader maintains the engine's current snapshot. It refreshes on store
// change events, on a periodic interval, and on demand when the engine
// notices the store generation has moved past the snapshot.
type Loader struct {
	store  store.Store
	config *Config
	logger *slog.Logger

	current atomic.Pointer[Snapshot]

	// refreshMu serializes reloads so a burst of concurrent cache misses
	// produces a single store round-trip.
	refreshMu sync.Mutex
}

// NewLoader creates a snapshot loader over the given store.
func NewLoader(st store.Store, config *Config, logger *slog.Logger) *Loader {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:  st,
		config: config,
		logger: logger.With("component", "rls-loader"),
	}
}

// Current returns the latest snapshot, or nil before the first successful
// load.
func (l *Loader) Current() *Snapshot {
	return l.current.Load()
}

// Sync brings the snapshot up to the store's current generation. It is
// the hot-path entry point: when the generations already match it is a
// pair of atomic reads, otherwise it performs one serialized reload.
func (l *Loader) Sync(ctx context.Context) (*Snapshot, error) {
	snap := l.current.Load()
	if snap != nil && snap.Generation == l.store.Generation() {
		return snap, nil
	}

	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	// Another caller may have reloaded while we waited for the lock.
	snap = l.current.Load()
	if snap != nil && snap.Generation == l.store.Generation() {
		return snap, nil
	}
	return l.reloadLocked(ctx)
}

// Refresh unconditionally reloads the snapshot from the store. The
// periodic loop uses it so that LoadedAt advances on every successful
// store contact even when nothing changed.
func (l *Loader) Refresh(ctx context.Context) (*Snapshot, error) {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()
	return l.reloadLocked(ctx)
}

// reloadLocked reads policies, roles, and settings and swaps in a new
// snapshot. Caller must hold refreshMu. On failure the previous snapshot
// stays in place.
func (l *Loader) reloadLocked(ctx context.Context) (*Snapshot, error) {
	// The store may be mutated between the reads below. Capturing the
	// generation on both sides and retrying on movement keeps the
	// snapshot internally consistent.
	var (
		policies []rls.Policy
		roles    []rls.SecurityRole
		settings rls.Settings
		gen      uint64
		err      error
	)
	for attempt := 0; ; attempt++ {
		gen = l.store.Generation()

		policies, err = l.store.ListPolicies(ctx)
		if err != nil {
			return nil, &SnapshotError{Cause: fmt.Errorf("list policies: %w", err)}
		}
		roles, err = l.store.ListRoles(ctx)
		if err != nil {
			return nil, &SnapshotError{Cause: fmt.Errorf("list roles: %w", err)}
		}
		settings, err = l.store.GetSettings(ctx)
		if err != nil {
			return nil, &SnapshotError{Cause: fmt.Errorf("get settings: %w", err)}
		}

		if l.store.Generation() == gen || attempt >= 2 {
			break
		}
	}

	if len(policies) > l.config.MaxPolicies {
		return nil, &SnapshotError{Cause: fmt.Errorf("store holds %d policies, limit is %d", len(policies), l.config.MaxPolicies)}
	}

	roleIndex := make(map[string]rls.SecurityRole, len(roles))
	for _, role := range roles {
		roleIndex[role.ID] = role
	}

	snap := &Snapshot{
		Policies:   policies,
		Roles:      roleIndex,
		Settings:   settings,
		Generation: gen,
		LoadedAt:   time.Now(),
	}
	l.current.Store(snap)

	l.logger.Debug("snapshot loaded",
		"generation", snap.Generation,
		"policies", len(snap.Policies),
		"roles", len(snap.Roles),
		"enabled", snap.Settings.Enabled)
	return snap, nil
}

// Run drives the refresh loop until ctx is cancelled: it reloads on store
// change events and on the periodic interval, retrying failed reloads
// with exponential backoff.
func (l *Loader) Run(ctx context.Context) {
	events, err := l.store.Watch(ctx)
	if err != nil {
		l.logger.Warn("store watch unavailable, relying on periodic refresh", "error", err)
		events = nil
	}

	ticker := time.NewTicker(l.config.RefreshInterval)
	defer ticker.Stop()

	backoff := l.config.RefreshBackoff
	var retry <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			l.logger.Debug("store change event", "type", string(ev.Type), "id", ev.ID, "generation", ev.Generation)

		case <-ticker.C:

		case <-retry:
			retry = nil
		}

		if _, err := l.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("snapshot refresh failed", "error", err, "retry_in", backoff.String())
			retry = time.After(backoff)
			backoff *= 2
			if backoff > l.config.RefreshBackoffMax {
				backoff = l.config.RefreshBackoffMax
			}
		} else {
			backoff = l.config.RefreshBackoff
			retry = nil
		}
	}
}
