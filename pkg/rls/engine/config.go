package engine

import (
	"fmt"
	"time"
)

// Config contains configuration for the RLS evaluation engine.
type Config struct {
	// RefreshInterval is how often the snapshot loader re-reads the store
	// even without change events.
	// Default: 30s.
	RefreshInterval time.Duration

	// MaxSnapshotStaleness bounds how long the last good snapshot may be
	// served while the store is unreachable. Beyond it every evaluation
	// denies with reason "engine_unavailable".
	// Default: 5 minutes.
	MaxSnapshotStaleness time.Duration

	// RefreshBackoff is the initial backoff between failed snapshot
	// refresh attempts. It doubles per attempt up to RefreshBackoffMax.
	// Default: 500ms.
	RefreshBackoff time.Duration

	// RefreshBackoffMax caps the refresh retry backoff.
	// Default: 10s.
	RefreshBackoffMax time.Duration

	// CacheSweepInterval is how often the decision cache evicts expired
	// and stale-generation entries.
	// Default: 1 minute.
	CacheSweepInterval time.Duration

	// CacheMaxEntries bounds the decision cache size. Oldest entries are
	// evicted when the limit is reached.
	// Default: 10,000.
	CacheMaxEntries int

	// MaxPolicies is the maximum number of policies a snapshot may hold.
	// This prevents a runaway store from degrading every evaluation.
	// Default: 1,000.
	MaxPolicies int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval:      30 * time.Second,
		MaxSnapshotStaleness: 5 * time.Minute,
		RefreshBackoff:       500 * time.Millisecond,
		RefreshBackoffMax:    10 * time.Second,
		CacheSweepInterval:   time.Minute,
		CacheMaxEntries:      10000,
		MaxPolicies:          1000,
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%w: refresh interval must be positive", ErrInvalidConfig)
	}
	if c.MaxSnapshotStaleness <= 0 {
		return fmt.Errorf("%w: max snapshot staleness must be positive", ErrInvalidConfig)
	}
	if c.MaxSnapshotStaleness < c.RefreshInterval {
		return fmt.Errorf("%w: max snapshot staleness cannot be shorter than the refresh interval", ErrInvalidConfig)
	}
	if c.RefreshBackoff <= 0 || c.RefreshBackoffMax < c.RefreshBackoff {
		return fmt.Errorf("%w: refresh backoff must be positive and no larger than its cap", ErrInvalidConfig)
	}
	if c.CacheSweepInterval <= 0 {
		return fmt.Errorf("%w: cache sweep interval must be positive", ErrInvalidConfig)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("%w: cache max entries must be positive", ErrInvalidConfig)
	}
	if c.MaxPolicies <= 0 {
		return fmt.Errorf("%w: max policies must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithRefreshInterval sets the snapshot refresh interval.
func (c *Config) WithRefreshInterval(d time.Duration) *Config {
	c.RefreshInterval = d
	return c
}

// WithMaxSnapshotStaleness sets the snapshot staleness window.
func (c *Config) WithMaxSnapshotStaleness(d time.Duration) *Config {
	c.MaxSnapshotStaleness = d
	return c
}

// WithCacheSweepInterval sets the decision cache sweep interval.
func (c *Config) WithCacheSweepInterval(d time.Duration) *Config {
	c.CacheSweepInterval = d
	return c
}

// WithCacheMaxEntries sets the decision cache size bound.
func (c *Config) WithCacheMaxEntries(n int) *Config {
	c.CacheMaxEntries = n
	return c
}
