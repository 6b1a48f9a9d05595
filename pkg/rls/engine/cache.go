package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"openboard/rowguard/pkg/rls"
)

// CacheObserver receives decision-cache events. Implementations must be
// safe for concurrent use; a nil observer disables instrumentation.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
	CacheEvictions(count int)
	CacheEntries(count int)
}

// cacheEntry memoizes one combined (pre-enforcement) decision together
// with the snapshot generation it was built from and its capture time.
type cacheEntry struct {
	decision   rls.FilterDecision
	generation uint64
	capturedAt time.Time
}

// decisionCache memoizes resolver+compiler+combiner output keyed by table
// identity, the user's sorted role set, and the snapshot generation.
//
// An entry is fresh while it is younger than the TTL and its generation
// equals the current one; any policy, role, or settings mutation bumps
// the generation and so makes every earlier entry logically stale before
// its TTL runs out. Stale entries are removed lazily on a failed
// freshness check and in bulk by the periodic sweep.
type decisionCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	maxEntries int
	observer   CacheObserver
}

func newDecisionCache(maxEntries int, observer CacheObserver) *decisionCache {
	return &decisionCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		observer:   observer,
	}
}

// cacheKey builds the lookup key. Role IDs are sorted so that the same
// role set always maps to the same key regardless of context order.
func cacheKey(connectionID, schemaName, tableName string, roleIDs []string) string {
	roles := make([]string, len(roleIDs))
	copy(roles, roleIDs)
	sort.Strings(roles)
	return connectionID + "|" + schemaName + "|" + tableName + "|" + strings.Join(roles, ",")
}

// get returns the cached decision if it is still fresh for the given
// generation and TTL. A stale entry is deleted on the spot.
func (c *decisionCache) get(key string, generation uint64, ttl time.Duration) (rls.FilterDecision, bool) {
	if ttl <= 0 {
		return rls.FilterDecision{}, false
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && entry.generation == generation && time.Since(entry.capturedAt) < ttl {
		if c.observer != nil {
			c.observer.CacheHit()
		}
		return entry.decision.Clone(), true
	}

	if ok {
		// Lazy eviction of the entry that failed its freshness check.
		c.mu.Lock()
		if current, still := c.entries[key]; still && current == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}

	if c.observer != nil {
		c.observer.CacheMiss()
	}
	return rls.FilterDecision{}, false
}

// put stores a decision for the given generation.
func (c *decisionCache) put(key string, generation uint64, ttl time.Duration, decision rls.FilterDecision) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{
		decision:   decision.Clone(),
		generation: generation,
		capturedAt: time.Now(),
	}
	size := len(c.entries)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.CacheEntries(size)
	}
}

// sweep removes every entry that is past its TTL or was built from an
// older generation, and returns how many were dropped.
func (c *decisionCache) sweep(generation uint64, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	c.mu.Lock()
	dropped := 0
	for key, entry := range c.entries {
		if entry.generation != generation || entry.capturedAt.Before(cutoff) || ttl <= 0 {
			delete(c.entries, key)
			dropped++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if c.observer != nil && dropped > 0 {
		c.observer.CacheEvictions(dropped)
		c.observer.CacheEntries(size)
	}
	return dropped
}

// purge clears the cache entirely.
func (c *decisionCache) purge() {
	c.mu.Lock()
	dropped := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	if c.observer != nil && dropped > 0 {
		c.observer.CacheEvictions(dropped)
		c.observer.CacheEntries(0)
	}
}

// size returns the current entry count.
func (c *decisionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldestLocked evicts the oldest entry to make room. Caller must
// hold the write lock.
func (c *decisionCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	found := false

	for key, entry := range c.entries {
		if !found || entry.capturedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.capturedAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		if c.observer != nil {
			c.observer.CacheEvictions(1)
		}
	}
}
