package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage for tests and ephemeral setups.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*AccessRecord
}

// NewMemoryStorage creates an empty in-memory audit storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store persists one record.
func (s *MemoryStorage) Store(ctx context.Context, record *AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records = append(s.records, &copied)
	return nil
}

// Query returns records matching the filter, newest first.
func (s *MemoryStorage) Query(ctx context.Context, filter QueryFilter) ([]*AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*AccessRecord
	for _, record := range s.records {
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		if filter.TableName != "" && record.TableName != filter.TableName {
			continue
		}
		if !filter.Since.IsZero() && record.RecordedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && record.RecordedAt.After(filter.Until) {
			continue
		}
		if filter.DeniedOnly && !record.AccessDenied && !record.EnforcedDenied {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Count returns the total number of stored records.
func (s *MemoryStorage) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// DeleteOlderThan removes records recorded before the cutoff.
func (s *MemoryStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, record := range s.records {
		if record.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	s.records = kept
	return deleted, nil
}

// DeleteOldest removes the oldest records until at most keep remain.
func (s *MemoryStorage) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(s.records)) <= keep {
		return 0, nil
	}

	sort.Slice(s.records, func(i, j int) bool {
		return s.records[i].RecordedAt.Before(s.records[j].RecordedAt)
	})
	deleted := int64(len(s.records)) - keep
	s.records = s.records[deleted:]
	return deleted, nil
}

// Close is a no-op for the in-memory storage.
func (s *MemoryStorage) Close() error {
	return nil
}
