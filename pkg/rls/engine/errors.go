package engine

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinel errors
var (
	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrNoSnapshot indicates the engine has never loaded a snapshot.
	ErrNoSnapshot = errors.New("no snapshot loaded")
)

// SnapshotError indicates a snapshot load failure against the store.
type SnapshotError struct {
	Cause error
}

// Error returns the error message.
func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot load failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SnapshotError) Unwrap() error {
	return e.Cause
}

// StaleSnapshotError indicates the last good snapshot is older than the
// configured staleness window and may no longer be served.
type StaleSnapshotError struct {
	LoadedAt time.Time
	MaxAge   time.Duration
}

// Error returns the error message.
func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("snapshot loaded at %s exceeds staleness window %v", e.LoadedAt.Format(time.RFC3339), e.MaxAge)
}
