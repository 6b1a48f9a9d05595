package audit

import (
	"context"
	"fmt"
	"time"
)

// AccessRecord is one persisted access-evaluation event. It captures who
// asked for what, which policies applied, and what the engine decided,
// including the decision that was withheld in audit mode.
type AccessRecord struct {
	// ID is the unique record identifier (UUID).
	ID string `json:"id"`

	// EvaluatedAt is when the evaluation started.
	EvaluatedAt time.Time `json:"evaluatedAt"`

	// RecordedAt is when the record was written.
	RecordedAt time.Time `json:"recordedAt"`

	// UserID and Username identify the requesting user.
	UserID   string   `json:"userId"`
	Username string   `json:"username,omitempty"`
	RoleIDs  []string `json:"roleIds"`

	// ConnectionID, SchemaName, and TableName identify the target table.
	ConnectionID string `json:"connectionId"`
	SchemaName   string `json:"schemaName"`
	TableName    string `json:"tableName"`

	// Effective decision, as handed to the caller.
	HasFilters      bool     `json:"hasFilters"`
	WhereClause     string   `json:"whereClause,omitempty"`
	PoliciesApplied []string `json:"policiesApplied"`
	AccessDenied    bool     `json:"accessDenied"`
	DenialReason    string   `json:"denialReason,omitempty"`

	// AuditOnly marks records written in audit mode, where the enforced
	// fields below describe what WOULD have happened.
	AuditOnly           bool   `json:"auditOnly"`
	EnforcedHasFilters  bool   `json:"enforcedHasFilters"`
	EnforcedDenied      bool   `json:"enforcedDenied"`
	EnforcedWhereClause string `json:"enforcedWhereClause,omitempty"`

	// CacheHit reports whether the decision came from the cache.
	CacheHit bool `json:"cacheHit"`

	// DurationMicros is the evaluation wall-clock time in microseconds.
	DurationMicros int64 `json:"durationMicros"`

	// Generation is the policy snapshot generation evaluated against.
	Generation uint64 `json:"generation"`
}

// QueryFilter narrows an audit query. Zero values mean "any".
type QueryFilter struct {
	UserID    string
	TableName string
	Since     time.Time
	Until     time.Time

	// DeniedOnly restricts to records where access was denied (or would
	// have been denied, for audit-mode records).
	DeniedOnly bool

	// Limit bounds the result count. 0 means the storage default.
	Limit int
}

// Storage persists and queries access records.
type Storage interface {
	// Store persists one record.
	Store(ctx context.Context, record *AccessRecord) error

	// Query returns records matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]*AccessRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// DeleteOlderThan removes records recorded before the cutoff and
	// returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldest removes the oldest records until at most keep remain,
	// returning how many were deleted.
	DeleteOldest(ctx context.Context, keep int64) (int64, error)

	// Close releases storage resources.
	Close() error
}

// StorageError wraps a storage backend failure with its operation.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage %s: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
