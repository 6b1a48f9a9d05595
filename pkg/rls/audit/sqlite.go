package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite audit storage.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// DefaultQueryLimit caps queries that pass no explicit limit.
	// Default: 500
	DefaultQueryLimit int
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:              "data/audit.db",
		MaxOpenConns:      10,
		MaxIdleConns:      5,
		WALMode:           true,
		BusyTimeout:       5 * time.Second,
		DefaultQueryLimit: 500,
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS access_records (
	id TEXT PRIMARY KEY,
	evaluated_at INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	username TEXT,
	role_ids TEXT NOT NULL,
	connection_id TEXT NOT NULL,
	schema_name TEXT NOT NULL,
	table_name TEXT NOT NULL,
	has_filters INTEGER NOT NULL,
	where_clause TEXT,
	policies_applied TEXT NOT NULL,
	access_denied INTEGER NOT NULL,
	denial_reason TEXT,
	audit_only INTEGER NOT NULL,
	enforced_has_filters INTEGER NOT NULL,
	enforced_denied INTEGER NOT NULL,
	enforced_where_clause TEXT,
	cache_hit INTEGER NOT NULL,
	duration_micros INTEGER NOT NULL,
	generation INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_recorded_at ON access_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_access_user_id ON access_records(user_id);
CREATE INDEX IF NOT EXISTS idx_access_table_name ON access_records(table_name);
`

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite audit storage backend.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rls-audit-storage")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "open", Err: err}
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return &StorageError{Backend: "sqlite", Op: "enable_wal", Err: err}
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return &StorageError{Backend: "sqlite", Op: "set_busy_timeout", Err: err}
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return &StorageError{Backend: "sqlite", Op: "create_schema", Err: err}
	}
	return nil
}

// Store persists one access record.
func (s *SQLiteStorage) Store(ctx context.Context, record *AccessRecord) error {
	roleIDs, err := json.Marshal(record.RoleIDs)
	if err != nil {
		return &StorageError{Backend: "sqlite", Op: "marshal_roles", Err: err}
	}
	policies, err := json.Marshal(record.PoliciesApplied)
	if err != nil {
		return &StorageError{Backend: "sqlite", Op: "marshal_policies", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO access_records (
			id, evaluated_at, recorded_at, user_id, username, role_ids,
			connection_id, schema_name, table_name,
			has_filters, where_clause, policies_applied, access_denied, denial_reason,
			audit_only, enforced_has_filters, enforced_denied, enforced_where_clause,
			cache_hit, duration_micros, generation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.EvaluatedAt.UnixMicro(),
		record.RecordedAt.UnixMicro(),
		record.UserID,
		record.Username,
		string(roleIDs),
		record.ConnectionID,
		record.SchemaName,
		record.TableName,
		boolToInt(record.HasFilters),
		record.WhereClause,
		string(policies),
		boolToInt(record.AccessDenied),
		record.DenialReason,
		boolToInt(record.AuditOnly),
		boolToInt(record.EnforcedHasFilters),
		boolToInt(record.EnforcedDenied),
		record.EnforcedWhereClause,
		boolToInt(record.CacheHit),
		record.DurationMicros,
		record.Generation,
	)
	if err != nil {
		return &StorageError{Backend: "sqlite", Op: "store", Err: err}
	}
	return nil
}

// Query returns records matching the filter, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, filter QueryFilter) ([]*AccessRecord, error) {
	query := `SELECT
		id, evaluated_at, recorded_at, user_id, username, role_ids,
		connection_id, schema_name, table_name,
		has_filters, where_clause, policies_applied, access_denied, denial_reason,
		audit_only, enforced_has_filters, enforced_denied, enforced_where_clause,
		cache_hit, duration_micros, generation
	FROM access_records WHERE 1=1`
	var args []interface{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.TableName != "" {
		query += " AND table_name = ?"
		args = append(args, filter.TableName)
	}
	if !filter.Since.IsZero() {
		query += " AND recorded_at >= ?"
		args = append(args, filter.Since.UnixMicro())
	}
	if !filter.Until.IsZero() {
		query += " AND recorded_at <= ?"
		args = append(args, filter.Until.UnixMicro())
	}
	if filter.DeniedOnly {
		query += " AND (access_denied = 1 OR enforced_denied = 1)"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = s.config.DefaultQueryLimit
	}
	query += " ORDER BY recorded_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "query", Err: err}
	}
	defer rows.Close()

	var records []*AccessRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Backend: "sqlite", Op: "scan", Err: err}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "iterate", Err: err}
	}
	return records, nil
}

// Count returns the total number of stored records.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_records`).Scan(&count)
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Op: "count", Err: err}
	}
	return count, nil
}

// DeleteOlderThan removes records recorded before the cutoff.
func (s *SQLiteStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM access_records WHERE recorded_at < ?`, cutoff.UnixMicro())
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Op: "delete_older_than", Err: err}
	}
	return result.RowsAffected()
}

// DeleteOldest removes the oldest records until at most keep remain.
func (s *SQLiteStorage) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM access_records WHERE id IN (
			SELECT id FROM access_records
			ORDER BY recorded_at DESC
			LIMIT -1 OFFSET ?
		)`, keep)
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Op: "delete_oldest", Err: err}
	}
	return result.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (*AccessRecord, error) {
	var (
		record                                                       AccessRecord
		evaluatedAt, recordedAt                                      int64
		roleIDs, policies                                            string
		hasFilters, denied, auditOnly, enfFilters, enfDenied, cached int
	)

	err := rows.Scan(
		&record.ID, &evaluatedAt, &recordedAt, &record.UserID, &record.Username, &roleIDs,
		&record.ConnectionID, &record.SchemaName, &record.TableName,
		&hasFilters, &record.WhereClause, &policies, &denied, &record.DenialReason,
		&auditOnly, &enfFilters, &enfDenied, &record.EnforcedWhereClause,
		&cached, &record.DurationMicros, &record.Generation,
	)
	if err != nil {
		return nil, err
	}

	record.EvaluatedAt = time.UnixMicro(evaluatedAt)
	record.RecordedAt = time.UnixMicro(recordedAt)
	record.HasFilters = hasFilters != 0
	record.AccessDenied = denied != 0
	record.AuditOnly = auditOnly != 0
	record.EnforcedHasFilters = enfFilters != 0
	record.EnforcedDenied = enfDenied != 0
	record.CacheHit = cached != 0

	if err := json.Unmarshal([]byte(roleIDs), &record.RoleIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(policies), &record.PoliciesApplied); err != nil {
		return nil, err
	}
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
