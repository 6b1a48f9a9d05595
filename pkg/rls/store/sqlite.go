package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"openboard/rowguard/pkg/rls"
)

// SQLiteStore is a MutableStore backed by SQLite. It provides durable
// policy storage for single-instance deployments; policies and roles are
// stored as JSON documents keyed by ID, and the generation counter is
// persisted so cache invalidation survives restarts.
//
// SQLiteStore uses a write-ahead log (WAL) for better concurrent
// performance and periodic passive checkpoints.
type SQLiteStore struct {
	db                 *sql.DB
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	generation atomic.Uint64
	hub        *watchHub

	listPoliciesStmt *sql.Stmt
	listRolesStmt    *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (or creates) a SQLite policy store with default
// settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{DBPath: dbPath})
}

// NewSQLiteStoreWithConfig opens a SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:                 db,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
		hub:                newWatchHub(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	if err := s.loadGeneration(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load generation: %w", err)
	}

	go s.checkpointLoop()

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rls_policies (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rls_roles (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rls_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.listPoliciesStmt, err = s.db.Prepare(`SELECT document FROM rls_policies ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to prepare list policies statement: %w", err)
	}

	s.listRolesStmt, err = s.db.Prepare(`SELECT document FROM rls_roles ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to prepare list roles statement: %w", err)
	}

	return nil
}

func (s *SQLiteStore) loadGeneration() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM rls_meta WHERE key = 'generation'`).Scan(&value)
	if err == sql.ErrNoRows {
		s.generation.Store(1)
		_, err = s.db.Exec(`INSERT INTO rls_meta (key, value) VALUES ('generation', '1')`)
		return err
	}
	if err != nil {
		return err
	}

	gen, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt generation value %q: %w", value, err)
	}
	s.generation.Store(gen)
	return nil
}

// ListPolicies returns all policies sorted by ID.
func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]rls.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listPoliciesStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	policies := []rls.Policy{}
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var policy rls.Policy
		if err := json.Unmarshal([]byte(document), &policy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return policies, nil
}

// ListRoles returns all roles sorted by ID.
func (s *SQLiteStore) ListRoles(ctx context.Context) ([]rls.SecurityRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listRolesStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []rls.SecurityRole{}
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var role rls.SecurityRole
		if err := json.Unmarshal([]byte(document), &role); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return roles, nil
}

// GetSettings returns the stored settings, or defaults if none were
// saved yet.
func (s *SQLiteStore) GetSettings(ctx context.Context) (rls.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var document string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM rls_meta WHERE key = 'settings'`).Scan(&document)
	if err == sql.ErrNoRows {
		return rls.DefaultSettings(), nil
	}
	if err != nil {
		return rls.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var settings rls.Settings
	if err := json.Unmarshal([]byte(document), &settings); err != nil {
		return rls.Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return settings, nil
}

// Generation returns the mutation counter.
func (s *SQLiteStore) Generation() uint64 {
	return s.generation.Load()
}

// Watch delivers change events until ctx is cancelled.
func (s *SQLiteStore) Watch(ctx context.Context) (<-chan Event, error) {
	return s.hub.watch(ctx)
}

// Close releases store resources. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.closeAll()

		if s.listPoliciesStmt != nil {
			s.listPoliciesStmt.Close()
		}
		if s.listRolesStmt != nil {
			s.listRolesStmt.Close()
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// CreatePolicy validates and stores a new policy.
func (s *SQLiteStore) CreatePolicy(ctx context.Context, policy rls.Policy) error {
	return s.writePolicy(ctx, policy, false)
}

// UpdatePolicy validates and replaces an existing policy.
func (s *SQLiteStore) UpdatePolicy(ctx context.Context, policy rls.Policy) error {
	return s.writePolicy(ctx, policy, true)
}

func (s *SQLiteStore) writePolicy(ctx context.Context, policy rls.Policy, mustExist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles, err := s.rolesLocked(ctx)
	if err != nil {
		return err
	}
	if err := rls.ValidatePolicy(&policy, roles); err != nil {
		return err
	}

	exists, err := s.rowExists(ctx, "rls_policies", policy.ID)
	if err != nil {
		return err
	}
	if mustExist && !exists {
		return &NotFoundError{Kind: "policy", ID: policy.ID}
	}
	if !mustExist && exists {
		return fmt.Errorf("policy %q already exists", policy.ID)
	}

	document, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	gen, err := s.writeDocument(ctx, "rls_policies", policy.ID, string(document))
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventPolicyChanged, ID: policy.ID, Generation: gen})
	return nil
}

// DeletePolicy removes a policy.
func (s *SQLiteStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.deleteDocument(ctx, "rls_policies", "policy", id)
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventPolicyChanged, ID: id, Generation: gen})
	return nil
}

// TogglePolicy flips a policy's enabled flag without touching the rest
// of its definition.
func (s *SQLiteStore) TogglePolicy(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM rls_policies WHERE id = ?`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return &NotFoundError{Kind: "policy", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	var policy rls.Policy
	if err := json.Unmarshal([]byte(document), &policy); err != nil {
		return fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	policy.Enabled = enabled

	updated, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	gen, err := s.writeDocument(ctx, "rls_policies", id, string(updated))
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventPolicyChanged, ID: id, Generation: gen})
	return nil
}

// CreateRole stores a new role.
func (s *SQLiteStore) CreateRole(ctx context.Context, role rls.SecurityRole) error {
	if role.ID == "" {
		return fmt.Errorf("role id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.rowExists(ctx, "rls_roles", role.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("role %q already exists", role.ID)
	}

	document, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("failed to marshal role: %w", err)
	}

	gen, err := s.writeDocument(ctx, "rls_roles", role.ID, string(document))
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventRoleChanged, ID: role.ID, Generation: gen})
	return nil
}

// UpdateRole replaces an existing role.
func (s *SQLiteStore) UpdateRole(ctx context.Context, role rls.SecurityRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.rowExists(ctx, "rls_roles", role.ID)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Kind: "role", ID: role.ID}
	}

	document, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("failed to marshal role: %w", err)
	}

	gen, err := s.writeDocument(ctx, "rls_roles", role.ID, string(document))
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventRoleChanged, ID: role.ID, Generation: gen})
	return nil
}

// DeleteRole removes a role. Policies still referencing it are rejected:
// a dangling role reference would silently change who a policy covers.
func (s *SQLiteStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policies, err := s.policiesLocked(ctx)
	if err != nil {
		return err
	}
	for _, p := range policies {
		for _, roleID := range p.RoleIDs {
			if roleID == id {
				return fmt.Errorf("role %q is referenced by policy %q", id, p.ID)
			}
		}
	}

	gen, err := s.deleteDocument(ctx, "rls_roles", "role", id)
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventRoleChanged, ID: id, Generation: gen})
	return nil
}

// UpdateSettings replaces the process-wide settings.
func (s *SQLiteStore) UpdateSettings(ctx context.Context, settings rls.Settings) error {
	if settings.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache TTL cannot be negative")
	}

	document, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.runInBump(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rls_meta (key, value) VALUES ('settings', ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			string(document))
		return err
	})
	if err != nil {
		return err
	}
	s.hub.notify(Event{Type: EventSettingsChanged, Generation: gen})
	return nil
}

// rolesLocked reads the role index without taking the lock again.
func (s *SQLiteStore) rolesLocked(ctx context.Context) (map[string]rls.SecurityRole, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM rls_roles`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := make(map[string]rls.SecurityRole)
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var role rls.SecurityRole
		if err := json.Unmarshal([]byte(document), &role); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role: %w", err)
		}
		roles[role.ID] = role
	}
	return roles, rows.Err()
}

func (s *SQLiteStore) policiesLocked(ctx context.Context) ([]rls.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM rls_policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []rls.Policy
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var policy rls.Policy
		if err := json.Unmarshal([]byte(document), &policy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

func (s *SQLiteStore) rowExists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// writeDocument upserts a document and bumps the generation in one
// transaction.
func (s *SQLiteStore) writeDocument(ctx context.Context, table, id, document string) (uint64, error) {
	return s.runInBump(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (id, document, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
			id, document, time.Now().Unix())
		return err
	})
}

// deleteDocument deletes a document and bumps the generation in one
// transaction.
func (s *SQLiteStore) deleteDocument(ctx context.Context, table, kind, id string) (uint64, error) {
	var affected int64
	gen, err := s.runInBump(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &NotFoundError{Kind: kind, ID: id}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return gen, nil
}

// runInBump runs a mutation and the generation bump in one transaction,
// then advances the in-memory counter. Caller must hold the write lock.
func (s *SQLiteStore) runInBump(ctx context.Context, mutate func(tx *sql.Tx) error) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := mutate(tx); err != nil {
		tx.Rollback()
		return 0, err
	}

	next := s.generation.Load() + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE rls_meta SET value = ? WHERE key = 'generation'`,
		strconv.FormatUint(next, 10)); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to bump generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	s.generation.Store(next)
	return next, nil
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
