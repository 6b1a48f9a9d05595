package config

import "time"

// Config is the root configuration structure for Rowguard.
// It contains all configuration sections for the HTTP server, the policy
// store, the evaluation engine, audit storage, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and header limits.
	Server ServerConfig `yaml:"server"`

	// Store contains configuration for the policy store backend.
	Store StoreConfig `yaml:"store"`

	// Engine contains tuning for the evaluation engine: snapshot refresh,
	// staleness bounds, and decision-cache sizing.
	Engine EngineConfig `yaml:"engine"`

	// Audit contains configuration for access-record storage and retention.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8170", "0.0.0.0:8170").
	// Default: "127.0.0.1:8170"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// StoreConfig contains configuration for the policy store backend.
type StoreConfig struct {
	// Backend specifies the policy store backend.
	// Options: "memory", "sqlite", "file"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific store configuration.
	SQLite StoreSQLiteConfig `yaml:"sqlite"`

	// File contains file-source configuration.
	File StoreFileConfig `yaml:"file"`
}

// StoreSQLiteConfig contains SQLite policy store configuration.
type StoreSQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/policies.db"
	Path string `yaml:"path"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// StoreFileConfig contains file-source configuration.
type StoreFileConfig struct {
	// Path is the path to the YAML policy bundle.
	// Default: "./policies.yaml"
	Path string `yaml:"path"`

	// Watch enables automatic reloading when the bundle file changes.
	// Default: true
	Watch bool `yaml:"watch"`
}

// EngineConfig contains tuning for the evaluation engine.
type EngineConfig struct {
	// RefreshInterval is how often the engine refreshes its policy snapshot
	// from the store, independent of change notifications.
	// Default: 30s
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// MaxSnapshotStaleness is how long the engine serves a stale snapshot
	// when the store is unreachable before denying with engine_unavailable.
	// Default: 5m
	MaxSnapshotStaleness time.Duration `yaml:"max_snapshot_staleness"`

	// CacheMaxEntries bounds the decision cache.
	// Default: 10000
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// CacheSweepInterval is how often expired decisions are swept.
	// Default: 1m
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval"`

	// MaxPolicies is the maximum number of policies a snapshot may carry.
	// Default: 1000
	MaxPolicies int `yaml:"max_policies"`
}

// AuditConfig contains configuration for access-record storage.
type AuditConfig struct {
	// Enabled controls whether access records are persisted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// SQLite contains audit storage configuration.
	SQLite AuditSQLiteConfig `yaml:"sqlite"`

	// Recorder contains async recorder configuration.
	Recorder AuditRecorderConfig `yaml:"recorder"`

	// Retention contains retention policy configuration.
	Retention AuditRetentionConfig `yaml:"retention"`

	// Query contains audit query configuration.
	Query AuditQueryConfig `yaml:"query"`
}

// AuditSQLiteConfig contains SQLite audit storage configuration.
type AuditSQLiteConfig struct {
	// Path is the file path for the audit database.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditRecorderConfig contains async recorder configuration.
type AuditRecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer. Records
	// are dropped, not queued, when the buffer is full.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuditRetentionConfig contains retention policy configuration.
type AuditRetentionConfig struct {
	// Days is the number of days to retain access records.
	// 0 means keep records forever.
	// Default: 90
	Days int `yaml:"days"`

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// AuditQueryConfig contains audit query configuration.
type AuditQueryConfig struct {
	// DefaultLimit is the default number of records to return if not specified.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the maximum number of records a single query may return.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactAttributes enables redaction of user-attribute values in logs.
	// Attribute values can carry personal data (emails, regions, ids).
	// Default: true
	RedactAttributes bool `yaml:"redact_attributes"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "rowguard"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "rls"
	Subsystem string `yaml:"subsystem"`

	// EvaluationDurationBuckets defines histogram buckets for evaluation
	// duration (seconds).
	// Default: [0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05]
	EvaluationDurationBuckets []float64 `yaml:"evaluation_duration_buckets"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/healthz"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
