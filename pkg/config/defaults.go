package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8170"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Store defaults
	DefaultStoreBackend            = "memory"
	DefaultStoreSQLitePath         = "data/policies.db"
	DefaultStoreBusyTimeout        = 5 * time.Second
	DefaultStoreCheckpointInterval = 5 * time.Minute
	DefaultStoreFilePath           = "./policies.yaml"

	// Engine defaults
	DefaultRefreshInterval      = 30 * time.Second
	DefaultMaxSnapshotStaleness = 5 * time.Minute
	DefaultCacheMaxEntries      = 10000
	DefaultCacheSweepInterval   = time.Minute
	DefaultMaxPolicies          = 1000

	// Audit defaults
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditSQLiteMaxConns    = 10
	DefaultAuditBusyTimeout       = 5 * time.Second
	DefaultAuditAsyncBuffer       = 1000
	DefaultAuditWriteTimeout      = 5 * time.Second
	DefaultAuditRetentionDays     = 90
	DefaultAuditRetentionSchedule = "0 3 * * *"
	DefaultAuditQueryDefaultLimit = 100
	DefaultAuditQueryMaxLimit     = 10000

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNS       = "rowguard"
	DefaultMetricsSub      = "rls"
	DefaultLivenessPath    = "/healthz"
	DefaultReadinessPath   = "/ready"
	DefaultHealthTimeout   = 5 * time.Second
)

// NewDefault returns a configuration with every default applied,
// including the booleans that default to true. Loading code unmarshals
// YAML over this value so an absent field keeps its default while an
// explicit false stays false.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.Store.File.Watch = true
	cfg.Audit.Enabled = true
	cfg.Telemetry.Logging.RedactAttributes = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Health.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultStoreSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultStoreBusyTimeout
	}
	if cfg.Store.SQLite.CheckpointInterval == 0 {
		cfg.Store.SQLite.CheckpointInterval = DefaultStoreCheckpointInterval
	}
	if cfg.Store.File.Path == "" {
		cfg.Store.File.Path = DefaultStoreFilePath
	}

	// Engine defaults
	if cfg.Engine.RefreshInterval == 0 {
		cfg.Engine.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Engine.MaxSnapshotStaleness == 0 {
		cfg.Engine.MaxSnapshotStaleness = DefaultMaxSnapshotStaleness
	}
	if cfg.Engine.CacheMaxEntries == 0 {
		cfg.Engine.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Engine.CacheSweepInterval == 0 {
		cfg.Engine.CacheSweepInterval = DefaultCacheSweepInterval
	}
	if cfg.Engine.MaxPolicies == 0 {
		cfg.Engine.MaxPolicies = DefaultMaxPolicies
	}

	// Audit defaults
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.MaxOpenConns == 0 {
		cfg.Audit.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxConns
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditBusyTimeout
	}
	if cfg.Audit.Recorder.AsyncBuffer == 0 {
		cfg.Audit.Recorder.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Audit.Recorder.WriteTimeout == 0 {
		cfg.Audit.Recorder.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultAuditRetentionDays
	}
	if cfg.Audit.Retention.PruneSchedule == "" {
		cfg.Audit.Retention.PruneSchedule = DefaultAuditRetentionSchedule
	}
	if cfg.Audit.Query.DefaultLimit == 0 {
		cfg.Audit.Query.DefaultLimit = DefaultAuditQueryDefaultLimit
	}
	if cfg.Audit.Query.MaxLimit == 0 {
		cfg.Audit.Query.MaxLimit = DefaultAuditQueryMaxLimit
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNS
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSub
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthTimeout
	}
}
