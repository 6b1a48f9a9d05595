package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"openboard/rowguard/pkg/cli"
	"openboard/rowguard/pkg/config"
	"openboard/rowguard/pkg/rls/audit"
	"openboard/rowguard/pkg/rls/engine"
	"openboard/rowguard/pkg/rls/store"
	"openboard/rowguard/pkg/server"
	"openboard/rowguard/pkg/telemetry/health"
	"openboard/rowguard/pkg/telemetry/logging"
	"openboard/rowguard/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Rowguard server",
	Long: `Start the Rowguard server with the specified configuration.

The server loads policies from the configured store backend, serves filter
evaluations over HTTP, and exposes the policy administration API.

Examples:
  # Start with default config
  rowguard run

  # Start with custom config
  rowguard run --config /etc/rowguard/config.yaml

  # Override listen address
  rowguard run --listen 0.0.0.0:8170

  # Validate config without starting the server
  rowguard run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.FromAppConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Rowguard v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx := cli.SetupSignalHandler()

	// Policy store
	st, err := openStore(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer st.Close()
	fmt.Printf("✓ Policy store ready (backend: %s)\n", cfg.Store.Backend)

	// Evaluation engine
	engineConfig := engine.DefaultConfig()
	engineConfig.RefreshInterval = cfg.Engine.RefreshInterval
	engineConfig.MaxSnapshotStaleness = cfg.Engine.MaxSnapshotStaleness
	engineConfig.CacheMaxEntries = cfg.Engine.CacheMaxEntries
	engineConfig.CacheSweepInterval = cfg.Engine.CacheSweepInterval
	engineConfig.MaxPolicies = cfg.Engine.MaxPolicies

	eng, err := engine.NewEngine(st, engineConfig, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		eng.SetMetrics(collector)
	}

	// Audit recording
	var auditStorage audit.Storage
	if cfg.Audit.Enabled {
		auditStorage, err = openAuditStorage(cfg, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer auditStorage.Close()

		recorder := audit.NewRecorder(auditStorage, &audit.Config{
			Enabled:      true,
			AsyncBuffer:  cfg.Audit.Recorder.AsyncBuffer,
			WriteTimeout: cfg.Audit.Recorder.WriteTimeout,
		}, logger)
		defer recorder.Close()
		eng.SetAuditor(recorder)

		if cfg.Audit.Retention.PruneSchedule != "" {
			pruner := audit.NewPruner(auditStorage, &audit.RetentionConfig{
				RetentionDays: cfg.Audit.Retention.Days,
				MaxRecords:    cfg.Audit.Retention.MaxRecords,
				PruneSchedule: cfg.Audit.Retention.PruneSchedule,
			}, logger)
			scheduler := audit.NewScheduler(pruner)
			if err := scheduler.Start(ctx); err != nil {
				slog.Warn("failed to start retention scheduler", "error", err)
			} else {
				defer scheduler.Stop()
			}
		}

		fmt.Println("✓ Audit storage initialized")
	}

	if err := eng.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer eng.Stop()
	fmt.Println("✓ Evaluation engine started")

	// Health checks
	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		_, err := st.GetSettings(ctx)
		return err
	})
	checker.RegisterCheck("snapshot", func(ctx context.Context) error {
		snap := eng.Snapshot()
		if snap == nil {
			return errors.New("no policy snapshot loaded")
		}
		if age := snap.Age(); age > cfg.Engine.MaxSnapshotStaleness {
			return fmt.Errorf("snapshot is %s stale", age.Round(time.Second))
		}
		return nil
	})
	if auditStorage != nil {
		checker.RegisterCheck("audit", func(ctx context.Context) error {
			_, err := auditStorage.Count(ctx)
			return err
		})
	}

	srv := server.NewServer(cfg, server.Dependencies{
		Engine:       eng,
		Store:        st,
		AuditStorage: auditStorage,
		Metrics:      collector,
		Health:       checker,
		Logger:       logger,
		Version:      Version,
		Commit:       GitCommit,
		BuildTime:    BuildDate,
	})

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	if cfg.Telemetry.Health.Enabled {
		fmt.Printf("✓ Health endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Health.LivenessPath)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

// openStore builds the policy store selected by the configuration.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil

	case "sqlite":
		return store.NewSQLiteStoreWithConfig(store.SQLiteStoreConfig{
			DBPath:             cfg.Store.SQLite.Path,
			BusyTimeout:        cfg.Store.SQLite.BusyTimeout,
			CheckpointInterval: cfg.Store.SQLite.CheckpointInterval,
		})

	case "file":
		if cfg.Store.File.Watch {
			return store.NewFileStore(cfg.Store.File.Path, logger)
		}
		return store.NewStaticFileStore(cfg.Store.File.Path, logger)

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// openAuditStorage builds the SQLite audit storage from configuration.
func openAuditStorage(cfg *config.Config, logger *slog.Logger) (audit.Storage, error) {
	sqliteConfig := audit.DefaultSQLiteConfig()
	sqliteConfig.Path = cfg.Audit.SQLite.Path
	if cfg.Audit.SQLite.MaxOpenConns > 0 {
		sqliteConfig.MaxOpenConns = cfg.Audit.SQLite.MaxOpenConns
	}
	if cfg.Audit.SQLite.BusyTimeout > 0 {
		sqliteConfig.BusyTimeout = cfg.Audit.SQLite.BusyTimeout
	}
	if cfg.Audit.Query.DefaultLimit > 0 {
		sqliteConfig.DefaultQueryLimit = cfg.Audit.Query.DefaultLimit
	}
	return audit.NewSQLiteStorage(sqliteConfig, logger)
}
