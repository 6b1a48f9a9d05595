package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"openboard/rowguard/pkg/config"
	"openboard/rowguard/pkg/rls/audit"
	"openboard/rowguard/pkg/rls/engine"
	"openboard/rowguard/pkg/rls/store"
	"openboard/rowguard/pkg/telemetry/health"
	"openboard/rowguard/pkg/telemetry/metrics"
)

// Dependencies carries the collaborators the HTTP surface exposes.
// Engine and Store are required; the rest are optional and their
// endpoints are simply not mounted when absent.
type Dependencies struct {
	// Engine evaluates filter decisions.
	Engine *engine.Engine

	// Store backs the admin CRUD surface. Read-only stores still serve
	// GETs; mutations answer with a read-only error.
	Store store.Store

	// AuditStorage serves the audit query endpoint.
	AuditStorage audit.Storage

	// Metrics serves the Prometheus exposition endpoint.
	Metrics *metrics.Collector

	// Health serves liveness and readiness probes.
	Health *health.Checker

	// Logger is the server's structured logger.
	Logger *slog.Logger

	// Build information for the version endpoint.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP surface of the RLS engine: evaluation, admin CRUD
// for policies/roles/settings, audit queries, and telemetry endpoints.
type Server struct {
	config       *config.Config
	deps         Dependencies
	logger       *slog.Logger
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new server over the given configuration and
// collaborators.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:       cfg,
		deps:         deps,
		logger:       logger.With("component", "rls-server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown is requested
// via signal, context cancellation, or Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", s.config.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, waiting up to the
// configured shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Evaluation
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluate/row", s.handleEvaluateRow)

	// Policy administration
	mux.HandleFunc("GET /v1/policies", s.handleListPolicies)
	mux.HandleFunc("POST /v1/policies", s.handleCreatePolicy)
	mux.HandleFunc("GET /v1/policies/{id}", s.handleGetPolicy)
	mux.HandleFunc("PUT /v1/policies/{id}", s.handleUpdatePolicy)
	mux.HandleFunc("DELETE /v1/policies/{id}", s.handleDeletePolicy)
	mux.HandleFunc("POST /v1/policies/{id}/toggle", s.handleTogglePolicy)

	// Role administration
	mux.HandleFunc("GET /v1/roles", s.handleListRoles)
	mux.HandleFunc("POST /v1/roles", s.handleCreateRole)
	mux.HandleFunc("GET /v1/roles/{id}", s.handleGetRole)
	mux.HandleFunc("PUT /v1/roles/{id}", s.handleUpdateRole)
	mux.HandleFunc("DELETE /v1/roles/{id}", s.handleDeleteRole)

	// Settings
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)

	// Engine introspection
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshotInfo)
	mux.HandleFunc("POST /v1/cache/invalidate", s.handleInvalidateCache)

	// Audit
	mux.HandleFunc("GET /v1/audit/records", s.handleAuditQuery)

	// Telemetry
	if s.deps.Metrics != nil && s.config.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}
	if s.deps.Health != nil && s.config.Telemetry.Health.Enabled {
		mux.HandleFunc(s.config.Telemetry.Health.LivenessPath, s.deps.Health.LivenessHandler())
		mux.HandleFunc(s.config.Telemetry.Health.ReadinessPath, s.deps.Health.ReadinessHandler())
		mux.HandleFunc("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(s.logger)(handler)

	return handler
}
