// Package health provides liveness and readiness checks for Rowguard.
//
// Liveness answers "is the process up" and never touches dependencies.
// Readiness runs the registered component checks (policy store
// reachability, snapshot freshness, audit storage) concurrently with a
// per-check timeout and degrades to 503 when any fails:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", storeCheck)
//	checker.RegisterCheck("snapshot", snapshotCheck)
//	mux.HandleFunc("/healthz", checker.LivenessHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
package health
