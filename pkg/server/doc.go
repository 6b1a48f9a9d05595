// Package server exposes the RLS engine over HTTP.
//
// # Endpoints
//
// Evaluation:
//
//	POST /v1/evaluate       resolve the filter decision for a table access
//	POST /v1/evaluate/row   apply the user's filters to one concrete row
//
// Administration (requires a mutable store backend for writes):
//
//	GET/POST            /v1/policies
//	GET/PUT/DELETE      /v1/policies/{id}
//	POST                /v1/policies/{id}/toggle
//	GET/POST            /v1/roles
//	GET/PUT/DELETE      /v1/roles/{id}
//	GET/PUT             /v1/settings
//	GET                 /v1/snapshot
//	POST                /v1/cache/invalidate
//	GET                 /v1/audit/records
//
// Telemetry endpoints (metrics exposition, liveness, readiness, version)
// are mounted from the telemetry configuration.
//
// Every request passes through recovery, request ID, and logging
// middleware. Errors are returned as a JSON envelope with a stable code
// string.
package server
