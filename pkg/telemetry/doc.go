// Package telemetry groups Rowguard's observability packages: logging
// (structured logger construction with redaction), metrics (Prometheus
// collection), and health (liveness and readiness checks).
package telemetry
