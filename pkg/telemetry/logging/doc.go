// Package logging constructs the structured loggers used across Rowguard.
//
// New builds a *log/slog.Logger from configuration (level, format,
// source annotation) with optional redaction of sensitive attribute
// values. Redaction runs inside the handler's ReplaceAttr hook, so it
// applies uniformly to With-bound attributes and per-call arguments.
//
// Components derive their own loggers:
//
//	logger, _ := logging.New(logging.FromAppConfig(cfg.Telemetry.Logging))
//	storeLog := logger.With("component", "rls-store")
package logging
