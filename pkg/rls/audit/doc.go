// Package audit persists RLS access-evaluation records.
//
// The Recorder receives decisions from the engine and writes them
// asynchronously through a bounded buffer, so audit I/O never sits on
// the evaluation hot path; when the buffer is full, records are dropped
// and counted rather than queued. Records written in audit mode carry
// both the effective (non-enforcing) decision and the decision that
// would have been enforced, which is what makes dry-running a policy
// set useful.
//
// Storage backends: SQLite for durable deployments, in-memory for
// tests. The Pruner enforces age- and count-based retention, optionally
// on a cron schedule.
package audit
