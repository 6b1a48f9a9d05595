// Package store provides policy persistence backends for the RLS engine.
//
// Three implementations cover the deployment spectrum:
//
//   - MemoryStore: mutable, in-process. Tests and ephemeral setups.
//   - SQLiteStore: mutable, durable. Single-instance deployments with an
//     admin API.
//   - FileStore: read-only YAML bundle with automatic reload. GitOps
//     deployments where policies ship as reviewed files.
//
// Every mutation (or file reload) bumps a monotonic generation counter
// and notifies watchers. The engine keys its decision cache on the
// generation, so invalidation is immediate without coordination beyond
// the counter itself.
package store
