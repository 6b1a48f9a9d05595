// Package engine evaluates row-level security policies into enforceable
// filter decisions.
//
// # Pipeline
//
// Every evaluation runs the same pipeline against one immutable snapshot
// of the policy configuration:
//
//  1. Resolve: select the enabled policies whose table and role scope
//     cover the request.
//  2. Compile: turn each policy's condition tree into a predicate,
//     resolving dynamic values from the user's security context.
//  3. Combine: merge the compiled filters with OR into a single
//     parameterized WHERE fragment.
//  4. Enforce: apply the process-wide settings (emergency disable,
//     default deny, audit mode) to produce the decision handed back.
//
// # Fail-safe evaluation
//
// Compilation is total. Unresolvable dynamic attributes, type
// mismatches, and malformed operator values fold into constant-false
// predicates, so a broken condition can only ever hide rows, never
// expose them. When the engine has no snapshot, or its last good
// snapshot has aged past the configured bound, evaluations deny with
// reason "engine_unavailable".
//
// # Caching
//
// Combined decisions are cached per table, role set, and snapshot
// generation. Every store mutation bumps the generation, which makes all
// earlier entries stale immediately; a TTL bounds the lifetime of
// entries whose generation is still current.
package engine
