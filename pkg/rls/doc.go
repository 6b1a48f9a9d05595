// Package rls defines the row-level-security data model shared by the
// policy engine, the stores, and the serving surface: security roles,
// the per-request user context, the recursive condition tree, policies,
// the process-wide configuration, and the filter decision returned to
// query executors.
//
// All types in this package are plain data. They marshal to and from
// JSON with stable field names so that policies round-trip unchanged
// through any keyed store, and they are treated as immutable once loaded
// into an engine snapshot.
package rls
