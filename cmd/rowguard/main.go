// Rowguard is a row-level security policy engine for database access.
//
// It resolves per-user SQL filter predicates from administrator-authored
// policies, providing:
//   - Role-scoped policies with static, dynamic, and expression filters
//   - OR-combination of independent policy grants per table
//   - Cached filter decisions with generation-based invalidation
//   - Audit-mode evaluation and persisted access records
//   - HTTP API for evaluation and policy administration
//
// Usage:
//
//	# Start the server with default configuration
//	rowguard run
//
//	# Start with custom configuration file
//	rowguard run --config /path/to/config.yaml
//
//	# Show version information
//	rowguard version
//
//	# Validate a policy bundle
//	rowguard validate --file policies.yaml
//
//	# Query recorded access decisions
//	rowguard audit query --user-id u-123 --denied-only
package main

func main() {
	Execute()
}
