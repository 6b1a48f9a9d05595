package engine

import (
	"strings"

	"openboard/rowguard/pkg/rls"
)

// CombineFilters merges the compiled filters of the applicable policies
// into one pre-enforcement decision. Policies combine with OR: each policy
// is an independent grant, and a row is visible if it satisfies at least
// one of them. filters and policies are parallel slices (one compiled
// filter per resolved policy, in resolver order).
//
// With no applicable policy the result is "no filter" with an empty
// policy list; whether that means unrestricted access or a default
// denial is the enforcement gate's call.
func CombineFilters(policies []rls.Policy, filters []*CompiledFilter) rls.FilterDecision {
	decision := rls.Unrestricted()
	if len(policies) == 0 {
		return decision
	}

	for i := range policies {
		decision.PoliciesApplied = append(decision.PoliciesApplied, policies[i].ID)
	}

	// Any vacuously-true policy grants the whole table: the OR collapses
	// and no filter needs to reach the query.
	for _, f := range filters {
		if f.IsMatchAll() {
			return decision
		}
	}

	var clauses []string
	var args []interface{}
	columnsSeen := make(map[string]bool)
	var columns []string

	for _, f := range filters {
		if f.IsMatchNone() {
			continue
		}
		clause, clauseArgs := f.SQL()
		clauses = append(clauses, "("+clause+")")
		args = append(args, clauseArgs...)
		for _, col := range f.Columns() {
			if !columnsSeen[col] {
				columnsSeen[col] = true
				columns = append(columns, col)
			}
		}
	}

	// Every applicable policy excludes every row. The table stays
	// queryable but the filter matches nothing.
	if len(clauses) == 0 {
		decision.HasFilters = true
		decision.WhereClause = "1 = 0"
		return decision
	}

	decision.HasFilters = true
	decision.WhereClause = strings.Join(clauses, " OR ")
	decision.Args = args
	decision.Columns = columns
	return decision
}
