package engine

import (
	"sort"

	"openboard/rowguard/pkg/rls"
)

// ResolvePolicies selects the policies applicable to one evaluation: the
// policy must be enabled, its connection/schema/table scope must cover the
// request, and its role scope must cover the user (an empty role list
// applies to everyone).
//
// The result is ordered by priority descending, then by ID, so repeated
// evaluations of the same snapshot produce identical decisions. Priority
// is advisory ordering metadata only; it never suppresses lower-priority
// grants.
func ResolvePolicies(policies []rls.Policy, connectionID, schemaName, tableName string, user *rls.UserSecurityContext) []rls.Policy {
	var applicable []rls.Policy
	for i := range policies {
		p := &policies[i]
		if !p.Enabled {
			continue
		}
		if !p.MatchesTable(connectionID, schemaName, tableName) {
			continue
		}
		if !p.AppliesToUser(user) {
			continue
		}
		applicable = append(applicable, *p)
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		if applicable[i].Priority != applicable[j].Priority {
			return applicable[i].Priority > applicable[j].Priority
		}
		return applicable[i].ID < applicable[j].ID
	})

	return applicable
}
