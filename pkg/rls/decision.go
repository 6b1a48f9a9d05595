package rls

// Denial reasons surfaced in FilterDecision.DenialReason.
const (
	// DenialNoMatchingPolicy is returned when default-deny is active and
	// no policy applies to the requested table.
	DenialNoMatchingPolicy = "no_matching_policy"

	// DenialEngineUnavailable is returned when the engine has no
	// sufficiently fresh snapshot to evaluate against.
	DenialEngineUnavailable = "engine_unavailable"
)

// FilterDecision is the engine's answer to one evaluation request. The
// query executor applies WhereClause (with Args bound in order) to the
// statement it is about to run, or refuses the query if AccessDenied.
type FilterDecision struct {
	// HasFilters reports whether a row filter must be applied.
	HasFilters bool `json:"hasFilters"`

	// WhereClause is the combined, parameterized filter fragment. Empty
	// when HasFilters is false.
	WhereClause string `json:"whereClause,omitempty"`

	// Args are the bind parameters for WhereClause placeholders, in order.
	Args []interface{} `json:"args,omitempty"`

	// Columns is the set of column names the filter references.
	Columns []string `json:"columns,omitempty"`

	// PoliciesApplied lists the IDs of the policies that contributed.
	PoliciesApplied []string `json:"policiesApplied"`

	// AccessDenied reports that the table must not be queried at all.
	AccessDenied bool `json:"accessDenied"`

	// DenialReason explains a denial. Empty when AccessDenied is false.
	DenialReason string `json:"denialReason,omitempty"`
}

// Unrestricted is the decision for a table with no enforced filter.
func Unrestricted() FilterDecision {
	return FilterDecision{PoliciesApplied: []string{}}
}

// Denied builds a denying decision with the given reason.
func Denied(reason string) FilterDecision {
	return FilterDecision{
		PoliciesApplied: []string{},
		AccessDenied:    true,
		DenialReason:    reason,
	}
}

// Clone returns a deep copy of the decision so cached values can be handed
// to callers without aliasing the cache's slices.
func (d FilterDecision) Clone() FilterDecision {
	out := d
	if d.Args != nil {
		out.Args = make([]interface{}, len(d.Args))
		copy(out.Args, d.Args)
	}
	if d.Columns != nil {
		out.Columns = make([]string, len(d.Columns))
		copy(out.Columns, d.Columns)
	}
	if d.PoliciesApplied != nil {
		out.PoliciesApplied = make([]string, len(d.PoliciesApplied))
		copy(out.PoliciesApplied, d.PoliciesApplied)
	}
	return out
}
