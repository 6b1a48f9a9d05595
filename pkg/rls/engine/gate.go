package engine

import (
	"openboard/rowguard/pkg/rls"
)

// ApplyEnforcement turns the combiner's pre-enforcement decision into the
// decision handed to the caller, per the process-wide settings.
//
// The second return value is the decision that would have been enforced.
// In audit mode the two differ: the effective decision is downgraded to
// non-enforcing while the would-be decision goes to the audit log. In
// every other mode they are identical.
func ApplyEnforcement(combined rls.FilterDecision, settings rls.Settings) (effective, wouldBe rls.FilterDecision) {
	// Emergency disablement bypasses RLS entirely.
	if !settings.Enabled {
		off := rls.Unrestricted()
		return off, off
	}

	enforced := combined
	if len(combined.PoliciesApplied) == 0 {
		if settings.DefaultDeny {
			enforced = rls.Denied(rls.DenialNoMatchingPolicy)
		} else {
			enforced = rls.Unrestricted()
		}
	}

	if settings.AuditMode {
		// Callers must not restrict the query; the enforced decision is
		// surfaced only through the audit trail.
		observed := rls.Unrestricted()
		observed.PoliciesApplied = append([]string{}, enforced.PoliciesApplied...)
		return observed, enforced
	}

	return enforced, enforced
}
