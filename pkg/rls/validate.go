package rls

import (
	"fmt"
	"strings"
)

// ValidationError reports everything wrong with a policy in one pass so
// administrators can fix a save in a single round trip.
type ValidationError struct {
	PolicyID string
	Errors   []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("policy %s: validation error: %s", e.PolicyID, e.Errors[0])
	}
	return fmt.Sprintf("policy %s: %d validation errors: %s", e.PolicyID, len(e.Errors), strings.Join(e.Errors, "; "))
}

// ValidatePolicy checks a policy at save time: identity fields, role
// references against the known role set, and every condition's
// operator/filterType/value agreement. Configuration errors are caught
// here, never mid-evaluation.
//
// knownRoles may be nil to skip role-reference checking (e.g. when
// validating a standalone policy file before roles exist).
func ValidatePolicy(p *Policy, knownRoles map[string]SecurityRole) error {
	var errs []string

	if p.ID == "" {
		errs = append(errs, "policy id cannot be empty")
	}
	if p.Name == "" {
		errs = append(errs, "policy name cannot be empty")
	}

	if knownRoles != nil {
		for _, roleID := range p.RoleIDs {
			if _, ok := knownRoles[roleID]; !ok {
				errs = append(errs, fmt.Sprintf("unknown role id %q", roleID))
			}
		}
	}

	validateGroup(&p.FilterGroup, "filterGroup", &errs)

	if len(errs) > 0 {
		return &ValidationError{PolicyID: p.ID, Errors: errs}
	}
	return nil
}

// validateGroup walks the condition tree depth-first, appending one error
// string per defect. path identifies the node for error messages.
func validateGroup(g *ConditionGroup, path string, errs *[]string) {
	if !g.Logic.IsValid() {
		*errs = append(*errs, fmt.Sprintf("%s: invalid logic %q", path, g.Logic))
	}
	for i := range g.Conditions {
		validateCondition(&g.Conditions[i], fmt.Sprintf("%s.conditions[%d]", path, i), errs)
	}
	for i := range g.Groups {
		validateGroup(&g.Groups[i], fmt.Sprintf("%s.groups[%d]", path, i), errs)
	}
}

func validateCondition(c *Condition, path string, errs *[]string) {
	if c.Column == "" {
		*errs = append(*errs, fmt.Sprintf("%s: column cannot be empty", path))
	}
	if !c.Operator.IsValid() {
		*errs = append(*errs, fmt.Sprintf("%s: invalid operator %q", path, c.Operator))
		return
	}
	if !c.FilterType.IsValid() {
		*errs = append(*errs, fmt.Sprintf("%s: invalid filter type %q", path, c.FilterType))
		return
	}

	// Exactly one value source, matching the filter type.
	switch c.FilterType {
	case FilterStatic:
		if c.UserAttribute != "" || c.Expression != "" {
			*errs = append(*errs, fmt.Sprintf("%s: static condition must not set userAttribute or expression", path))
		}
		if c.Value == nil && c.Operator.NeedsValue() {
			*errs = append(*errs, fmt.Sprintf("%s: operator %q requires a value", path, c.Operator))
		}
	case FilterDynamic:
		if c.Value != nil || c.Expression != "" {
			*errs = append(*errs, fmt.Sprintf("%s: dynamic condition must not set value or expression", path))
		}
		if c.UserAttribute == "" {
			*errs = append(*errs, fmt.Sprintf("%s: dynamic condition requires userAttribute", path))
		}
		if c.UserAttribute == AttributeCustom && c.CustomAttribute == "" {
			*errs = append(*errs, fmt.Sprintf("%s: userAttribute %q requires customAttribute", path, AttributeCustom))
		}
		if c.UserAttribute != AttributeCustom && c.CustomAttribute != "" {
			*errs = append(*errs, fmt.Sprintf("%s: customAttribute is only valid with userAttribute %q", path, AttributeCustom))
		}
	case FilterExpression:
		if c.Value != nil || c.UserAttribute != "" {
			*errs = append(*errs, fmt.Sprintf("%s: expression condition must not set value or userAttribute", path))
		}
		if c.Expression == "" {
			*errs = append(*errs, fmt.Sprintf("%s: expression condition requires an expression", path))
		}
	}

	// Operator/value shape checks that can be decided at save time.
	if c.FilterType == FilterStatic {
		switch c.Operator {
		case OperatorIn, OperatorNotIn:
			if c.Value != nil {
				if _, ok := c.Value.([]interface{}); !ok {
					*errs = append(*errs, fmt.Sprintf("%s: operator %q requires a list value", path, c.Operator))
				}
			}
		case OperatorBetween:
			if bounds, ok := c.Value.([]interface{}); !ok || len(bounds) != 2 {
				*errs = append(*errs, fmt.Sprintf("%s: operator %q requires a two-element value", path, c.Operator))
			}
		}
	}
}
