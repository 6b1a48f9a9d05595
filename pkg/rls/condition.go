package rls

// Operator is a comparison operator in an RLS condition.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorContains    Operator = "contains"
	OperatorStartsWith  Operator = "starts_with"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorBetween     Operator = "between"
	OperatorIsNull      Operator = "is_null"
	OperatorIsNotNull   Operator = "is_not_null"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorIn,
	OperatorNotIn,
	OperatorContains,
	OperatorStartsWith,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorBetween,
	OperatorIsNull,
	OperatorIsNotNull,
}

// IsValid returns true if the operator is one of the supported operators.
func (o Operator) IsValid() bool {
	for _, op := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// NeedsValue returns true if the operator compares against a resolved
// right-hand value. is_null and is_not_null test the column (or resolved
// attribute) directly and carry no value.
func (o Operator) NeedsValue() bool {
	return o != OperatorIsNull && o != OperatorIsNotNull
}

// FilterType selects the value-resolution strategy for a condition.
type FilterType string

const (
	// FilterStatic compares against the literal value authored in the policy.
	FilterStatic FilterType = "static"

	// FilterDynamic resolves the comparison value from the requesting
	// user's attribute map at evaluation time.
	FilterDynamic FilterType = "dynamic"

	// FilterExpression passes a pre-authorized raw SQL fragment through
	// verbatim. The engine never interprets or substitutes into it.
	FilterExpression FilterType = "expression"
)

// IsValid returns true if the filter type is one of the supported types.
func (f FilterType) IsValid() bool {
	return f == FilterStatic || f == FilterDynamic || f == FilterExpression
}

// AttributeCustom is the userAttribute value that redirects the attribute
// lookup to the condition's customAttribute key.
const AttributeCustom = "custom"

// Condition is a leaf of the condition tree: one column compared against
// one resolved value. Exactly one of Value, UserAttribute, or Expression
// is populated, matching FilterType.
type Condition struct {
	// ID is the unique condition identifier.
	ID string `json:"id"`

	// Column is the target column of the table being filtered.
	Column string `json:"column"`

	// Operator is the comparison operator.
	Operator Operator `json:"operator"`

	// FilterType selects how the right-hand value is resolved.
	FilterType FilterType `json:"filterType"`

	// Value is the literal comparison value (FilterStatic).
	Value interface{} `json:"value,omitempty"`

	// UserAttribute names the user-context attribute to resolve
	// (FilterDynamic). The reserved value "custom" redirects the lookup
	// to CustomAttribute.
	UserAttribute string `json:"userAttribute,omitempty"`

	// CustomAttribute is the lookup key when UserAttribute is "custom".
	CustomAttribute string `json:"customAttribute,omitempty"`

	// Expression is the trusted raw SQL fragment (FilterExpression).
	Expression string `json:"expression,omitempty"`
}

// AttributeKey returns the user-context key a dynamic condition resolves
// against, following the custom-attribute redirect.
func (c *Condition) AttributeKey() string {
	if c.UserAttribute == AttributeCustom {
		return c.CustomAttribute
	}
	return c.UserAttribute
}

// GroupLogic combines the children of a condition group.
type GroupLogic string

const (
	// LogicAnd requires every child condition and group to pass.
	LogicAnd GroupLogic = "AND"

	// LogicOr requires at least one child condition or group to pass.
	LogicOr GroupLogic = "OR"
)

// IsValid returns true if the logic is AND or OR.
func (l GroupLogic) IsValid() bool {
	return l == LogicAnd || l == LogicOr
}

// ConditionGroup is an internal node of the condition tree. It combines an
// ordered list of leaf conditions and an ordered list of nested groups
// under a single AND/OR logic. Groups form a tree by construction: they
// are only ever created new, never re-parented, so no cycle is possible.
type ConditionGroup struct {
	// ID is the unique group identifier.
	ID string `json:"id"`

	// Logic combines the group's conditions and nested groups.
	Logic GroupLogic `json:"logic"`

	// Conditions are the leaf conditions evaluated directly by this group.
	Conditions []Condition `json:"conditions"`

	// Groups are the nested condition groups.
	Groups []ConditionGroup `json:"groups,omitempty"`
}

// IsEmpty returns true if the group has no conditions and no nested groups.
// An empty group evaluates vacuously true.
func (g *ConditionGroup) IsEmpty() bool {
	return len(g.Conditions) == 0 && len(g.Groups) == 0
}

// ConditionCount returns the total number of leaf conditions in the tree
// rooted at this group.
func (g *ConditionGroup) ConditionCount() int {
	count := len(g.Conditions)
	for i := range g.Groups {
		count += g.Groups[i].ConditionCount()
	}
	return count
}

// Columns returns the set of column names referenced anywhere in the tree
// rooted at this group, in first-seen order.
func (g *ConditionGroup) Columns() []string {
	seen := make(map[string]bool)
	var columns []string
	g.collectColumns(seen, &columns)
	return columns
}

func (g *ConditionGroup) collectColumns(seen map[string]bool, columns *[]string) {
	for i := range g.Conditions {
		col := g.Conditions[i].Column
		if col != "" && !seen[col] {
			seen[col] = true
			*columns = append(*columns, col)
		}
	}
	for i := range g.Groups {
		g.Groups[i].collectColumns(seen, columns)
	}
}
