package engine

import (
	"log/slog"
	"reflect"
	"strings"

	"openboard/rowguard/pkg/rls"
)

// Compiler turns one condition tree into an evaluable predicate, resolving
// each leaf's comparison value against the requesting user's context.
// Compilation is total: resolution gaps and type mismatches fold into
// constant-false predicates instead of errors, so a malformed condition
// can only ever hide rows.
type Compiler struct {
	logger *slog.Logger
}

// NewCompiler creates a new condition compiler.
func NewCompiler(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{logger: logger}
}

// CompiledFilter is the compiled form of one condition tree: a predicate
// that renders to a parameterized SQL fragment or evaluates rows
// directly, plus the set of columns it references.
type CompiledFilter struct {
	root    predicate
	columns []string
}

// Columns returns the column names the filter references, in first-seen
// order.
func (f *CompiledFilter) Columns() []string {
	return f.columns
}

// IsMatchAll reports that the filter passes every row (vacuous grant).
func (f *CompiledFilter) IsMatchAll() bool {
	c, ok := f.root.(constPredicate)
	return ok && bool(c)
}

// IsMatchNone reports that the filter excludes every row.
func (f *CompiledFilter) IsMatchNone() bool {
	c, ok := f.root.(constPredicate)
	return ok && !bool(c)
}

// SQL renders the filter as a parameterized WHERE fragment with its bind
// arguments in placeholder order.
func (f *CompiledFilter) SQL() (string, []interface{}) {
	var b strings.Builder
	var args []interface{}
	f.root.sql(&b, &args)
	return b.String(), args
}

// Matches evaluates the filter against one row for the boolean
// access-check path. Expression fragments cannot be interpreted here and
// count as passing; only the SQL executor can apply them.
func (f *CompiledFilter) Matches(row map[string]interface{}) bool {
	return f.root.matches(row)
}

// Compile compiles a condition tree for the given user context.
func (c *Compiler) Compile(group *rls.ConditionGroup, user *rls.UserSecurityContext) *CompiledFilter {
	return &CompiledFilter{
		root:    c.compileGroup(group, user),
		columns: group.Columns(),
	}
}

// compileGroup compiles one group node, folding constant children so that
// vacuous subtrees disappear from the rendered SQL.
func (c *Compiler) compileGroup(group *rls.ConditionGroup, user *rls.UserSecurityContext) predicate {
	// An empty group evaluates vacuously true: deny lives in the
	// enforcement gate, not in individual policies.
	if group.IsEmpty() {
		return constPredicate(true)
	}

	and := group.Logic == rls.LogicAnd
	children := make([]predicate, 0, len(group.Conditions)+len(group.Groups))

	fold := func(p predicate) predicate {
		if k, ok := p.(constPredicate); ok {
			if and && !bool(k) {
				return constPredicate(false) // short-circuit whole group
			}
			if !and && bool(k) {
				return constPredicate(true)
			}
			return nil // neutral element, drop
		}
		children = append(children, p)
		return nil
	}

	for i := range group.Conditions {
		if done := fold(c.compileCondition(&group.Conditions[i], user)); done != nil {
			return done
		}
	}
	for i := range group.Groups {
		if done := fold(c.compileGroup(&group.Groups[i], user)); done != nil {
			return done
		}
	}

	switch len(children) {
	case 0:
		// Every child folded to the neutral constant: all true under AND,
		// all false under OR.
		return constPredicate(and)
	case 1:
		return children[0]
	default:
		return &groupPredicate{and: and, children: children}
	}
}

// compileCondition compiles one leaf condition.
func (c *Compiler) compileCondition(cond *rls.Condition, user *rls.UserSecurityContext) predicate {
	// Expression conditions pass the administrator's fragment through
	// verbatim; the engine never parses or substitutes into it.
	if cond.FilterType == rls.FilterExpression {
		if cond.Expression == "" {
			return constPredicate(false)
		}
		return exprPredicate(cond.Expression)
	}

	if cond.Operator == rls.OperatorIsNull || cond.Operator == rls.OperatorIsNotNull {
		return c.compileNullTest(cond, user)
	}

	value, known := c.resolveValue(cond, user)
	if !known {
		// Resolution gap: the row is excluded, never an error.
		c.logger.Debug("dynamic attribute missing, condition folds to false",
			"condition_id", cond.ID,
			"column", cond.Column,
			"attribute", cond.AttributeKey(),
		)
		return constPredicate(false)
	}

	return c.compileComparison(cond, value)
}

// compileNullTest compiles is_null / is_not_null. On a static condition it
// tests the column; on a dynamic condition it tests the resolved attribute
// value, which keeps null checks meaningful for absent attributes.
func (c *Compiler) compileNullTest(cond *rls.Condition, user *rls.UserSecurityContext) predicate {
	wantNull := cond.Operator == rls.OperatorIsNull

	if cond.FilterType == rls.FilterDynamic {
		_, known := c.resolveValue(cond, user)
		return constPredicate(known != wantNull)
	}

	return &nullPredicate{column: cond.Column, negate: !wantNull}
}

// resolveValue resolves a condition's comparison value. The second return
// value is false when the value is "unknown": a dynamic attribute that is
// absent from the context or present but nil.
func (c *Compiler) resolveValue(cond *rls.Condition, user *rls.UserSecurityContext) (interface{}, bool) {
	switch cond.FilterType {
	case rls.FilterStatic:
		return cond.Value, cond.Value != nil || !cond.Operator.NeedsValue()

	case rls.FilterDynamic:
		value, ok := user.Attribute(cond.AttributeKey())
		if !ok || value == nil {
			return nil, false
		}
		return value, true

	default:
		return nil, false
	}
}

// compileComparison compiles an operator against a known resolved value.
// Shape mismatches (scalar where a collection is required, unordered types
// under an ordering operator) fold to constant false.
func (c *Compiler) compileComparison(cond *rls.Condition, value interface{}) predicate {
	switch cond.Operator {
	case rls.OperatorIn, rls.OperatorNotIn:
		elems, ok := collectionElements(value)
		if !ok {
			return constPredicate(false)
		}
		if len(elems) == 0 {
			// Membership in an empty collection is false.
			return constPredicate(cond.Operator == rls.OperatorNotIn)
		}
		return &membershipPredicate{
			column: cond.Column,
			elems:  elems,
			negate: cond.Operator == rls.OperatorNotIn,
		}

	case rls.OperatorBetween:
		elems, ok := collectionElements(value)
		if !ok || len(elems) != 2 {
			return constPredicate(false)
		}
		return &comparePredicate{column: cond.Column, op: cond.Operator, expected: value}

	case rls.OperatorContains, rls.OperatorStartsWith:
		if _, ok := value.(string); !ok {
			return constPredicate(false)
		}
		return &comparePredicate{column: cond.Column, op: cond.Operator, expected: value}

	case rls.OperatorGreaterThan, rls.OperatorLessThan:
		if _, numeric := toFloat64(value); !numeric {
			if _, str := value.(string); !str {
				return constPredicate(false)
			}
		}
		return &comparePredicate{column: cond.Column, op: cond.Operator, expected: value}

	default:
		return &comparePredicate{column: cond.Column, op: cond.Operator, expected: value}
	}
}

// collectionElements flattens a slice or array value into []interface{}.
func collectionElements(value interface{}) ([]interface{}, bool) {
	val := reflect.ValueOf(value)
	if !val.IsValid() || (val.Kind() != reflect.Slice && val.Kind() != reflect.Array) {
		return nil, false
	}
	elems := make([]interface{}, val.Len())
	for i := 0; i < val.Len(); i++ {
		elems[i] = val.Index(i).Interface()
	}
	return elems, true
}
