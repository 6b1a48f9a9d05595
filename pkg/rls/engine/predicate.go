package engine

import (
	"strings"

	"openboard/rowguard/pkg/rls"
)

// predicate is the compiled form of one condition-tree node. It is a
// closed sum: constPredicate, comparePredicate, membershipPredicate,
// nullPredicate, exprPredicate, and groupPredicate. Every implementation
// renders a parameterized SQL fragment and evaluates a row directly, so
// the access-check and query-injection paths cannot drift apart.
type predicate interface {
	sql(b *strings.Builder, args *[]interface{})
	matches(row map[string]interface{}) bool
}

// constPredicate is a folded constant: true passes every row, false none.
type constPredicate bool

func (p constPredicate) sql(b *strings.Builder, args *[]interface{}) {
	if p {
		b.WriteString("1 = 1")
	} else {
		b.WriteString("1 = 0")
	}
}

func (p constPredicate) matches(row map[string]interface{}) bool {
	return bool(p)
}

// comparePredicate is a single column comparison against a resolved value.
type comparePredicate struct {
	column   string
	op       rls.Operator
	expected interface{}
}

func (p *comparePredicate) sql(b *strings.Builder, args *[]interface{}) {
	col := quoteIdent(p.column)

	switch p.op {
	case rls.OperatorEquals:
		b.WriteString(col + " = ?")
		*args = append(*args, p.expected)

	case rls.OperatorNotEquals:
		b.WriteString(col + " <> ?")
		*args = append(*args, p.expected)

	case rls.OperatorGreaterThan:
		b.WriteString(col + " > ?")
		*args = append(*args, p.expected)

	case rls.OperatorLessThan:
		b.WriteString(col + " < ?")
		*args = append(*args, p.expected)

	case rls.OperatorContains:
		b.WriteString(col + " LIKE ? ESCAPE '\\'")
		*args = append(*args, "%"+escapeLike(p.expected.(string))+"%")

	case rls.OperatorStartsWith:
		b.WriteString(col + " LIKE ? ESCAPE '\\'")
		*args = append(*args, escapeLike(p.expected.(string))+"%")

	case rls.OperatorBetween:
		bounds, _ := collectionElements(p.expected)
		b.WriteString(col + " BETWEEN ? AND ?")
		*args = append(*args, bounds[0], bounds[1])

	default:
		// Unreachable for validated policies; exclude the row.
		b.WriteString("1 = 0")
	}
}

func (p *comparePredicate) matches(row map[string]interface{}) bool {
	return evaluateOperator(p.op, row[p.column], p.expected)
}

// membershipPredicate tests column membership in a resolved collection.
type membershipPredicate struct {
	column string
	elems  []interface{}
	negate bool
}

func (p *membershipPredicate) sql(b *strings.Builder, args *[]interface{}) {
	b.WriteString(quoteIdent(p.column))
	if p.negate {
		b.WriteString(" NOT IN (")
	} else {
		b.WriteString(" IN (")
	}
	for i, elem := range p.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		*args = append(*args, elem)
	}
	b.WriteString(")")
}

func (p *membershipPredicate) matches(row map[string]interface{}) bool {
	actual := row[p.column]
	for _, elem := range p.elems {
		if valuesEqual(actual, elem) {
			return !p.negate
		}
	}
	return p.negate
}

// nullPredicate tests whether a column is (not) null.
type nullPredicate struct {
	column string
	negate bool
}

func (p *nullPredicate) sql(b *strings.Builder, args *[]interface{}) {
	b.WriteString(quoteIdent(p.column))
	if p.negate {
		b.WriteString(" IS NOT NULL")
	} else {
		b.WriteString(" IS NULL")
	}
}

func (p *nullPredicate) matches(row map[string]interface{}) bool {
	_, present := row[p.column]
	isNull := !present || row[p.column] == nil
	return isNull != p.negate
}

// exprPredicate is a trusted administrator-authored SQL fragment, passed
// through verbatim. It cannot be evaluated against an in-memory row;
// only the SQL executor can apply it, so the row path treats it as
// passing.
type exprPredicate string

func (p exprPredicate) sql(b *strings.Builder, args *[]interface{}) {
	b.WriteString("(" + string(p) + ")")
}

func (p exprPredicate) matches(row map[string]interface{}) bool {
	return true
}

// groupPredicate combines child predicates under AND or OR with
// short-circuit row evaluation.
type groupPredicate struct {
	and      bool
	children []predicate
}

func (p *groupPredicate) sql(b *strings.Builder, args *[]interface{}) {
	sep := " OR "
	if p.and {
		sep = " AND "
	}
	b.WriteString("(")
	for i, child := range p.children {
		if i > 0 {
			b.WriteString(sep)
		}
		child.sql(b, args)
	}
	b.WriteString(")")
}

func (p *groupPredicate) matches(row map[string]interface{}) bool {
	for _, child := range p.children {
		matched := child.matches(row)
		if p.and && !matched {
			return false
		}
		if !p.and && matched {
			return true
		}
	}
	return p.and
}

// quoteIdent quotes a column identifier with standard double quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// escapeLike escapes LIKE wildcards in a literal so contains/starts_with
// stay literal substring tests.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
