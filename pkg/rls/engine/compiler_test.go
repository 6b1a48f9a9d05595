package engine

import (
	"reflect"
	"testing"

	"openboard/rowguard/pkg/rls"
)

func staticCond(column string, op rls.Operator, value interface{}) rls.Condition {
	return rls.Condition{ID: "c-" + column, Column: column, Operator: op, FilterType: rls.FilterStatic, Value: value}
}

func dynamicCond(column string, op rls.Operator, attribute string) rls.Condition {
	return rls.Condition{ID: "c-" + column, Column: column, Operator: op, FilterType: rls.FilterDynamic, UserAttribute: attribute}
}

func andGroup(conditions ...rls.Condition) rls.ConditionGroup {
	return rls.ConditionGroup{ID: "g", Logic: rls.LogicAnd, Conditions: conditions}
}

func testUser() *rls.UserSecurityContext {
	return &rls.UserSecurityContext{
		UserID:   "u1",
		Username: "alice",
		RoleIDs:  []string{"analyst"},
		Attributes: map[string]interface{}{
			"department": "engineering",
			"regions":    []interface{}{"US", "EU"},
			"clearance":  3,
		},
	}
}

func TestCompileStaticComparison(t *testing.T) {
	c := NewCompiler(nil)
	group := andGroup(staticCond("tenant_id", rls.OperatorEquals, "t-42"))

	filter := c.Compile(&group, testUser())

	clause, args := filter.SQL()
	if clause != `"tenant_id" = ?` {
		t.Errorf("clause = %q", clause)
	}
	if !reflect.DeepEqual(args, []interface{}{"t-42"}) {
		t.Errorf("args = %v", args)
	}
	if !filter.Matches(map[string]interface{}{"tenant_id": "t-42"}) {
		t.Error("matching row rejected")
	}
	if filter.Matches(map[string]interface{}{"tenant_id": "t-7"}) {
		t.Error("non-matching row accepted")
	}
}

func TestCompileDynamicResolution(t *testing.T) {
	c := NewCompiler(nil)
	group := andGroup(dynamicCond("department", rls.OperatorEquals, "department"))

	filter := c.Compile(&group, testUser())

	clause, args := filter.SQL()
	if clause != `"department" = ?` {
		t.Errorf("clause = %q", clause)
	}
	if !reflect.DeepEqual(args, []interface{}{"engineering"}) {
		t.Errorf("args = %v", args)
	}
}

func TestCompileCustomAttributeRedirect(t *testing.T) {
	c := NewCompiler(nil)
	cond := rls.Condition{
		ID:              "c1",
		Column:          "cost_center",
		Operator:        rls.OperatorEquals,
		FilterType:      rls.FilterDynamic,
		UserAttribute:   rls.AttributeCustom,
		CustomAttribute: "costCenter",
	}
	group := andGroup(cond)
	user := testUser()
	user.Attributes["costCenter"] = "cc-9"

	_, args := c.Compile(&group, user).SQL()
	if !reflect.DeepEqual(args, []interface{}{"cc-9"}) {
		t.Errorf("args = %v", args)
	}
}

func TestCompileUnknownAttributeFoldsFalse(t *testing.T) {
	c := NewCompiler(nil)

	t.Run("absent attribute", func(t *testing.T) {
		group := andGroup(dynamicCond("team", rls.OperatorEquals, "team"))
		filter := c.Compile(&group, testUser())
		if !filter.IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("nil attribute", func(t *testing.T) {
		user := testUser()
		user.Attributes["team"] = nil
		group := andGroup(dynamicCond("team", rls.OperatorEquals, "team"))
		filter := c.Compile(&group, user)
		if !filter.IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})
}

func TestCompileNullTests(t *testing.T) {
	c := NewCompiler(nil)

	t.Run("dynamic is_null with absent attribute is true", func(t *testing.T) {
		group := andGroup(dynamicCond("manager_id", rls.OperatorIsNull, "managerId"))
		if !c.Compile(&group, testUser()).IsMatchAll() {
			t.Error("expected match-all filter")
		}
	})

	t.Run("dynamic is_null with present attribute is false", func(t *testing.T) {
		group := andGroup(dynamicCond("department", rls.OperatorIsNull, "department"))
		if !c.Compile(&group, testUser()).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("dynamic is_not_null with present attribute is true", func(t *testing.T) {
		group := andGroup(dynamicCond("department", rls.OperatorIsNotNull, "department"))
		if !c.Compile(&group, testUser()).IsMatchAll() {
			t.Error("expected match-all filter")
		}
	})

	t.Run("static is_null renders a column test", func(t *testing.T) {
		group := andGroup(rls.Condition{ID: "c1", Column: "deleted_at", Operator: rls.OperatorIsNull, FilterType: rls.FilterStatic})
		filter := c.Compile(&group, testUser())
		clause, args := filter.SQL()
		if clause != `"deleted_at" IS NULL` {
			t.Errorf("clause = %q", clause)
		}
		if len(args) != 0 {
			t.Errorf("args = %v", args)
		}
		if !filter.Matches(map[string]interface{}{"deleted_at": nil}) {
			t.Error("null column rejected")
		}
		if filter.Matches(map[string]interface{}{"deleted_at": "2026-01-01"}) {
			t.Error("non-null column accepted")
		}
	})
}

func TestCompileMembership(t *testing.T) {
	c := NewCompiler(nil)

	t.Run("dynamic in renders placeholders per element", func(t *testing.T) {
		group := andGroup(dynamicCond("region", rls.OperatorIn, "regions"))
		filter := c.Compile(&group, testUser())
		clause, args := filter.SQL()
		if clause != `"region" IN (?, ?)` {
			t.Errorf("clause = %q", clause)
		}
		if !reflect.DeepEqual(args, []interface{}{"US", "EU"}) {
			t.Errorf("args = %v", args)
		}
		if !filter.Matches(map[string]interface{}{"region": "EU"}) {
			t.Error("member row rejected")
		}
	})

	t.Run("in with scalar value folds false", func(t *testing.T) {
		group := andGroup(dynamicCond("region", rls.OperatorIn, "department"))
		if !c.Compile(&group, testUser()).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("not_in with scalar value folds false", func(t *testing.T) {
		// Negation must not turn a shape mismatch into a universal grant.
		group := andGroup(dynamicCond("region", rls.OperatorNotIn, "department"))
		if !c.Compile(&group, testUser()).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("in with empty collection folds false", func(t *testing.T) {
		group := andGroup(staticCond("region", rls.OperatorIn, []interface{}{}))
		if !c.Compile(&group, testUser()).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("not_in with empty collection folds true", func(t *testing.T) {
		group := andGroup(staticCond("region", rls.OperatorNotIn, []interface{}{}))
		if !c.Compile(&group, testUser()).IsMatchAll() {
			t.Error("expected match-all filter")
		}
	})
}

func TestCompileBetween(t *testing.T) {
	c := NewCompiler(nil)

	t.Run("renders both bounds", func(t *testing.T) {
		group := andGroup(staticCond("amount", rls.OperatorBetween, []interface{}{100, 500}))
		filter := c.Compile(&group, testUser())
		clause, args := filter.SQL()
		if clause != `"amount" BETWEEN ? AND ?` {
			t.Errorf("clause = %q", clause)
		}
		if !reflect.DeepEqual(args, []interface{}{100, 500}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("wrong element count folds false", func(t *testing.T) {
		group := andGroup(staticCond("amount", rls.OperatorBetween, []interface{}{100}))
		if !c.Compile(&group, testUser()).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})
}

func TestCompileLikeEscaping(t *testing.T) {
	c := NewCompiler(nil)
	group := andGroup(staticCond("discount", rls.OperatorContains, "50%"))

	clause, args := c.Compile(&group, testUser()).SQL()
	if clause != `"discount" LIKE ? ESCAPE '\'` {
		t.Errorf("clause = %q", clause)
	}
	if !reflect.DeepEqual(args, []interface{}{`%50\%%`}) {
		t.Errorf("args = %v", args)
	}
}

func TestCompileExpressionPassthrough(t *testing.T) {
	c := NewCompiler(nil)
	group := andGroup(rls.Condition{
		ID:         "c1",
		Column:     "org_id",
		Operator:   rls.OperatorEquals,
		FilterType: rls.FilterExpression,
		Expression: "org_id IN (SELECT org_id FROM org_members WHERE user_id = current_user_id())",
	})

	filter := c.Compile(&group, testUser())
	clause, args := filter.SQL()
	if clause != "(org_id IN (SELECT org_id FROM org_members WHERE user_id = current_user_id()))" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 0 {
		t.Errorf("args = %v", args)
	}
	// Fragments cannot be row-evaluated; the row path treats them as passing.
	if !filter.Matches(map[string]interface{}{}) {
		t.Error("expression filter should pass the row path")
	}
}

func TestCompileGroupFolding(t *testing.T) {
	c := NewCompiler(nil)
	user := testUser()

	t.Run("empty group is vacuously true", func(t *testing.T) {
		group := rls.ConditionGroup{ID: "g", Logic: rls.LogicAnd}
		if !c.Compile(&group, user).IsMatchAll() {
			t.Error("expected match-all filter")
		}
	})

	t.Run("AND short-circuits on false child", func(t *testing.T) {
		group := andGroup(
			staticCond("tenant_id", rls.OperatorEquals, "t-1"),
			dynamicCond("team", rls.OperatorEquals, "team"), // unresolvable
		)
		if !c.Compile(&group, user).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("OR drops false child and keeps the rest", func(t *testing.T) {
		group := rls.ConditionGroup{
			ID:    "g",
			Logic: rls.LogicOr,
			Conditions: []rls.Condition{
				dynamicCond("team", rls.OperatorEquals, "team"), // unresolvable
				staticCond("tenant_id", rls.OperatorEquals, "t-1"),
			},
		}
		clause, _ := c.Compile(&group, user).SQL()
		if clause != `"tenant_id" = ?` {
			t.Errorf("clause = %q", clause)
		}
	})

	t.Run("OR of all-false children is false", func(t *testing.T) {
		group := rls.ConditionGroup{
			ID:    "g",
			Logic: rls.LogicOr,
			Conditions: []rls.Condition{
				dynamicCond("team", rls.OperatorEquals, "team"),
				dynamicCond("site", rls.OperatorEquals, "site"),
			},
		}
		if !c.Compile(&group, user).IsMatchNone() {
			t.Error("expected match-none filter")
		}
	})

	t.Run("nested groups render parenthesized", func(t *testing.T) {
		group := rls.ConditionGroup{
			ID:    "g",
			Logic: rls.LogicAnd,
			Conditions: []rls.Condition{
				staticCond("tenant_id", rls.OperatorEquals, "t-1"),
			},
			Groups: []rls.ConditionGroup{
				{
					ID:    "g2",
					Logic: rls.LogicOr,
					Conditions: []rls.Condition{
						staticCond("status", rls.OperatorEquals, "open"),
						staticCond("status", rls.OperatorEquals, "pending"),
					},
				},
			},
		}
		filter := c.Compile(&group, user)
		clause, args := filter.SQL()
		want := `("tenant_id" = ? AND ("status" = ? OR "status" = ?))`
		if clause != want {
			t.Errorf("clause = %q, want %q", clause, want)
		}
		if !reflect.DeepEqual(args, []interface{}{"t-1", "open", "pending"}) {
			t.Errorf("args = %v", args)
		}
		if !filter.Matches(map[string]interface{}{"tenant_id": "t-1", "status": "pending"}) {
			t.Error("matching row rejected")
		}
		if filter.Matches(map[string]interface{}{"tenant_id": "t-1", "status": "closed"}) {
			t.Error("non-matching row accepted")
		}
	})
}

func TestCompiledFilterColumns(t *testing.T) {
	c := NewCompiler(nil)
	group := rls.ConditionGroup{
		ID:    "g",
		Logic: rls.LogicAnd,
		Conditions: []rls.Condition{
			staticCond("tenant_id", rls.OperatorEquals, "t-1"),
			staticCond("tenant_id", rls.OperatorNotEquals, "t-2"),
			staticCond("region", rls.OperatorEquals, "US"),
		},
	}

	got := c.Compile(&group, testUser()).Columns()
	if !reflect.DeepEqual(got, []string{"tenant_id", "region"}) {
		t.Errorf("Columns() = %v", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`weird"col`); got != `"weird""col"` {
		t.Errorf("quoteIdent = %q", got)
	}
}
