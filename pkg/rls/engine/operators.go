package engine

import (
	"reflect"
	"strings"

	"openboard/rowguard/pkg/rls"
)

// evaluateOperator applies an operator to an actual row value and an
// expected (already resolved) comparison value. Evaluation is total:
// a type mismatch makes the comparison false, it never errors, so a
// malformed value can only ever hide rows.
func evaluateOperator(op rls.Operator, actual, expected interface{}) bool {
	switch op {
	case rls.OperatorEquals:
		return valuesEqual(actual, expected)

	case rls.OperatorNotEquals:
		return !valuesEqual(actual, expected)

	case rls.OperatorIn:
		member, ok := collectionMembership(actual, expected)
		return ok && member

	case rls.OperatorNotIn:
		member, ok := collectionMembership(actual, expected)
		return ok && !member

	case rls.OperatorContains:
		return stringPair(actual, expected, strings.Contains)

	case rls.OperatorStartsWith:
		return stringPair(actual, expected, strings.HasPrefix)

	case rls.OperatorGreaterThan:
		return ordered(actual, expected, func(cmp int) bool { return cmp > 0 })

	case rls.OperatorLessThan:
		return ordered(actual, expected, func(cmp int) bool { return cmp < 0 })

	case rls.OperatorBetween:
		return betweenBounds(actual, expected)

	case rls.OperatorIsNull:
		return actual == nil

	case rls.OperatorIsNotNull:
		return actual != nil

	default:
		return false
	}
}

// valuesEqual checks equality with numeric coercion (int vs float64 from
// JSON decoding compare equal) and deep equality for everything else.
func valuesEqual(actual, expected interface{}) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	actualNum, actualOK := toFloat64(actual)
	expectedNum, expectedOK := toFloat64(expected)
	if actualOK && expectedOK {
		return actualNum == expectedNum
	}

	return reflect.DeepEqual(actual, expected)
}

// collectionMembership checks membership of actual in the expected
// collection. ok is false when expected is not a collection at all,
// which makes both in and not_in evaluate false, matching the compiled
// membership predicate's handling of the same shape mismatch.
func collectionMembership(actual, expected interface{}) (member, ok bool) {
	val := reflect.ValueOf(expected)
	if !val.IsValid() || (val.Kind() != reflect.Slice && val.Kind() != reflect.Array) {
		return false, false
	}

	for i := 0; i < val.Len(); i++ {
		if valuesEqual(actual, val.Index(i).Interface()) {
			return true, true
		}
	}
	return false, true
}

// stringPair applies a case-sensitive string test when both values are
// strings; any other type combination is false.
func stringPair(actual, expected interface{}, test func(s, substr string) bool) bool {
	actualStr, ok := actual.(string)
	if !ok {
		return false
	}
	expectedStr, ok := expected.(string)
	if !ok {
		return false
	}
	return test(actualStr, expectedStr)
}

// ordered compares two ordering-comparable values. Numbers compare
// numerically, strings lexicographically; mixed or unordered types are
// false.
func ordered(actual, expected interface{}, pass func(cmp int) bool) bool {
	actualNum, actualOK := toFloat64(actual)
	expectedNum, expectedOK := toFloat64(expected)
	if actualOK && expectedOK {
		switch {
		case actualNum < expectedNum:
			return pass(-1)
		case actualNum > expectedNum:
			return pass(1)
		default:
			return pass(0)
		}
	}

	actualStr, aOK := actual.(string)
	expectedStr, eOK := expected.(string)
	if aOK && eOK {
		return pass(strings.Compare(actualStr, expectedStr))
	}

	return false
}

// betweenBounds checks lower <= actual <= upper against a two-element
// bounds pair. Any other shape is false.
func betweenBounds(actual, expected interface{}) bool {
	bounds := reflect.ValueOf(expected)
	if !bounds.IsValid() || (bounds.Kind() != reflect.Slice && bounds.Kind() != reflect.Array) || bounds.Len() != 2 {
		return false
	}

	lower := bounds.Index(0).Interface()
	upper := bounds.Index(1).Interface()

	atLeast := ordered(actual, lower, func(cmp int) bool { return cmp >= 0 })
	atMost := ordered(actual, upper, func(cmp int) bool { return cmp <= 0 })
	return atLeast && atMost
}

// toFloat64 converts any numeric value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
