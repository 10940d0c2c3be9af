// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/formflow/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the eight condition operators over raw form values. Operands
 * are never pre-coerced: each operator coerces the way the form runtime does.
 *
 * Operators:
 *   - equals/notEquals: strict identity, or string comparison when the mode
 *     coerces equality
 *   - contains/notContains: substring test on String(actual), membership
 *     test when the actual value is a list
 *   - greaterThan/lessThan: Number() on both sides, NaN never compares
 *   - isEmpty/isNotEmpty: missing, null, "" and [] are empty
 *
 * Unknown operators pass. An authored rule using an operator this build does
 * not understand keeps firing instead of silently switching off.
 */

// Compare applies op to the actual field value and the expected condition
// value under mode.
func Compare(mode EvalMode, op types.Operator, actual, expected any) bool {
	switch op {
	case types.OpEquals:
		return compareEqual(mode, actual, expected)
	case types.OpNotEquals:
		return !compareEqual(mode, actual, expected)
	case types.OpContains:
		return compareContains(mode, actual, expected)
	case types.OpNotContains:
		return !compareContains(mode, actual, expected)
	case types.OpGreaterThan:
		return ToNumber(actual) > ToNumber(expected)
	case types.OpLessThan:
		return ToNumber(actual) < ToNumber(expected)
	case types.OpIsEmpty:
		return isEmpty(actual)
	case types.OpIsNotEmpty:
		return !isEmpty(actual)
	default:
		return true
	}
}

func compareEqual(mode EvalMode, actual, expected any) bool {
	if mode.CoerceEquality {
		return ToString(actual) == ToString(expected)
	}
	return strictEqual(actual, expected)
}

// compareContains tests substring containment. A list actual value is a
// multi-select answer and is tested for membership instead.
func compareContains(mode EvalMode, actual, expected any) bool {
	if list, ok := actual.([]any); ok {
		for _, elem := range list {
			if compareEqual(mode, elem, expected) {
				return true
			}
		}
		return false
	}

	haystack := stringOrEmpty(actual)
	needle := stringOrEmpty(expected)
	if !mode.CaseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}
	return strings.Contains(haystack, needle)
}

// stringOrEmpty is String(v ?? "").
func stringOrEmpty(v any) string {
	switch v.(type) {
	case undefined, nil:
		return ""
	}
	return ToString(v)
}
