// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

/*
 * Operand coercion for condition evaluation.
 *
 * Authored rules were written against browser semantics, so coercion mirrors
 * the JavaScript primitives the form runtime uses:
 *   - ToNumber: Number() - nil -> 0, "" -> 0, trimmed numeric text parses,
 *     booleans -> 1/0, missing and everything else -> NaN
 *   - ToString: String() - missing -> "undefined", nil -> "null",
 *     integral floats print without a fraction, lists join with ","
 *
 * Missing vs nil: a field absent from the value map is Undefined, a field
 * present with a null value is nil. The two coerce differently and the
 * distinction is kept all the way to the operators.
 */

type undefined struct{}

// Undefined stands for a field that is absent from the value map.
var Undefined any = undefined{}

// lookup returns the field value or Undefined when the field is absent.
func lookup(values map[string]any, field string) any {
	if values == nil {
		return Undefined
	}
	v, ok := values[field]
	if !ok {
		return Undefined
	}
	return v
}

// ToNumber converts v with JavaScript Number() semantics. NaN signals an
// impossible conversion; comparisons against NaN are always false.
func ToNumber(v any) float64 {
	switch n := v.(type) {
	case undefined:
		return math.NaN()
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		return parseNumber(string(n))
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		return parseNumber(n)
	default:
		return math.NaN()
	}
}

// parseNumber implements the string branch of Number(): surrounding
// whitespace is ignored, the empty string is zero, and anything that is not
// entirely a numeric literal is NaN.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0b") || strings.HasPrefix(lower, "0o") {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	// ParseFloat also accepts "inf", "nan" and underscores, Number() does not
	if strings.ContainsAny(lower, "_in") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToString converts v with JavaScript String() semantics.
func ToString(v any) string {
	switch s := v.(type) {
	case undefined:
		return "undefined"
	case nil:
		return "null"
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(s)
	case float32:
		return formatNumber(float64(s))
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case uint:
		return strconv.FormatUint(uint64(s), 10)
	case uint64:
		return strconv.FormatUint(s, 10)
	case json.Number:
		return formatNumber(parseNumber(string(s)))
	case []any:
		parts := make([]string, len(s))
		for i, elem := range s {
			if elem == nil {
				continue
			}
			parts[i] = ToString(elem)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(s, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return "[object Object]"
	}
}

// formatNumber prints f the way Number.prototype.toString does for the
// common range: no trailing fraction for integers, shortest round-trip
// digits otherwise.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// JS writes 1e+21, Go writes 1e+21 as well but pads exponents (1e-07)
		s = strings.Replace(s, "e-0", "e-", 1)
		return strings.Replace(s, "e+0", "e+", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// isNumber reports whether v holds a Go numeric type.
func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

// strictEqual mirrors ===: same primitive kind and same value. All Go
// numeric types count as one kind. Non-primitive values are never equal.
func strictEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return ToNumber(a) == ToNumber(b)
	}
	switch av := a.(type) {
	case undefined:
		_, ok := b.(undefined)
		return ok
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// isEmpty reports whether v counts as an unanswered field: missing, null,
// the empty string or an empty list. Zero and false are answers.
func isEmpty(v any) bool {
	switch s := v.(type) {
	case undefined, nil:
		return true
	case string:
		return s == ""
	case []any:
		return len(s) == 0
	case []string:
		return len(s) == 0
	default:
		return false
	}
}
