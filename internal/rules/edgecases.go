// internal/rules/edgecases.go
package rules

import (
	"math"

	"github.com/solatis/formflow/internal/types"
)

/*
 * Synthetic test inputs for a rule list.
 *
 * Every case is a deterministic function of the rules: fields are visited in
 * order of first appearance and later conditions on the same field overwrite
 * earlier ones.
 *
 *   All Empty        every referenced field set to ""
 *   Happy Path       values satisfying each condition literally, numeric
 *                    bounds offset by one to pass
 *   Inverted         values failing each condition
 *   Boundary Values  numeric fields at the exact comparison value (only when
 *                    a numeric operator is present)
 *   Contradictory    happy path with numeric fields pushed toward the
 *                    tightest greaterThan/lessThan bounds across all rules
 *                    (only with two or more rules)
 */

// Edge case names.
const (
	CaseAllEmpty      = "All Empty"
	CaseHappyPath     = "Happy Path"
	CaseInverted      = "Inverted"
	CaseBoundary      = "Boundary Values"
	CaseContradictory = "Contradictory"
)

// EdgeCase is one named input set.
type EdgeCase struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Values      types.Values `json:"values"`
}

// GenerateEdgeCases synthesizes input sets exercising rules. A rule list that
// references no field yields no cases.
func GenerateEdgeCases(rules []types.Rule) []EdgeCase {
	var fields []string
	seen := map[string]bool{}
	var conds []types.Condition
	for _, r := range rules {
		for _, c := range r.Conditions {
			conds = append(conds, c)
			if c.Field != "" && !seen[c.Field] {
				seen[c.Field] = true
				fields = append(fields, c.Field)
			}
		}
	}
	if len(fields) == 0 {
		return []EdgeCase{}
	}

	empty := types.Values{}
	for _, f := range fields {
		empty[f] = ""
	}
	happy := types.Values{}
	inverted := types.Values{}
	boundary := types.Values{}
	for _, c := range conds {
		if c.Field == "" {
			continue
		}
		happy[c.Field] = happyValue(c)
		inverted[c.Field] = invertedValue(c)
		if c.Operator.Numeric() {
			boundary[c.Field] = number(c.Value)
		}
	}

	cases := []EdgeCase{
		{Name: CaseAllEmpty, Description: "Every referenced field is empty", Values: empty},
		{Name: CaseHappyPath, Description: "Values chosen to satisfy every condition", Values: happy},
		{Name: CaseInverted, Description: "Values chosen to fail every condition", Values: inverted},
	}
	if len(boundary) > 0 {
		cases = append(cases, EdgeCase{
			Name:        CaseBoundary,
			Description: "Numeric fields at the exact comparison value",
			Values:      boundary,
		})
	}
	if len(rules) >= 2 {
		cases = append(cases, EdgeCase{
			Name:        CaseContradictory,
			Description: "Numeric fields pushed toward the tightest bounds across rules",
			Values:      contradictory(conds, happy),
		})
	}
	return cases
}

// number is Number(v) with NaN replaced by zero so generated values stay
// representable in JSON.
func number(v any) float64 {
	n := ToNumber(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func happyValue(c types.Condition) any {
	switch c.Operator {
	case types.OpEquals, types.OpContains:
		return c.Value
	case types.OpNotEquals:
		return "not_" + ToString(c.Value)
	case types.OpNotContains:
		return ""
	case types.OpGreaterThan:
		return number(c.Value) + 1
	case types.OpLessThan:
		return number(c.Value) - 1
	case types.OpIsEmpty:
		return ""
	case types.OpIsNotEmpty:
		return "test"
	default:
		return c.Value
	}
}

func invertedValue(c types.Condition) any {
	switch c.Operator {
	case types.OpEquals:
		return ToString(c.Value) + "_invalid"
	case types.OpContains:
		return ""
	case types.OpNotEquals, types.OpNotContains:
		return c.Value
	case types.OpGreaterThan:
		return number(c.Value) - 1
	case types.OpLessThan:
		return number(c.Value) + 1
	case types.OpIsEmpty:
		return "filled"
	case types.OpIsNotEmpty:
		return ""
	default:
		return ""
	}
}

type bounds struct {
	lower, upper       float64
	hasLower, hasUpper bool
}

func contradictory(conds []types.Condition, happy types.Values) types.Values {
	out := happy.Clone()
	var order []string
	folded := map[string]*bounds{}
	for _, c := range conds {
		if c.Field == "" || !c.Operator.Numeric() {
			continue
		}
		b, ok := folded[c.Field]
		if !ok {
			b = &bounds{}
			folded[c.Field] = b
			order = append(order, c.Field)
		}
		v := number(c.Value)
		if c.Operator == types.OpGreaterThan {
			if !b.hasLower || v > b.lower {
				b.lower = v
			}
			b.hasLower = true
		} else {
			if !b.hasUpper || v < b.upper {
				b.upper = v
			}
			b.hasUpper = true
		}
	}
	for _, f := range order {
		b := folded[f]
		switch {
		case !b.hasLower:
			out[f] = b.upper - 1
		case !b.hasUpper || b.lower+1 < b.upper:
			out[f] = b.lower + 1
		case b.lower < b.upper:
			// interval narrower than one
			out[f] = (b.lower + b.upper) / 2
		default:
			// empty interval: the case shows the bounds cannot both hold
			out[f] = b.lower + 1
		}
	}
	return out
}
