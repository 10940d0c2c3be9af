// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/formflow/internal/types"
)

/*
 * Condition evaluation.
 *
 * One evaluator serves the rule engine, the rule debugger and workflow
 * condition nodes. The three callers historically disagreed on equality and
 * casing, and authored rules depend on each behavior, so the differences are
 * carried as EvalMode flags rather than separate code paths:
 *
 *   mode          equals/notEquals   contains/notContains   fail-safe
 *   ModePlain     strict identity    case-sensitive         no
 *   ModeDebugger  String() compare   lower-cases both       yes
 *   ModeWorkflow  String() compare   case-sensitive         yes
 *
 * Evaluation is total: missing fields are Undefined, unknown operators pass,
 * and in fail-safe modes a panic inside an operator reads as false.
 *
 * Group semantics: an empty condition list is vacuously true, AND needs every
 * condition, OR needs one. Any group operator other than OR is read as AND.
 */

// EvalMode selects equality and casing behavior.
type EvalMode struct {
	// CaseSensitive keeps contains/notContains case-sensitive.
	CaseSensitive bool
	// CoerceEquality compares equals/notEquals by String() of both sides.
	CoerceEquality bool
	// FailSafe converts a panic during evaluation into false.
	FailSafe bool
}

var (
	ModePlain    = EvalMode{CaseSensitive: true}
	ModeDebugger = EvalMode{CoerceEquality: true, FailSafe: true}
	ModeWorkflow = EvalMode{CaseSensitive: true, CoerceEquality: true, FailSafe: true}
)

// Evaluate reports whether cond holds against values.
func (m EvalMode) Evaluate(cond types.Condition, values map[string]any) (passed bool) {
	if m.FailSafe {
		defer func() {
			if r := recover(); r != nil {
				passed = false
			}
		}()
	}
	return Compare(m, cond.Operator, lookup(values, cond.Field), cond.Value)
}

// EvaluateAll evaluates a condition group.
func (m EvalMode) EvaluateAll(conds []types.Condition, op types.ConditionOperator, values map[string]any) bool {
	if len(conds) == 0 {
		return true
	}
	if op == types.ConditionOr {
		for _, c := range conds {
			if m.Evaluate(c, values) {
				return true
			}
		}
		return false
	}
	for _, c := range conds {
		if !m.Evaluate(c, values) {
			return false
		}
	}
	return true
}

// ConditionTrace records one condition's outcome for debugging output.
type ConditionTrace struct {
	Condition types.Condition `json:"condition"`
	Actual    any             `json:"actual"`
	Passed    bool            `json:"passed"`
}

// trace evaluates every condition without short-circuit and returns the
// per-condition outcomes with the group result.
func (m EvalMode) trace(conds []types.Condition, op types.ConditionOperator, values map[string]any) ([]ConditionTrace, bool) {
	traces := make([]ConditionTrace, 0, len(conds))
	anyPassed, allPassed := false, true
	for _, c := range conds {
		passed := m.Evaluate(c, values)
		actual := lookup(values, c.Field)
		if _, missing := actual.(undefined); missing {
			actual = nil
		}
		traces = append(traces, ConditionTrace{Condition: c, Actual: actual, Passed: passed})
		anyPassed = anyPassed || passed
		allPassed = allPassed && passed
	}
	if len(conds) == 0 {
		return traces, true
	}
	if op == types.ConditionOr {
		return traces, anyPassed
	}
	return traces, allPassed
}

// EvaluateCondition evaluates cond with the plain evaluator.
func EvaluateCondition(cond types.Condition, values map[string]any) bool {
	return ModePlain.Evaluate(cond, values)
}

// EvaluateAllConditions evaluates a condition group with the plain evaluator.
func EvaluateAllConditions(conds []types.Condition, op types.ConditionOperator, values map[string]any) bool {
	return ModePlain.EvaluateAll(conds, op, values)
}
