// internal/rules/compile.go
package rules

import (
	"fmt"

	"github.com/solatis/formflow/internal/types"
)

/*
 * Authoring checks for rule lists.
 *
 * Evaluation is permissive by contract (unknown operators pass, unknown
 * action types fold into nothing), so mistakes in authored rules surface
 * here instead of at runtime. Checks run at save time and never block
 * evaluation.
 *
 *   duplicate rule id                 error
 *   unknown conditionOperator         error (evaluation reports error status)
 *   condition without a field         warning
 *   unknown condition operator        warning (condition always passes)
 *   unknown action type               warning
 *   action without a target           warning (navigate excepted)
 */

// RuleIssue is one finding against a rule.
type RuleIssue struct {
	Severity types.Severity `json:"severity"`
	RuleID   string         `json:"ruleId"`
	Message  string         `json:"message"`
}

// ValidateRules lints a rule list in declaration order.
func ValidateRules(rules []types.Rule) []RuleIssue {
	issues := []RuleIssue{}
	add := func(sev types.Severity, ruleID, format string, args ...any) {
		issues = append(issues, RuleIssue{Severity: sev, RuleID: ruleID, Message: fmt.Sprintf(format, args...)})
	}

	seen := map[string]bool{}
	for i, r := range rules {
		if r.ID == "" {
			add(types.SeverityError, "", "rule at index %d has no id", i)
		} else if seen[r.ID] {
			add(types.SeverityError, r.ID, "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true

		switch r.ConditionOperator {
		case "", types.ConditionAnd, types.ConditionOr:
		default:
			add(types.SeverityError, r.ID, "unknown condition operator %q, expected AND or OR", r.ConditionOperator)
		}

		for j, c := range r.Conditions {
			if c.Field == "" {
				add(types.SeverityWarning, r.ID, "condition %d has no field and never sees a value", j)
			}
			if !c.Operator.Known() {
				add(types.SeverityWarning, r.ID, "condition %d uses unknown operator %q and always passes", j, c.Operator)
			}
		}

		for j, a := range r.Actions {
			if !a.Type.Known() {
				add(types.SeverityWarning, r.ID, "action %d has unknown type %q", j, a.Type)
				continue
			}
			if a.TargetID == "" && a.Type != types.ActionNavigate {
				add(types.SeverityWarning, r.ID, "%s action %d has no target", a.Type, j)
			}
		}
	}
	return issues
}
