// internal/rules/snapshot.go
package rules

import (
	"math"

	"github.com/solatis/formflow/internal/types"
)

/*
 * Snapshot folding, conflict detection and coverage.
 *
 * All three read the evaluations of a session in order and consider only
 * fired and breakpoint evaluations. They are diagnostic: conflicts never
 * change the snapshot, and the snapshot is last-writer-wins per target.
 */

// Snapshot is the aggregated effect of active rule actions, ready for the
// host form runtime to apply.
type Snapshot struct {
	Visibility    map[string]bool `json:"visibility"`
	RequiredState map[string]bool `json:"requiredState"`
	EnabledState  map[string]bool `json:"enabledState"`
	SetValues     map[string]any  `json:"setValues"`
}

// BuildSnapshot folds actions of active evaluations into the four maps.
// navigate actions carry no state and are left to the host.
func BuildSnapshot(evals []RuleEvaluation) Snapshot {
	snap := Snapshot{
		Visibility:    map[string]bool{},
		RequiredState: map[string]bool{},
		EnabledState:  map[string]bool{},
		SetValues:     map[string]any{},
	}
	for _, ev := range evals {
		if !ev.Active() {
			continue
		}
		for _, a := range ev.Actions {
			switch a.Type {
			case types.ActionShow:
				snap.Visibility[a.TargetID] = true
			case types.ActionHide:
				snap.Visibility[a.TargetID] = false
			case types.ActionRequire:
				snap.RequiredState[a.TargetID] = true
			case types.ActionEnable:
				snap.EnabledState[a.TargetID] = true
			case types.ActionDisable:
				snap.EnabledState[a.TargetID] = false
			case types.ActionSetValue:
				snap.SetValues[a.TargetID] = a.Value
			}
		}
	}
	return snap
}

// contradictions lists the action type pairs that cannot both apply to one
// target.
var contradictions = [][2]types.ActionType{
	{types.ActionShow, types.ActionHide},
	{types.ActionEnable, types.ActionDisable},
	{types.ActionRequire, types.ActionDisable},
}

func contradicts(a, b types.ActionType) bool {
	for _, pair := range contradictions {
		if (a == pair[0] && b == pair[1]) || (a == pair[1] && b == pair[0]) {
			return true
		}
	}
	return false
}

// Conflict reports two rules with contradicting actions on one target.
type Conflict struct {
	TargetID  string              `json:"targetId"`
	RuleIDs   [2]string           `json:"ruleIds"`
	RuleNames [2]string           `json:"ruleNames"`
	Actions   [2]types.ActionType `json:"actions"`
}

type targetAction struct {
	ruleID   string
	ruleName string
	action   types.ActionType
}

// DetectConflicts returns contradicting action pairs between different
// rules. Targets are reported in order of first appearance, pairs in
// evaluation order.
func DetectConflicts(evals []RuleEvaluation) []Conflict {
	var order []string
	byTarget := map[string][]targetAction{}
	for _, ev := range evals {
		if !ev.Active() {
			continue
		}
		for _, a := range ev.Actions {
			if _, seen := byTarget[a.TargetID]; !seen {
				order = append(order, a.TargetID)
			}
			byTarget[a.TargetID] = append(byTarget[a.TargetID], targetAction{
				ruleID:   ev.RuleID,
				ruleName: ev.RuleName,
				action:   a.Type,
			})
		}
	}

	conflicts := []Conflict{}
	for _, target := range order {
		entries := byTarget[target]
		reported := map[[4]string]bool{}
		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				a, b := entries[i], entries[j]
				if a.ruleID == b.ruleID || !contradicts(a.action, b.action) {
					continue
				}
				key := [4]string{a.ruleID, b.ruleID, string(a.action), string(b.action)}
				if reported[key] {
					continue
				}
				reported[key] = true
				conflicts = append(conflicts, Conflict{
					TargetID:  target,
					RuleIDs:   [2]string{a.ruleID, b.ruleID},
					RuleNames: [2]string{a.ruleName, b.ruleName},
					Actions:   [2]types.ActionType{a.action, b.action},
				})
			}
		}
	}
	return conflicts
}

// Coverage returns the rounded percentage of fired evaluations.
func Coverage(evals []RuleEvaluation) int {
	if len(evals) == 0 {
		return 0
	}
	fired := 0
	for _, ev := range evals {
		if ev.Status == StatusFired {
			fired++
		}
	}
	return int(math.Round(float64(fired) * 100 / float64(len(evals))))
}
