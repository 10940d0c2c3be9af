// internal/rules/engine.go
package rules

import (
	"fmt"

	"github.com/solatis/formflow/internal/core/metrics"
	"github.com/solatis/formflow/internal/types"
)

/*
 * Rule evaluation and debugging sessions.
 *
 * Per-rule state machine:
 *
 *   pending -> fired | skipped | breakpoint | error
 *
 *   - disabled rule: skipped, conditions untouched
 *   - trigger filter set and rule listens elsewhere: skipped
 *   - rule id in the breakpoint set: breakpoint, conditions still evaluated
 *     and the actions that would fire are recorded
 *   - conditions met: fired with actions, otherwise skipped
 *   - anything going wrong while evaluating: error, the session continues
 *   - a group operator other than AND/OR: error. The plain evaluator reads
 *     the same rule as AND; the debugger surfaces the authoring mistake
 *     instead of guessing
 *
 * Session runner: rules run in declaration order, which is the only priority.
 * A fired rule's setValue actions are folded into the working values before
 * the next rule runs, so later rules observe earlier rules' effects within
 * the same pass. The caller's values are never modified.
 */

// Status is the terminal state of one rule evaluation.
type Status string

const (
	StatusFired      Status = "fired"
	StatusSkipped    Status = "skipped"
	StatusBreakpoint Status = "breakpoint"
	StatusError      Status = "error"
)

// Skip reasons recorded on skipped evaluations.
const (
	ReasonDisabled        = "disabled"
	ReasonConditionsUnmet = "conditions not met"
	ReasonTriggerMismatch = "trigger mismatch"
)

// RuleEvaluation is the outcome of evaluating one rule.
type RuleEvaluation struct {
	RuleID          string           `json:"ruleId"`
	RuleName        string           `json:"ruleName"`
	Status          Status           `json:"status"`
	ConditionsMet   bool             `json:"conditionsMet"`
	ConditionTraces []ConditionTrace `json:"conditionTraces,omitempty"`
	Actions         []types.Action   `json:"actions,omitempty"`
	Error           string           `json:"error,omitempty"`
	Reason          string           `json:"reason,omitempty"`
}

// Active reports whether the evaluation's actions count toward the snapshot.
func (e RuleEvaluation) Active() bool {
	return e.Status == StatusFired || e.Status == StatusBreakpoint
}

// Engine evaluates rules. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	mode    EvalMode
	metrics metrics.EngineMetrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMode overrides the evaluation mode (default ModeDebugger).
func WithMode(mode EvalMode) EngineOption {
	return func(e *Engine) { e.mode = mode }
}

// WithMetrics records one counter increment per rule evaluation.
func WithMetrics(m metrics.EngineMetrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine creates a new rules engine instance.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{mode: ModeDebugger, metrics: metrics.Noop{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateRule runs the state machine for one rule against values.
func (e *Engine) EvaluateRule(rule types.Rule, values types.Values, breakpoints map[string]bool) RuleEvaluation {
	ev := e.evaluate(rule, values, breakpoints, nil)
	e.metrics.IncRuleEvaluated(string(ev.Status))
	return ev
}

func (e *Engine) evaluate(rule types.Rule, values types.Values, breakpoints map[string]bool, filter *SessionOptions) (ev RuleEvaluation) {
	ev = RuleEvaluation{RuleID: rule.ID, RuleName: rule.Name}

	defer func() {
		if r := recover(); r != nil {
			ev.Status = StatusError
			ev.ConditionsMet = false
			ev.Actions = nil
			ev.Error = fmt.Sprint(r)
		}
	}()

	if !rule.Enabled {
		ev.Status = StatusSkipped
		ev.Reason = ReasonDisabled
		return ev
	}
	if filter != nil && !filter.matchesTrigger(rule) {
		ev.Status = StatusSkipped
		ev.Reason = ReasonTriggerMismatch
		return ev
	}

	switch rule.ConditionOperator {
	case "", types.ConditionAnd, types.ConditionOr:
	default:
		ev.Status = StatusError
		ev.Error = fmt.Errorf("%w %q", types.ErrUnknownConditionOperator, rule.ConditionOperator).Error()
		return ev
	}

	traces, met := e.mode.trace(rule.Conditions, rule.ConditionOperator, values)
	ev.ConditionTraces = traces
	ev.ConditionsMet = met

	if met {
		ev.Actions = append([]types.Action(nil), rule.Actions...)
	}

	switch {
	case breakpoints[rule.ID]:
		ev.Status = StatusBreakpoint
	case met:
		ev.Status = StatusFired
	default:
		ev.Status = StatusSkipped
		ev.Reason = ReasonConditionsUnmet
	}
	return ev
}

// SessionOptions bounds and filters a debugging session.
type SessionOptions struct {
	// MaxSteps limits the number of rules evaluated (stop index + 1). Zero
	// evaluates every rule.
	MaxSteps int
	// Breakpoints holds rule ids that evaluate with breakpoint status.
	Breakpoints map[string]bool
	// PauseOnBreakpoint stops the session after the first breakpoint.
	PauseOnBreakpoint bool
	// Trigger, when set, skips rules listening for another trigger.
	Trigger types.Trigger
	// TriggerFieldID, when set with Trigger, skips rules bound to another field.
	TriggerFieldID string
}

func (o *SessionOptions) matchesTrigger(rule types.Rule) bool {
	if o.Trigger == "" {
		return true
	}
	if rule.Trigger != o.Trigger {
		return false
	}
	if o.TriggerFieldID != "" && rule.TriggerFieldID != "" && rule.TriggerFieldID != o.TriggerFieldID {
		return false
	}
	return true
}

// Session is the full output of one debugging pass.
type Session struct {
	Evaluations []RuleEvaluation `json:"evaluations"`
	Values      types.Values     `json:"values"`
	Snapshot    Snapshot         `json:"snapshot"`
	Conflicts   []Conflict       `json:"conflicts"`
	Coverage    int              `json:"coverage"`
	Paused      bool             `json:"paused"`
	NextIndex   int              `json:"nextIndex"`
}

// RunSession evaluates rules in declaration order against a working copy of
// values.
func (e *Engine) RunSession(rules []types.Rule, values types.Values, opts SessionOptions) *Session {
	working := values.Clone()
	limit := len(rules)
	if opts.MaxSteps > 0 && opts.MaxSteps < limit {
		limit = opts.MaxSteps
	}

	s := &Session{Evaluations: make([]RuleEvaluation, 0, limit)}
	for i := 0; i < limit; i++ {
		ev := e.evaluate(rules[i], working, opts.Breakpoints, &opts)
		e.metrics.IncRuleEvaluated(string(ev.Status))
		s.Evaluations = append(s.Evaluations, ev)
		s.NextIndex = i + 1

		if ev.Status == StatusFired {
			for _, a := range ev.Actions {
				if a.Type == types.ActionSetValue && a.TargetID != "" {
					working[a.TargetID] = a.Value
				}
			}
		}
		if ev.Status == StatusBreakpoint && opts.PauseOnBreakpoint {
			s.Paused = true
			break
		}
	}

	s.Values = working
	s.Snapshot = BuildSnapshot(s.Evaluations)
	s.Conflicts = DetectConflicts(s.Evaluations)
	s.Coverage = Coverage(s.Evaluations)
	return s
}
