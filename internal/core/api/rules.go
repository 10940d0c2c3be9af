package api

import (
	"context"
	"fmt"

	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

// SaveRuleSet checks and stores a rule set. Like workflows, rule sets with
// issues are still stored.
func (s *EngineService) SaveRuleSet(ctx context.Context, rs *types.RuleSet) ([]rules.RuleIssue, error) {
	if rs == nil || rs.ID == "" {
		return nil, fmt.Errorf("save rule set: %w", types.ErrMissingID)
	}
	issues := rules.ValidateRules(rs.Rules)
	if err := s.store.SaveRuleSet(ctx, rs); err != nil {
		return issues, err
	}
	s.l.InfoContext(ctx, fmt.Sprintf("Saved rule set: %s", rs.ID), "rules", len(rs.Rules), "issues", len(issues))
	return issues, nil
}

// GetRuleSet loads a stored rule set.
func (s *EngineService) GetRuleSet(ctx context.Context, id string) (*types.RuleSet, error) {
	return s.store.GetRuleSet(ctx, id)
}

// DebugRequest selects the rules to debug and the session options. Rules
// given inline take precedence over RuleSetID.
type DebugRequest struct {
	RuleSetID         string        `json:"ruleSetId,omitempty"`
	Rules             []types.Rule  `json:"rules,omitempty"`
	Values            types.Values  `json:"values"`
	MaxSteps          int           `json:"maxSteps,omitempty"`
	Breakpoints       []string      `json:"breakpoints,omitempty"`
	PauseOnBreakpoint bool          `json:"pauseOnBreakpoint,omitempty"`
	Trigger           types.Trigger `json:"trigger,omitempty"`
	TriggerFieldID    string        `json:"triggerFieldId,omitempty"`
}

// DebugRules runs a debugging session.
func (s *EngineService) DebugRules(ctx context.Context, req DebugRequest) (*rules.Session, error) {
	rs, err := s.resolveRules(ctx, req.RuleSetID, req.Rules)
	if err != nil {
		return nil, err
	}
	breakpoints := make(map[string]bool, len(req.Breakpoints))
	for _, id := range req.Breakpoints {
		breakpoints[id] = true
	}
	session := s.engine.RunSession(rs, req.Values, rules.SessionOptions{
		MaxSteps:          req.MaxSteps,
		Breakpoints:       breakpoints,
		PauseOnBreakpoint: req.PauseOnBreakpoint,
		Trigger:           req.Trigger,
		TriggerFieldID:    req.TriggerFieldID,
	})
	s.l.DebugContext(ctx, "Rule debug session finished", "rules", len(rs), "evaluated", len(session.Evaluations), "conflicts", len(session.Conflicts))
	return session, nil
}

// EdgeCases generates probe value sets for a stored or inline rule list.
func (s *EngineService) EdgeCases(ctx context.Context, ruleSetID string, inline []types.Rule) ([]rules.EdgeCase, error) {
	rs, err := s.resolveRules(ctx, ruleSetID, inline)
	if err != nil {
		return nil, err
	}
	return rules.GenerateEdgeCases(rs), nil
}

func (s *EngineService) resolveRules(ctx context.Context, ruleSetID string, inline []types.Rule) ([]types.Rule, error) {
	if len(inline) > 0 || ruleSetID == "" {
		return inline, nil
	}
	rs, err := s.store.GetRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	return rs.Rules, nil
}

// Templates lists the built-in workflow templates.
func (s *EngineService) Templates() ([]workflow.Template, error) {
	return workflow.Templates()
}

// InstantiateTemplate creates a workflow from a template and stores it.
func (s *EngineService) InstantiateTemplate(ctx context.Context, templateID string) (*types.Workflow, error) {
	wf, err := workflow.Instantiate(templateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}
