package types

import "errors"

// Sentinel errors for formflow operations.
var (
	// ErrWorkflowNotFound indicates no workflow is stored under the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRuleSetNotFound indicates no rule set is stored under the given id.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrTemplateNotFound indicates an unknown catalog template id.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrInvalidWorkflow indicates a workflow document failed schema checks.
	ErrInvalidWorkflow = errors.New("invalid workflow document")

	// ErrMissingID indicates an entity without an identifier.
	ErrMissingID = errors.New("id required")

	// ErrUnknownConditionOperator indicates a condition group joined by
	// something other than AND/OR.
	ErrUnknownConditionOperator = errors.New("unknown condition operator")
)
