// internal/types/rules.go
package types

import "encoding/json"

/*
 * Domain types for declarative form rules.
 *
 * A Rule is authored once in the form builder and read-only during
 * evaluation: a trigger, a condition group joined by AND/OR, and a list of
 * actions. Actions are descriptors only; the engine folds them into a
 * snapshot and the host applies it.
 *
 * Key types:
 *   - Condition: field operator value, the atomic predicate
 *   - Rule: trigger + condition group + actions
 *   - Action: show/hide/enable/disable/require/setValue/navigate on a target
 */

// Operator names an atomic comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIsEmpty     Operator = "isEmpty"
	OpIsNotEmpty  Operator = "isNotEmpty"
)

// Known reports whether op is one of the eight supported operators.
func (op Operator) Known() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// Numeric reports whether op compares operands as numbers.
func (op Operator) Numeric() bool {
	return op == OpGreaterThan || op == OpLessThan
}

// Condition is a single predicate: field operator value.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// UnmarshalJSON accepts both "field" and the older "fieldId" key.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string   `json:"field"`
		FieldID  string   `json:"fieldId"`
		Operator Operator `json:"operator"`
		Value    any      `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Field = raw.Field
	if c.Field == "" {
		c.Field = raw.FieldID
	}
	c.Operator = raw.Operator
	c.Value = raw.Value
	return nil
}

// Trigger names the form event that makes a rule eligible.
type Trigger string

const (
	TriggerOnChange   Trigger = "onChange"
	TriggerOnBlur     Trigger = "onBlur"
	TriggerOnFocus    Trigger = "onFocus"
	TriggerOnSubmit   Trigger = "onSubmit"
	TriggerOnPageLoad Trigger = "onPageLoad"
)

// ConditionOperator joins a rule's condition group.
type ConditionOperator string

const (
	ConditionAnd ConditionOperator = "AND"
	ConditionOr  ConditionOperator = "OR"
)

// ActionType names the effect an action describes.
type ActionType string

const (
	ActionShow     ActionType = "show"
	ActionHide     ActionType = "hide"
	ActionEnable   ActionType = "enable"
	ActionDisable  ActionType = "disable"
	ActionRequire  ActionType = "require"
	ActionSetValue ActionType = "setValue"
	ActionNavigate ActionType = "navigate"
)

// Known reports whether t is one of the supported action types.
func (t ActionType) Known() bool {
	switch t {
	case ActionShow, ActionHide, ActionEnable, ActionDisable,
		ActionRequire, ActionSetValue, ActionNavigate:
		return true
	}
	return false
}

// Action is a side-effect descriptor. The engine never applies it.
type Action struct {
	Type     ActionType `json:"type"`
	TargetID string     `json:"targetId"`
	Value    any        `json:"value,omitempty"`
}

// Rule is a declarative trigger/condition/action triple.
type Rule struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Enabled           bool              `json:"enabled"`
	Trigger           Trigger           `json:"trigger"`
	TriggerFieldID    string            `json:"triggerFieldId,omitempty"`
	Conditions        []Condition       `json:"conditions"`
	ConditionOperator ConditionOperator `json:"conditionOperator"`
	Actions           []Action          `json:"actions"`
}

// RuleSet groups the rules of one form for storage.
type RuleSet struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}
