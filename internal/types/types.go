// Package types provides domain models shared across formflow components.
//
// The rule model (Rule, Condition, Action) and the workflow graph model
// (Workflow, Node, Edge) are wire-format agnostic: JSON tags follow the
// authoring format produced by the form builder, and the gRPC/HTTP layers
// convert at their own boundary.
package types

// Values is the Value Snapshot: field identifier -> current field value.
// Owned by the host form runtime. The engine reads it and proposes updates
// but never mutates a caller's map in place.
type Values map[string]any

// Clone returns a shallow copy safe for per-pass mutation.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Lookup returns the value for field and whether the field is present.
func (v Values) Lookup(field string) (any, bool) {
	if v == nil {
		return nil, false
	}
	val, ok := v[field]
	return val, ok
}
