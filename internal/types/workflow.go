// internal/types/workflow.go
package types

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

/*
 * Workflow graph model.
 *
 * A Workflow is a directed graph of typed nodes joined by edges leaving
 * named ports. Node configuration is a tagged union keyed by the node type:
 * each NodeType decodes into exactly one *Config struct carrying only the
 * fields that type understands. Types this package does not know decode into
 * UnknownConfig and execute as no-ops.
 *
 * Decoding: the authoring format keeps config as a free-form object, so
 * Node.UnmarshalJSON reads it as a map and hands it to mapstructure with the
 * variant struct as target (json tags, weakly typed input for hand-edited
 * documents).
 */

// NodeType discriminates Node.Config.
type NodeType string

const (
	NodeTrigger      NodeType = "trigger"
	NodePage         NodeType = "page"
	NodeCallAPI      NodeType = "callApi"
	NodeSetData      NodeType = "setData"
	NodeFetchOptions NodeType = "fetchOptions"
	NodeShowDialog   NodeType = "showDialog"
	NodeRedirect     NodeType = "redirect"
	NodeCondition    NodeType = "condition"
)

// Port names an edge origin on its source node.
type Port string

const (
	PortOut   Port = "out"
	PortTrue  Port = "true"
	PortFalse Port = "false"
)

// TriggerType is the workflow event class a trigger node listens for.
type TriggerType string

const (
	TriggerPageLoad    TriggerType = "pageLoad"
	TriggerFormSubmit  TriggerType = "formSubmit"
	TriggerFieldChange TriggerType = "fieldChange"
)

// NodeConfig is implemented by every per-type configuration struct.
type NodeConfig interface {
	nodeConfig()
}

// APIConfig describes a call made through the injected caller.
type APIConfig struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"bodyTemplate,omitempty"`
}

// DataMapping copies the value at From in the last API response to field To.
type DataMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type TriggerConfig struct {
	TriggerType    TriggerType `json:"triggerType,omitempty"`
	TriggerFieldID string      `json:"triggerFieldId,omitempty"`
}

type PageConfig struct {
	PageID string `json:"pageId,omitempty"`
}

type CallAPIConfig struct {
	API *APIConfig `json:"api,omitempty"`
}

type FetchOptionsConfig struct {
	API           *APIConfig `json:"api,omitempty"`
	ResponsePath  string     `json:"responsePath,omitempty"`
	LabelKey      string     `json:"labelKey,omitempty"`
	ValueKey      string     `json:"valueKey,omitempty"`
	TargetFieldID string     `json:"targetFieldId,omitempty"`
}

type SetDataConfig struct {
	DataMapping []DataMapping `json:"dataMapping,omitempty"`
}

type ShowDialogConfig struct {
	DialogTitle   string `json:"dialogTitle,omitempty"`
	DialogMessage string `json:"dialogMessage,omitempty"`
	DialogType    string `json:"dialogType,omitempty"`
}

type RedirectConfig struct {
	RedirectURL    string `json:"redirectUrl,omitempty"`
	RedirectNewTab bool   `json:"redirectNewTab,omitempty"`
}

type ConditionConfig struct {
	ConditionField    string   `json:"conditionField,omitempty"`
	ConditionOperator Operator `json:"conditionOperator,omitempty"`
	ConditionValue    any      `json:"conditionValue,omitempty"`
}

// UnknownConfig preserves the config of node types this version does not
// execute, so documents round-trip unchanged.
type UnknownConfig map[string]any

func (*TriggerConfig) nodeConfig()      {}
func (*PageConfig) nodeConfig()         {}
func (*CallAPIConfig) nodeConfig()      {}
func (*FetchOptionsConfig) nodeConfig() {}
func (*SetDataConfig) nodeConfig()      {}
func (*ShowDialogConfig) nodeConfig()   {}
func (*RedirectConfig) nodeConfig()     {}
func (*ConditionConfig) nodeConfig()    {}
func (UnknownConfig) nodeConfig()       {}

// Position is canvas placement. Execution ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one vertex of the workflow graph.
type Node struct {
	ID       string     `json:"id"`
	Type     NodeType   `json:"type"`
	Label    string     `json:"label,omitempty"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

// DisplayName returns the label, falling back to the id.
func (n *Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// UnmarshalJSON decodes config into the variant selected by type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string         `json:"id"`
		Type     NodeType       `json:"type"`
		Label    string         `json:"label"`
		Position Position       `json:"position"`
		Config   map[string]any `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeNodeConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	n.ID = raw.ID
	n.Type = raw.Type
	n.Label = raw.Label
	n.Position = raw.Position
	n.Config = cfg
	return nil
}

// DecodeNodeConfig converts a free-form config object into the typed
// configuration for nodeType. A nil raw map yields the zero variant.
func DecodeNodeConfig(nodeType NodeType, raw map[string]any) (NodeConfig, error) {
	var target NodeConfig
	switch nodeType {
	case NodeTrigger:
		target = &TriggerConfig{}
	case NodePage:
		target = &PageConfig{}
	case NodeCallAPI:
		target = &CallAPIConfig{}
	case NodeFetchOptions:
		target = &FetchOptionsConfig{}
	case NodeSetData:
		target = &SetDataConfig{}
	case NodeShowDialog:
		target = &ShowDialogConfig{}
	case NodeRedirect:
		target = &RedirectConfig{}
	case NodeCondition:
		target = &ConditionConfig{}
	default:
		unknown := UnknownConfig{}
		for k, v := range raw {
			unknown[k] = v
		}
		return unknown, nil
	}

	if len(raw) == 0 {
		return target, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s config: %w", nodeType, err)
	}
	return target, nil
}

// Edge joins a source node port to a target node.
type Edge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	SourcePort   Port   `json:"sourcePort,omitempty"`
	TargetNodeID string `json:"targetNodeId"`
}

// Port returns the source port, reading an empty port as "out".
func (e Edge) Port() Port {
	if e.SourcePort == "" {
		return PortOut
	}
	return e.SourcePort
}

// Workflow is a named, independently enabled graph.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// TriggerNodes returns trigger nodes in declaration order.
func (w *Workflow) TriggerNodes() []*Node {
	var out []*Node
	for i := range w.Nodes {
		if w.Nodes[i].Type == NodeTrigger {
			out = append(out, &w.Nodes[i])
		}
	}
	return out
}

// OutgoingEdges returns edges leaving nodeID on port, in declaration order.
func (w *Workflow) OutgoingEdges(nodeID string, port Port) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.SourceNodeID == nodeID && e.Port() == port {
			out = append(out, e)
		}
	}
	return out
}
