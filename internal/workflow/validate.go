// internal/workflow/validate.go
package workflow

import (
	"fmt"

	"github.com/solatis/formflow/internal/types"
)

/*
 * Static workflow checks.
 *
 * Checks run in a fixed order and accumulate; only an empty workflow returns
 * early. A workflow is valid iff no issue has error severity.
 *
 *   1. no nodes                                      warning, stop
 *   2. no trigger / several triggers                 warning
 *   3. trigger without type, fieldChange w/o field   error
 *   4. node touched by no edge (more than one node)  warning
 *   5. callApi/fetchOptions without api url          error
 *   6. fetchOptions without target field             error
 *   7. condition without field                       error
 *      condition without true/false edge             warning
 *   8. redirect without url                          error
 *   9. cycle over all edges, any port                error
 *  10. edge naming a node that does not exist        warning
 */

// Issue is one validator finding. NodeID is empty for workflow-level issues.
type Issue struct {
	Severity types.Severity `json:"severity"`
	NodeID   string         `json:"nodeId,omitempty"`
	Message  string         `json:"message"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

type validator struct {
	wf     *types.Workflow
	issues []Issue
}

func (v *validator) add(sev types.Severity, nodeID, format string, args ...any) {
	v.issues = append(v.issues, Issue{Severity: sev, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

// Validate runs the static checks over wf.
func Validate(wf *types.Workflow) ValidationResult {
	v := &validator{wf: wf, issues: []Issue{}}
	if wf == nil || len(wf.Nodes) == 0 {
		v.add(types.SeverityWarning, "", "Workflow has no nodes")
		return ValidationResult{Valid: true, Issues: v.issues}
	}

	v.checkTriggers()
	v.checkConnectivity()
	for i := range wf.Nodes {
		v.checkNodeConfig(&wf.Nodes[i])
	}
	if hasCycle(wf) {
		v.add(types.SeverityError, "", "Workflow contains a cycle")
	}
	v.checkDanglingEdges()

	valid := true
	for _, is := range v.issues {
		if is.Severity == types.SeverityError {
			valid = false
			break
		}
	}
	return ValidationResult{Valid: valid, Issues: v.issues}
}

func (v *validator) checkTriggers() {
	triggers := v.wf.TriggerNodes()
	switch {
	case len(triggers) == 0:
		v.add(types.SeverityWarning, "", "Workflow has no trigger node and won't fire automatically")
	case len(triggers) > 1:
		v.add(types.SeverityWarning, "", "Workflow has %d trigger nodes; only the first will be used", len(triggers))
	}

	for _, n := range triggers {
		cfg, _ := n.Config.(*types.TriggerConfig)
		if cfg == nil || cfg.TriggerType == "" {
			v.add(types.SeverityError, n.ID, "Trigger %q has no trigger type", n.DisplayName())
			continue
		}
		if cfg.TriggerType == types.TriggerFieldChange && cfg.TriggerFieldID == "" {
			v.add(types.SeverityError, n.ID, "Field change trigger %q has no field selected", n.DisplayName())
		}
	}
}

func (v *validator) checkConnectivity() {
	if len(v.wf.Nodes) <= 1 {
		return
	}
	touched := make(map[string]bool, len(v.wf.Nodes))
	for _, e := range v.wf.Edges {
		touched[e.SourceNodeID] = true
		touched[e.TargetNodeID] = true
	}
	for _, n := range v.wf.Nodes {
		if !touched[n.ID] {
			v.add(types.SeverityWarning, n.ID, "Node %q is not connected to any other node", n.DisplayName())
		}
	}
}

func (v *validator) checkNodeConfig(n *types.Node) {
	switch n.Type {
	case types.NodeCallAPI:
		cfg, _ := n.Config.(*types.CallAPIConfig)
		if cfg == nil || cfg.API == nil || cfg.API.URL == "" {
			v.add(types.SeverityError, n.ID, "API node %q has no URL", n.DisplayName())
		}

	case types.NodeFetchOptions:
		cfg, _ := n.Config.(*types.FetchOptionsConfig)
		if cfg == nil || cfg.API == nil || cfg.API.URL == "" {
			v.add(types.SeverityError, n.ID, "Fetch options node %q has no URL", n.DisplayName())
		}
		if cfg == nil || cfg.TargetFieldID == "" {
			v.add(types.SeverityError, n.ID, "Fetch options node %q has no target field", n.DisplayName())
		}

	case types.NodeCondition:
		cfg, _ := n.Config.(*types.ConditionConfig)
		if cfg == nil || cfg.ConditionField == "" {
			v.add(types.SeverityError, n.ID, "Condition node %q has no field to check", n.DisplayName())
		}
		if len(v.wf.OutgoingEdges(n.ID, types.PortTrue)) == 0 && len(v.wf.OutgoingEdges(n.ID, types.PortFalse)) == 0 {
			v.add(types.SeverityWarning, n.ID, "Condition node %q has no outgoing branches", n.DisplayName())
		}

	case types.NodeRedirect:
		cfg, _ := n.Config.(*types.RedirectConfig)
		if cfg == nil || cfg.RedirectURL == "" {
			v.add(types.SeverityError, n.ID, "Redirect node %q has no URL", n.DisplayName())
		}
	}
}

func (v *validator) checkDanglingEdges() {
	for _, e := range v.wf.Edges {
		if _, ok := v.wf.Node(e.SourceNodeID); !ok {
			v.add(types.SeverityWarning, "", "Edge %q starts at unknown node %q", e.ID, e.SourceNodeID)
		}
		if _, ok := v.wf.Node(e.TargetNodeID); !ok {
			v.add(types.SeverityWarning, "", "Edge %q ends at unknown node %q", e.ID, e.TargetNodeID)
		}
	}
}

const (
	white = iota
	gray
	black
)

// hasCycle runs a three-color DFS over every edge regardless of port and
// stops at the first back edge.
func hasCycle(wf *types.Workflow) bool {
	adj := make(map[string][]string, len(wf.Nodes))
	for _, e := range wf.Edges {
		adj[e.SourceNodeID] = append(adj[e.SourceNodeID], e.TargetNodeID)
	}
	color := make(map[string]int, len(wf.Nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, n := range wf.Nodes {
		if color[n.ID] == white && visit(n.ID) {
			return true
		}
	}
	return false
}
