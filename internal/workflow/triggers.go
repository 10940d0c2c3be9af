// internal/workflow/triggers.go
package workflow

import (
	"github.com/solatis/formflow/internal/types"
)

/*
 * Trigger classification over a workflow list.
 *
 * Read-only queries the host uses to decide which workflows to run for a
 * form event. Only enabled workflows are returned.
 *
 * Workflows authored before trigger nodes existed have no trigger node at
 * all. For those:
 *   - a fetchOptions node marks the workflow as page-load
 *   - watched fields are inferred from conditionField, targetFieldId and
 *     {{placeholders}} in API URLs and body templates
 * A workflow with any trigger node never falls back.
 */

// PageLoadWorkflows returns enabled workflows that run when the form loads.
func PageLoadWorkflows(wfs []types.Workflow) []types.Workflow {
	var out []types.Workflow
	for _, wf := range wfs {
		if !wf.Enabled {
			continue
		}
		if hasTrigger(&wf, types.TriggerPageLoad, "") || (len(wf.TriggerNodes()) == 0 && hasNodeType(&wf, types.NodeFetchOptions)) {
			out = append(out, wf)
		}
	}
	return out
}

// FormSubmitWorkflows returns enabled workflows that run on form submit.
func FormSubmitWorkflows(wfs []types.Workflow) []types.Workflow {
	var out []types.Workflow
	for _, wf := range wfs {
		if wf.Enabled && hasTrigger(&wf, types.TriggerFormSubmit, "") {
			out = append(out, wf)
		}
	}
	return out
}

// FieldChangeWorkflows returns enabled workflows that run when fieldID
// changes.
func FieldChangeWorkflows(wfs []types.Workflow, fieldID string) []types.Workflow {
	var out []types.Workflow
	for _, wf := range wfs {
		if !wf.Enabled {
			continue
		}
		for _, f := range WatchedFields(&wf) {
			if f == fieldID {
				out = append(out, wf)
				break
			}
		}
	}
	return out
}

// WorkflowsForEvent dispatches to the classification for trigger.
func WorkflowsForEvent(wfs []types.Workflow, trigger types.TriggerType, fieldID string) []types.Workflow {
	switch trigger {
	case types.TriggerPageLoad:
		return PageLoadWorkflows(wfs)
	case types.TriggerFormSubmit:
		return FormSubmitWorkflows(wfs)
	case types.TriggerFieldChange:
		return FieldChangeWorkflows(wfs, fieldID)
	default:
		return nil
	}
}

// WatchedFields returns the field ids whose changes start wf, in order of
// first appearance.
func WatchedFields(wf *types.Workflow) []string {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	triggers := wf.TriggerNodes()
	if len(triggers) > 0 {
		for _, n := range triggers {
			if cfg, ok := n.Config.(*types.TriggerConfig); ok && cfg.TriggerType == types.TriggerFieldChange {
				add(cfg.TriggerFieldID)
			}
		}
		return out
	}

	addAPI := func(api *types.APIConfig) {
		if api == nil {
			return
		}
		for _, f := range Placeholders(api.URL) {
			add(f)
		}
		for _, f := range Placeholders(api.BodyTemplate) {
			add(f)
		}
	}
	for _, n := range wf.Nodes {
		switch cfg := n.Config.(type) {
		case *types.ConditionConfig:
			add(cfg.ConditionField)
		case *types.FetchOptionsConfig:
			add(cfg.TargetFieldID)
			addAPI(cfg.API)
		case *types.CallAPIConfig:
			addAPI(cfg.API)
		}
	}
	return out
}

func hasTrigger(wf *types.Workflow, tt types.TriggerType, fieldID string) bool {
	for _, n := range wf.TriggerNodes() {
		cfg, ok := n.Config.(*types.TriggerConfig)
		if !ok || cfg.TriggerType != tt {
			continue
		}
		if fieldID == "" || cfg.TriggerFieldID == fieldID {
			return true
		}
	}
	return false
}

func hasNodeType(wf *types.Workflow, nt types.NodeType) bool {
	for _, n := range wf.Nodes {
		if n.Type == nt {
			return true
		}
	}
	return false
}
