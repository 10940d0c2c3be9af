// internal/workflow/schema_test.go
package workflow

import (
	"errors"
	"testing"

	"github.com/solatis/formflow/internal/types"
)

const sampleJSON = `{
  "id": "wf-1",
  "name": "Sample",
  "enabled": true,
  "nodes": [
    {"id": "t", "type": "trigger", "position": {"x": 0, "y": 0}, "config": {"triggerType": "formSubmit"}},
    {"id": "c", "type": "condition", "config": {"conditionField": "score", "conditionOperator": "lessThan", "conditionValue": 3}},
    {"id": "x", "type": "somethingNew", "config": {"foo": "bar"}}
  ],
  "edges": [
    {"id": "e1", "sourceNodeId": "t", "sourcePort": "out", "targetNodeId": "c"},
    {"id": "e2", "sourceNodeId": "c", "sourcePort": "true", "targetNodeId": "x"}
  ]
}`

func TestDecode(t *testing.T) {
	wf, err := Decode([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if wf.ID != "wf-1" || !wf.Enabled || len(wf.Nodes) != 3 || len(wf.Edges) != 2 {
		t.Fatalf("Decode() = %+v, want the sample workflow", wf)
	}

	trig, ok := wf.Nodes[0].Config.(*types.TriggerConfig)
	if !ok || trig.TriggerType != types.TriggerFormSubmit {
		t.Errorf("Nodes[0].Config = %#v, want formSubmit TriggerConfig", wf.Nodes[0].Config)
	}
	cond, ok := wf.Nodes[1].Config.(*types.ConditionConfig)
	if !ok || cond.ConditionField != "score" || cond.ConditionOperator != types.OpLessThan || cond.ConditionValue != 3.0 {
		t.Errorf("Nodes[1].Config = %#v, want score lessThan 3", wf.Nodes[1].Config)
	}
	unknown, ok := wf.Nodes[2].Config.(types.UnknownConfig)
	if !ok || unknown["foo"] != "bar" {
		t.Errorf("Nodes[2].Config = %#v, want UnknownConfig", wf.Nodes[2].Config)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"node without id", `{"nodes": [{"type": "page"}]}`},
		{"bad port", `{"nodes": [], "edges": [{"sourceNodeId": "a", "sourcePort": "maybe", "targetNodeId": "b"}]}`},
		{"nodes not a list", `{"nodes": {}}`},
		{"config not an object", `{"nodes": [{"id": "a", "type": "page", "config": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			if !errors.Is(err, types.ErrInvalidWorkflow) {
				t.Errorf("Decode() error = %v, want ErrInvalidWorkflow", err)
			}
		})
	}
}

func TestDecodeYAML(t *testing.T) {
	doc := `
id: wf-yaml
name: From YAML
enabled: true
nodes:
  - id: t
    type: trigger
    config:
      triggerType: pageLoad
  - id: r
    type: redirect
    config:
      redirectUrl: /done?id={{id}}
      redirectNewTab: true
edges:
  - {id: e1, sourceNodeId: t, targetNodeId: r}
`
	wf, err := DecodeYAML([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v, want nil", err)
	}
	redirect, ok := wf.Nodes[1].Config.(*types.RedirectConfig)
	if !ok || redirect.RedirectURL != "/done?id={{id}}" || !redirect.RedirectNewTab {
		t.Errorf("Nodes[1].Config = %#v, want redirect config", wf.Nodes[1].Config)
	}
	if wf.Edges[0].Port() != types.PortOut {
		t.Errorf("Edges[0].Port() = %q, want out", wf.Edges[0].Port())
	}
}

func TestCatalog(t *testing.T) {
	templates, err := Templates()
	if err != nil {
		t.Fatalf("Templates() error = %v, want nil", err)
	}
	if len(templates) < 4 {
		t.Fatalf("len(Templates()) = %d, want at least 4", len(templates))
	}
	for _, tmpl := range templates {
		wf, err := Instantiate(tmpl.ID)
		if err != nil {
			t.Fatalf("Instantiate(%s) error = %v, want nil", tmpl.ID, err)
		}
		if wf.ID == "" || !wf.Enabled {
			t.Errorf("Instantiate(%s) = id %q enabled %v, want fresh enabled workflow", tmpl.ID, wf.ID, wf.Enabled)
		}
		res := Validate(wf)
		if !res.Valid {
			t.Errorf("template %s invalid: %+v", tmpl.ID, res.Issues)
		}
		for _, is := range res.Issues {
			t.Errorf("template %s has issue: %+v", tmpl.ID, is)
		}
	}

	if _, err := LookupTemplate("nope"); !errors.Is(err, types.ErrTemplateNotFound) {
		t.Errorf("LookupTemplate(nope) error = %v, want ErrTemplateNotFound", err)
	}
}

func TestInstantiate_FreshCopies(t *testing.T) {
	a, err := Instantiate("satisfaction-followup")
	if err != nil {
		t.Fatalf("Instantiate() error = %v, want nil", err)
	}
	b, err := Instantiate("satisfaction-followup")
	if err != nil {
		t.Fatalf("Instantiate() error = %v, want nil", err)
	}
	if a.ID == b.ID {
		t.Errorf("Instantiate() reused id %s", a.ID)
	}
	a.Nodes[0].Label = "changed"
	if b.Nodes[0].Label == "changed" {
		t.Errorf("Instantiate() copies share nodes")
	}
}
