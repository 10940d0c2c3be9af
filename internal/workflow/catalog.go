// internal/workflow/catalog.go
package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/solatis/formflow/internal/types"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is a read-only starter workflow.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Workflow    json.RawMessage `json:"workflow"`
}

var catalog = sync.OnceValues(func() ([]Template, error) {
	var doc any
	if err := yaml.Unmarshal(templatesYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert templates: %w", err)
	}
	var templates []Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for _, t := range templates {
		if _, err := Decode(t.Workflow); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	return templates, nil
})

// Templates returns the catalog in declaration order.
func Templates() ([]Template, error) {
	templates, err := catalog()
	if err != nil {
		return nil, err
	}
	return append([]Template(nil), templates...), nil
}

// LookupTemplate returns the template with the given id.
func LookupTemplate(id string) (Template, error) {
	templates, err := catalog()
	if err != nil {
		return Template{}, err
	}
	for _, t := range templates {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", types.ErrTemplateNotFound, id)
}

// Instantiate returns a fresh, enabled copy of a template's workflow with a
// new id.
func Instantiate(id string) (*types.Workflow, error) {
	t, err := LookupTemplate(id)
	if err != nil {
		return nil, err
	}
	wf, err := Decode(t.Workflow)
	if err != nil {
		return nil, err
	}
	wf.ID = types.NewWorkflowID()
	wf.Enabled = true
	if wf.Name == "" {
		wf.Name = t.Name
	}
	return wf, nil
}
