// internal/workflow/schema.go
package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/solatis/formflow/internal/types"
)

//go:embed workflow.schema.json
var workflowSchemaJSON []byte

const workflowSchemaID = "inmemory://formflow/workflow.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(workflowSchemaID, bytes.NewReader(workflowSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(workflowSchemaID)
})

// Decode checks a JSON workflow document against the workflow schema and
// unmarshals it. Schema violations wrap types.ErrInvalidWorkflow.
func Decode(data []byte) (*types.Workflow, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidWorkflow, err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidWorkflow, err)
	}

	var wf types.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidWorkflow, err)
	}
	return &wf, nil
}

// DecodeYAML reads the YAML authoring form of a workflow. The document is
// converted to JSON and goes through Decode, so both forms share one schema.
func DecodeYAML(data []byte) (*types.Workflow, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidWorkflow, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidWorkflow, err)
	}
	return Decode(raw)
}
