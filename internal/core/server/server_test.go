package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solatis/formflow/internal/core/api"
	"github.com/solatis/formflow/internal/core/config"
	"github.com/solatis/formflow/internal/core/db"
	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

func newTestService(t *testing.T) (*api.EngineService, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	conn, err := db.Open("sqlite://" + filepath.Join(dir, "formflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(conn))
	store, err := db.NewStore(conn)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Engine.DataDir = filepath.Join(dir, "data")
	cfg.Engine.RequestTimeout = 2 * time.Second

	svc, err := api.NewEngineService(store, workflow.NewExecutor(nil), rules.NewEngine(), cfg, nil)
	require.NoError(t, err)
	return svc, cfg
}

const greetingWorkflow = `{
  "id": "greet",
  "name": "Greeting",
  "enabled": true,
  "nodes": [
    {"id": "t", "type": "trigger", "config": {"triggerType": "pageLoad"}},
    {"id": "c", "type": "condition", "config": {"conditionField": "plan", "conditionOperator": "equals", "conditionValue": "pro"}},
    {"id": "d", "type": "showDialog", "config": {"dialogTitle": "Welcome {{name}}", "dialogMessage": "Thanks for upgrading"}},
    {"id": "r", "type": "redirect", "config": {"redirectUrl": "/upgrade?u={{name}}"}}
  ],
  "edges": [
    {"id": "e1", "sourceNodeId": "t", "targetNodeId": "c"},
    {"id": "e2", "sourceNodeId": "c", "sourcePort": "true", "targetNodeId": "d"},
    {"id": "e3", "sourceNodeId": "c", "sourcePort": "false", "targetNodeId": "r"}
  ]
}`

var visibilityRules = []types.Rule{
	{
		ID: "r1", Name: "Show B", Enabled: true, Trigger: types.TriggerOnChange,
		Conditions: []types.Condition{{Field: "A", Operator: types.OpEquals, Value: "yes"}},
		Actions:    []types.Action{{Type: types.ActionShow, TargetID: "B"}},
	},
	{
		ID: "r2", Name: "Require C", Enabled: true, Trigger: types.TriggerOnChange,
		Conditions: []types.Condition{{Field: "age", Operator: types.OpGreaterThan, Value: 17}},
		Actions:    []types.Action{{Type: types.ActionRequire, TargetID: "C"}},
	},
}
