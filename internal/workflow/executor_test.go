// internal/workflow/executor_test.go
package workflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/formflow/internal/types"
)

func node(id string, nt types.NodeType, cfg types.NodeConfig) types.Node {
	return types.Node{ID: id, Type: nt, Label: id, Config: cfg}
}

func edge(from string, port types.Port, to string) types.Edge {
	return types.Edge{ID: from + "-" + to, SourceNodeID: from, SourcePort: port, TargetNodeID: to}
}

func trigger(id string) types.Node {
	return node(id, types.NodeTrigger, &types.TriggerConfig{TriggerType: types.TriggerFormSubmit})
}

func page(id string) types.Node {
	return node(id, types.NodePage, &types.PageConfig{PageID: id})
}

// stubCaller returns canned responses keyed by URL and counts calls.
type stubCaller struct {
	responses map[string]any
	errs      map[string]error
	calls     atomic.Int32
}

func (s *stubCaller) Call(_ context.Context, api types.APIConfig, _ types.Values) (any, error) {
	s.calls.Add(1)
	if err, ok := s.errs[api.URL]; ok {
		return nil, err
	}
	return s.responses[api.URL], nil
}

func visitedIDs(res *ExecutionResult) []string {
	ids := make([]string, 0, len(res.Results))
	for _, r := range res.Results {
		ids = append(ids, r.NodeID)
	}
	return ids
}

func TestExecute_DisabledWorkflow(t *testing.T) {
	caller := &stubCaller{}
	wf := &types.Workflow{
		ID:      "wf",
		Enabled: false,
		Nodes: []types.Node{
			trigger("t"),
			node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/x"}}),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "api")},
	}

	res := NewExecutor(caller).Execute(context.Background(), wf, types.Values{})
	if len(res.Results) != 0 {
		t.Errorf("len(Results) = %d, want 0", len(res.Results))
	}
	if caller.calls.Load() != 0 {
		t.Errorf("caller invoked %d times, want 0", caller.calls.Load())
	}
	if res.WorkflowID != "wf" {
		t.Errorf("WorkflowID = %q, want wf", res.WorkflowID)
	}
}

func TestExecute_EmptyWorkflow(t *testing.T) {
	res := NewExecutor(nil).Execute(context.Background(), &types.Workflow{ID: "wf", Enabled: true}, nil)
	if len(res.Results) != 0 || len(res.FieldUpdates) != 0 {
		t.Errorf("empty workflow produced %+v", res)
	}
}

func TestExecute_DepthFirstOrder(t *testing.T) {
	// t -> a -> c, t -> b, a -> b: b is reached through a before t's second edge
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{trigger("t"), page("a"), page("b"), page("c"), page("lonely")},
		Edges: []types.Edge{
			edge("t", types.PortOut, "a"),
			edge("t", types.PortOut, "b"),
			edge("a", types.PortOut, "c"),
			edge("a", types.PortOut, "b"),
		},
	}

	res := NewExecutor(nil).Execute(context.Background(), wf, nil)
	want := []string{"t", "a", "c", "b", "lonely"}
	if got := visitedIDs(res); !reflect.DeepEqual(got, want) {
		t.Errorf("visit order = %v, want %v", got, want)
	}
}

func TestExecute_FetchOptionsScenario(t *testing.T) {
	caller := &stubCaller{responses: map[string]any{
		"/api/states": map[string]any{
			"data": []any{map[string]any{"name": "California", "code": "CA"}},
		},
	}}
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("fetch", types.NodeFetchOptions, &types.FetchOptionsConfig{
				API:           &types.APIConfig{URL: "/api/states"},
				ResponsePath:  "data",
				LabelKey:      "name",
				ValueKey:      "code",
				TargetFieldID: "state",
			}),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "fetch")},
	}

	res := NewExecutor(caller).Execute(context.Background(), wf, types.Values{})
	want := []Option{{Label: "California", Value: "CA"}}
	if got := res.OptionUpdates["state"]; !reflect.DeepEqual(got, want) {
		t.Errorf("OptionUpdates[state] = %v, want %v", got, want)
	}
}

func TestExecute_CallAPIErrorEndsBranch(t *testing.T) {
	caller := &stubCaller{
		errs: map[string]error{"/api/profile": errors.New("Network Error")},
	}
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/api/profile"}}),
			node("set", types.NodeSetData, &types.SetDataConfig{DataMapping: []types.DataMapping{{From: "name", To: "fullName"}}}),
			node("dialog", types.NodeShowDialog, &types.ShowDialogConfig{DialogTitle: "Hi"}),
		},
		Edges: []types.Edge{
			edge("t", types.PortOut, "api"),
			edge("api", types.PortOut, "set"),
			edge("t", types.PortOut, "dialog"),
		},
	}

	res := NewExecutor(caller).Execute(context.Background(), wf, types.Values{})
	if got, want := visitedIDs(res), []string{"t", "api", "dialog"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("visit order = %v, want %v", got, want)
	}
	apiResult := res.Results[1]
	if apiResult.Status != NodeError {
		t.Errorf("api Status = %v, want error", apiResult.Status)
	}
	if !strings.Contains(apiResult.Error, "Network Error") {
		t.Errorf("api Error = %q, want it to contain Network Error", apiResult.Error)
	}
	if len(res.FieldUpdates) != 0 {
		t.Errorf("FieldUpdates = %v, want none", res.FieldUpdates)
	}
	if res.Dialog == nil || res.Dialog.Title != "Hi" {
		t.Errorf("Dialog = %+v, want sibling branch to run", res.Dialog)
	}
	if res.Status() != "error" {
		t.Errorf("Status() = %q, want error", res.Status())
	}
}

func TestExecute_SetDataChainsLastResponse(t *testing.T) {
	caller := &stubCaller{responses: map[string]any{
		"/api/profile": map[string]any{
			"data": map[string]any{
				"name":   "Ada",
				"emails": []any{"ada@example.com"},
			},
		},
	}}
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/api/profile"}}),
			node("set", types.NodeSetData, &types.SetDataConfig{DataMapping: []types.DataMapping{
				{From: "data.name", To: "fullName"},
				{From: "data.emails[0]", To: "email"},
				{From: "data.missing", To: "ignored"},
			}}),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "api"), edge("api", types.PortOut, "set")},
	}

	res := NewExecutor(caller).Execute(context.Background(), wf, types.Values{})
	want := map[string]any{"fullName": "Ada", "email": "ada@example.com"}
	if !reflect.DeepEqual(res.FieldUpdates, want) {
		t.Errorf("FieldUpdates = %v, want %v", res.FieldUpdates, want)
	}
}

func TestExecute_SetDataWithoutResponseIsNoop(t *testing.T) {
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("set", types.NodeSetData, &types.SetDataConfig{DataMapping: []types.DataMapping{{From: "a", To: "b"}}}),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "set")},
	}

	res := NewExecutor(nil).Execute(context.Background(), wf, types.Values{})
	if len(res.FieldUpdates) != 0 {
		t.Errorf("FieldUpdates = %v, want none", res.FieldUpdates)
	}
	if res.Results[1].Status != NodeSuccess {
		t.Errorf("set Status = %v, want success", res.Results[1].Status)
	}
}

func TestExecute_RedirectAndDialogInterpolation(t *testing.T) {
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("dialog", types.NodeShowDialog, &types.ShowDialogConfig{
				DialogTitle:   "Hello {{name}}",
				DialogMessage: "Missing: [{{nope}}]",
				DialogType:    "info",
			}),
			node("redirect", types.NodeRedirect, &types.RedirectConfig{
				RedirectURL:    "/checkout/retry?email={{customerEmail}}",
				RedirectNewTab: true,
			}),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "dialog"), edge("dialog", types.PortOut, "redirect")},
	}

	values := types.Values{"customerEmail": "a@b.com", "name": "Ada"}
	res := NewExecutor(nil).Execute(context.Background(), wf, values)
	if res.RedirectURL != "/checkout/retry?email=a@b.com" {
		t.Errorf("RedirectURL = %q, want /checkout/retry?email=a@b.com", res.RedirectURL)
	}
	if !res.RedirectNewTab {
		t.Errorf("RedirectNewTab = false, want true")
	}
	want := &Dialog{Title: "Hello Ada", Message: "Missing: []", Type: "info"}
	if !reflect.DeepEqual(res.Dialog, want) {
		t.Errorf("Dialog = %+v, want %+v", res.Dialog, want)
	}
}

func TestExecute_DialogUsesInputValuesNotUpdates(t *testing.T) {
	caller := &stubCaller{responses: map[string]any{"/p": map[string]any{"name": "Updated"}}}
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/p"}}),
			node("set", types.NodeSetData, &types.SetDataConfig{DataMapping: []types.DataMapping{{From: "name", To: "name"}}}),
			node("dialog", types.NodeShowDialog, &types.ShowDialogConfig{DialogTitle: "{{name}}"}),
		},
		Edges: []types.Edge{
			edge("t", types.PortOut, "api"),
			edge("api", types.PortOut, "set"),
			edge("set", types.PortOut, "dialog"),
		},
	}

	res := NewExecutor(caller).Execute(context.Background(), wf, types.Values{"name": "Original"})
	if res.FieldUpdates["name"] != "Updated" {
		t.Errorf("FieldUpdates[name] = %v, want Updated", res.FieldUpdates["name"])
	}
	if res.Dialog.Title != "Original" {
		t.Errorf("Dialog.Title = %q, want Original", res.Dialog.Title)
	}
}

func conditionWorkflow() *types.Workflow {
	return &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("check", types.NodeCondition, &types.ConditionConfig{
				ConditionField:    "overallSatisfaction",
				ConditionOperator: types.OpLessThan,
				ConditionValue:    3.0,
			}),
			page("yes"),
			page("no"),
			page("out"),
		},
		Edges: []types.Edge{
			edge("t", types.PortOut, "check"),
			edge("check", types.PortTrue, "yes"),
			edge("check", types.PortFalse, "no"),
			edge("check", types.PortOut, "out"),
		},
	}
}

func TestExecute_ConditionBranches(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		branch types.Port
		want   []string
	}{
		{"true branch", 2.0, types.PortTrue, []string{"t", "check", "yes"}},
		{"false branch", 4.0, types.PortFalse, []string{"t", "check", "no"}},
		{"string value coerces", "1", types.PortTrue, []string{"t", "check", "yes"}},
		{"missing value is NaN", nil, types.PortFalse, []string{"t", "check", "no"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := types.Values{}
			if tt.value != nil {
				values["overallSatisfaction"] = tt.value
			}
			res := NewExecutor(nil).Execute(context.Background(), conditionWorkflow(), values)
			if got := visitedIDs(res); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("visit order = %v, want %v", got, tt.want)
			}
			if res.Results[1].Branch != tt.branch {
				t.Errorf("Branch = %q, want %q", res.Results[1].Branch, tt.branch)
			}
		})
	}

	t.Run("missing config takes false branch", func(t *testing.T) {
		wf := conditionWorkflow()
		wf.Nodes[1].Config = nil
		res := NewExecutor(nil).Execute(context.Background(), wf, types.Values{"overallSatisfaction": 2.0})
		if got, want := visitedIDs(res), []string{"t", "check", "no"}; !reflect.DeepEqual(got, want) {
			t.Errorf("visit order = %v, want %v", got, want)
		}
		if res.Results[1].Status != NodeSuccess || res.Results[1].Branch != types.PortFalse {
			t.Errorf("check result = %+v, want success on false branch", res.Results[1])
		}
	})
}

func TestExecute_CycleTerminates(t *testing.T) {
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{trigger("t"), page("A"), page("B")},
		Edges: []types.Edge{
			edge("t", types.PortOut, "A"),
			edge("A", types.PortOut, "B"),
			edge("B", types.PortOut, "A"),
		},
	}

	res := NewExecutor(nil).Execute(context.Background(), wf, nil)
	if got, want := visitedIDs(res), []string{"t", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("visit order = %v, want %v", got, want)
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	caller := APICallerFunc(func(context.Context, types.APIConfig, types.Values) (any, error) {
		cancel()
		return map[string]any{}, nil
	})
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/x"}}),
			page("after"),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "api"), edge("api", types.PortOut, "after")},
	}

	res := NewExecutor(caller).Execute(ctx, wf, nil)
	if !res.Canceled {
		t.Errorf("Canceled = false, want true")
	}
	if got, want := visitedIDs(res), []string{"t", "api"}; !reflect.DeepEqual(got, want) {
		t.Errorf("visit order = %v, want %v", got, want)
	}
	if res.Status() != "canceled" {
		t.Errorf("Status() = %q, want canceled", res.Status())
	}
}

func TestExecute_NoCallerIsNodeError(t *testing.T) {
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/x"}})},
	}
	res := NewExecutor(nil).Execute(context.Background(), wf, nil)
	if res.Results[0].Status != NodeError || !strings.Contains(res.Results[0].Error, ErrNoCaller.Error()) {
		t.Errorf("Results[0] = %+v, want no-caller error", res.Results[0])
	}
}

func TestExecute_UnknownNodeTypePassesThrough(t *testing.T) {
	wf := &types.Workflow{
		ID: "wf", Enabled: true,
		Nodes: []types.Node{
			trigger("t"),
			node("future", "sendEmail", types.UnknownConfig{"to": "x"}),
			page("p"),
		},
		Edges: []types.Edge{edge("t", types.PortOut, "future"), edge("future", "", "p")},
	}
	res := NewExecutor(nil).Execute(context.Background(), wf, nil)
	if got, want := visitedIDs(res), []string{"t", "future", "p"}; !reflect.DeepEqual(got, want) {
		t.Errorf("visit order = %v, want %v", got, want)
	}
}

// Property-based test: exactly one branch of a condition node runs.
func TestExecute_PropertyBranchExclusivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	exec := NewExecutor(nil)

	properties.Property("one of yes/no executes, never both", prop.ForAll(
		func(score int) bool {
			res := exec.Execute(context.Background(), conditionWorkflow(), types.Values{"overallSatisfaction": float64(score)})
			yes, no := false, false
			for _, r := range res.Results {
				yes = yes || r.NodeID == "yes"
				no = no || r.NodeID == "no"
			}
			return yes != no && yes == (score < 3)
		},
		gen.IntRange(-10, 10),
	))

	properties.TestingRun(t)
}

// Property-based test: repeated runs produce identical results.
func TestExecute_PropertyIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("same inputs give the same result", prop.ForAll(
		func(name string, score int) bool {
			caller := &stubCaller{responses: map[string]any{
				"/api/profile": map[string]any{"data": map[string]any{"name": name}},
			}}
			wf := conditionWorkflow()
			wf.Nodes = append(wf.Nodes,
				node("api", types.NodeCallAPI, &types.CallAPIConfig{API: &types.APIConfig{URL: "/api/profile"}}),
				node("set", types.NodeSetData, &types.SetDataConfig{DataMapping: []types.DataMapping{{From: "data.name", To: "fullName"}}}),
			)
			wf.Edges = append(wf.Edges, edge("yes", types.PortOut, "api"), edge("api", types.PortOut, "set"))

			exec := NewExecutor(caller)
			values := types.Values{"overallSatisfaction": float64(score)}
			first := exec.Execute(context.Background(), wf, values)
			second := exec.Execute(context.Background(), wf, values)
			return reflect.DeepEqual(first, second)
		},
		gen.AlphaString(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// Property-based test: rings of any size terminate with every node run once.
func TestExecute_PropertyCycleSafety(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("ring workflows visit each node once", prop.ForAll(
		func(size int) bool {
			wf := &types.Workflow{ID: "ring", Enabled: true, Nodes: []types.Node{trigger("t")}}
			ids := make([]string, size)
			for i := range ids {
				ids[i] = string(rune('a' + i))
				wf.Nodes = append(wf.Nodes, page(ids[i]))
			}
			wf.Edges = append(wf.Edges, edge("t", types.PortOut, ids[0]))
			for i := range ids {
				wf.Edges = append(wf.Edges, edge(ids[i], types.PortOut, ids[(i+1)%size]))
			}
			res := NewExecutor(nil).Execute(context.Background(), wf, nil)
			return len(res.Results) == size+1 && hasCycle(wf)
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
