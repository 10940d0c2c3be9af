// internal/workflow/executor.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/formflow/internal/core/metrics"
	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
)

/*
 * Workflow execution.
 *
 * A run starts from every node without incoming edges and walks the graph
 * depth-first. Each node executes at most once per run: the visited set is
 * the only loop guard, so a cyclic graph produces a truncated run rather than
 * a hang. Siblings run one at a time in edge declaration order, which makes
 * results ordering and last-writer-wins aggregation deterministic.
 *
 * Per-run state lives in runState and is never shared between calls:
 *   - visited node ids
 *   - the last API response (single slot feeding a following setData)
 *   - the result accumulators
 *
 * Failure: an error inside a node's effect is recorded on that node's result
 * and ends that branch only; the rest of the run continues. Execute never
 * returns an error.
 *
 * Cancellation: ctx is handed to the API caller. If ctx is done before a node
 * starts, traversal stops and the result is marked Canceled. A node already
 * running is not interrupted by the executor.
 */

// ErrNoCaller is recorded on API nodes when the executor has no caller.
var ErrNoCaller = errors.New("no API caller configured")

// APICaller performs the network I/O requested by callApi and fetchOptions
// nodes. Implementations own transport, auth and retry policy.
type APICaller interface {
	Call(ctx context.Context, api types.APIConfig, values types.Values) (any, error)
}

// APICallerFunc adapts a function to APICaller.
type APICallerFunc func(ctx context.Context, api types.APIConfig, values types.Values) (any, error)

func (f APICallerFunc) Call(ctx context.Context, api types.APIConfig, values types.Values) (any, error) {
	return f(ctx, api, values)
}

// NodeStatus is the outcome of one node's effect.
type NodeStatus string

const (
	NodeSuccess NodeStatus = "success"
	NodeError   NodeStatus = "error"
)

// NodeResult records one executed node.
type NodeResult struct {
	NodeID   string         `json:"nodeId"`
	NodeType types.NodeType `json:"nodeType"`
	Status   NodeStatus     `json:"status"`
	Data     any            `json:"data,omitempty"`
	Branch   types.Port     `json:"branch,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Dialog is the dialog requested by a showDialog node.
type Dialog struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// ExecutionResult is the sole observable output of a run.
type ExecutionResult struct {
	WorkflowID     string              `json:"workflowId"`
	Results        []NodeResult        `json:"results"`
	FieldUpdates   map[string]any      `json:"fieldUpdates"`
	OptionUpdates  map[string][]Option `json:"optionUpdates"`
	RedirectURL    string              `json:"redirectUrl,omitempty"`
	RedirectNewTab bool                `json:"redirectNewTab,omitempty"`
	Dialog         *Dialog             `json:"dialog,omitempty"`
	Canceled       bool                `json:"canceled,omitempty"`
}

// Failed reports whether any node ended in error.
func (r *ExecutionResult) Failed() bool {
	for _, nr := range r.Results {
		if nr.Status == NodeError {
			return true
		}
	}
	return false
}

// Status summarizes the run as success, error or canceled.
func (r *ExecutionResult) Status() string {
	switch {
	case r.Canceled:
		return "canceled"
	case r.Failed():
		return "error"
	default:
		return "success"
	}
}

func newResult(workflowID string) *ExecutionResult {
	return &ExecutionResult{
		WorkflowID:    workflowID,
		Results:       []NodeResult{},
		FieldUpdates:  map[string]any{},
		OptionUpdates: map[string][]Option{},
	}
}

// Executor runs workflows. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	l       *slog.Logger
	caller  APICaller
	metrics metrics.EngineMetrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for run and node diagnostics.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.l = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.EngineMetrics) ExecutorOption {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewExecutor creates an executor delegating network I/O to caller.
func NewExecutor(caller APICaller, opts ...ExecutorOption) *Executor {
	e := &Executor{
		l:       slog.New(slog.DiscardHandler),
		caller:  caller,
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState is the per-run context threaded through node execution.
type runState struct {
	values       types.Values
	visited      map[string]bool
	lastResponse any
	hasResponse  bool
	result       *ExecutionResult
}

// Execute runs wf against values. A disabled workflow returns an empty result
// without invoking the caller.
func (e *Executor) Execute(ctx context.Context, wf *types.Workflow, values types.Values) *ExecutionResult {
	if wf == nil {
		return newResult("")
	}
	result := newResult(wf.ID)
	if !wf.Enabled {
		return result
	}

	start := time.Now()
	e.metrics.IncWorkflowStarted(wf.ID)
	e.l.InfoContext(ctx, fmt.Sprintf("Executing workflow: %s", wf.ID), "nodes", len(wf.Nodes), "edges", len(wf.Edges))

	state := &runState{
		values:  values,
		visited: make(map[string]bool, len(wf.Nodes)),
		result:  result,
	}

	starts := startNodes(wf)
	stack := make([]string, 0, len(wf.Nodes))
	for i := len(starts) - 1; i >= 0; i-- {
		stack = append(stack, starts[i])
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if state.visited[id] {
			continue
		}
		node, ok := wf.Node(id)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			result.Canceled = true
			e.l.InfoContext(ctx, fmt.Sprintf("Workflow canceled before node: %s", id), "error", ctx.Err())
			break
		}
		state.visited[id] = true

		nr := e.executeNode(ctx, state, node)
		result.Results = append(result.Results, nr)
		e.metrics.IncNodeExecuted(string(node.Type), string(nr.Status))
		if nr.Status == NodeError {
			e.l.ErrorContext(ctx, fmt.Sprintf("Node failed: %s", node.ID), "type", node.Type, "error", nr.Error)
			continue
		}

		port := types.PortOut
		if node.Type == types.NodeCondition {
			port = nr.Branch
		}
		next := wf.OutgoingEdges(node.ID, port)
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i].TargetNodeID)
		}
	}

	status := result.Status()
	e.metrics.IncWorkflowCompleted(wf.ID, status)
	e.metrics.ObserveWorkflowDuration(wf.ID, time.Since(start).Seconds())
	e.l.InfoContext(ctx, fmt.Sprintf("Workflow finished: %s", wf.ID), "status", status, "executed", len(result.Results))
	return result
}

// startNodes returns nodes with no incoming edge, in declaration order. Edge
// ports do not matter.
func startNodes(wf *types.Workflow) []string {
	incoming := make(map[string]bool, len(wf.Edges))
	for _, edge := range wf.Edges {
		incoming[edge.TargetNodeID] = true
	}
	var out []string
	for _, n := range wf.Nodes {
		if !incoming[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

func (e *Executor) executeNode(ctx context.Context, state *runState, node *types.Node) (nr NodeResult) {
	nr = NodeResult{NodeID: node.ID, NodeType: node.Type, Status: NodeSuccess}
	defer func() {
		if r := recover(); r != nil {
			nr.Status = NodeError
			nr.Data = nil
			nr.Error = fmt.Sprint(r)
		}
	}()

	data, branch, err := e.effect(ctx, state, node)
	if err != nil {
		nr.Status = NodeError
		nr.Error = err.Error()
		return nr
	}
	nr.Data = data
	nr.Branch = branch
	return nr
}

// effect performs the node-specific work. The returned port is only set for
// condition nodes.
func (e *Executor) effect(ctx context.Context, state *runState, node *types.Node) (any, types.Port, error) {
	result := state.result

	switch cfg := node.Config.(type) {
	case *types.CallAPIConfig:
		if cfg.API == nil {
			return nil, "", nil
		}
		resp, err := e.call(ctx, *cfg.API, state.values)
		if err != nil {
			return nil, "", err
		}
		state.lastResponse, state.hasResponse = resp, true
		return resp, "", nil

	case *types.FetchOptionsConfig:
		if cfg.API == nil {
			return nil, "", nil
		}
		resp, err := e.call(ctx, *cfg.API, state.values)
		if err != nil {
			return nil, "", err
		}
		state.lastResponse, state.hasResponse = resp, true
		options := ExtractOptions(resp, cfg)
		if cfg.TargetFieldID != "" {
			result.OptionUpdates[cfg.TargetFieldID] = options
		}
		return options, "", nil

	case *types.SetDataConfig:
		if len(cfg.DataMapping) == 0 || !state.hasResponse || state.lastResponse == nil {
			return nil, "", nil
		}
		applied := map[string]any{}
		for _, m := range cfg.DataMapping {
			if m.To == "" {
				continue
			}
			v, ok := ExtractPath(state.lastResponse, m.From)
			if !ok {
				continue
			}
			result.FieldUpdates[m.To] = v
			applied[m.To] = v
		}
		return applied, "", nil

	case *types.ShowDialogConfig:
		dialog := &Dialog{
			Title:   Interpolate(cfg.DialogTitle, state.values),
			Message: Interpolate(cfg.DialogMessage, state.values),
			Type:    cfg.DialogType,
		}
		result.Dialog = dialog
		return dialog, "", nil

	case *types.RedirectConfig:
		url := Interpolate(cfg.RedirectURL, state.values)
		result.RedirectURL = url
		result.RedirectNewTab = cfg.RedirectNewTab
		return url, "", nil

	case *types.ConditionConfig:
		op := cfg.ConditionOperator
		if op == "" {
			op = types.OpEquals
		}
		cond := types.Condition{Field: cfg.ConditionField, Operator: op, Value: cfg.ConditionValue}
		if rules.ModeWorkflow.Evaluate(cond, state.values) {
			return true, types.PortTrue, nil
		}
		return false, types.PortFalse, nil

	default:
		// trigger, page and unknown node types pass through
		if node.Type == types.NodeCondition {
			return false, types.PortFalse, nil
		}
		return nil, "", nil
	}
}

func (e *Executor) call(ctx context.Context, api types.APIConfig, values types.Values) (any, error) {
	if e.caller == nil {
		return nil, ErrNoCaller
	}
	return e.caller.Call(ctx, api, values)
}
