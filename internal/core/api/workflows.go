package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/solatis/formflow/internal/core/db"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

// SaveWorkflow validates and stores wf. A missing id is generated. The
// workflow is stored even when validation reports errors, so drafts can be
// saved; callers decide whether to surface the issues.
func (s *EngineService) SaveWorkflow(ctx context.Context, wf *types.Workflow) (workflow.ValidationResult, error) {
	if wf == nil {
		return workflow.ValidationResult{}, fmt.Errorf("%w: empty workflow", types.ErrInvalidWorkflow)
	}
	if wf.ID == "" {
		wf.ID = types.NewWorkflowID()
	}
	result := workflow.Validate(wf)
	if err := s.store.SaveWorkflow(ctx, wf); err != nil {
		return result, err
	}
	s.l.InfoContext(ctx, fmt.Sprintf("Saved workflow: %s", wf.ID), "valid", result.Valid, "issues", len(result.Issues))
	return result, nil
}

// GetWorkflow loads a stored workflow.
func (s *EngineService) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// ListWorkflows returns every stored workflow.
func (s *EngineService) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	return s.store.ListWorkflows(ctx)
}

// DeleteWorkflow removes a stored workflow.
func (s *EngineService) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	s.l.InfoContext(ctx, fmt.Sprintf("Deleted workflow: %s", id))
	return nil
}

// ValidateWorkflow runs the structural checks without storing anything.
func (s *EngineService) ValidateWorkflow(wf *types.Workflow) workflow.ValidationResult {
	return workflow.Validate(wf)
}

// RunReport is one execution with its history id.
type RunReport struct {
	RunID  string                    `json:"runId"`
	Result *workflow.ExecutionResult `json:"result"`
}

// ExecuteWorkflow runs a stored workflow against values.
func (s *EngineService) ExecuteWorkflow(ctx context.Context, id string, values types.Values) (*RunReport, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, wf, values), nil
}

// ExecuteInline runs a workflow that is not stored.
func (s *EngineService) ExecuteInline(ctx context.Context, wf *types.Workflow, values types.Values) (*RunReport, error) {
	if wf == nil {
		return nil, fmt.Errorf("%w: empty workflow", types.ErrInvalidWorkflow)
	}
	return s.run(ctx, wf, values), nil
}

// DispatchEvent runs every stored workflow listening for the event, in
// storage order. Each run sees the same input values.
func (s *EngineService) DispatchEvent(ctx context.Context, trigger types.TriggerType, fieldID string, values types.Values) ([]RunReport, error) {
	matched, err := s.WorkflowsForEvent(ctx, trigger, fieldID)
	if err != nil {
		return nil, err
	}
	reports := make([]RunReport, 0, len(matched))
	for i := range matched {
		reports = append(reports, *s.run(ctx, &matched[i], values))
	}
	return reports, nil
}

// WorkflowsForEvent returns the stored workflows that run for an event.
func (s *EngineService) WorkflowsForEvent(ctx context.Context, trigger types.TriggerType, fieldID string) ([]types.Workflow, error) {
	wfs, err := s.store.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	matched := workflow.WorkflowsForEvent(wfs, trigger, fieldID)
	if matched == nil {
		matched = []types.Workflow{}
	}
	return matched, nil
}

// ListRuns returns recent runs of a workflow, newest first.
func (s *EngineService) ListRuns(ctx context.Context, workflowID string, limit int) ([]db.Run, error) {
	return s.store.ListRuns(ctx, workflowID, limit)
}

// run executes wf under the configured request timeout and records the run.
// Recording is best-effort: the result is returned even if history writes
// fail.
func (s *EngineService) run(ctx context.Context, wf *types.Workflow, values types.Values) *RunReport {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Engine.RequestTimeout)
	defer cancel()

	// the v7 run id carries the start time
	runID := types.NewRunID()
	started := types.RunIDTime(runID).UTC()
	result := s.executor.Execute(runCtx, wf, values)
	report := &RunReport{RunID: runID, Result: result}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.l.ErrorContext(ctx, fmt.Sprintf("Failed to encode run result: %s", report.RunID), "error", err)
		return report
	}
	run := &db.Run{
		RunID:      report.RunID,
		WorkflowID: wf.ID,
		Status:     result.Status(),
		NodeCount:  len(result.Results),
		StartedAt:  started,
		Duration:   s.now().Sub(started),
		Result:     encoded,
	}
	// ctx may already be done; history is still written
	if err := s.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		s.l.ErrorContext(ctx, fmt.Sprintf("Failed to record run: %s", run.RunID), "workflow", wf.ID, "error", err)
	}
	s.appendRunLog(run)
	return report
}

// appendRunLog writes run to the daily JSONL file. The file is a debugging
// aid; the store is authoritative, so failures are only logged.
func (s *EngineService) appendRunLog(run *db.Run) {
	filename := filepath.Join(runLogDir(s.cfg), run.StartedAt.Format("2006-01-02.jsonl"))
	mu := s.getJSONLMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.l.Warn(fmt.Sprintf("Failed to open run log: %s", filename), "error", err)
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(runLogEntry{
		RunID:      run.RunID,
		WorkflowID: run.WorkflowID,
		Status:     run.Status,
		StartedAt:  run.StartedAt.Format(time.RFC3339Nano),
		DurationMs: run.Duration.Milliseconds(),
		Result:     run.Result,
	}); err != nil {
		s.l.Warn(fmt.Sprintf("Failed to write run log: %s", filename), "error", err)
	}
}

type runLogEntry struct {
	RunID      string          `json:"runId"`
	WorkflowID string          `json:"workflowId"`
	Status     string          `json:"status"`
	StartedAt  string          `json:"startedAt"`
	DurationMs int64           `json:"durationMs"`
	Result     json.RawMessage `json:"result"`
}
