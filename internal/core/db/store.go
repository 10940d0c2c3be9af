package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/formflow/internal/types"
)

/*
 * Persistence for workflow definitions, rule sets and run history.
 *
 * Definitions are stored as the JSON document of the in-memory model next to
 * a few indexed columns (id, name, enabled). The document is the source of
 * truth: reads decode it and ignore the columns.
 *
 * Timestamps are unix milliseconds so sqlite and postgres share one query
 * set.
 */

// Store is the formflow repository. Safe for concurrent use.
type Store struct {
	db  *sqlx.DB
	q   *Queries
	now func() time.Time
}

// NewStore wraps an open, migrated database.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, q: q, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type workflowRow struct {
	ID          string `db:"workflow_id"`
	Name        string `db:"name"`
	Enabled     bool   `db:"enabled"`
	Definition  string `db:"definition"`
	CreatedAtMs int64  `db:"created_at_ms"`
	UpdatedAtMs int64  `db:"updated_at_ms"`
}

func (r workflowRow) decode() (*types.Workflow, error) {
	var wf types.Workflow
	if err := json.Unmarshal([]byte(r.Definition), &wf); err != nil {
		return nil, fmt.Errorf("workflow %s: corrupt definition: %w", r.ID, err)
	}
	return &wf, nil
}

// SaveWorkflow inserts or replaces wf. The creation time of an existing row
// is kept.
func (s *Store) SaveWorkflow(ctx context.Context, wf *types.Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("save workflow: %w", types.ErrMissingID)
	}
	def, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", wf.ID, err)
	}
	now := s.now().UnixMilli()
	if _, err := s.q.Exec(ctx, "upsert-workflow", wf.ID, wf.Name, wf.Enabled, string(def), now, now); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", wf.ID, err)
	}
	return nil
}

// GetWorkflow loads a workflow by id.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var row workflowRow
	if err := s.q.Get(ctx, "get-workflow", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}
	return row.decode()
}

// ListWorkflows returns every stored workflow in creation order.
func (s *Store) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	var rows []workflowRow
	if err := s.q.Select(ctx, "list-workflows", &rows); err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	out := make([]types.Workflow, 0, len(rows))
	for _, r := range rows {
		wf, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, *wf)
	}
	return out, nil
}

// DeleteWorkflow removes a workflow. Run history is kept.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.q.Exec(ctx, "delete-workflow", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrWorkflowNotFound, id)
	}
	return nil
}

type ruleSetRow struct {
	ID          string `db:"rule_set_id"`
	Name        string `db:"name"`
	Definition  string `db:"definition"`
	CreatedAtMs int64  `db:"created_at_ms"`
	UpdatedAtMs int64  `db:"updated_at_ms"`
}

// SaveRuleSet inserts or replaces a rule set.
func (s *Store) SaveRuleSet(ctx context.Context, rs *types.RuleSet) error {
	if rs.ID == "" {
		return fmt.Errorf("save rule set: %w", types.ErrMissingID)
	}
	def, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to encode rule set %s: %w", rs.ID, err)
	}
	now := s.now().UnixMilli()
	if _, err := s.q.Exec(ctx, "upsert-rule-set", rs.ID, rs.Name, string(def), now, now); err != nil {
		return fmt.Errorf("failed to save rule set %s: %w", rs.ID, err)
	}
	return nil
}

// GetRuleSet loads a rule set by id.
func (s *Store) GetRuleSet(ctx context.Context, id string) (*types.RuleSet, error) {
	var row ruleSetRow
	if err := s.q.Get(ctx, "get-rule-set", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrRuleSetNotFound, id)
		}
		return nil, fmt.Errorf("failed to load rule set %s: %w", id, err)
	}
	var rs types.RuleSet
	if err := json.Unmarshal([]byte(row.Definition), &rs); err != nil {
		return nil, fmt.Errorf("rule set %s: corrupt definition: %w", id, err)
	}
	return &rs, nil
}

// Run is one recorded workflow execution.
type Run struct {
	RunID      string          `json:"runId"`
	WorkflowID string          `json:"workflowId"`
	Status     string          `json:"status"`
	NodeCount  int             `json:"nodeCount"`
	StartedAt  time.Time       `json:"startedAt"`
	Duration   time.Duration   `json:"durationNs"`
	Result     json.RawMessage `json:"result"`
}

type runRow struct {
	RunID       string `db:"run_id"`
	WorkflowID  string `db:"workflow_id"`
	Status      string `db:"status"`
	NodeCount   int    `db:"node_count"`
	StartedAtMs int64  `db:"started_at_ms"`
	DurationMs  int64  `db:"duration_ms"`
	Result      string `db:"result"`
}

// RecordRun appends a run to the history.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		return fmt.Errorf("record run: %w", types.ErrMissingID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = types.RunIDTime(run.RunID)
	}
	result := string(run.Result)
	if result == "" {
		result = "null"
	}
	_, err := s.q.Exec(ctx, "insert-run",
		run.RunID, run.WorkflowID, run.Status, run.NodeCount,
		run.StartedAt.UnixMilli(), run.Duration.Milliseconds(), result)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs of a workflow, newest first. A
// non-positive limit defaults to 50.
func (s *Store) ListRuns(ctx context.Context, workflowID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	if err := s.q.Select(ctx, "list-runs", &rows, workflowID, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs of %s: %w", workflowID, err)
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, Run{
			RunID:      r.RunID,
			WorkflowID: r.WorkflowID,
			Status:     r.Status,
			NodeCount:  r.NodeCount,
			StartedAt:  time.UnixMilli(r.StartedAtMs).UTC(),
			Duration:   time.Duration(r.DurationMs) * time.Millisecond,
			Result:     json.RawMessage(r.Result),
		})
	}
	return runs, nil
}
