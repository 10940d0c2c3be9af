// Package api provides the formflow engine service shared by the gRPC
// server, the HTTP gateway and the CLI.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/formflow/internal/core/config"
	"github.com/solatis/formflow/internal/core/db"
	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

// Store is the persistence the service needs. *db.Store implements it.
type Store interface {
	SaveWorkflow(ctx context.Context, wf *types.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)
	ListWorkflows(ctx context.Context) ([]types.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	SaveRuleSet(ctx context.Context, rs *types.RuleSet) error
	GetRuleSet(ctx context.Context, id string) (*types.RuleSet, error)
	RecordRun(ctx context.Context, run *db.Run) error
	ListRuns(ctx context.Context, workflowID string, limit int) ([]db.Run, error)
}

var _ Store = (*db.Store)(nil)

// EngineService orchestrates the store, the workflow executor and the rules
// engine. Engine semantics live in the workflow and rules packages; this
// layer adds persistence, deadlines and run history.
type EngineService struct {
	l        *slog.Logger
	store    Store
	executor *workflow.Executor
	engine   *rules.Engine
	cfg      *config.Config
	now      func() time.Time

	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// NewEngineService creates the service. The run log directory under
// data_dir is created if missing.
func NewEngineService(store Store, executor *workflow.Executor, engine *rules.Engine, cfg *config.Config, l *slog.Logger) (*EngineService, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("rules engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if l == nil {
		l = slog.Default()
	}

	if err := os.MkdirAll(runLogDir(cfg), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	return &EngineService{
		l:            l,
		store:        store,
		executor:     executor,
		engine:       engine,
		cfg:          cfg,
		now:          time.Now,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// Ping reports whether the store is reachable when it supports pinging.
func (s *EngineService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func runLogDir(cfg *config.Config) string {
	return filepath.Join(cfg.Engine.DataDir, "runs")
}

// getJSONLMutex returns the mutex guarding one daily run log file.
func (s *EngineService) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}
