package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/solatis/formflow/internal/core/api"
	"github.com/solatis/formflow/internal/core/caller"
	"github.com/solatis/formflow/internal/core/config"
	"github.com/solatis/formflow/internal/core/db"
	"github.com/solatis/formflow/internal/core/metrics"
	"github.com/solatis/formflow/internal/core/server"
	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC engine service and HTTP gateway",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC server port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP gateway port")
	serveCmd.Flags().String("data-dir", "./data", "directory for run logs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	l, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, map[string]string{
		"engine.host":      "host",
		"engine.grpc_port": "grpc-port",
		"engine.http_port": "http-port",
		"engine.data_dir":  "data-dir",
	})
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'formflow migrate up' first", s.ID)
		}
	}

	store, err := db.NewStore(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	service, err := newEngineService(cfg, store, l)
	if err != nil {
		return err
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, l)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	httpServer, err := server.NewHTTPServer(cfg, service, prometheus.DefaultGatherer, l)
	if err != nil {
		return fmt.Errorf("failed to create HTTP gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l.InfoContext(ctx, fmt.Sprintf("Starting formflow v%s", Version), "grpc", cfg.GRPCAddr(), "http", cfg.HTTPAddr())
	errChan := make(chan error, 2)
	go func() { errChan <- grpcServer.Start(ctx) }()
	go func() { errChan <- httpServer.Start(ctx) }()

	select {
	case err := <-errChan:
		stop()
		shutdown(l, grpcServer, httpServer)
		return err
	case <-ctx.Done():
		l.Info("Shutting down gracefully...")
		return shutdown(l, grpcServer, httpServer)
	}
}

// newEngineService wires caller, metrics, executor and rules engine.
func newEngineService(cfg *config.Config, store api.Store, l *slog.Logger) (*api.EngineService, error) {
	httpCaller, err := caller.New(cfg.Caller, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create API caller: %w", err)
	}

	var m metrics.EngineMetrics = metrics.Noop{}
	if cfg.Engine.MetricsEnabled {
		m = metrics.NewProm("formflow", prometheus.DefaultRegisterer)
	}

	executor := workflow.NewExecutor(httpCaller, workflow.WithLogger(l), workflow.WithMetrics(m))
	engine := rules.NewEngine(rules.WithMetrics(m))

	service, err := api.NewEngineService(store, executor, engine, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return service, nil
}

func shutdown(l *slog.Logger, grpcServer *server.GRPCServer, httpServer *server.HTTPServer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if err := httpServer.Shutdown(ctx); err != nil {
		l.Error("HTTP gateway shutdown failed", "error", err)
		firstErr = err
	}
	if err := grpcServer.Shutdown(ctx); err != nil {
		l.Error("gRPC server shutdown failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
