// Package server exposes the engine service over gRPC and HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/formflow/internal/core/api"
	"github.com/solatis/formflow/internal/core/config"
	"github.com/solatis/formflow/internal/types"
	"github.com/solatis/formflow/internal/workflow"
)

/*
 * gRPC surface.
 *
 * The engine's documents (workflows, rules, value maps, results) are free-form
 * JSON, so every method takes and returns a google.protobuf.Struct holding the
 * same JSON the HTTP gateway accepts. The service descriptor is declared
 * here instead of generated:
 *
 *   formflow.v1.Engine/ExecuteWorkflow    {workflowId | workflow, values}
 *   formflow.v1.Engine/DispatchEvent      {trigger, fieldId, values}
 *   formflow.v1.Engine/ValidateWorkflow   {workflow}
 *   formflow.v1.Engine/DebugRules         DebugRequest
 *   formflow.v1.Engine/GenerateEdgeCases  {ruleSetId | rules}
 *   formflow.v1.Engine/ListTemplates      {}
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "formflow.v1.Engine"

// EngineServer is the handler set behind ServiceName.
type EngineServer interface {
	ExecuteWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DispatchEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DebugRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateEdgeCases(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTemplates(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(EngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(EngineServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// EngineServiceDesc describes ServiceName for grpc.Server.RegisterService.
var EngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("ExecuteWorkflow", EngineServer.ExecuteWorkflow),
		methodDesc("DispatchEvent", EngineServer.DispatchEvent),
		methodDesc("ValidateWorkflow", EngineServer.ValidateWorkflow),
		methodDesc("DebugRules", EngineServer.DebugRules),
		methodDesc("GenerateEdgeCases", EngineServer.GenerateEdgeCases),
		methodDesc("ListTemplates", EngineServer.ListTemplates),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "formflow/v1/engine.proto",
}

// engineHandler adapts api.EngineService to EngineServer.
type engineHandler struct {
	svc *api.EngineService
}

var _ EngineServer = (*engineHandler)(nil)

type executeRequest struct {
	WorkflowID string          `json:"workflowId"`
	Workflow   json.RawMessage `json:"workflow"`
	Values     types.Values    `json:"values"`
}

func (h *engineHandler) ExecuteWorkflow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req executeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	var (
		report *api.RunReport
		err    error
	)
	switch {
	case len(req.Workflow) > 0 && string(req.Workflow) != "null":
		wf, derr := workflow.Decode(req.Workflow)
		if derr != nil {
			return nil, derr
		}
		report, err = h.svc.ExecuteInline(ctx, wf, req.Values)
	case req.WorkflowID != "":
		report, err = h.svc.ExecuteWorkflow(ctx, req.WorkflowID, req.Values)
	default:
		return nil, status.Error(codes.InvalidArgument, "workflowId or workflow required")
	}
	if err != nil {
		return nil, err
	}
	return toStruct(report)
}

type dispatchRequest struct {
	Trigger types.TriggerType `json:"trigger"`
	FieldID string            `json:"fieldId"`
	Values  types.Values      `json:"values"`
}

func (h *engineHandler) DispatchEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dispatchRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.Trigger == "" {
		return nil, status.Error(codes.InvalidArgument, "trigger required")
	}
	reports, err := h.svc.DispatchEvent(ctx, req.Trigger, req.FieldID, req.Values)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"runs": reports})
}

func (h *engineHandler) ValidateWorkflow(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Workflow json.RawMessage `json:"workflow"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	wf, err := workflow.Decode(req.Workflow)
	if err != nil {
		return nil, err
	}
	return toStruct(h.svc.ValidateWorkflow(wf))
}

func (h *engineHandler) DebugRules(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.DebugRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	session, err := h.svc.DebugRules(ctx, req)
	if err != nil {
		return nil, err
	}
	return toStruct(session)
}

type edgeCasesRequest struct {
	RuleSetID string       `json:"ruleSetId"`
	Rules     []types.Rule `json:"rules"`
}

func (h *engineHandler) GenerateEdgeCases(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req edgeCasesRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	cases, err := h.svc.EdgeCases(ctx, req.RuleSetID, req.Rules)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"edgeCases": cases})
}

func (h *engineHandler) ListTemplates(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	templates, err := h.svc.Templates()
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"templates": templates})
}

// fromStruct decodes a Struct into dst through its JSON form.
func fromStruct(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "failed to encode request: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

// toStruct encodes v, which must marshal to a JSON object, into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// UnaryInterceptor logs each call and converts service errors into gRPC
// status errors. A panic in a handler becomes codes.Internal.
func UnaryInterceptor(l *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, status.Errorf(codes.Internal, "panic: %v", r)
			}
			err = api.ToStatus(err)
			code := status.Code(err)
			if code == codes.OK {
				l.DebugContext(ctx, fmt.Sprintf("gRPC call: %s", info.FullMethod), "duration", time.Since(start))
				return
			}
			l.WarnContext(ctx, fmt.Sprintf("gRPC call failed: %s", info.FullMethod), "code", code.String(), "error", err, "duration", time.Since(start))
		}()
		return handler(ctx, req)
	}
}

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config *config.Config
	l      *slog.Logger
}

// NewGRPCServer creates the gRPC server with the engine and health services
// registered.
func NewGRPCServer(cfg *config.Config, service *api.EngineService, l *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if l == nil {
		l = slog.Default()
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryInterceptor(l)))
	server.RegisterService(&EngineServiceDesc, &engineHandler{svc: service})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{server: server, health: healthServer, config: cfg, l: l}, nil
}

// Start binds the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.GRPCAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.l.InfoContext(ctx, fmt.Sprintf("gRPC server listening on %s", addr))
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Shutdown marks the server not serving and stops it gracefully, forcing a
// stop after 30 seconds or when ctx is done.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(30 * time.Second):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
