package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPC(t *testing.T) *grpc.ClientConn {
	t.Helper()
	svc, cfg := newTestService(t)
	srv, err := NewGRPCServer(cfg, svc, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// invoke calls method with req encoded as a Struct and decodes the reply
// into resp.
func invoke(t *testing.T, conn *grpc.ClientConn, method string, req any, resp any) error {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	in := new(structpb.Struct)
	require.NoError(t, protojson.Unmarshal(data, in))

	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	data, err = protojson.Marshal(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, resp))
	return nil
}

func TestGRPC_ExecuteInlineWorkflow(t *testing.T) {
	conn := startGRPC(t)

	var resp struct {
		RunID  string `json:"runId"`
		Result struct {
			Dialog *struct {
				Title string `json:"title"`
			} `json:"dialog"`
			RedirectURL string `json:"redirectUrl"`
		} `json:"result"`
	}
	err := invoke(t, conn, "ExecuteWorkflow", map[string]any{
		"workflow": json.RawMessage(greetingWorkflow),
		"values":   map[string]any{"plan": "pro", "name": "Ada"},
	}, &resp)
	require.NoError(t, err)
	require.NotEmpty(t, resp.RunID)
	require.NotNil(t, resp.Result.Dialog)
	require.Equal(t, "Welcome Ada", resp.Result.Dialog.Title)
	require.Empty(t, resp.Result.RedirectURL)
}

func TestGRPC_ExecuteStoredWorkflowNotFound(t *testing.T) {
	conn := startGRPC(t)

	var resp map[string]any
	err := invoke(t, conn, "ExecuteWorkflow", map[string]any{"workflowId": "missing"}, &resp)
	require.Equal(t, codes.NotFound, status.Code(err))

	err = invoke(t, conn, "ExecuteWorkflow", map[string]any{}, &resp)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_ValidateWorkflow(t *testing.T) {
	conn := startGRPC(t)

	var resp struct {
		Valid  bool `json:"valid"`
		Issues []struct {
			Severity string `json:"severity"`
		} `json:"issues"`
	}
	require.NoError(t, invoke(t, conn, "ValidateWorkflow", map[string]any{"workflow": json.RawMessage(greetingWorkflow)}, &resp))
	require.True(t, resp.Valid)

	err := invoke(t, conn, "ValidateWorkflow", map[string]any{"workflow": map[string]any{"nodes": "nope"}}, &resp)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_DebugRules(t *testing.T) {
	conn := startGRPC(t)

	var resp struct {
		Evaluations []struct {
			RuleID string `json:"ruleId"`
			Status string `json:"status"`
		} `json:"evaluations"`
		Snapshot struct {
			Visibility    map[string]bool `json:"visibility"`
			RequiredState map[string]bool `json:"requiredState"`
		} `json:"snapshot"`
		Coverage int `json:"coverage"`
	}
	err := invoke(t, conn, "DebugRules", map[string]any{
		"rules":  visibilityRules,
		"values": map[string]any{"A": "yes", "age": 12},
	}, &resp)
	require.NoError(t, err)
	require.Len(t, resp.Evaluations, 2)
	require.Equal(t, "fired", resp.Evaluations[0].Status)
	require.Equal(t, "skipped", resp.Evaluations[1].Status)
	require.True(t, resp.Snapshot.Visibility["B"])
	require.Equal(t, 50, resp.Coverage)
}

func TestGRPC_GenerateEdgeCasesAndTemplates(t *testing.T) {
	conn := startGRPC(t)

	var cases struct {
		EdgeCases []struct {
			Name string `json:"name"`
		} `json:"edgeCases"`
	}
	require.NoError(t, invoke(t, conn, "GenerateEdgeCases", map[string]any{"rules": visibilityRules}, &cases))
	require.NotEmpty(t, cases.EdgeCases)

	var templates struct {
		Templates []struct {
			ID string `json:"id"`
		} `json:"templates"`
	}
	require.NoError(t, invoke(t, conn, "ListTemplates", map[string]any{}, &templates))
	require.NotEmpty(t, templates.Templates)
}

func TestGRPC_DispatchEventRequiresTrigger(t *testing.T) {
	conn := startGRPC(t)

	var resp map[string]any
	err := invoke(t, conn, "DispatchEvent", map[string]any{}, &resp)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	var runs struct {
		Runs []any `json:"runs"`
	}
	require.NoError(t, invoke(t, conn, "DispatchEvent", map[string]any{"trigger": "pageLoad"}, &runs))
	require.Empty(t, runs.Runs)
}

func TestGRPC_Health(t *testing.T) {
	conn := startGRPC(t)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}
