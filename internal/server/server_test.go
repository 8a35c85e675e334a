package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/shopfloor-planner/internal/controller"
	"github.com/ChuLiYu/shopfloor-planner/internal/metrics"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func baseRequest() types.Request {
	return types.Request{
		Jobs: []types.Job{
			{
				ID: "Job1", Name: "Job 1", Priority: 2, DueDate: 100,
				Tasks: []types.Task{
					{ID: "t1", EligibleLines: []string{"L1"}, Duration: 30, Skill: "cnc"},
					{ID: "t2", EligibleLines: []string{"L1"}, Duration: 20, Skill: "pack"},
				},
			},
			{
				ID: "Job2", Name: "Job 2", Priority: 1, DueDate: 40,
				Tasks: []types.Task{
					{ID: "t3", EligibleLines: []string{"L1"}, Duration: 50, Skill: "cnc"},
				},
			},
		},
		Lines:     []types.Line{{ID: "L1", Name: "Line 1"}},
		Operators: []types.Operator{{ID: "O1", Name: "Ana", Skills: []string{"cnc", "pack"}}},
	}
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	ctrl := controller.NewController(controller.DefaultConfig(), metrics.NewCollector(reg))
	return NewServer(ctrl), reg
}

// startGRPC serves srv over an in-memory listener
func startGRPC(t *testing.T, srv *Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ============================================================================
// gRPC Tests
// ============================================================================

func TestGRPCSolve(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewClient(startGRPC(t, srv))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := client.Solve(ctx, baseRequest())
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, int64(10), res.WeightedTardiness)
	assert.Equal(t, int64(100), res.Makespan)
	require.Len(t, res.Tasks, 3)
	assert.Equal(t, "Line 1", res.Tasks[0].LineName)
	require.NotNil(t, res.Stats)
	assert.Equal(t, "OPTIMAL", res.Stats.SolverStatus)
}

func TestGRPCSolveInfeasible(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewClient(startGRPC(t, srv))

	req := baseRequest()
	req.Lines = nil
	req.Jobs[0].Tasks[0].EligibleLines = nil

	res, err := client.Solve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Empty(t, res.Tasks)
	assert.Equal(t, "Solver Status: INFEASIBLE", res.Logs[0])
}

func TestGRPCSimulate(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewClient(startGRPC(t, srv))

	base := baseRequest()
	current, err := client.Solve(context.Background(), base)
	require.NoError(t, err)

	req := types.SimulateRequest{
		Scenario: types.Scenario{
			ID:            "s1",
			Modifications: types.ModificationList{types.DelayOrder{OrderID: "Job2", DelayHours: 1}},
		},
		CurrentSolveRequest: base,
		CurrentTasks:        types.FlattenTasks(current.Tasks),
	}

	res, err := client.Simulate(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, types.StatusSuccess, res.Status, res.Logs)
	assert.NotEmpty(t, res.SimulationID)
	require.NotNil(t, res.SimulatedSchedule)
	assert.Equal(t, int64(110), res.SimulatedSchedule.Makespan)
	require.NotNil(t, res.ImpactAnalysis)
	assert.Equal(t, int64(10), res.ImpactAnalysis.GlobalMetrics.MakespanDelta)
}

func TestGRPCInvalidArgument(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := startGRPC(t, srv)

	in, err := structpb.NewStruct(map[string]any{"jobs": "not a list"})
	require.NoError(t, err)

	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), "/planner.v1.PlanningService/Solve", in, out)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStructRoundTrip(t *testing.T) {
	req := baseRequest()
	pin := int64(45)
	req.Jobs[1].Tasks[0].ManualStart = &pin
	req.SetupTimes = []types.SetupTime{{LineID: "L1", FromJobID: "Job1", ToJobID: "Job2", Duration: 5}}

	s, err := ToStruct(req)
	require.NoError(t, err)

	var got types.Request
	require.NoError(t, FromStruct(s, &got))
	assert.Equal(t, req, got)
}

// ============================================================================
// HTTP Tests
// ============================================================================

func TestHTTPSolve(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.HTTPHandler(reg))
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/solve", baseRequest())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var res types.SolveResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, int64(10), res.WeightedTardiness)
}

func TestHTTPSimulate(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.HTTPHandler(reg))
	defer ts.Close()

	body := map[string]any{
		"scenario": map[string]any{
			"id": "s1",
			"modifications": []any{
				map[string]any{"type": "task_move", "parameters": map[string]any{"taskId": "Job2-t0", "newStartTime": "50"}},
			},
		},
		"currentSolveRequest": baseRequest(),
		"currentTasks": []any{
			map[string]any{"job_id": "Job1", "job_name": "Job 1", "start": 50, "duration": 30},
			map[string]any{"job_id": "Job1", "job_name": "Job 1", "start": 80, "duration": 20},
			map[string]any{"job_id": "Job2", "job_name": "Job 2", "start": 0, "duration": 50},
		},
	}

	resp := postJSON(t, ts.URL+"/whatif/simulate", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res types.SimulateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, types.StatusSuccess, res.Status, res.Logs)
	assert.Equal(t, []string{"Moved task Job2-task-0 to 50"}, res.Logs)
	assert.Equal(t, int64(100), res.ImpactAnalysis.GlobalMetrics.MakespanBefore)
}

func TestHTTPBadRequest(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.HTTPHandler(reg))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/solve", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "invalid request body")
}

func TestHTTPMethodNotAllowed(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.HTTPHandler(reg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/solve")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	srv, reg := newTestServer(t)
	ts := httptest.NewServer(srv.HTTPHandler(reg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	postJSON(t, ts.URL+"/solve", baseRequest())

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()

	data, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `planner_solves_total{status="OPTIMAL"} 1`)
}

// ============================================================================
// Run Tests
// ============================================================================

func TestRunRequiresAddress(t *testing.T) {
	srv, _ := newTestServer(t)

	err := srv.Run(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, reg := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, Config{GRPCAddr: "127.0.0.1:0", HTTPAddr: "127.0.0.1:0"}, reg)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
