package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/shopfloor-planner/internal/controller"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

const requestJSON = `{
  "jobs": [
    {"id": "Job1", "name": "Job 1", "color": "#ff0000", "priority": 2, "dueDate": 100,
     "tasks": [
       {"id": "t1", "name": "Cut", "eligibleLines": ["L1"], "duration": 30, "skill": "cnc"},
       {"id": "t2", "name": "Pack", "eligibleLines": ["L1"], "duration": 20, "skill": "pack"}
     ]},
    {"id": "Job2", "name": "Job 2", "color": "#00ff00", "priority": 1, "dueDate": 40,
     "tasks": [
       {"id": "t3", "name": "Mill", "eligibleLines": ["L1"], "duration": 50, "skill": "cnc"}
     ]}
  ],
  "lines": [{"id": "L1", "name": "Line 1"}],
  "operators": [{"id": "O1", "name": "Ana", "skills": ["cnc", "pack"]}]
}`

// writeFile writes content into dir and returns its path
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Failed to write %s", name)
	return path
}

// run executes the CLI with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := BuildCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()

	// reset the persistent flag for the next run
	configFile = defaultConfigPath
	return out.String(), err
}

// ============================================================================
// Command Tree Tests
// ============================================================================

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "planner", cmd.Use, "Root command should be 'planner'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	// 檢查子命令
	commands := cmd.Commands()
	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}

	for _, name := range []string{"solve", "simulate", "batch", "serve", "status"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildSolveCommand(t *testing.T) {
	cmd := buildSolveCommand()

	assert.Equal(t, "solve", cmd.Use, "Command should be 'solve'")

	// 檢查 --file 標誌
	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")
	assert.NotNil(t, cmd.Flags().Lookup("render"), "Should have --render flag")
	assert.NotNil(t, cmd.Flags().Lookup("remote"), "Should have --remote flag")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildBatchCommand(t *testing.T) {
	cmd := buildBatchCommand()

	assert.Equal(t, "batch", cmd.Use, "Command should be 'batch'")
	assert.NotNil(t, cmd.Flags().Lookup("workers"), "Should have --workers flag")
	assert.Equal(t, "stringArray", cmd.Flags().Lookup("file").Value.Type(), "--file should be repeatable")
}

func TestBuildServeCommand(t *testing.T) {
	cmd := buildServeCommand()

	assert.Equal(t, "serve", cmd.Use, "Command should be 'serve'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.Equal(t, "50051", cmd.Flags().Lookup("grpc-port").DefValue)
	assert.Equal(t, "8080", cmd.Flags().Lookup("http-port").DefValue)
}

// ============================================================================
// Config Tests
// ============================================================================

func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "test_config.yaml", `
solver:
  time_limit: 5s
  branch_limit: 1000
  horizon_buffer: 200
  weights:
    tardiness: 500
    makespan: 10
    start: 0

server:
  grpc_port: 6000
  http_port: 6001

batch:
  workers: 3

metrics:
  enabled: false
  port: 9191

log:
  level: debug
  format: json
`)

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "loadConfig should not return an error")

	assert.Equal(t, 5*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, int64(1000), cfg.Solver.BranchLimit)
	assert.Equal(t, int64(200), cfg.Solver.HorizonBuffer)
	assert.Equal(t, int64(500), cfg.Solver.Weights.Tardiness)
	assert.Equal(t, int64(0), cfg.Solver.Weights.Start)
	assert.Equal(t, 6000, cfg.Server.GRPCPort)
	assert.Equal(t, 6001, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	cc := cfg.controllerConfig()
	assert.Equal(t, int64(200), cc.Planner.HorizonBuffer)
	assert.Equal(t, 5*time.Second, cc.Solver.TimeLimit)
	assert.Equal(t, int64(1000), cc.Solver.BranchLimit)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err, "loadConfig should return an error for nonexistent file")
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file", "Error should mention file reading failure")
}

func TestLoadConfig_MissingDefaultFile(t *testing.T) {
	// 測試目錄下沒有 configs/default.yaml，使用內建預設值
	cfg, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, 10*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, int64(10000), cfg.Solver.Weights.Tardiness)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "invalid.yaml", `
solver:
  branch_limit: "not a number"
  invalid yaml structure
    broken indentation
`)

	cfg, err := loadConfig(configPath)

	assert.Error(t, err, "loadConfig should return an error for invalid YAML")
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML", "Error should mention YAML parsing failure")
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "empty.yaml", "")

	// 空文件保留所有預設值
	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "Empty YAML file should parse without error")
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfig_PartialConfig(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "partial.yaml", `
solver:
  time_limit: 250ms
`)

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "Partial config should parse successfully")
	assert.Equal(t, 250*time.Millisecond, cfg.Solver.TimeLimit, "time_limit should be set")
	assert.Equal(t, int64(2_000_000), cfg.Solver.BranchLimit, "Unset fields should keep defaults")
	assert.Equal(t, int64(100), cfg.Solver.Weights.Makespan, "Unset fields should keep defaults")
	assert.Equal(t, 50051, cfg.Server.GRPCPort, "Unset fields should keep defaults")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"negative weight", "solver:\n  weights:\n    tardiness: -1\n"},
		{"negative time limit", "solver:\n  time_limit: -1s\n"},
		{"negative workers", "batch:\n  workers: -2\n"},
		{"unknown level", "log:\n  level: chatty\n"},
		{"unknown format", "log:\n  format: xml\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			configPath := writeFile(t, t.TempDir(), "bad.yaml", tc.content)

			_, err := loadConfig(configPath)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "info", "json")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("Solve completed", "makespan", 100)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "only one JSON line expected")
	assert.Equal(t, "Solve completed", entry["msg"])
	assert.Equal(t, float64(100), entry["makespan"])
	assert.True(t, strings.HasSuffix(entry["time"].(string), "Z"), "time should be UTC")
}

// captureLogs installs the process logger on a buffer and restores the
// previous default when the test ends.
func captureLogs(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		slog.SetLogLoggerLevel(slog.LevelInfo)
	})

	var buf bytes.Buffer
	require.NoError(t, setupLogging(&buf, level, "json"))
	return &buf
}

// decodeLogLines parses one JSON record per line
func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "log line should be JSON: %s", line)
		records = append(records, rec)
	}
	return records
}

func TestControllerLogsUseConfiguredHandler(t *testing.T) {
	buf := captureLogs(t, "info")

	// 沒有產線也沒有作業員，求解必定失敗並記錄警告
	req := types.Request{Jobs: []types.Job{{
		ID: "J1", Priority: 1, DueDate: 10,
		Tasks: []types.Task{{ID: "t1", Duration: 5, Skill: "cnc"}},
	}}}
	res := controller.NewController(controller.DefaultConfig(), nil).Solve(req)
	require.Equal(t, types.StatusFailed, res.Status)

	records := decodeLogLines(t, buf)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "Solve found no schedule", rec["msg"])
	assert.Equal(t, "INFEASIBLE", rec["status"])
	assert.Equal(t, float64(1), rec["tasks"])
}

func TestControllerLogsRespectLevel(t *testing.T) {
	buf := captureLogs(t, "warn")

	res := controller.NewController(controller.DefaultConfig(), nil).Solve(types.Request{})
	require.Equal(t, types.StatusSuccess, res.Status)

	assert.Empty(t, buf.String(), "info records should be filtered at warn level")
}

// ============================================================================
// Command Execution Tests
// ============================================================================

func TestSolveCommand(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeFile(t, dir, "req.json", requestJSON)

	out, err := run(t, "solve", "-f", reqPath)
	require.NoError(t, err)

	var res types.SolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, int64(10), res.WeightedTardiness)
	assert.Equal(t, int64(100), res.Makespan)
	assert.Len(t, res.Tasks, 3)
}

func TestSolveCommandWithConfig(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeFile(t, dir, "req.json", requestJSON)
	cfgPath := writeFile(t, dir, "cfg.yaml", "solver:\n  branch_limit: 1\nlog:\n  level: error\n")

	out, err := run(t, "solve", "-f", reqPath, "-c", cfgPath)
	require.NoError(t, err)

	// 一個分支內找不到排程
	var res types.SolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, "Solver Status: UNKNOWN", res.Logs[0])
}

func TestSolveCommandRender(t *testing.T) {
	reqPath := writeFile(t, t.TempDir(), "req.json", requestJSON)

	out, err := run(t, "solve", "-f", reqPath, "--render")
	require.NoError(t, err)

	assert.Contains(t, out, "Schedule")
	assert.Contains(t, out, "L1 Line 1")
	assert.Contains(t, out, "O1 Ana")
	assert.Contains(t, out, "Job 2 (due 40)")
}

func TestSolveCommand_InvalidFile(t *testing.T) {
	_, err := run(t, "solve", "-f", "/nonexistent/req.json")

	assert.Error(t, err, "solve should return error for nonexistent file")
	assert.Contains(t, err.Error(), "failed to read request file", "Error should mention file reading failure")
}

func TestSolveCommand_InvalidJSON(t *testing.T) {
	reqPath := writeFile(t, t.TempDir(), "invalid.json", `{"invalid json structure`)

	_, err := run(t, "solve", "-f", reqPath)

	assert.Error(t, err, "solve should return error for invalid JSON")
	assert.Contains(t, err.Error(), "failed to parse request file", "Error should mention JSON parsing failure")
}

func TestSimulateCommand(t *testing.T) {
	body := `{
  "scenario": {"id": "s1", "name": "late supplier", "modifications": [
    {"type": "delay_order", "description": "Job2 late", "parameters": {"orderId": "Job2", "delayHours": 1}}
  ]},
  "currentSolveRequest": ` + requestJSON + `,
  "currentTasks": [
    {"id": "t1", "jobId": "Job1", "jobName": "Job 1", "start": 50, "duration": 30},
    {"id": "t2", "jobId": "Job1", "jobName": "Job 1", "start": 80, "duration": 20},
    {"id": "t3", "jobId": "Job2", "jobName": "Job 2", "start": 0, "duration": 50}
  ]
}`
	simPath := writeFile(t, t.TempDir(), "sim.json", body)

	out, err := run(t, "simulate", "-f", simPath)
	require.NoError(t, err)

	var res types.SimulateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, types.StatusSuccess, res.Status)
	assert.NotEmpty(t, res.SimulationID)
	assert.Equal(t, int64(110), res.SimulatedSchedule.Makespan)
	assert.Equal(t, int64(100), res.ImpactAnalysis.GlobalMetrics.MakespanBefore)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", requestJSON)
	b := writeFile(t, dir, "b.json", `{"jobs": [], "lines": [], "operators": []}`)

	out, err := run(t, "batch", "-f", a, "-f", b, "--workers", "2")
	require.NoError(t, err)

	var entries []batchEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, types.StatusSuccess, entries[0].Status)
	assert.Equal(t, int64(10), entries[0].WeightedTardiness)
	assert.Equal(t, "b", entries[1].ID)
	assert.Equal(t, types.StatusSuccess, entries[1].Status)
	assert.Empty(t, entries[1].Error)
}

func TestBatchCommand_NoFiles(t *testing.T) {
	_, err := run(t, "batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one request file")
}

func TestShowStatus(t *testing.T) {
	var buf bytes.Buffer
	err := showStatus(&buf)
	assert.NoError(t, err, "showStatus should not return an error")
	assert.Contains(t, buf.String(), "Time Limit:      10s")
	assert.Contains(t, buf.String(), "Enabled on http://localhost:9090/metrics")
}
