// ============================================================================
// Shopfloor Planner 控制器 - 邊界操作協調器
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 對外提供 Solve 與 SimulateWhatIf 兩個邊界操作，串接建模、求解、
//       What-If 修改與影響分析，並記錄指標與日誌
//
// 架構設計:
//   Controller 本身不保存任何排程狀態，每次呼叫都是請求的純函數：
//   - planner:  Request -> Problem（約束模型）
//   - solver:   Problem -> Solution（預算內的確定性搜尋）
//   - whatif:   Request + 修改項 -> 新 Request；前後排程 -> 影響分析
//   - worker:   批次模式下並行執行彼此獨立的求解
//   - metrics:  選用，nil 表示不記錄
//
// 處理流程:
//   Solve:           Build -> Solve -> Extract
//   SimulateWhatIf:  Apply -> Solve -> Analyze
//
// 錯誤處理:
//   - 無可行解是正常結果（status = failed），不是錯誤
//   - 修改項無法套用時略過並記錄，不影響其他修改項
//   - SimulateWhatIf 攔截所有 panic，回傳 status = error 與 goroutine stack
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/shopfloor-planner/internal/metrics"
	"github.com/ChuLiYu/shopfloor-planner/internal/planner"
	"github.com/ChuLiYu/shopfloor-planner/internal/solver"
	"github.com/ChuLiYu/shopfloor-planner/internal/whatif"
	"github.com/ChuLiYu/shopfloor-planner/internal/worker"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// log 回傳呼叫當下的 slog.Default
func log() *slog.Logger { return slog.Default() }

// MsgModifiedScenarioFailed 修改後情境求解失敗時的訊息
const MsgModifiedScenarioFailed = "Failed to solve modified scenario"

// ============================================================================
// 資料結構定義
// ============================================================================

// Config Controller 配置
type Config struct {
	Planner planner.Options // 建模參數（horizon buffer、目標權重）
	Solver  solver.Params   // 搜尋預算
}

// DefaultConfig 回傳預設配置
func DefaultConfig() Config {
	return Config{
		Planner: planner.DefaultOptions(),
		Solver:  solver.DefaultParams(),
	}
}

// Controller 邊界操作協調器，可被多個 goroutine 同時使用
type Controller struct {
	config  Config
	metrics *metrics.Collector // 可為 nil
	now     func() time.Time   // 模擬結果的 updatedAt
	newID   func() string      // 模擬 ID
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewController 建立新的 Controller 實例
//
// 參數：
//   - config: Controller 配置
//   - collector: Prometheus 指標收集器，可為 nil
func NewController(config Config, collector *metrics.Collector) *Controller {
	return &Controller{
		config:  config,
		metrics: collector,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Config 回傳目前的配置
func (c *Controller) Config() Config {
	return c.config
}

// Solve 求解一個排程請求
// 無可行解時回傳 status = failed 與診斷日誌，永不 panic 到呼叫端以外的錯誤
func (c *Controller) Solve(req types.Request) types.SolveResult {
	res, err := c.solve(req)
	if err != nil {
		return types.SolveResult{
			Status: types.StatusFailed,
			Logs:   append(res.Logs, fmt.Sprintf("Internal error: %v", err)),
		}
	}
	return res
}

// Handle 以 worker.Handler 的形式執行 Solve，供 Worker Pool 使用
// 求解不可中途取消，ctx 僅用於標記超時
func (c *Controller) Handle(_ context.Context, req types.Request) types.SolveResult {
	return c.Solve(req)
}

// solve 執行 Build -> Solve -> Extract 並記錄指標
// 只有搜尋結果違反模型時才回傳 error
func (c *Controller) solve(req types.Request) (types.SolveResult, error) {
	if c.metrics != nil {
		c.metrics.SolveStarted()
		defer c.metrics.SolveFinished()
	}

	p := planner.Build(req, c.config.Planner)
	sol, err := solver.Solve(p, c.config.Solver)
	c.recordSolve(sol)
	if err != nil {
		log().Error("Solver returned an invalid schedule",
			"tasks", len(p.Tasks),
			"error", err)
		return types.SolveResult{Status: types.StatusFailed, Logs: []string{fmt.Sprintf("Solver Status: %s", sol.Status)}}, err
	}

	res := solver.Extract(p, sol)
	if res.Succeeded() {
		if c.metrics != nil {
			c.metrics.SetSchedule(res.Makespan, res.WeightedTardiness)
		}
		log().Info("Solve completed",
			"status", sol.Status,
			"jobs", len(req.Jobs),
			"tasks", len(p.Tasks),
			"makespan", res.Makespan,
			"tardiness", res.WeightedTardiness,
			"branches", sol.Stats.Branches,
			"duration", sol.Stats.WallTime)
	} else {
		log().Warn("Solve found no schedule",
			"status", sol.Status,
			"jobs", len(req.Jobs),
			"tasks", len(p.Tasks),
			"reasons", len(sol.Reasons),
			"duration", sol.Stats.WallTime)
	}
	return res, nil
}

// SimulateWhatIf 套用情境修改項、重新求解並與目前排程比較
//
// 參數：
//   - scenario: What-If 情境（修改項依序套用）
//   - base: 目前的排程請求，不會被修改
//   - current: 目前排程的扁平任務清單
//
// 任何非預期錯誤都轉為 status = error，不會傳播給呼叫端
func (c *Controller) SimulateWhatIf(scenario types.Scenario, base types.Request, current []types.FlatTask) (result types.SimulateResult) {
	defer func() {
		if r := recover(); r != nil {
			log().Error("What-if simulation panicked",
				"scenario", scenario.ID,
				"panic", r)
			result = types.SimulateResult{
				Status:    types.StatusError,
				Error:     fmt.Sprint(r),
				Traceback: string(debug.Stack()),
			}
		}
		c.recordSimulation(result.Status)
	}()

	// 1. 套用修改項
	modified, reports := whatif.Apply(base, scenario.Modifications)
	for _, r := range reports {
		if c.metrics != nil {
			c.metrics.RecordModification(string(r.Kind), string(r.Outcome))
		}
		if r.Outcome == whatif.OutcomeSkipped {
			log().Warn("Modification skipped",
				"scenario", scenario.ID,
				"kind", r.Kind,
				"reason", r.Message)
		}
	}
	modLogs := whatif.Logs(reports)

	// 2. 重新求解
	solved, err := c.solve(modified)
	if err != nil {
		return types.SimulateResult{
			Status: types.StatusError,
			Error:  err.Error(),
			Logs:   append(modLogs, solved.Logs...),
		}
	}
	if !solved.Succeeded() {
		return types.SimulateResult{
			Status: types.StatusFailed,
			Error:  MsgModifiedScenarioFailed,
			Logs:   append(modLogs, solved.Logs...),
		}
	}

	// 3. 影響分析
	makespanBefore := whatif.Makespan(current)
	impact := whatif.Analyze(current, types.FlattenTasks(solved.Tasks), makespanBefore, solved.Makespan)

	id := c.newID()
	log().Info("What-if simulation completed",
		"scenario", scenario.ID,
		"simulation", id,
		"modifications", len(reports),
		"makespan_before", makespanBefore,
		"makespan_after", solved.Makespan)

	return types.SimulateResult{
		Status:       types.StatusSuccess,
		SimulationID: id,
		SimulatedSchedule: &types.SimulatedSchedule{
			Tasks:             solved.Tasks,
			Makespan:          solved.Makespan,
			WeightedTardiness: solved.WeightedTardiness,
			Logs:              solved.Logs,
			UpdatedAt:         c.now().UTC().Format(time.RFC3339),
		},
		ImpactAnalysis: &impact,
		Logs:           modLogs,
	}
}

// Simulate 以 SimulateRequest 信封執行 SimulateWhatIf
func (c *Controller) Simulate(req types.SimulateRequest) types.SimulateResult {
	return c.SimulateWhatIf(req.Scenario, req.CurrentSolveRequest, req.CurrentTasks)
}

// ============================================================================
// 批次執行
// ============================================================================

// ErrNoRequests 批次沒有任何請求
var ErrNoRequests = errors.New("batch has no requests")

// SolveBatch 以 workers 個 Worker 並行求解彼此獨立的請求，依輸入順序回傳
// 每個求解仍為單執行緒且可重現
func (c *Controller) SolveBatch(ids []string, reqs []types.Request, workers int) ([]worker.Result, error) {
	if len(reqs) == 0 {
		return nil, ErrNoRequests
	}
	if len(ids) != len(reqs) {
		return nil, fmt.Errorf("batch has %d ids for %d requests", len(ids), len(reqs))
	}

	// 預算上限加一秒作為超時標記
	timeout := c.config.Solver.TimeLimit
	if timeout <= 0 {
		timeout = solver.DefaultParams().TimeLimit
	}
	timeout += time.Second

	tasks := make([]worker.Task, 0, len(reqs))
	for i, req := range reqs {
		tasks = append(tasks, worker.Task{ID: ids[i], Request: req, Timeout: timeout})
	}

	start := time.Now()
	results, err := worker.Batch(tasks, workers, c.Handle)
	if err != nil {
		return results, fmt.Errorf("batch solve: %w", err)
	}

	log().Info("Batch completed",
		"requests", len(reqs),
		"workers", workers,
		"duration", time.Since(start))
	return results, nil
}

// ============================================================================
// 指標
// ============================================================================

func (c *Controller) recordSolve(sol solver.Solution) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordSolve(string(sol.Status), sol.Stats.WallTime.Seconds(), sol.Stats.Branches, sol.Stats.Conflicts)
}

func (c *Controller) recordSimulation(status types.Status) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordSimulation(string(status))
}
