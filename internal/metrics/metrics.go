// ============================================================================
// Shopfloor Planner Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露求解與模擬的運行指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 計數器 (Counter)：
//      - planner_solves_total{status}: 求解次數，依搜尋狀態
//        (OPTIMAL / FEASIBLE / INFEASIBLE / UNKNOWN)
//      - planner_search_branches_total: 累計搜尋分支數
//      - planner_search_conflicts_total: 累計搜尋死路數
//      - planner_simulations_total{status}: What-If 模擬次數 (success / failed / error)
//      - planner_modifications_total{kind,outcome}: 情境修改項 (applied / skipped)
//
//   2. 分佈 (Histogram)：
//      - planner_solve_duration_seconds: 單次求解耗時
//        * 桶分佈: 0.001 ~ 30s，時間預算預設 10s
//
//   3. 瞬時值 (Gauge)：
//      - planner_last_makespan: 最近一次成功求解的 makespan
//      - planner_last_weighted_tardiness: 最近一次成功求解的加權延遲
//      - planner_solves_in_flight: 執行中的求解數（批次模式）
//
// Prometheus 查詢示例:
//
//   # 無解比例
//   sum(rate(planner_solves_total{status=~"INFEASIBLE|UNKNOWN"}[5m]))
//     / sum(rate(planner_solves_total[5m]))
//
//   # 95 分位求解時間
//   histogram_quantile(0.95, planner_solve_duration_seconds_bucket)
//
// HTTP 端點:
//   通過 /metrics 端點暴露，默認端口: 9090
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus 指標收集器
type Collector struct {
	// 求解相關指標
	solves        *prometheus.CounterVec
	solveDuration prometheus.Histogram
	branches      prometheus.Counter
	conflicts     prometheus.Counter

	// 模擬相關指標
	simulations   *prometheus.CounterVec
	modifications *prometheus.CounterVec

	// 狀態指標
	lastMakespan  prometheus.Gauge
	lastTardiness prometheus.Gauge
	inFlight      prometheus.Gauge
}

// NewCollector 創建指標收集器並註冊到 reg，reg 為 nil 時使用 prometheus.DefaultRegisterer
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_solves_total",
			Help: "Total number of solves by search status",
		}, []string{"status"}),
		solveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_solve_duration_seconds",
			Help:    "Wall time of a single solve in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		branches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_search_branches_total",
			Help: "Total number of search branches explored",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_search_conflicts_total",
			Help: "Total number of search dead ends",
		}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_simulations_total",
			Help: "Total number of what-if simulations by result status",
		}, []string{"status"}),
		modifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_modifications_total",
			Help: "Total number of scenario modifications by kind and outcome",
		}, []string{"kind", "outcome"}),
		lastMakespan: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_last_makespan",
			Help: "Makespan of the most recent successful solve",
		}),
		lastTardiness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_last_weighted_tardiness",
			Help: "Weighted tardiness of the most recent successful solve",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_solves_in_flight",
			Help: "Current number of solves being executed",
		}),
	}

	// 註冊所有指標
	reg.MustRegister(
		c.solves,
		c.solveDuration,
		c.branches,
		c.conflicts,
		c.simulations,
		c.modifications,
		c.lastMakespan,
		c.lastTardiness,
		c.inFlight,
	)

	return c
}

// RecordSolve 記錄一次求解
func (c *Collector) RecordSolve(status string, seconds float64, branches, conflicts int64) {
	c.solves.WithLabelValues(status).Inc()
	c.solveDuration.Observe(seconds)
	c.branches.Add(float64(branches))
	c.conflicts.Add(float64(conflicts))
}

// SetSchedule 記錄最近一次成功排程的目標值
func (c *Collector) SetSchedule(makespan, weightedTardiness int64) {
	c.lastMakespan.Set(float64(makespan))
	c.lastTardiness.Set(float64(weightedTardiness))
}

// RecordSimulation 記錄一次 What-If 模擬
func (c *Collector) RecordSimulation(status string) {
	c.simulations.WithLabelValues(status).Inc()
}

// RecordModification 記錄情境修改項的處理結果
func (c *Collector) RecordModification(kind, outcome string) {
	c.modifications.WithLabelValues(kind, outcome).Inc()
}

// SolveStarted 執行中求解數 +1
func (c *Collector) SolveStarted() {
	c.inFlight.Inc()
}

// SolveFinished 執行中求解數 -1
func (c *Collector) SolveFinished() {
	c.inFlight.Dec()
}

// Handler 回傳 gatherer 的 /metrics handler，gatherer 為 nil 時使用預設 registry
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// StartServer 啟動 Prometheus metrics HTTP 伺服器
//
// 參數：
//   - port: HTTP 伺服器端口
//
// 返回值：
//   - error: 啟動失敗的錯誤
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
