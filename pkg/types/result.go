package types

// Status 邊界操作的結果狀態
type Status string

const (
	StatusSuccess Status = "success" // 找到可行（或最佳）排程
	StatusFailed  Status = "failed"  // 無可行解或在時間預算內找不到解
	StatusError   Status = "error"   // 模擬過程中發生非預期錯誤
)

// TaskResult 單一任務的排程結果，回顯工單與任務的資訊
type TaskResult struct {
	ID           string `json:"id"`
	JobID        string `json:"jobId"`
	JobName      string `json:"jobName"`
	Name         string `json:"name"`
	Line         string `json:"line"` // 選定的產線 ID，無產線時為 "N/A"
	LineName     string `json:"lineName"`
	OperatorID   string `json:"operatorId"` // 選定的作業員 ID，無作業員時為 "N/A"
	OperatorName string `json:"operatorName"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
	Duration     int64  `json:"duration"`
	Color        string `json:"color"`
	Priority     int64  `json:"priority"`
	DueDate      int64  `json:"dueDate"`
	ManualStart  *int64 `json:"manualStart"`
}

// JobSummary 工單完成時間與延遲
type JobSummary struct {
	JobID             string `json:"jobId"`
	JobName           string `json:"jobName"`
	Finish            int64  `json:"finish"`
	DueDate           int64  `json:"dueDate"`
	Tardiness         int64  `json:"tardiness"`
	WeightedTardiness int64  `json:"weightedTardiness"`
}

// SolveStats 搜尋診斷資訊
type SolveStats struct {
	SolverStatus string  `json:"solver_status"`
	Branches     int64   `json:"branches"`
	Conflicts    int64   `json:"conflicts"`
	WallTime     float64 `json:"wall_time"` // 秒
}

// SolveResult solve 操作的回傳值
// 失敗時 Tasks/Jobs/Stats 皆為空，只保留 Logs
type SolveResult struct {
	Status            Status       `json:"status"`
	Makespan          int64        `json:"makespan"`
	WeightedTardiness int64        `json:"tardiness"`
	Objective         int64        `json:"objective"`
	Stats             *SolveStats  `json:"stats,omitempty"`
	Tasks             []TaskResult `json:"tasks,omitempty"`
	Jobs              []JobSummary `json:"jobs,omitempty"`
	Logs              []string     `json:"logs"`
}

// Succeeded 回報是否取得排程
func (r SolveResult) Succeeded() bool {
	return r.Status == StatusSuccess
}
