// Package types 定義了排程系統中使用的核心領域模型
//
// 所有實體皆為 request-scoped：在一次 solve / simulate 呼叫開始時建立，
// 建模時被消費，回傳結果後即丟棄。系統在呼叫之間不保留任何狀態。
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Task 製程任務，代表工單中的一道工序
type Task struct {
	ID            string   `json:"id"`                    // 任務識別碼
	Name          string   `json:"name"`                  // 任務名稱
	EligibleLines []string `json:"eligibleLines"`         // 可執行此任務的產線 ID（順序無意義）
	Duration      int64    `json:"duration"`              // 加工時間（分鐘，>= 0）
	Skill         string   `json:"skill"`                 // 所需技能標籤
	Order         int      `json:"order,omitempty"`       // 顯示用排序（核心不使用）
	ManualStart   *int64   `json:"manualStart,omitempty"` // 手動指定開始時間（硬性等式約束）
}

// Pinned 回報任務是否有手動指定的開始時間
func (t Task) Pinned() bool {
	return t.ManualStart != nil
}

// Job 工單，任務序列即為先後順序（task i+1 不得早於 task i 結束）
type Job struct {
	ID       string `json:"id"`       // 工單識別碼
	Name     string `json:"name"`     // 工單名稱
	Tasks    []Task `json:"tasks"`    // 依序執行的任務
	Color    string `json:"color"`    // 顯示用顏色（核心不使用）
	Priority int64  `json:"priority"` // 延遲權重（>= 0）
	DueDate  int64  `json:"dueDate"`  // 交期（分鐘）
}

// Operator 作業員
type Operator struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Skills []string `json:"skills"`
}

// HasSkill 檢查作業員是否具備指定技能
func (o Operator) HasSkill(skill string) bool {
	for _, s := range o.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// Line 產線（可排程的機台資源）
type Line struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SetupTime 換線時間：產線從 FromJobID 的任務切換到 ToJobID 的任務時所需的間隔
// 具方向性且與產線相關
type SetupTime struct {
	LineID    string `json:"lineId"`
	FromJobID string `json:"fromJobId"`
	ToJobID   string `json:"toJobId"`
	Duration  int64  `json:"duration"`
}

// AvailabilityInterval 可用時段 [Start, End)
type AvailabilityInterval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ResourceAvailability 資源（產線或作業員）的可用時段
// 沒有對應項目的資源視為永遠可用
type ResourceAvailability struct {
	ResourceID string                 `json:"resourceId"`
	Intervals  []AvailabilityInterval `json:"intervals"`
}

// Request 排程請求，被視為不可變的值快照
type Request struct {
	Jobs           []Job                  `json:"jobs"`
	Lines          []Line                 `json:"lines"`
	Operators      []Operator             `json:"operators"`
	SetupTimes     []SetupTime            `json:"setupTimes,omitempty"`
	Availabilities []ResourceAvailability `json:"availabilities,omitempty"`
}

// TaskCount 回傳請求中所有任務的數量
func (r Request) TaskCount() int {
	n := 0
	for _, j := range r.Jobs {
		n += len(j.Tasks)
	}
	return n
}

// TotalDuration 回傳所有任務加工時間總和
func (r Request) TotalDuration() int64 {
	var sum int64
	for _, j := range r.Jobs {
		for _, t := range j.Tasks {
			sum += t.Duration
		}
	}
	return sum
}

// ============================================================================
// TaskKey：任務的標準複合鍵
// ============================================================================

// 任務識別碼的兩種編碼
const (
	taskKeySep       = "-task-" // 前端格式："<jobId>-task-<index>"
	legacyTaskKeySep = "-t"     // 舊格式："<jobId>-t<index>"
)

// ErrMalformedTaskKey 任務識別碼無法解析
var ErrMalformedTaskKey = errors.New("malformed task id")

// TaskKey 任務的標準複合鍵 (jobId, taskIndex)
type TaskKey struct {
	JobID string `json:"jobId"`
	Index int    `json:"index"`
}

// String 以前端格式輸出
func (k TaskKey) String() string {
	return k.JobID + taskKeySep + strconv.Itoa(k.Index)
}

// ParseTaskKey 將兩種識別碼編碼解析為 TaskKey
// 以最後一個分隔符切割，"-task-" 優先於 "-t"
func ParseTaskKey(id string) (TaskKey, error) {
	sep := ""
	switch {
	case strings.Contains(id, taskKeySep):
		sep = taskKeySep
	case strings.Contains(id, legacyTaskKeySep):
		sep = legacyTaskKeySep
	default:
		return TaskKey{}, fmt.Errorf("%w: %q has no task index", ErrMalformedTaskKey, id)
	}

	cut := strings.LastIndex(id, sep)
	jobID, indexPart := id[:cut], id[cut+len(sep):]
	if jobID == "" {
		return TaskKey{}, fmt.Errorf("%w: %q has no job id", ErrMalformedTaskKey, id)
	}

	index, err := strconv.Atoi(indexPart)
	if err != nil {
		return TaskKey{}, fmt.Errorf("%w: %q index %q is not an integer", ErrMalformedTaskKey, id, indexPart)
	}
	return TaskKey{JobID: jobID, Index: index}, nil
}
