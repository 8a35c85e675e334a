package types

import (
	"encoding/json"
	"fmt"
)

// FlatTask 扁平化的排程任務，用於前後比較
// 接受 jobId/job_id 與 jobName/job_name 兩種鍵名
type FlatTask struct {
	ID       string `json:"id,omitempty"`
	JobID    string `json:"jobId"`
	JobName  string `json:"jobName"`
	Start    int64  `json:"start"`
	Duration int64  `json:"duration"`
}

// End 回傳任務結束時間
func (t FlatTask) End() int64 {
	return t.Start + t.Duration
}

// UnmarshalJSON 解碼時容許數值為浮點數並接受兩種鍵名
func (t *FlatTask) UnmarshalJSON(data []byte) error {
	var w struct {
		ID           string   `json:"id"`
		JobID        string   `json:"jobId"`
		JobIDSnake   string   `json:"job_id"`
		JobName      string   `json:"jobName"`
		JobNameSnake string   `json:"job_name"`
		Start        *float64 `json:"start"`
		Duration     *float64 `json:"duration"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*t = FlatTask{ID: w.ID, JobID: w.JobID, JobName: w.JobName}
	if t.JobID == "" {
		t.JobID = w.JobIDSnake
	}
	if t.JobName == "" {
		t.JobName = w.JobNameSnake
	}
	var err error
	if w.Start != nil {
		if t.Start, err = truncate(*w.Start); err != nil {
			return fmt.Errorf("task %s start: %w", w.ID, err)
		}
	}
	if w.Duration != nil {
		if t.Duration, err = truncate(*w.Duration); err != nil {
			return fmt.Errorf("task %s duration: %w", w.ID, err)
		}
	}
	return nil
}

// FlattenTasks 將排程結果轉為扁平任務清單
func FlattenTasks(tasks []TaskResult) []FlatTask {
	out := make([]FlatTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FlatTask{
			ID:       t.ID,
			JobID:    t.JobID,
			JobName:  t.JobName,
			Start:    t.Start,
			Duration: t.Duration,
		})
	}
	return out
}

// ImpactStatus 工單受影響的方向
type ImpactStatus string

const (
	ImpactImproved ImpactStatus = "improved"
	ImpactDegraded ImpactStatus = "degraded"
	ImpactNeutral  ImpactStatus = "neutral"
)

// JobImpact 單一工單的前後比較
type JobImpact struct {
	JobID         string       `json:"jobId"`
	JobName       string       `json:"jobName"`
	EndTimeBefore string       `json:"endTimeBefore"`
	EndTimeAfter  string       `json:"endTimeAfter"`
	DeltaHours    float64      `json:"deltaHours"` // 正值 = 較晚完成
	Status        ImpactStatus `json:"status"`
}

// GlobalMetrics 全域比較指標
// UtilizationBefore/UtilizationAfter 為固定的佔位值，並非由排程推導
type GlobalMetrics struct {
	MakespanBefore     int64   `json:"makespanBefore"`
	MakespanAfter      int64   `json:"makespanAfter"`
	MakespanDelta      int64   `json:"makespanDelta"`
	UtilizationBefore  float64 `json:"utilizationBefore"`
	UtilizationAfter   float64 `json:"utilizationAfter"`
	DeadlinesMetBefore int     `json:"deadlinesMetBefore"`
	DeadlinesMetAfter  int     `json:"deadlinesMetAfter"`
}

// ImpactAnalysis 前後排程的結構化比較
type ImpactAnalysis struct {
	JobImpacts    []JobImpact   `json:"jobImpacts"`
	GlobalMetrics GlobalMetrics `json:"globalMetrics"`
}

// SimulateRequest simulate 操作的輸入
type SimulateRequest struct {
	Scenario            Scenario   `json:"scenario"`
	CurrentSolveRequest Request    `json:"currentSolveRequest"`
	CurrentTasks        []FlatTask `json:"currentTasks"`
}

// SimulatedSchedule 修改後重新求解得到的排程
type SimulatedSchedule struct {
	Tasks             []TaskResult `json:"tasks"`
	Makespan          int64        `json:"makespan"`
	WeightedTardiness int64        `json:"tardiness"`
	Logs              []string     `json:"logs"`
	UpdatedAt         string       `json:"updatedAt"`
}

// SimulateResult simulate 操作的回傳值
type SimulateResult struct {
	Status            Status             `json:"status"`
	SimulationID      string             `json:"simulationId,omitempty"`
	SimulatedSchedule *SimulatedSchedule `json:"simulatedSchedule,omitempty"`
	ImpactAnalysis    *ImpactAnalysis    `json:"impactAnalysis,omitempty"`
	Logs              []string           `json:"logs,omitempty"`
	Error             string             `json:"error,omitempty"`
	Traceback         string             `json:"traceback,omitempty"`
}
