package whatif

import (
	"math"
	"time"

	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

const (
	// ThresholdMinutes separates a neutral completion shift from a real one.
	ThresholdMinutes = 30

	// Placeholder utilization figures; not derived from either schedule.
	placeholderUtilizationBefore = 75.0
	placeholderUtilizationAfter  = 73.0

	timestampLayout = "2006-01-02T15:04:05"
)

// BaseTime anchors minute offsets when rendering completion timestamps.
var BaseTime = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

type completion struct {
	name string
	end  int64
}

// completions groups tasks by job id, keeping first-seen order, and takes
// the latest start+duration per job.
func completions(tasks []types.FlatTask) ([]string, map[string]completion) {
	var order []string
	byJob := make(map[string]completion)
	for _, t := range tasks {
		c, ok := byJob[t.JobID]
		if !ok {
			order = append(order, t.JobID)
			byJob[t.JobID] = completion{name: t.JobName, end: t.End()}
			continue
		}
		if t.End() > c.end {
			c.end = t.End()
			byJob[t.JobID] = c
		}
	}
	return order, byJob
}

// Analyze compares two schedules job by job. Only jobs of the before-set are
// reported; a job missing from the after-set counts as unchanged.
func Analyze(before, after []types.FlatTask, makespanBefore, makespanAfter int64) types.ImpactAnalysis {
	order, was := completions(before)
	_, now := completions(after)

	impacts := make([]types.JobImpact, 0, len(order))
	for _, id := range order {
		b := was[id]
		a, ok := now[id]
		if !ok {
			a = b
		}

		delta := a.end - b.end
		status := types.ImpactNeutral
		switch {
		case delta < -ThresholdMinutes:
			status = types.ImpactImproved
		case delta > ThresholdMinutes:
			status = types.ImpactDegraded
		}

		name := b.name
		if name == "" {
			name = id
		}
		impacts = append(impacts, types.JobImpact{
			JobID:         id,
			JobName:       name,
			EndTimeBefore: Timestamp(b.end),
			EndTimeAfter:  Timestamp(a.end),
			DeltaHours:    math.Round(float64(delta)/60*100) / 100,
			Status:        status,
		})
	}

	metBefore, metAfter := 0, 0
	for _, ji := range impacts {
		if ji.DeltaHours <= 0 {
			metBefore++
		}
		if ji.Status != types.ImpactDegraded {
			metAfter++
		}
	}

	return types.ImpactAnalysis{
		JobImpacts: impacts,
		GlobalMetrics: types.GlobalMetrics{
			MakespanBefore:     makespanBefore,
			MakespanAfter:      makespanAfter,
			MakespanDelta:      makespanAfter - makespanBefore,
			UtilizationBefore:  placeholderUtilizationBefore,
			UtilizationAfter:   placeholderUtilizationAfter,
			DeadlinesMetBefore: metBefore,
			DeadlinesMetAfter:  metAfter,
		},
	}
}

// Makespan is the latest start+duration of a flat task list, 0 when empty.
func Makespan(tasks []types.FlatTask) int64 {
	var m int64
	for _, t := range tasks {
		if t.End() > m {
			m = t.End()
		}
	}
	return m
}

// Timestamp renders a minute offset from BaseTime.
func Timestamp(minutes int64) string {
	return BaseTime.Add(time.Duration(minutes) * time.Minute).Format(timestampLayout)
}
