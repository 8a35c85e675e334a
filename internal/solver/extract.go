package solver

import (
	"fmt"

	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
	"github.com/ChuLiYu/shopfloor-planner/internal/planner"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// Extract maps a solution back onto the request vocabulary. A solution
// without an assignment becomes a failed result carrying only logs.
func Extract(p *planner.Problem, sol Solution) types.SolveResult {
	statusLine := fmt.Sprintf("Solver Status: %s", sol.Status)

	if !sol.Status.HasSolution() || sol.Assignment == nil {
		logs := []string{statusLine, "Infeasible constraints. Potential conflict with manual overrides."}
		logs = append(logs, sol.Reasons...)
		if sol.Status == StatusUnknown {
			logs = append(logs, fmt.Sprintf("No schedule found within the search budget (%d branches, %.3fs).",
				sol.Stats.Branches, sol.Stats.WallTime.Seconds()))
		}
		return types.SolveResult{Status: types.StatusFailed, Logs: logs}
	}

	a := sol.Assignment
	res := types.SolveResult{
		Status:            types.StatusSuccess,
		Makespan:          a.Value(p.Objective.Makespan),
		WeightedTardiness: a.Value(p.Objective.TotalTardiness),
		Objective:         sol.Objective,
		Stats: &types.SolveStats{
			SolverStatus: string(sol.Status),
			Branches:     sol.Stats.Branches,
			Conflicts:    sol.Stats.Conflicts,
			WallTime:     sol.Stats.WallTime.Seconds(),
		},
	}

	for _, t := range p.Tasks {
		job := p.Jobs[t.Job]
		line, lineName := chosen(a, t.Lines, p.Lines)
		op, opName := chosen(a, t.Operators, p.Operators)

		var pin *int64
		if v, ok := t.Pin(); ok {
			pin = &v
		}

		res.Tasks = append(res.Tasks, types.TaskResult{
			ID:           t.Task.ID,
			JobID:        job.ID,
			JobName:      job.Name,
			Name:         t.Task.Name,
			Line:         line,
			LineName:     lineName,
			OperatorID:   op,
			OperatorName: opName,
			Start:        a.Value(t.Start),
			End:          a.Value(t.End),
			Duration:     t.Duration(),
			Color:        job.Color,
			Priority:     job.Priority,
			DueDate:      job.DueDate,
			ManualStart:  pin,
		})
	}

	for _, job := range p.Jobs {
		if !job.HasTasks() {
			continue
		}
		res.Jobs = append(res.Jobs, types.JobSummary{
			JobID:             job.ID,
			JobName:           job.Name,
			Finish:            a.Value(p.Tasks[job.Tasks[len(job.Tasks)-1]].End),
			DueDate:           job.DueDate,
			Tardiness:         a.Value(job.Tardiness),
			WeightedTardiness: a.Value(job.WeightedTardiness),
		})
	}

	res.Logs = []string{
		statusLine,
		fmt.Sprintf("Objective (Weighted Tardiness): %d", res.WeightedTardiness),
		fmt.Sprintf("Production Makespan: %d", res.Makespan),
	}
	return res
}

// chosen returns the first resource whose presence indicator is true.
func chosen(a cpmodel.Assignment, choices []planner.Choice, pool []planner.Resource) (string, string) {
	for _, c := range choices {
		if a.BoolValue(c.Presence) {
			r := pool[c.Resource]
			return r.ID, r.Name
		}
	}
	return planner.NotAssigned, planner.NotAssigned
}
