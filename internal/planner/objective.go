package planner

import (
	"fmt"

	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
)

// composeObjective builds
//
//	minimize  W1 * sum(priority_j * max(0, finish_j - due_j))
//	        + W2 * max(finish_j)
//	        + W3 * sum(start_t)
//
// Jobs without tasks contribute nothing; with no such jobs both aggregates are 0.
func (b *builder) composeObjective() {
	m := b.p.Model
	horizon := b.p.Horizon
	w := b.opts.Weights

	var weighted []cpmodel.IntVar
	var finishes []cpmodel.LinearExpr
	var totalMax int64

	for ji := range b.p.Jobs {
		job := &b.p.Jobs[ji]
		if !job.HasTasks() {
			continue
		}
		last := b.p.Tasks[job.Tasks[len(job.Tasks)-1]]
		finishes = append(finishes, cpmodel.Expr(last.End))

		maxTardiness := horizon - job.DueDate
		if maxTardiness < 0 {
			maxTardiness = 0
		}
		job.Tardiness = m.NewIntVar(0, maxTardiness, fmt.Sprintf("tardiness_j%d", ji))
		m.AddMaxEquality(fmt.Sprintf("tardiness_j%d", ji), job.Tardiness,
			cpmodel.Expr(last.End).AddConst(-job.DueDate), cpmodel.Const(0))

		maxWeighted := maxTardiness * job.Priority
		job.WeightedTardiness = m.NewIntVar(0, maxWeighted, fmt.Sprintf("weighted_tardiness_j%d", ji))
		m.AddLinear(cpmodel.Expr(job.WeightedTardiness).Plus(job.Tardiness, -job.Priority), 0, 0).Name =
			fmt.Sprintf("weighted_tardiness_j%d", ji)

		weighted = append(weighted, job.WeightedTardiness)
		totalMax += maxWeighted
	}

	obj := &b.p.Objective
	obj.Weights = w
	obj.TotalTardiness = m.NewIntVar(0, totalMax, "tardiness")
	total := cpmodel.Expr(obj.TotalTardiness)
	for _, v := range weighted {
		total = total.Plus(v, -1)
	}
	m.AddLinear(total, 0, 0).Name = "total_tardiness"

	obj.Makespan = m.NewIntVar(0, horizon, "makespan")
	if len(finishes) > 0 {
		m.AddMaxEquality("makespan", obj.Makespan, finishes...)
	} else {
		m.AddEquality(obj.Makespan, 0).Name = "makespan"
	}

	expr := cpmodel.LinearExpr{}.Plus(obj.TotalTardiness, w.Tardiness).Plus(obj.Makespan, w.Makespan)
	for _, t := range b.p.Tasks {
		expr = expr.Plus(t.Start, w.Start)
	}
	m.Minimize(expr)
}
