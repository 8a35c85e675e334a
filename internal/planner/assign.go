package planner

import (
	"sort"

	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
)

// Placement is the decision taken for one task: its start and the position
// of the chosen line and operator in TaskVars.Lines / TaskVars.Operators
// (-1 when the task has no candidate in that pool). Order is the dispatch
// position and breaks start/end ties on a routed line.
type Placement struct {
	Start    int64
	Line     int
	Operator int
	Order    int
}

// Assign derives a complete assignment of every model variable from one
// placement per task: timing, presence indicators, circuit arcs and the
// objective aggregates. The result still has to pass Model.Check.
func (p *Problem) Assign(placements []Placement) cpmodel.Assignment {
	a := cpmodel.NewAssignment(p.Model)

	for ti, t := range p.Tasks {
		pl := placements[ti]
		a.Set(t.Start, pl.Start)
		a.Set(t.End, pl.Start+t.Duration())
		for ci, c := range t.Lines {
			a.SetLiteral(c.Presence, ci == pl.Line)
		}
		for ci, c := range t.Operators {
			a.SetLiteral(c.Presence, ci == pl.Operator)
		}
	}

	for _, line := range p.Lines {
		if line.Route != nil {
			assignRoute(a, p, line.Route, placements)
		}
	}

	var total, makespan int64
	for _, job := range p.Jobs {
		if !job.HasTasks() {
			continue
		}
		finish := a.Value(p.Tasks[job.Tasks[len(job.Tasks)-1]].End)
		tardiness := finish - job.DueDate
		if tardiness < 0 {
			tardiness = 0
		}
		a.Set(job.Tardiness, tardiness)
		a.Set(job.WeightedTardiness, tardiness*job.Priority)
		total += tardiness * job.Priority
		if finish > makespan {
			makespan = finish
		}
	}
	a.Set(p.Objective.TotalTardiness, total)
	a.Set(p.Objective.Makespan, makespan)

	return a
}

// assignRoute orders the present nodes by start time and closes the tour
// through the depot.
func assignRoute(a cpmodel.Assignment, p *Problem, r *Route, placements []Placement) {
	for _, arc := range r.Arcs {
		a.SetLiteral(arc.Literal, false)
	}

	var present []int
	for i, n := range r.Nodes {
		if a.BoolValue(n.Presence) {
			present = append(present, i+1)
		}
	}
	a.SetLiteral(r.Empty, len(present) == 0)
	if len(present) == 0 {
		return
	}

	task := func(node int) int { return r.Nodes[node-1].Task }
	sort.SliceStable(present, func(i, j int) bool {
		ti, tj := p.Tasks[task(present[i])], p.Tasks[task(present[j])]
		if si, sj := a.Value(ti.Start), a.Value(tj.Start); si != sj {
			return si < sj
		}
		if ei, ej := a.Value(ti.End), a.Value(tj.End); ei != ej {
			return ei < ej
		}
		return placements[task(present[i])].Order < placements[task(present[j])].Order
	})

	tour := append([]int{Depot}, present...)
	tour = append(tour, Depot)
	for k := 0; k+1 < len(tour); k++ {
		if lit, ok := r.Arc(tour[k], tour[k+1]); ok {
			a.SetLiteral(lit, true)
		}
	}
}

// Sequence returns the task indices placed on a routed line in tour order.
func (r *Route) Sequence(a cpmodel.Assignment) []int {
	next := make(map[int]int)
	for _, arc := range r.Arcs {
		if a.BoolValue(arc.Literal) {
			next[arc.Tail] = arc.Head
		}
	}

	var seq []int
	for node, ok := next[Depot]; ok && node != Depot && len(seq) < len(r.Nodes); node, ok = next[node] {
		seq = append(seq, r.Nodes[node-1].Task)
	}
	return seq
}
