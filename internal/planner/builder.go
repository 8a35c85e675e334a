package planner

import (
	"fmt"

	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// builder carries the state of one Build call.
type builder struct {
	req  types.Request
	opts Options
	p    *Problem

	lineIndex     map[string]int
	operatorIndex map[string]int
}

// Build turns a request into a Problem. It never fails: conflicting pins or
// tasks without candidates yield a model the search proves infeasible.
func Build(req types.Request, opts Options) *Problem {
	b := &builder{
		req:  req,
		opts: opts,
		p: &Problem{
			Model:   cpmodel.NewModel("production_schedule"),
			Horizon: req.TotalDuration() + opts.HorizonBuffer,
		},
		lineIndex:     make(map[string]int),
		operatorIndex: make(map[string]int),
	}

	b.addResources()
	b.addTasks()
	b.addPrecedence()
	b.applyAvailability()
	b.addExclusivity()
	b.addSetupRoutes()
	b.composeObjective()

	return b.p
}

func (b *builder) addResources() {
	for _, l := range b.req.Lines {
		b.line(l.ID, l.Name)
	}
	for _, o := range b.req.Operators {
		if _, ok := b.operatorIndex[o.ID]; ok {
			continue
		}
		b.operatorIndex[o.ID] = len(b.p.Operators)
		b.p.Operators = append(b.p.Operators, Resource{ID: o.ID, Name: o.Name, Kind: KindOperator})
	}
}

// line returns the index of a line, registering ids that only appear in a
// task's eligible set.
func (b *builder) line(id, name string) int {
	if i, ok := b.lineIndex[id]; ok {
		return i
	}
	if name == "" {
		name = id
	}
	b.lineIndex[id] = len(b.p.Lines)
	b.p.Lines = append(b.p.Lines, Resource{ID: id, Name: name, Kind: KindLine})
	return len(b.p.Lines) - 1
}

func (b *builder) addTasks() {
	m := b.p.Model
	horizon := b.p.Horizon

	for ji, job := range b.req.Jobs {
		jv := JobVars{
			ID:       job.ID,
			Name:     job.Name,
			Color:    job.Color,
			Priority: job.Priority,
			DueDate:  job.DueDate,
		}

		for ti, task := range job.Tasks {
			suffix := fmt.Sprintf("_%d_%d", ji, ti)
			tv := TaskVars{
				Key:   types.TaskKey{JobID: job.ID, Index: ti},
				Job:   ji,
				Task:  task.Clone(),
				Start: m.NewIntVar(0, horizon, "start"+suffix),
				End:   m.NewIntVar(0, horizon, "end"+suffix),
			}
			tv.Interval = m.NewIntervalVar(tv.Start, tv.End, task.Duration, "task"+suffix)

			if task.ManualStart != nil {
				m.AddEquality(tv.Start, *task.ManualStart).Name = "manual_start" + suffix
			}

			taskIndex := len(b.p.Tasks)
			tv.Lines = b.lineChoices(taskIndex, tv, suffix)
			tv.Operators = b.operatorChoices(taskIndex, tv, suffix)

			if len(tv.Lines) == 0 {
				b.p.Diagnostics = append(b.p.Diagnostics,
					fmt.Sprintf("task %s (%s) has no eligible line", tv.Key, task.Name))
			}
			if len(tv.Operators) == 0 {
				b.p.Diagnostics = append(b.p.Diagnostics,
					fmt.Sprintf("task %s (%s) has no operator with skill %q", tv.Key, task.Name, task.Skill))
			}

			b.p.Tasks = append(b.p.Tasks, tv)
			jv.Tasks = append(jv.Tasks, taskIndex)
		}

		b.p.Jobs = append(b.p.Jobs, jv)
	}
}

// lineChoices creates one presence indicator and optional interval per
// eligible line; exactly one must be chosen.
func (b *builder) lineChoices(taskIndex int, tv TaskVars, suffix string) []Choice {
	m := b.p.Model
	seen := make(map[string]bool)
	var choices []Choice

	for _, lineID := range tv.Task.EligibleLines {
		if seen[lineID] {
			continue
		}
		seen[lineID] = true

		li := b.line(lineID, "")
		alt := suffix + "_" + lineID
		presence := m.NewBoolVar("presence" + alt)
		iv := m.NewOptionalIntervalVar(tv.Start, tv.End, tv.Task.Duration, presence, "interval"+alt)

		choices = append(choices, Choice{Resource: li, Presence: presence, Interval: iv})
		b.p.Lines[li].Tasks = append(b.p.Lines[li].Tasks, taskIndex)
		b.p.Lines[li].Intervals = append(b.p.Lines[li].Intervals, iv)
	}

	if len(choices) > 0 {
		m.AddExactlyOne("one_line"+suffix, presences(choices)...)
	}
	return choices
}

// operatorChoices does the same for every operator holding the required skill.
func (b *builder) operatorChoices(taskIndex int, tv TaskVars, suffix string) []Choice {
	m := b.p.Model
	seen := make(map[string]bool)
	var choices []Choice

	for _, op := range b.req.Operators {
		if seen[op.ID] || !op.HasSkill(tv.Task.Skill) {
			continue
		}
		seen[op.ID] = true
		oi := b.operatorIndex[op.ID]

		alt := suffix + "_op_" + op.ID
		presence := m.NewBoolVar("presence" + alt)
		iv := m.NewOptionalIntervalVar(tv.Start, tv.End, tv.Task.Duration, presence, "interval"+alt)

		choices = append(choices, Choice{Resource: oi, Presence: presence, Interval: iv})
		b.p.Operators[oi].Tasks = append(b.p.Operators[oi].Tasks, taskIndex)
		b.p.Operators[oi].Intervals = append(b.p.Operators[oi].Intervals, iv)
	}

	if len(choices) > 0 {
		m.AddExactlyOne("one_operator"+suffix, presences(choices)...)
	}
	return choices
}

func presences(choices []Choice) []cpmodel.Literal {
	lits := make([]cpmodel.Literal, len(choices))
	for i, c := range choices {
		lits[i] = c.Presence
	}
	return lits
}

// addPrecedence enforces start(i+1) >= end(i) inside every job.
func (b *builder) addPrecedence() {
	m := b.p.Model
	for ji, job := range b.p.Jobs {
		for k := 0; k+1 < len(job.Tasks); k++ {
			prev, next := b.p.Tasks[job.Tasks[k]], b.p.Tasks[job.Tasks[k+1]]
			m.AddPrecedence(prev.End, next.Start, 0).Name = fmt.Sprintf("precedence_%d_%d", ji, k)
		}
	}
}
