// ============================================================================
// Planner - request to constraint model
// ============================================================================
//
// Package: internal/planner
// File: problem.go
// Purpose: Translates a validated scheduling request into a cpmodel.Model and
//          keeps typed handles to every variable so the search engine can fill
//          them in and the extractor can read them back.
//
// Pipeline (Build):
//   1. Problem Builder      - horizon, task timing, line/operator choice, precedence
//   2. Availability Mask    - unavailable gaps as fixed intervals per resource
//   3. Exclusivity Engine   - one no-overlap per line and per operator
//   4. Setup-Time Router    - circuit per line that declares setup times
//   5. Objective Composer   - weighted tardiness, makespan, start compaction
//
// ============================================================================

package planner

import (
	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// NotAssigned is reported for a task dimension without any candidate resource.
const NotAssigned = "N/A"

// Weights of the scalar objective. Tardiness >> Makespan >> Start approximates
// a lexicographic order.
type Weights struct {
	Tardiness int64 `yaml:"tardiness"`
	Makespan  int64 `yaml:"makespan"`
	Start     int64 `yaml:"start"`
}

// Options tunes model construction.
type Options struct {
	HorizonBuffer int64   `yaml:"horizon_buffer"`
	Weights       Weights `yaml:"weights"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HorizonBuffer: 1000,
		Weights:       Weights{Tardiness: 10000, Makespan: 100, Start: 1},
	}
}

// ResourceKind distinguishes the two resource pools.
type ResourceKind string

const (
	KindLine     ResourceKind = "line"
	KindOperator ResourceKind = "operator"
)

// Choice is one candidate resource of a task.
type Choice struct {
	Resource int // index into Problem.Lines or Problem.Operators
	Presence cpmodel.Literal
	Interval cpmodel.IntervalVar
}

// TaskVars holds the variables of one task.
type TaskVars struct {
	Key       types.TaskKey
	Job       int // index into Problem.Jobs
	Task      types.Task
	Start     cpmodel.IntVar
	End       cpmodel.IntVar
	Interval  cpmodel.IntervalVar
	Lines     []Choice
	Operators []Choice
}

// Duration returns the task duration.
func (t TaskVars) Duration() int64 { return t.Task.Duration }

// Pin returns the manual start and whether it is set.
func (t TaskVars) Pin() (int64, bool) {
	if t.Task.ManualStart == nil {
		return 0, false
	}
	return *t.Task.ManualStart, true
}

// JobVars holds the per-job objective variables.
type JobVars struct {
	ID       string
	Name     string
	Color    string
	Priority int64
	DueDate  int64
	Tasks    []int // indices into Problem.Tasks in precedence order

	Tardiness         cpmodel.IntVar
	WeightedTardiness cpmodel.IntVar
}

// HasTasks reports whether the job contributes to the objective.
func (j JobVars) HasTasks() bool { return len(j.Tasks) > 0 }

// Gap is a span in which a resource cannot be used.
type Gap struct {
	Start, End int64
	Interval   cpmodel.IntervalVar
}

// Resource is a line or an operator.
type Resource struct {
	ID        string
	Name      string
	Kind      ResourceKind
	Tasks     []int // candidate tasks, in the order their intervals were added
	Intervals []cpmodel.IntervalVar
	Gaps      []Gap
	Masked    bool // declared an availability entry
	Route     *Route
}

// Objective holds the aggregate objective variables.
type Objective struct {
	TotalTardiness cpmodel.IntVar
	Makespan       cpmodel.IntVar
	Weights        Weights
}

// Problem is the built model plus typed handles.
type Problem struct {
	Model       *cpmodel.Model
	Horizon     int64
	Tasks       []TaskVars
	Jobs        []JobVars
	Lines       []Resource
	Operators   []Resource
	Objective   Objective
	Diagnostics []string
}

// LineByID returns the index of a line, or -1.
func (p *Problem) LineByID(id string) int {
	for i, l := range p.Lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// OperatorByID returns the index of an operator, or -1.
func (p *Problem) OperatorByID(id string) int {
	for i, o := range p.Operators {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// TaskByKey returns the index of a task, or -1.
func (p *Problem) TaskByKey(key types.TaskKey) int {
	for i, t := range p.Tasks {
		if t.Key == key {
			return i
		}
	}
	return -1
}
