// ============================================================================
// Solver - budgeted deterministic search
// ============================================================================
//
// Package: internal/solver
// File: solver.go
// Purpose: Fills in a planner.Problem with a depth-first branch-and-bound
//          search and verifies the result against the model.
//
// Search outline:
//   1. Dispatch: pick one ready task (the next task of some job), one
//      eligible line and one capable operator, place it as early as allowed
//   2. Order: dispatched start times are non-decreasing, which keeps every
//      semi-active schedule reachable exactly once per resource order
//   3. Bound: prune a node whose optimistic objective cannot beat the
//      incumbent
//   4. Waves: limited-discrepancy waves (at most 3 non-first choices per
//      path) spend up to a quarter of the branch budget to seed the incumbent
//      before the complete search, so early decisions get revisited too
//   5. Budget: a branch limit (deterministic) and a wall-clock limit
//
// ============================================================================

package solver

import (
	"errors"
	"fmt"
	"time"

	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
	"github.com/ChuLiYu/shopfloor-planner/internal/planner"
)

// Status is the outcome of a search.
type Status string

const (
	StatusOptimal    Status = "OPTIMAL"    // search completed with an incumbent
	StatusFeasible   Status = "FEASIBLE"   // budget reached with an incumbent
	StatusInfeasible Status = "INFEASIBLE" // search completed without any schedule
	StatusUnknown    Status = "UNKNOWN"    // budget reached before any schedule
)

// HasSolution reports whether an assignment is available.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

var (
	// ErrInvalidSolution is returned when the search produced an assignment
	// the model rejects. It always indicates a defect, never bad input.
	ErrInvalidSolution = errors.New("solver produced an invalid assignment")
)

// Params bounds the search.
type Params struct {
	TimeLimit   time.Duration `yaml:"time_limit"`
	BranchLimit int64         `yaml:"branch_limit"`
}

// DefaultParams returns the production budget.
func DefaultParams() Params {
	return Params{
		TimeLimit:   10 * time.Second,
		BranchLimit: 2_000_000,
	}
}

// Stats are the search diagnostics.
type Stats struct {
	Branches  int64
	Conflicts int64
	WallTime  time.Duration
}

// Solution is the result of Solve. Assignment and Placements are nil unless
// Status.HasSolution.
type Solution struct {
	Status     Status
	Assignment cpmodel.Assignment
	Placements []planner.Placement
	Objective  int64
	Stats      Stats
	Reasons    []string // why no schedule exists, when known
}

// Solve searches p within params.
func Solve(p *planner.Problem, params Params) (Solution, error) {
	if params.TimeLimit <= 0 {
		params.TimeLimit = DefaultParams().TimeLimit
	}
	if params.BranchLimit <= 0 {
		params.BranchLimit = DefaultParams().BranchLimit
	}

	began := time.Now()
	sol := Solution{}

	if reasons := precheck(p); len(reasons) > 0 {
		sol.Status = StatusInfeasible
		sol.Reasons = reasons
		sol.Stats.WallTime = time.Since(began)
		return sol, nil
	}

	s := newSearch(p, params, began)
	s.run()

	sol.Stats = Stats{Branches: s.branches, Conflicts: s.conflicts, WallTime: time.Since(began)}
	switch {
	case s.found && !s.stopped:
		sol.Status = StatusOptimal
	case s.found:
		sol.Status = StatusFeasible
	case s.stopped:
		sol.Status = StatusUnknown
	default:
		sol.Status = StatusInfeasible
	}
	if !s.found {
		return sol, nil
	}

	sol.Placements = s.best
	sol.Assignment = p.Assign(s.best)
	if err := p.Model.Check(sol.Assignment); err != nil {
		return Solution{Status: StatusUnknown, Stats: sol.Stats}, fmt.Errorf("%w: %w", ErrInvalidSolution, err)
	}
	sol.Objective = p.Model.ObjectiveValue(sol.Assignment)
	return sol, nil
}

// precheck reports tasks that no search can place.
func precheck(p *planner.Problem) []string {
	var reasons []string
	reasons = append(reasons, p.Diagnostics...)

	for _, t := range p.Tasks {
		pin, ok := t.Pin()
		if !ok {
			continue
		}
		if pin < 0 || pin+t.Duration() > p.Horizon {
			reasons = append(reasons,
				fmt.Sprintf("task %s manual start %d outside horizon [0, %d]", t.Key, pin, p.Horizon-t.Duration()))
		}
	}
	return reasons
}
