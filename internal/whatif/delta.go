// ============================================================================
// What-If - scenario delta engine and impact analyzer
// ============================================================================
//
// Package: internal/whatif
// File: delta.go
// Purpose: Applies an ordered list of modifications to a deep copy of a base
//          request. The base request is never touched so it can be compared
//          against afterwards.
//
// Modification kinds:
//   delay_order          - pin every task of a job to (pin + minutes) or minutes
//   machine_down         - remove a line globally and from every eligible set
//   operator_unavailable - remove an operator
//   task_move            - pin one task, resolved through its TaskKey
//
// Unknown kinds and modifications that cannot be applied are skipped; the
// rest of the scenario still runs.
//
// ============================================================================

package whatif

import (
	"fmt"

	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// Outcome of applying one modification.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
)

// Report describes what happened to one modification.
type Report struct {
	Kind    types.ModificationKind
	Outcome Outcome
	Message string
}

// Apply returns a mutated clone of base plus one report per modification.
func Apply(base types.Request, mods []types.Modification) (types.Request, []Report) {
	req := base.Clone()
	reports := make([]Report, 0, len(mods))

	for _, mod := range mods {
		var r Report
		switch m := mod.(type) {
		case types.DelayOrder:
			r = delayOrder(&req, m)
		case types.MachineDown:
			r = machineDown(&req, m)
		case types.OperatorUnavailable:
			r = operatorUnavailable(&req, m)
		case types.TaskMove:
			r = taskMove(&req, m)
		case types.InvalidModification:
			r = skipped(m.Type, "invalid %s modification: %s", m.Type, m.Reason)
		default:
			r = skipped(mod.Kind(), "unknown modification type %q ignored", mod.Kind())
		}
		reports = append(reports, r)
	}
	return req, reports
}

// Logs flattens reports into diagnostic lines.
func Logs(reports []Report) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.Message
	}
	return out
}

func applied(kind types.ModificationKind, format string, args ...any) Report {
	return Report{Kind: kind, Outcome: OutcomeApplied, Message: fmt.Sprintf(format, args...)}
}

func skipped(kind types.ModificationKind, format string, args ...any) Report {
	return Report{Kind: kind, Outcome: OutcomeSkipped, Message: fmt.Sprintf(format, args...)}
}

func delayOrder(req *types.Request, m types.DelayOrder) Report {
	minutes := m.DelayMinutes()
	for ji := range req.Jobs {
		job := &req.Jobs[ji]
		if job.ID != m.OrderID {
			continue
		}
		for ti := range job.Tasks {
			task := &job.Tasks[ti]
			pin := minutes
			if task.ManualStart != nil {
				pin += *task.ManualStart
			}
			task.ManualStart = &pin
		}
		return applied(m.Kind(), "Delayed order %s by %d min (%d tasks pinned)", m.OrderID, minutes, len(job.Tasks))
	}
	return skipped(m.Kind(), "delay_order: order %s not found", m.OrderID)
}

func machineDown(req *types.Request, m types.MachineDown) Report {
	lines := req.Lines[:0]
	for _, l := range req.Lines {
		if l.ID != m.MachineID {
			lines = append(lines, l)
		}
	}
	req.Lines = lines

	affected := 0
	for ji := range req.Jobs {
		for ti := range req.Jobs[ji].Tasks {
			task := &req.Jobs[ji].Tasks[ti]
			kept := task.EligibleLines[:0]
			for _, id := range task.EligibleLines {
				if id != m.MachineID {
					kept = append(kept, id)
				}
			}
			if len(kept) != len(task.EligibleLines) {
				affected++
			}
			task.EligibleLines = kept
		}
	}
	return applied(m.Kind(), "Machine %s down (%d tasks lost an eligible line)", m.MachineID, affected)
}

func operatorUnavailable(req *types.Request, m types.OperatorUnavailable) Report {
	ops := req.Operators[:0]
	for _, o := range req.Operators {
		if o.ID != m.OperatorID {
			ops = append(ops, o)
		}
	}
	removed := len(req.Operators) - len(ops)
	req.Operators = ops
	return applied(m.Kind(), "Operator %s unavailable (%d removed)", m.OperatorID, removed)
}

func taskMove(req *types.Request, m types.TaskMove) Report {
	for ji := range req.Jobs {
		job := &req.Jobs[ji]
		if job.ID != m.Key.JobID {
			continue
		}
		if m.Key.Index < 0 || m.Key.Index >= len(job.Tasks) {
			return skipped(m.Kind(), "task_move: task index %d out of range for job %s (%d tasks)",
				m.Key.Index, job.ID, len(job.Tasks))
		}
		pin := m.NewStart
		job.Tasks[m.Key.Index].ManualStart = &pin
		return applied(m.Kind(), "Moved task %s to %d", m.Key, pin)
	}
	return skipped(m.Kind(), "task_move: job %s not found for task %s", m.Key.JobID, m.TaskID)
}
