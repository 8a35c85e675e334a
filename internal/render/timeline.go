// Package render draws a solved schedule as a terminal timeline: one row per
// line and per operator, task blocks coloured by the job color tag.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChuLiYu/shopfloor-planner/internal/planner"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

const (
	defaultWidth = 60
	blockCell    = "█"
	idleCell     = "·"
	fallbackTint = "#A0AEC0"
)

// styles bound to one renderer
type styles struct {
	r      *lipgloss.Renderer
	title  lipgloss.Style
	label  lipgloss.Style
	failed lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		r:      r,
		title:  r.NewStyle().Bold(true),
		label:  r.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		failed: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
}

func (st styles) tint(color string) lipgloss.Style {
	if color == "" {
		color = fallbackTint
	}
	return st.r.NewStyle().Foreground(lipgloss.Color(color))
}

// Options tunes the timeline.
type Options struct {
	Width    int                // timeline cells, defaults to 60
	Renderer *lipgloss.Renderer // nil uses the default renderer
}

type row struct {
	label string
	cells []string
}

// Timeline renders res. A failed result renders its logs instead.
func Timeline(res types.SolveResult, opts Options) string {
	r := opts.Renderer
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	st := newStyles(r)

	var b strings.Builder
	if !res.Succeeded() {
		b.WriteString(st.failed.Render("No schedule"))
		b.WriteString("\n")
		for _, l := range res.Logs {
			b.WriteString("  " + l + "\n")
		}
		return b.String()
	}

	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	scale := int64(1)
	if res.Makespan > int64(width) {
		scale = (res.Makespan + int64(width) - 1) / int64(width)
	}
	cells := int((res.Makespan + scale - 1) / scale)

	fmt.Fprintf(&b, "%s  makespan %d  weighted tardiness %d  (1 cell = %d min)\n",
		st.title.Render("Schedule"), res.Makespan, res.WeightedTardiness, scale)

	lines := rows(res.Tasks, cells, scale, st, func(t types.TaskResult) string { return t.Line }, func(t types.TaskResult) string { return t.LineName })
	ops := rows(res.Tasks, cells, scale, st, func(t types.TaskResult) string { return t.OperatorID }, func(t types.TaskResult) string { return t.OperatorName })

	labelWidth := 0
	for _, rw := range append(append([]row{}, lines...), ops...) {
		labelWidth = max(labelWidth, len(rw.label))
	}

	section := func(name string, rs []row) {
		b.WriteString(st.title.Render(name) + "\n")
		for _, rw := range rs {
			label := st.label.Render(fmt.Sprintf("%-*s", labelWidth, rw.label))
			b.WriteString("  " + label + " │" + strings.Join(rw.cells, "") + "│\n")
		}
	}
	section("Lines", lines)
	section("Operators", ops)

	b.WriteString(st.title.Render("Jobs") + "\n")
	seen := make(map[string]bool)
	for _, t := range res.Tasks {
		if seen[t.JobID] {
			continue
		}
		seen[t.JobID] = true
		swatch := st.tint(t.Color).Render(blockCell + blockCell)
		name := t.JobName
		if name == "" {
			name = t.JobID
		}
		fmt.Fprintf(&b, "  %s %s (due %d)\n", swatch, name, t.DueDate)
	}
	return b.String()
}

// rows builds one row per resource in first-use order. Tasks without a
// resource and zero-duration tasks draw nothing.
func rows(tasks []types.TaskResult, cells int, scale int64, st styles, id, name func(types.TaskResult) string) []row {
	var out []row
	index := make(map[string]int)

	for _, t := range tasks {
		rid := id(t)
		if rid == "" || rid == planner.NotAssigned {
			continue
		}
		i, ok := index[rid]
		if !ok {
			label := rid
			if n := name(t); n != "" && n != rid {
				label = fmt.Sprintf("%s %s", rid, n)
			}
			blank := make([]string, cells)
			for c := range blank {
				blank[c] = idleCell
			}
			i = len(out)
			index[rid] = i
			out = append(out, row{label: label, cells: blank})
		}
		if t.Duration == 0 {
			continue
		}

		from := int(t.Start / scale)
		to := int((t.End + scale - 1) / scale)
		block := st.tint(t.Color).Render(blockCell)
		for c := from; c < to && c < cells; c++ {
			out[i].cells[c] = block
		}
	}
	return out
}
