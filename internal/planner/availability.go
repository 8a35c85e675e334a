package planner

import (
	"fmt"
	"sort"

	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// UnavailableGaps returns the complement of the available windows over
// [0, horizon). An empty window list means the resource is never available.
func UnavailableGaps(windows []types.AvailabilityInterval, horizon int64) [][2]int64 {
	sorted := append([]types.AvailabilityInterval(nil), windows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var gaps [][2]int64
	cursor := int64(0)
	for _, w := range sorted {
		start, end := clamp(w.Start, horizon), clamp(w.End, horizon)
		if start > cursor {
			gaps = append(gaps, [2]int64{cursor, start})
		}
		if end > cursor {
			cursor = end
		}
	}
	if cursor < horizon {
		gaps = append(gaps, [2]int64{cursor, horizon})
	}
	return gaps
}

func clamp(v, horizon int64) int64 {
	if v < 0 {
		return 0
	}
	if v > horizon {
		return horizon
	}
	return v
}

// applyAvailability injects one fixed interval per unavailable gap into the
// resource that declared the windows. Resources without an entry are skipped.
// Several entries for one resource are merged: it is available whenever any
// of them says so.
func (b *builder) applyAvailability() {
	m := b.p.Model

	var order []*Resource
	windows := make(map[*Resource][]types.AvailabilityInterval)
	for _, av := range b.req.Availabilities {
		targets := make([]*Resource, 0, 2)
		if li, ok := b.lineIndex[av.ResourceID]; ok {
			targets = append(targets, &b.p.Lines[li])
		}
		if oi, ok := b.operatorIndex[av.ResourceID]; ok {
			targets = append(targets, &b.p.Operators[oi])
		}
		for _, r := range targets {
			if !r.Masked {
				r.Masked = true
				order = append(order, r)
			}
			windows[r] = append(windows[r], av.Intervals...)
		}
	}

	for _, r := range order {
		for gi, g := range UnavailableGaps(windows[r], b.p.Horizon) {
			name := fmt.Sprintf("unavailable_%s_%s_%d", r.Kind, r.ID, gi)
			iv := m.NewFixedInterval(g[0], g[1]-g[0], name)
			r.Gaps = append(r.Gaps, Gap{Start: g[0], End: g[1], Interval: iv})
			r.Intervals = append(r.Intervals, iv)
		}
	}
}
