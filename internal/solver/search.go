package solver

import (
	"sort"
	"time"

	"github.com/ChuLiYu/shopfloor-planner/internal/planner"
)

// deadline is polled once every clockMask+1 branches.
const clockMask = 1023

// Limited-discrepancy waves run before the complete search when the
// branch budget is at least waveMinBranches. They share 1/waveShare of the
// budget and allow up to maxDiscrepancy non-first choices per path.
const (
	waveMinBranches = 10_000
	waveShare       = 4
	maxDiscrepancy  = 3
)

type taskInfo struct {
	job      int
	duration int64
	pinned   bool
	pin      int64
	lines    []int // resource index per line choice
	ops      []int // resource index per operator choice
}

type jobInfo struct {
	tasks    []int
	due      int64
	priority int64
}

// lane is the append-only frontier of one line or operator.
type lane struct {
	free    int64
	lastJob int // routed lines only, -1 before the first task
}

type candidate struct {
	task     int
	line     int // choice positions
	operator int
	start    int64
}

type undo struct {
	task     int
	line     lane
	operator lane
	ready    int64
	last     int64
}

type search struct {
	p       *planner.Problem
	limit   int64
	until   time.Time
	horizon int64
	weights planner.Weights

	tasks    []taskInfo
	jobs     []jobInfo
	lineGaps [][]planner.Gap
	opGaps   [][]planner.Gap
	setups   [][][]int64 // per line, nil when the line has no route

	next      []int
	ready     []int64
	lines     []lane
	ops       []lane
	soleLine  []int64 // unplaced duration that can only run on this line
	soleOp    []int64
	placed    []planner.Placement
	lastStart int64
	startSum  int64
	remaining int
	dispatch  int

	best    []planner.Placement
	bestObj int64
	found   bool

	branches  int64
	conflicts int64
	stopped   bool

	inWaves   bool
	waveEnd   int64 // branch count closing the wave phase
	wavesOver bool
	cut       bool // a wave skipped choices over its discrepancy allowance
	fromWave  bool // incumbent comes from a wave, no complete-search leaf yet
}

func newSearch(p *planner.Problem, params Params, began time.Time) *search {
	s := &search{
		p:        p,
		limit:    params.BranchLimit,
		until:    began.Add(params.TimeLimit),
		horizon:  p.Horizon,
		weights:  p.Objective.Weights,
		tasks:    make([]taskInfo, len(p.Tasks)),
		jobs:     make([]jobInfo, len(p.Jobs)),
		lineGaps: make([][]planner.Gap, len(p.Lines)),
		opGaps:   make([][]planner.Gap, len(p.Operators)),
		setups:   make([][][]int64, len(p.Lines)),
		next:     make([]int, len(p.Jobs)),
		ready:    make([]int64, len(p.Jobs)),
		lines:    make([]lane, len(p.Lines)),
		ops:      make([]lane, len(p.Operators)),
		soleLine: make([]int64, len(p.Lines)),
		soleOp:   make([]int64, len(p.Operators)),
		placed:   make([]planner.Placement, len(p.Tasks)),

		remaining: len(p.Tasks),
	}

	for ti, t := range p.Tasks {
		info := taskInfo{job: t.Job, duration: t.Duration()}
		info.pin, info.pinned = t.Pin()
		for _, c := range t.Lines {
			info.lines = append(info.lines, c.Resource)
		}
		for _, c := range t.Operators {
			info.ops = append(info.ops, c.Resource)
		}
		if len(info.lines) == 1 {
			s.soleLine[info.lines[0]] += info.duration
		}
		if len(info.ops) == 1 {
			s.soleOp[info.ops[0]] += info.duration
		}
		s.tasks[ti] = info
		s.placed[ti] = planner.Placement{Line: -1, Operator: -1}
	}

	for ji, j := range p.Jobs {
		s.jobs[ji] = jobInfo{tasks: j.Tasks, due: j.DueDate, priority: j.Priority}
	}

	for li, l := range p.Lines {
		s.lineGaps[li] = l.Gaps
		s.lines[li].lastJob = -1
		if l.Route == nil {
			continue
		}
		m := make([][]int64, len(p.Jobs))
		for from := range p.Jobs {
			m[from] = make([]int64, len(p.Jobs))
			for to := range p.Jobs {
				m[from][to] = l.Route.Setup(p.Jobs[from].ID, p.Jobs[to].ID)
			}
		}
		s.setups[li] = m
	}
	for oi, o := range p.Operators {
		s.opGaps[oi] = o.Gaps
		s.ops[oi].lastJob = -1
	}

	return s
}

// run starts with discrepancy waves, then searches the whole tree. The
// complete search keeps the first optimal leaf in its own order, so a search
// that finishes returns the same schedule with or without waves.
func (s *search) run() {
	if s.limit >= waveMinBranches {
		s.inWaves = true
		s.waveEnd = s.limit / waveShare
		for d := 1; d <= maxDiscrepancy; d++ {
			s.cut = false
			s.wave(d)
			if s.stopped || s.wavesOver || !s.cut {
				break
			}
		}
		s.inWaves = false
		if s.stopped {
			return
		}
		s.fromWave = s.found
	}
	s.dfs()
}

// wave explores the paths taking at most d non-first candidates.
func (s *search) wave(d int) {
	if s.remaining == 0 {
		s.leaf()
		return
	}

	lb, ok := s.bound()
	if !ok {
		s.conflicts++
		return
	}
	if s.found && lb >= s.bestObj {
		return
	}

	for i, c := range s.candidates() {
		cost := 0
		if i > 0 {
			cost = 1
		}
		if cost > d {
			s.cut = true
			return
		}
		if s.tick() {
			return
		}
		u := s.apply(c)
		s.wave(d - cost)
		s.revert(u)
		if s.halted() {
			return
		}
	}
}

func (s *search) dfs() {
	if s.remaining == 0 {
		s.leaf()
		return
	}

	lb, ok := s.bound()
	if !ok {
		s.conflicts++
		return
	}
	// a wave incumbent still admits ties
	if s.found && (lb > s.bestObj || (lb == s.bestObj && !s.fromWave)) {
		return
	}

	cands := s.candidates()
	if len(cands) == 0 {
		s.conflicts++
		return
	}

	for _, c := range cands {
		if s.tick() {
			return
		}
		u := s.apply(c)
		s.dfs()
		s.revert(u)
		if s.stopped {
			return
		}
	}
}

// tick counts a branch and reports whether the budget, or the wave share
// of it, is spent.
func (s *search) tick() bool {
	s.branches++
	if s.branches > s.limit {
		s.branches = s.limit
		s.stopped = true
	} else if s.branches&clockMask == 0 && time.Now().After(s.until) {
		s.stopped = true
	}
	if s.inWaves && s.branches >= s.waveEnd {
		s.wavesOver = true
	}
	return s.halted()
}

func (s *search) halted() bool {
	return s.stopped || (s.inWaves && s.wavesOver)
}

func (s *search) leaf() {
	obj := s.objective()
	if s.found {
		tie := obj == s.bestObj && s.fromWave && !s.inWaves
		if obj > s.bestObj || (obj == s.bestObj && !tie) {
			return
		}
	}
	if !s.inWaves {
		s.fromWave = false
	}
	s.found = true
	s.bestObj = obj
	s.best = append(s.best[:0], s.placed...)
}

func (s *search) objective() int64 {
	var tardiness, makespan int64
	for ji, j := range s.jobs {
		if len(j.tasks) == 0 {
			continue
		}
		finish := s.ready[ji]
		if finish > makespan {
			makespan = finish
		}
		if finish > j.due {
			tardiness += (finish - j.due) * j.priority
		}
	}
	return s.weights.Tardiness*tardiness + s.weights.Makespan*makespan + s.weights.Start*s.startSum
}

// ============================================================================
// Placement
// ============================================================================

func (s *search) candidates() []candidate {
	var out []candidate
	for ji, j := range s.jobs {
		if s.next[ji] >= len(j.tasks) {
			continue
		}
		ti := j.tasks[s.next[ji]]
		t := &s.tasks[ti]
		for lc := range t.lines {
			for oc := range t.ops {
				start, ok := s.earliest(ti, lc, oc)
				if !ok {
					continue
				}
				out = append(out, candidate{task: ti, line: lc, operator: oc, start: start})
			}
		}
	}

	sort.Slice(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.start != y.start {
			return x.start < y.start
		}
		jx, jy := s.jobs[s.tasks[x.task].job], s.jobs[s.tasks[y.task].job]
		if jx.due != jy.due {
			return jx.due < jy.due
		}
		if jx.priority != jy.priority {
			return jx.priority > jy.priority
		}
		if x.task != y.task {
			return x.task < y.task
		}
		if x.line != y.line {
			return x.line < y.line
		}
		return x.operator < y.operator
	})
	return out
}

// earliest returns the start of task ti on the given choices, appended after
// everything already placed on both resources.
func (s *search) earliest(ti, lc, oc int) (int64, bool) {
	t := &s.tasks[ti]
	li, oi := t.lines[lc], t.ops[oc]
	routed := s.setups[li] != nil

	lb := s.ready[t.job]
	if t.duration > 0 || routed {
		free := s.lines[li].free
		if routed && s.lines[li].lastJob >= 0 {
			free += s.setups[li][s.lines[li].lastJob][t.job]
		}
		lb = max(lb, free)
	}
	if t.duration > 0 {
		lb = max(lb, s.ops[oi].free)
	}

	start := lb
	switch {
	case t.pinned:
		if t.pin < lb || (t.duration > 0 && (hits(s.lineGaps[li], t.pin, t.duration) || hits(s.opGaps[oi], t.pin, t.duration))) {
			return 0, false
		}
		start = t.pin
	case t.duration > 0:
		start = skipGaps(start, t.duration, s.lineGaps[li], s.opGaps[oi])
	}

	if start < s.lastStart || start+t.duration > s.horizon {
		return 0, false
	}
	return start, true
}

func hits(gaps []planner.Gap, start, d int64) bool {
	for _, g := range gaps {
		if start < g.End && g.Start < start+d {
			return true
		}
	}
	return false
}

// skipGaps moves start past every gap of either resource the task would cross.
func skipGaps(start, d int64, a, b []planner.Gap) int64 {
	for moved := true; moved; {
		moved = false
		for _, gaps := range [2][]planner.Gap{a, b} {
			for _, g := range gaps {
				if start < g.End && g.Start < start+d {
					start = g.End
					moved = true
				}
			}
		}
	}
	return start
}

func (s *search) apply(c candidate) undo {
	t := &s.tasks[c.task]
	li, oi := t.lines[c.line], t.ops[c.operator]
	u := undo{
		task:     c.task,
		line:     s.lines[li],
		operator: s.ops[oi],
		ready:    s.ready[t.job],
		last:     s.lastStart,
	}

	end := c.start + t.duration
	if t.duration > 0 || s.setups[li] != nil {
		s.lines[li] = lane{free: end, lastJob: t.job}
	}
	if t.duration > 0 {
		s.ops[oi].free = end
	}
	if len(t.lines) == 1 {
		s.soleLine[li] -= t.duration
	}
	if len(t.ops) == 1 {
		s.soleOp[oi] -= t.duration
	}

	s.placed[c.task] = planner.Placement{Start: c.start, Line: c.line, Operator: c.operator, Order: s.dispatch}
	s.dispatch++
	s.ready[t.job] = end
	s.next[t.job]++
	s.lastStart = c.start
	s.startSum += c.start
	s.remaining--
	return u
}

func (s *search) revert(u undo) {
	t := &s.tasks[u.task]
	pl := s.placed[u.task]
	li, oi := t.lines[pl.Line], t.ops[pl.Operator]

	s.lines[li] = u.line
	s.ops[oi] = u.operator
	if len(t.lines) == 1 {
		s.soleLine[li] += t.duration
	}
	if len(t.ops) == 1 {
		s.soleOp[oi] += t.duration
	}

	s.startSum -= pl.Start
	s.placed[u.task] = planner.Placement{Line: -1, Operator: -1}
	s.dispatch--
	s.ready[t.job] = u.ready
	s.next[t.job]--
	s.lastStart = u.last
	s.remaining++
}

// ============================================================================
// Bound
// ============================================================================

// bound is an optimistic objective for every completion of the current
// partial schedule. Unplaced tasks cannot start before lastStart, follow their
// job chain and keep their pins; sole-candidate work queues on its resource.
// ok is false when some pin is already unreachable.
func (s *search) bound() (int64, bool) {
	var tardiness, makespan int64
	startSum := s.startSum

	for ji, j := range s.jobs {
		if len(j.tasks) == 0 {
			continue
		}
		finish := s.ready[ji]
		for _, ti := range j.tasks[s.next[ji]:] {
			t := &s.tasks[ti]
			start := max(finish, s.lastStart)
			if t.pinned {
				if t.pin < start {
					return 0, false
				}
				start = t.pin
			}
			startSum += start
			finish = start + t.duration
		}
		if finish > makespan {
			makespan = finish
		}
		if finish > j.due {
			tardiness += (finish - j.due) * j.priority
		}
	}

	for li, rest := range s.soleLine {
		if rest > 0 {
			makespan = max(makespan, max(s.lines[li].free, s.lastStart)+rest)
		}
	}
	for oi, rest := range s.soleOp {
		if rest > 0 {
			makespan = max(makespan, max(s.ops[oi].free, s.lastStart)+rest)
		}
	}

	return s.weights.Tardiness*tardiness + s.weights.Makespan*makespan + s.weights.Start*startSum, true
}
