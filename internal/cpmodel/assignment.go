package cpmodel

import (
	"errors"
	"fmt"
	"sort"
)

// ErrViolation is wrapped by every ViolationError.
var ErrViolation = errors.New("cpmodel: constraint violated")

// ViolationError names the first constraint an assignment breaks.
type ViolationError struct {
	Constraint string
	Detail     string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("cpmodel: %s violated: %s", e.Constraint, e.Detail)
}

func (e *ViolationError) Unwrap() error { return ErrViolation }

func violation(name, format string, args ...any) error {
	return &ViolationError{Constraint: name, Detail: fmt.Sprintf(format, args...)}
}

// Assignment holds one value per model variable.
type Assignment []int64

// NewAssignment returns an assignment with every variable at its lower bound.
func NewAssignment(m *Model) Assignment {
	a := make(Assignment, len(m.vars))
	for i, d := range m.vars {
		a[i] = d.lo
	}
	return a
}

// Value returns the value of v.
func (a Assignment) Value(v IntVar) int64 { return a[v] }

// Set assigns v.
func (a Assignment) Set(v IntVar, value int64) { a[v] = value }

// BoolValue evaluates a literal.
func (a Assignment) BoolValue(l Literal) bool {
	return (a[l.v] != 0) != l.neg
}

// SetLiteral makes l evaluate to value.
func (a Assignment) SetLiteral(l Literal, value bool) {
	if value != l.neg {
		a[l.v] = 1
	} else {
		a[l.v] = 0
	}
}

// Eval evaluates a linear expression.
func (a Assignment) Eval(e LinearExpr) int64 {
	sum := e.Offset
	for _, t := range e.Terms {
		sum += t.Coef * a[t.Var]
	}
	return sum
}

// ObjectiveValue evaluates the model objective under a.
func (m *Model) ObjectiveValue(a Assignment) int64 {
	return a.Eval(m.objective)
}

// Check verifies that a satisfies every domain and constraint of m.
func (m *Model) Check(a Assignment) error {
	if len(a) != len(m.vars) {
		return violation("assignment", "has %d values for %d variables", len(a), len(m.vars))
	}

	for i, d := range m.vars {
		if a[i] < d.lo || a[i] > d.hi {
			return violation("domain", "%s = %d outside [%d, %d]", d.name, a[i], d.lo, d.hi)
		}
	}

	for _, c := range m.linears {
		if !enforced(a, c.Enforce) {
			continue
		}
		v := a.Eval(c.Expr)
		if v < c.Lo || v > c.Hi {
			return violation(c.Name, "value %d outside [%d, %d]", v, c.Lo, c.Hi)
		}
	}

	for _, c := range m.exactlyOne {
		n := 0
		for _, l := range c.Literals {
			if a.BoolValue(l) {
				n++
			}
		}
		if n != 1 {
			return violation(c.Name, "%d literals true", n)
		}
	}

	for _, c := range m.noOverlaps {
		if err := m.checkNoOverlap(a, c); err != nil {
			return err
		}
	}

	for _, c := range m.circuits {
		if err := checkCircuit(a, c); err != nil {
			return err
		}
	}

	for _, c := range m.maxEqs {
		best := a.Eval(c.Exprs[0])
		for _, e := range c.Exprs[1:] {
			if v := a.Eval(e); v > best {
				best = v
			}
		}
		if got := a[c.Target]; got != best {
			return violation(c.Name, "target %d, max %d", got, best)
		}
	}

	return nil
}

func enforced(a Assignment, lits []Literal) bool {
	for _, l := range lits {
		if !a.BoolValue(l) {
			return false
		}
	}
	return true
}

type span struct {
	name       string
	start, end int64
}

// Zero-size intervals never overlap anything.
func (m *Model) checkNoOverlap(a Assignment, c *NoOverlapConstraint) error {
	spans := make([]span, 0, len(c.Intervals))
	for _, iv := range c.Intervals {
		in := m.intervals[iv]
		if !a.BoolValue(in.Presence) || in.Size == 0 {
			continue
		}
		spans = append(spans, span{name: in.Name, start: a[in.Start], end: a[in.End]})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.start < prev.end {
			return violation(c.Name, "%s [%d,%d) overlaps %s [%d,%d)",
				prev.name, prev.start, prev.end, cur.name, cur.start, cur.end)
		}
	}
	return nil
}

func checkCircuit(a Assignment, c *CircuitConstraint) error {
	out := make(map[int]int)
	in := make(map[int]int)
	next := make(map[int]int)
	looped := make(map[int]bool)
	nodes := make(map[int]bool)

	for _, arc := range c.Arcs {
		nodes[arc.Tail] = true
		nodes[arc.Head] = true
		if !a.BoolValue(arc.Lit) {
			continue
		}
		out[arc.Tail]++
		in[arc.Head]++
		if arc.Tail == arc.Head {
			looped[arc.Tail] = true
			continue
		}
		next[arc.Tail] = arc.Head
	}

	ordered := make([]int, 0, len(nodes))
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)

	first, active := -1, 0
	for _, n := range ordered {
		if out[n] != 1 || in[n] != 1 {
			return violation(c.Name, "node %d has %d outgoing and %d incoming arcs", n, out[n], in[n])
		}
		if looped[n] {
			continue
		}
		active++
		if first < 0 {
			first = n
		}
	}
	if active == 0 {
		return nil
	}

	visited := 0
	for n := first; ; {
		visited++
		n = next[n]
		if n == first {
			break
		}
		if visited > active {
			return violation(c.Name, "tour does not close")
		}
	}
	if visited != active {
		return violation(c.Name, "tour visits %d of %d nodes", visited, active)
	}
	return nil
}
