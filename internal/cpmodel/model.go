// ============================================================================
// Constraint Model - scheduling formulation primitives
// ============================================================================
//
// Package: internal/cpmodel
// File: model.go
// Purpose: Holds the decision variables and constraints of one scheduling
//          problem so that a search engine can fill in values and the result
//          can be independently verified with Check.
//
// Building blocks:
//   - IntVar:       integer variable with a closed domain [lo, hi]
//   - Literal:      a 0/1 variable or its negation (presence indicators, arcs)
//   - IntervalVar:  start/end/size triple, optionally guarded by a presence literal
//   - Linear:       lo <= sum(coef*var) + offset <= hi, optionally enforced by literals
//   - ExactlyOne:   exactly one literal of a set is true
//   - NoOverlap:    present intervals of a set are pairwise disjoint
//   - Circuit:      true arcs form one tour over the nodes that are not self-looped
//   - MaxEquality:  target == max(exprs)
//   - Objective:    linear expression to minimize
//
// A Model is built once per request and never shared between calls.
//
// ============================================================================

package cpmodel

import (
	"fmt"
	"math"
)

// Unbounded sides of a linear constraint.
const (
	MinInt = math.MinInt64
	MaxInt = math.MaxInt64
)

// IntVar is a handle to an integer variable of a Model.
type IntVar int

// Literal is a boolean variable or its negation.
type Literal struct {
	v   IntVar
	neg bool
}

// Var returns the underlying 0/1 variable.
func (l Literal) Var() IntVar { return l.v }

// Negated reports whether the literal is the negation of its variable.
func (l Literal) Negated() bool { return l.neg }

// Not returns the negation of the literal.
func (l Literal) Not() Literal { return Literal{v: l.v, neg: !l.neg} }

// IntervalVar is a handle to an interval of a Model.
type IntervalVar int

// Term is coef*var.
type Term struct {
	Var  IntVar
	Coef int64
}

// LinearExpr is sum(terms) + offset.
type LinearExpr struct {
	Terms  []Term
	Offset int64
}

// Expr starts an expression from a single variable.
func Expr(v IntVar) LinearExpr {
	return LinearExpr{Terms: []Term{{Var: v, Coef: 1}}}
}

// Const is a constant expression.
func Const(c int64) LinearExpr {
	return LinearExpr{Offset: c}
}

// Plus adds coef*v to the expression.
func (e LinearExpr) Plus(v IntVar, coef int64) LinearExpr {
	terms := make([]Term, len(e.Terms), len(e.Terms)+1)
	copy(terms, e.Terms)
	e.Terms = append(terms, Term{Var: v, Coef: coef})
	return e
}

// AddConst adds a constant to the expression.
func (e LinearExpr) AddConst(c int64) LinearExpr {
	e.Offset += c
	return e
}

type varDef struct {
	name   string
	lo, hi int64
}

// Interval describes an interval variable.
type Interval struct {
	Name     string
	Start    IntVar
	End      IntVar
	Size     int64
	Presence Literal
	Optional bool
}

// LinearConstraint is lo <= expr <= hi, active when every enforcement literal is true.
type LinearConstraint struct {
	Name    string
	Expr    LinearExpr
	Lo, Hi  int64
	Enforce []Literal
}

// OnlyEnforceIf guards the constraint by the given literals.
func (c *LinearConstraint) OnlyEnforceIf(lits ...Literal) *LinearConstraint {
	c.Enforce = append(c.Enforce, lits...)
	return c
}

// ExactlyOneConstraint requires exactly one true literal.
type ExactlyOneConstraint struct {
	Name     string
	Literals []Literal
}

// NoOverlapConstraint forbids two present intervals from sharing time.
type NoOverlapConstraint struct {
	Name      string
	Intervals []IntervalVar
}

// Arc is a directed edge Tail->Head selected when Lit is true.
// A self-loop (Tail == Head) removes its node from the tour.
type Arc struct {
	Tail, Head int
	Lit        Literal
}

// CircuitConstraint requires the true arcs to form a single tour.
type CircuitConstraint struct {
	Name string
	Arcs []Arc
}

// MaxEqualityConstraint requires Target == max(Exprs).
type MaxEqualityConstraint struct {
	Name   string
	Target IntVar
	Exprs  []LinearExpr
}

// Model is the full formulation of one problem.
type Model struct {
	name       string
	vars       []varDef
	intervals  []Interval
	linears    []*LinearConstraint
	exactlyOne []*ExactlyOneConstraint
	noOverlaps []*NoOverlapConstraint
	circuits   []*CircuitConstraint
	maxEqs     []*MaxEqualityConstraint
	objective  LinearExpr
	trueLit    *Literal
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{name: name}
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// NewIntVar adds an integer variable with domain [lo, hi].
func (m *Model) NewIntVar(lo, hi int64, name string) IntVar {
	if lo > hi {
		panic(fmt.Sprintf("cpmodel: empty domain [%d, %d] for %s", lo, hi, name))
	}
	m.vars = append(m.vars, varDef{name: name, lo: lo, hi: hi})
	return IntVar(len(m.vars) - 1)
}

// NewConstant adds a fixed variable.
func (m *Model) NewConstant(v int64) IntVar {
	return m.NewIntVar(v, v, fmt.Sprintf("const_%d", v))
}

// NewBoolVar adds a 0/1 variable and returns its positive literal.
func (m *Model) NewBoolVar(name string) Literal {
	return Literal{v: m.NewIntVar(0, 1, name)}
}

// TrueLiteral returns a literal fixed to true.
func (m *Model) TrueLiteral() Literal {
	if m.trueLit == nil {
		lit := Literal{v: m.NewIntVar(1, 1, "true")}
		m.trueLit = &lit
	}
	return *m.trueLit
}

// NewIntervalVar adds an always-present interval with end == start + size.
func (m *Model) NewIntervalVar(start, end IntVar, size int64, name string) IntervalVar {
	m.AddLinear(Expr(end).Plus(start, -1), size, size).Name = name + "_size"
	m.intervals = append(m.intervals, Interval{
		Name:     name,
		Start:    start,
		End:      end,
		Size:     size,
		Presence: m.TrueLiteral(),
	})
	return IntervalVar(len(m.intervals) - 1)
}

// NewOptionalIntervalVar adds an interval that only exists when presence is true.
func (m *Model) NewOptionalIntervalVar(start, end IntVar, size int64, presence Literal, name string) IntervalVar {
	m.AddLinear(Expr(end).Plus(start, -1), size, size).OnlyEnforceIf(presence).Name = name + "_size"
	m.intervals = append(m.intervals, Interval{
		Name:     name,
		Start:    start,
		End:      end,
		Size:     size,
		Presence: presence,
		Optional: true,
	})
	return IntervalVar(len(m.intervals) - 1)
}

// NewFixedInterval adds an always-present interval [start, start+size).
func (m *Model) NewFixedInterval(start, size int64, name string) IntervalVar {
	s := m.NewIntVar(start, start, name+"_start")
	e := m.NewIntVar(start+size, start+size, name+"_end")
	return m.NewIntervalVar(s, e, size, name)
}

// AddLinear adds lo <= expr <= hi.
func (m *Model) AddLinear(expr LinearExpr, lo, hi int64) *LinearConstraint {
	c := &LinearConstraint{Name: fmt.Sprintf("linear_%d", len(m.linears)), Expr: expr, Lo: lo, Hi: hi}
	m.linears = append(m.linears, c)
	return c
}

// AddEquality adds v == value.
func (m *Model) AddEquality(v IntVar, value int64) *LinearConstraint {
	return m.AddLinear(Expr(v), value, value)
}

// AddPrecedence adds after >= before + gap.
func (m *Model) AddPrecedence(before, after IntVar, gap int64) *LinearConstraint {
	return m.AddLinear(Expr(after).Plus(before, -1), gap, MaxInt)
}

// AddExactlyOne requires exactly one of lits to be true.
func (m *Model) AddExactlyOne(name string, lits ...Literal) *ExactlyOneConstraint {
	c := &ExactlyOneConstraint{Name: name, Literals: append([]Literal(nil), lits...)}
	m.exactlyOne = append(m.exactlyOne, c)
	return c
}

// AddNoOverlap forbids overlap between present intervals.
func (m *Model) AddNoOverlap(name string, intervals ...IntervalVar) *NoOverlapConstraint {
	c := &NoOverlapConstraint{Name: name, Intervals: append([]IntervalVar(nil), intervals...)}
	m.noOverlaps = append(m.noOverlaps, c)
	return c
}

// AddCircuit requires the true arcs to form a single tour.
func (m *Model) AddCircuit(name string, arcs []Arc) *CircuitConstraint {
	c := &CircuitConstraint{Name: name, Arcs: append([]Arc(nil), arcs...)}
	m.circuits = append(m.circuits, c)
	return c
}

// AddMaxEquality requires target == max(exprs). exprs must not be empty.
func (m *Model) AddMaxEquality(name string, target IntVar, exprs ...LinearExpr) *MaxEqualityConstraint {
	if len(exprs) == 0 {
		panic("cpmodel: AddMaxEquality needs at least one expression")
	}
	c := &MaxEqualityConstraint{Name: name, Target: target, Exprs: append([]LinearExpr(nil), exprs...)}
	m.maxEqs = append(m.maxEqs, c)
	return c
}

// Minimize sets the objective.
func (m *Model) Minimize(expr LinearExpr) {
	m.objective = expr
}

// Objective returns the objective expression.
func (m *Model) Objective() LinearExpr { return m.objective }

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// VarName returns the name of v.
func (m *Model) VarName(v IntVar) string { return m.vars[v].name }

// Bounds returns the domain of v.
func (m *Model) Bounds(v IntVar) (lo, hi int64) {
	d := m.vars[v]
	return d.lo, d.hi
}

// Interval returns the definition of iv.
func (m *Model) Interval(iv IntervalVar) Interval { return m.intervals[iv] }

// NoOverlaps returns the no-overlap constraints in creation order.
func (m *Model) NoOverlaps() []*NoOverlapConstraint { return m.noOverlaps }

// Circuits returns the circuit constraints in creation order.
func (m *Model) Circuits() []*CircuitConstraint { return m.circuits }

// Stats summarizes the model size.
type Stats struct {
	Vars        int
	Intervals   int
	Linears     int
	ExactlyOnes int
	NoOverlaps  int
	Circuits    int
	Arcs        int
	MaxEqs      int
}

// Stats returns the size of the model.
func (m *Model) Stats() Stats {
	s := Stats{
		Vars:        len(m.vars),
		Intervals:   len(m.intervals),
		Linears:     len(m.linears),
		ExactlyOnes: len(m.exactlyOne),
		NoOverlaps:  len(m.noOverlaps),
		Circuits:    len(m.circuits),
		MaxEqs:      len(m.maxEqs),
	}
	for _, c := range m.circuits {
		s.Arcs += len(c.Arcs)
	}
	return s
}
