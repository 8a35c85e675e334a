package planner

import (
	"fmt"

	"github.com/ChuLiYu/shopfloor-planner/internal/cpmodel"
)

// Depot is the circuit node that opens and closes every line tour.
const Depot = 0

type setupKey struct {
	from, to string
}

// RouteArc is one arc of a line circuit between two task nodes, or between
// the depot and a task node.
type RouteArc struct {
	Tail, Head int // node ids; Depot or 1 + index into Route.Nodes
	Literal    cpmodel.Literal
	Setup      int64
}

// RouteNode is a task that may be placed on the line.
type RouteNode struct {
	Task     int
	Presence cpmodel.Literal
}

// Route sequences the tasks of a line that declares setup times.
type Route struct {
	Line  int
	Nodes []RouteNode
	Arcs  []RouteArc
	Empty cpmodel.Literal // depot self-loop, true when no task is on the line

	setups map[setupKey]int64
}

// Setup returns the changeover from one job to another, or 0.
func (r *Route) Setup(fromJob, toJob string) int64 {
	return r.setups[setupKey{from: fromJob, to: toJob}]
}

// Arc returns the literal of the arc tail->head, if present.
func (r *Route) Arc(tail, head int) (cpmodel.Literal, bool) {
	for _, a := range r.Arcs {
		if a.Tail == tail && a.Head == head {
			return a.Literal, true
		}
	}
	return cpmodel.Literal{}, false
}

// addSetupRoutes builds a circuit for every line with at least one declared
// setup time:
//
//   - node 0 is the depot, node k+1 is the k-th candidate task of the line
//   - a task node self-loops exactly when it is not placed on the line
//   - arc i->j between task nodes forces end(i) + setup(job(i), job(j)) <= start(j)
func (b *builder) addSetupRoutes() {
	byLine := make(map[string]map[setupKey]int64)
	for _, st := range b.req.SetupTimes {
		if byLine[st.LineID] == nil {
			byLine[st.LineID] = make(map[setupKey]int64)
		}
		key := setupKey{from: st.FromJobID, to: st.ToJobID}
		if _, dup := byLine[st.LineID][key]; !dup {
			byLine[st.LineID][key] = st.Duration
		}
	}

	for li := range b.p.Lines {
		line := &b.p.Lines[li]
		setups, ok := byLine[line.ID]
		if !ok || len(line.Tasks) == 0 {
			continue
		}
		line.Route = b.route(li, setups)
	}
}

func (b *builder) route(li int, setups map[setupKey]int64) *Route {
	m := b.p.Model
	line := b.p.Lines[li]
	r := &Route{Line: li, setups: setups}

	for _, ti := range line.Tasks {
		presence, ok := b.linePresence(ti, li)
		if !ok {
			continue
		}
		r.Nodes = append(r.Nodes, RouteNode{Task: ti, Presence: presence})
	}

	var arcs []cpmodel.Arc
	addArc := func(tail, head int, lit cpmodel.Literal, setup int64) {
		arcs = append(arcs, cpmodel.Arc{Tail: tail, Head: head, Lit: lit})
		if tail != head {
			r.Arcs = append(r.Arcs, RouteArc{Tail: tail, Head: head, Literal: lit, Setup: setup})
		}
	}

	name := "route_" + line.ID
	r.Empty = m.NewBoolVar(name + "_empty")
	addArc(Depot, Depot, r.Empty, 0)

	// empty <=> no node is present
	occupied := cpmodel.Expr(r.Empty.Var())
	for _, n := range r.Nodes {
		occupied = occupied.Plus(n.Presence.Var(), 1)
		m.AddLinear(cpmodel.Expr(r.Empty.Var()).Plus(n.Presence.Var(), 1), 0, 1).Name = name + "_empty_excl"
	}
	m.AddLinear(occupied, 1, cpmodel.MaxInt).Name = name + "_empty_def"

	for i, ni := range r.Nodes {
		node := i + 1
		addArc(node, node, ni.Presence.Not(), 0)
		addArc(Depot, node, m.NewBoolVar(fmt.Sprintf("%s_depot_%d", name, node)), 0)
		addArc(node, Depot, m.NewBoolVar(fmt.Sprintf("%s_%d_depot", name, node)), 0)
	}

	for i, ni := range r.Nodes {
		from := b.p.Tasks[ni.Task]
		for j, nj := range r.Nodes {
			if i == j {
				continue
			}
			to := b.p.Tasks[nj.Task]
			setup := r.Setup(b.p.Jobs[from.Job].ID, b.p.Jobs[to.Job].ID)

			lit := m.NewBoolVar(fmt.Sprintf("%s_%d_%d", name, i+1, j+1))
			addArc(i+1, j+1, lit, setup)
			m.AddPrecedence(from.End, to.Start, setup).OnlyEnforceIf(lit).Name =
				fmt.Sprintf("%s_setup_%d_%d", name, i+1, j+1)
		}
	}

	m.AddCircuit(name, arcs)
	return r
}

func (b *builder) linePresence(ti, li int) (cpmodel.Literal, bool) {
	for _, c := range b.p.Tasks[ti].Lines {
		if c.Resource == li {
			return c.Presence, true
		}
	}
	return cpmodel.Literal{}, false
}
