package graph

import (
	"container/heap"
	"sort"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// Schedule is a full evaluation plan: the strongly connected
// components, their serial evaluation order, and the same order
// grouped into waves of mutually independent components for parallel
// evaluation.
type Schedule struct {
	SCCs   [][]int // node indexes per component, ascending
	Order  []int   // component indexes, precedents before dependents
	Levels [][]int // component indexes grouped into parallel waves
}

// Plan computes the evaluation schedule for the current graph.
func (g *Graph) Plan() *Schedule {
	sccs := g.StronglyConnected()
	order, levels := g.TopoSort(sccs)
	return &Schedule{SCCs: sccs, Order: order, Levels: levels}
}

// sccQueue is a min-heap of ready component indexes ordered by each
// component's smallest member cell, so ties between simultaneously
// ready components always resolve the same way.
type sccQueue struct {
	comps []int
	min   []ref.CellKey
}

func (q *sccQueue) Len() int           { return len(q.comps) }
func (q *sccQueue) Less(i, j int) bool { return q.min[q.comps[i]].Less(q.min[q.comps[j]]) }
func (q *sccQueue) Swap(i, j int)      { q.comps[i], q.comps[j] = q.comps[j], q.comps[i] }

func (q *sccQueue) Push(x any) {
	q.comps = append(q.comps, x.(int))
}

func (q *sccQueue) Pop() any {
	last := len(q.comps) - 1
	c := q.comps[last]
	q.comps = q.comps[:last]
	return c
}

// TopoSort orders components with Kahn's algorithm over the
// condensation graph: collapse each component to one vertex, dedupe
// cross-component edges, then repeatedly emit a component with no
// unevaluated precedents. When several components are ready at once,
// the one whose minimum (sheet, row, col) member is smallest goes
// first. The condensation is acyclic by construction, so every
// component is emitted.
//
// The second result groups the same component indexes into levels: a
// component's level is one past the deepest of its cross-component
// precedents, and components within a level are mutually independent.
func (g *Graph) TopoSort(sccs [][]int) ([]int, [][]int) {
	comp := make([]int, len(g.keys))
	for c, members := range sccs {
		for _, v := range members {
			comp[v] = c
		}
	}

	succs := make([][]int, len(sccs))
	indegree := make([]int, len(sccs))
	seen := make(map[[2]int]bool)
	for v, out := range g.succs {
		cv := comp[v]
		for _, w := range out {
			cw := comp[w]
			if cv == cw || seen[[2]int{cv, cw}] {
				continue
			}
			seen[[2]int{cv, cw}] = true
			succs[cv] = append(succs[cv], cw)
			indegree[cw]++
		}
	}

	min := make([]ref.CellKey, len(sccs))
	for c, members := range sccs {
		min[c] = g.keys[members[0]]
		for _, v := range members[1:] {
			if g.keys[v].Less(min[c]) {
				min[c] = g.keys[v]
			}
		}
	}

	ready := &sccQueue{min: min}
	for c := range sccs {
		if indegree[c] == 0 {
			ready.comps = append(ready.comps, c)
		}
	}
	heap.Init(ready)

	order := make([]int, 0, len(sccs))
	level := make([]int, len(sccs))
	depth := 0
	for ready.Len() > 0 {
		c := heap.Pop(ready).(int)
		order = append(order, c)
		if level[c] > depth {
			depth = level[c]
		}
		for _, d := range succs[c] {
			if level[c]+1 > level[d] {
				level[d] = level[c] + 1
			}
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	levels := make([][]int, depth+1)
	if len(order) == 0 {
		levels = nil
	}
	for _, c := range order {
		levels[level[c]] = append(levels[level[c]], c)
	}
	return order, levels
}

// Affected returns every node that transitively depends on any of the
// changed cells, plus all dynamic nodes, sorted ascending. A changed
// cell that is itself a formula is included, since its stored result
// is stale.
func (g *Graph) Affected(changed []ref.CellKey) []int {
	mark := make(map[int]bool)
	var frontier []int

	push := func(i int) {
		if !mark[i] {
			mark[i] = true
			frontier = append(frontier, i)
		}
	}

	for _, key := range changed {
		if i, ok := g.index[key]; ok && g.formula[i] {
			push(i)
		}
		for _, d := range g.DependentsOf(key) {
			push(d)
		}
	}
	for _, i := range g.dynamic {
		push(i)
	}

	for len(frontier) > 0 {
		v := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, w := range g.succs[v] {
			push(w)
		}
	}

	out := make([]int, 0, len(mark))
	for i := range mark {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
