// Package graph maintains the cell dependency graph used to order
// recalculation. It supports strongly connected component detection
// for circular references, deterministic topological scheduling, and
// dirty propagation from changed cells to their dependents.
package graph

import (
	"github.com/leapstack-labs/leapcalc/pkg/ref"
)

// MaxRangeExpansion caps how many cells a bounded precedent rectangle
// may expand to before it is tracked coarsely like an unbounded one.
// Expanding a million-cell block into per-cell edges would dwarf the
// formulas that read it.
const MaxRangeExpansion = 65536

// rangeDep is a coarse dependency on a rectangle that was not
// expanded per cell, either unbounded or too large.
type rangeDep struct {
	rect ref.Range
	node int
}

// Graph is the dependency graph over cells. Nodes are stored in an
// index arena in insertion order; since callers insert in a fixed
// order, every derived structure (SCC list, topological order) is
// reproducible for identical input.
//
// Edges point from a precedent to its dependents: the direction a
// change propagates.
type Graph struct {
	keys  []ref.CellKey
	index map[ref.CellKey]int

	succs [][]int // precedent -> dependents
	preds [][]int // dependent -> precedents

	self    []bool // node has a self edge (A1 referencing A1)
	formula []bool // node holds a formula (owns precedents)

	coarse  []rangeDep
	dynamic []int // nodes whose references resolve at run time
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[ref.CellKey]int)}
}

// node interns a cell key and returns its index.
func (g *Graph) node(key ref.CellKey) int {
	if i, ok := g.index[key]; ok {
		return i
	}
	i := len(g.keys)
	g.index[key] = i
	g.keys = append(g.keys, key)
	g.succs = append(g.succs, nil)
	g.preds = append(g.preds, nil)
	g.self = append(g.self, false)
	g.formula = append(g.formula, false)
	return i
}

// addEdge records precedent -> dependent, deduplicating repeats and
// folding self references into a self-loop flag.
func (g *Graph) addEdge(from, to int) {
	if from == to {
		g.self[from] = true
		return
	}
	for _, s := range g.succs[from] {
		if s == to {
			return
		}
	}
	g.succs[from] = append(g.succs[from], to)
	g.preds[to] = append(g.preds[to], from)
}

// AddFormula registers a formula cell with its statically known
// precedent areas, each resolved to a concrete sheet. Bounded
// rectangles expand to per-cell edges so that a change to any covered
// cell reaches the formula; unbounded or oversized ones are kept as
// coarse range dependencies and also gain edges to the nodes already
// inside them, so ordering still holds for cells the graph knows about. Dynamic
// formulas additionally re-evaluate on any change.
func (g *Graph) AddFormula(cell ref.CellKey, precedents []ref.Range, dynamic bool) {
	dep := g.node(cell)
	g.formula[dep] = true
	for _, rect := range precedents {
		if !rect.Bounded() || rect.Count() > MaxRangeExpansion {
			g.coarse = append(g.coarse, rangeDep{rect: rect, node: dep})
			continue
		}
		sheet := rect.Sheet
		rect.ForEach(func(a ref.Addr) bool {
			g.addEdge(g.node(ref.Key(sheet, a)), dep)
			return true
		})
	}
	if dynamic {
		g.dynamic = append(g.dynamic, dep)
	}
}

// Finish connects coarse range dependencies to the nodes that fell
// inside them. Call once after the last AddFormula.
func (g *Graph) Finish() {
	for _, rd := range g.coarse {
		for i, key := range g.keys {
			if key.Sheet == rd.rect.Sheet && rd.rect.Contains(key.Addr()) {
				g.addEdge(i, rd.node)
			}
		}
	}
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.keys)
}

// EdgeCount returns the number of directed edges, self loops
// included.
func (g *Graph) EdgeCount() int {
	count := 0
	for i, succ := range g.succs {
		count += len(succ)
		if g.self[i] {
			count++
		}
	}
	return count
}

// Key returns the cell at a node index.
func (g *Graph) Key(i int) ref.CellKey {
	return g.keys[i]
}

// Index returns the node index of a cell, if the cell participates in
// the graph at all.
func (g *Graph) Index(key ref.CellKey) (int, bool) {
	i, ok := g.index[key]
	return i, ok
}

// IsFormula reports whether the node was registered with AddFormula,
// as opposed to only being referenced by one.
func (g *Graph) IsFormula(i int) bool {
	return g.formula[i]
}

// SelfLoop reports whether a node references itself, which makes even
// a size-1 component circular.
func (g *Graph) SelfLoop(i int) bool {
	return g.self[i]
}

// Dependents returns the nodes that must re-evaluate when node i
// changes.
func (g *Graph) Dependents(i int) []int {
	return g.succs[i]
}

// Precedents returns the nodes that node i reads.
func (g *Graph) Precedents(i int) []int {
	return g.preds[i]
}

// Dynamic returns the nodes whose reference targets are only known at
// evaluation time. They are treated as dependent on every change.
func (g *Graph) Dynamic() []int {
	return g.dynamic
}

// DependentsOf returns the direct dependents of an arbitrary cell,
// whether or not the cell itself is a graph node: coarse range
// dependencies are matched by containment. Dynamic nodes are not
// included; callers handle those globally.
func (g *Graph) DependentsOf(key ref.CellKey) []int {
	var out []int
	seen := map[int]bool{}
	if i, ok := g.index[key]; ok {
		for _, d := range g.succs[i] {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
		if g.self[i] && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	for _, rd := range g.coarse {
		if rd.rect.Sheet == key.Sheet && rd.rect.Contains(key.Addr()) && !seen[rd.node] {
			seen[rd.node] = true
			out = append(out, rd.node)
		}
	}
	return out
}
