package graph

import "sort"

// StronglyConnected computes the strongly connected components of the
// graph with Tarjan's algorithm: a depth-first search carrying a
// monotonically increasing visit index, a lowlink table, and a stack
// of in-progress nodes. The search itself runs on an explicit frame
// stack rather than the call stack, so a long dependency chain (one
// formula per row down a whole column) cannot exhaust recursion.
// Roots are visited in node index order, so component membership and
// emission order are reproducible for identical input no matter how
// any surrounding map is iterated.
//
// Each component's members come back sorted ascending. Self loops are
// not visible here; Circular folds them in when classifying a
// component.
func (g *Graph) StronglyConnected() [][]int {
	const unvisited = -1
	n := len(g.keys)
	visit := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range visit {
		visit[i] = unvisited
	}

	// frame holds one suspended visit: the node and how many of its
	// successors have been walked so far.
	type frame struct {
		v, i int
	}

	var (
		stack []int
		dfs   []frame
		next  int
		comps [][]int
	)

	enter := func(v int) {
		visit[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true
		dfs = append(dfs, frame{v: v})
	}

	for root := 0; root < n; root++ {
		if visit[root] != unvisited {
			continue
		}
		enter(root)

		for len(dfs) > 0 {
			f := &dfs[len(dfs)-1]
			v := f.v

			if f.i < len(g.succs[v]) {
				w := g.succs[v][f.i]
				f.i++
				if visit[w] == unvisited {
					enter(w)
				} else if onStack[w] && visit[w] < lowlink[v] {
					lowlink[v] = visit[w]
				}
				continue
			}

			if lowlink[v] == visit[v] {
				var members []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					members = append(members, w)
					if w == v {
						break
					}
				}
				sort.Ints(members)
				comps = append(comps, members)
			}

			dfs = dfs[:len(dfs)-1]
			if len(dfs) > 0 {
				u := dfs[len(dfs)-1].v
				if lowlink[v] < lowlink[u] {
					lowlink[u] = lowlink[v]
				}
			}
		}
	}
	return comps
}

// Circular reports whether a component must be solved iteratively:
// either it has several mutually dependent members, or its single
// member references itself.
func (g *Graph) Circular(scc []int) bool {
	return len(scc) > 1 || (len(scc) == 1 && g.self[scc[0]])
}
