package depgraph

import (
	"container/heap"
	"sort"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/diag"
)

// Ordering is the result of ordering a file graph.
type Ordering struct {
	// Topological lists dependents before their dependencies.
	Topological []string `json:"topological" yaml:"topological"`
	// Build is the reverse of Topological: dependencies first.
	Build []string `json:"build" yaml:"build"`
	// Cycles holds the members of every dependency cycle, each sorted.
	Cycles [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	// Unordered lists the files left out of the order because they sit on
	// a cycle.
	Unordered []string `json:"unordered,omitempty" yaml:"unordered,omitempty"`
}

// Acyclic reports whether every file was ordered.
func (o *Ordering) Acyclic() bool { return len(o.Cycles) == 0 }

// Order computes a deterministic order of g's files. Strongly connected
// components with more than one file are cycles: their members are
// reported and excluded, while the remaining files are still ordered
// consistently with every edge between them. Ties are broken by path.
func Order(g *Graph) (*Ordering, diag.List) {
	comps := g.components()

	compOf := make(map[string]int, len(g.Files))
	for i, c := range comps {
		for _, f := range c {
			compOf[f] = i
		}
	}

	// Condensation: an edge a->b between components means a depends on b.
	indeg := make([]int, len(comps))
	succ := make([]map[int]bool, len(comps))
	for _, e := range g.Edges {
		a, okA := compOf[e.From]
		b, okB := compOf[e.To]
		if !okA || !okB || a == b {
			continue
		}
		if succ[a] == nil {
			succ[a] = make(map[int]bool)
		}
		if !succ[a][b] {
			succ[a][b] = true
			indeg[b]++
		}
	}

	ready := &compHeap{comps: comps}
	for i := range comps {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	o := &Ordering{}
	var diags diag.List
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		if c := comps[i]; len(c) > 1 {
			o.Cycles = append(o.Cycles, c)
			o.Unordered = append(o.Unordered, c...)
			diags.Add(diag.Diagnostic{
				Kind:    diag.KindDependencyCycle,
				File:    c[0],
				Members: c,
				Message: "files form a dependency cycle: " + strings.Join(c, ", "),
			})
		} else {
			o.Topological = append(o.Topological, c[0])
		}
		for j := range succ[i] {
			indeg[j]--
			if indeg[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	sort.Strings(o.Unordered)

	o.Build = make([]string, len(o.Topological))
	for i, f := range o.Topological {
		o.Build[len(o.Topological)-1-i] = f
	}
	return o, diags
}

// components returns the strongly connected components of g (Tarjan),
// each sorted by path.
func (g *Graph) components() [][]string {
	index := make(map[string]int, len(g.Files))
	low := make(map[string]int, len(g.Files))
	onStack := make(map[string]bool)
	var stack []string
	var comps [][]string
	next := 0
	adj := g.adjacency()

	var visit func(v string)
	visit = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var c []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				c = append(c, w)
				if w == v {
					break
				}
			}
			sort.Strings(c)
			comps = append(comps, c)
		}
	}

	for _, f := range g.Files {
		if _, seen := index[f]; !seen {
			visit(f)
		}
	}
	return comps
}

// compHeap yields component indices by their lexically smallest member.
type compHeap struct {
	comps [][]string
	items []int
}

func (h *compHeap) Len() int           { return len(h.items) }
func (h *compHeap) Less(i, j int) bool { return h.comps[h.items[i]][0] < h.comps[h.items[j]][0] }
func (h *compHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *compHeap) Push(x any)         { h.items = append(h.items, x.(int)) }
func (h *compHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
