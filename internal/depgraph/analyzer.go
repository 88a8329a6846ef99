package depgraph

import (
	"fmt"
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/symbols"
)

// ResolveImport computes the qualified name an Imports edge refers to. A
// node-typed target yields that node's FQN, or its Name when the FQN is
// still empty (import nodes carry the imported name there). An FQN-typed
// target is used as is. The result is a pure function of its inputs.
func ResolveImport(doc *graph.Document, e *ir.Edge) (string, bool) {
	switch e.Target.Kind() {
	case ir.TargetNode:
		id, _ := e.Target.NodeID()
		n, ok := doc.Node(id)
		if !ok {
			return "", false
		}
		if n.FQN != "" {
			return n.FQN, true
		}
		return n.Name, n.Name != ""
	case ir.TargetFQN:
		fqn, _ := e.Target.FQN()
		return fqn, fqn != ""
	}
	return "", false
}

// Resolve maps every Imports edge to the file that defines its target and
// collapses the result into a file graph. Unresolvable imports are
// reported and left out; they never fail the call.
func Resolve(doc *graph.Document, table *symbols.Table) (*Graph, []Resolution, diag.List) {
	g := &Graph{
		BuildID: doc.BuildID,
		Files:   doc.Files(),
	}
	var resolutions []Resolution
	var diags diag.List

	weights := make(map[Edge]int)
	for _, e := range doc.EdgesOfKind(ir.EdgeImports) {
		src, _ := doc.Node(e.Source)
		res := Resolution{EdgeID: e.ID, File: src.File, Status: StatusUnresolved}

		fqn, ok := ResolveImport(doc, e)
		if !ok {
			resolutions = append(resolutions, res)
			diags.Add(diag.Diagnostic{
				Kind:    diag.KindUnresolvedImport,
				File:    src.File,
				EdgeID:  e.ID,
				Message: "import has no resolvable target " + e.Target.String(),
			})
			continue
		}
		res.Imported = fqn

		sym, ok := table.Lookup(fqn)
		if !ok {
			sym, ok = table.LookupPrefix(fqn)
		}
		if !ok {
			resolutions = append(resolutions, res)
			diags.Add(diag.Diagnostic{
				Kind:    diag.KindUnresolvedImport,
				File:    src.File,
				EdgeID:  e.ID,
				FQN:     fqn,
				Message: fmt.Sprintf("no definition of %s in this build", fqn),
			})
			continue
		}
		res.Matched = sym.FQN
		res.Target = sym.File
		if sym.File == src.File {
			res.Status = StatusSelf
		} else {
			res.Status = StatusResolved
			weights[Edge{From: src.File, To: sym.File}]++
		}
		resolutions = append(resolutions, res)
	}

	for e, w := range weights {
		e.Weight = w
		g.Edges = append(g.Edges, e)
	}
	g.index()
	g.computeStats(resolutions)
	return g, resolutions, diags
}

// NewGraph builds a file graph from explicit edges. Edge endpoints missing
// from files are added, self edges are dropped and parallel edges merged.
func NewGraph(buildID string, files []string, edges []Edge) *Graph {
	g := &Graph{BuildID: buildID}
	seen := make(map[string]bool)
	addFile := func(f string) {
		if !seen[f] {
			seen[f] = true
			g.Files = append(g.Files, f)
		}
	}
	for _, f := range files {
		addFile(f)
	}
	merged := make(map[Edge]int)
	for _, e := range edges {
		addFile(e.From)
		addFile(e.To)
		if e.From == e.To {
			continue
		}
		merged[Edge{From: e.From, To: e.To}] += max(e.Weight, 1)
	}
	sort.Strings(g.Files)
	for e, w := range merged {
		e.Weight = w
		g.Edges = append(g.Edges, e)
	}
	g.index()
	g.computeStats(nil)
	return g
}

// index sorts the edges and builds the adjacency lists.
func (g *Graph) index() {
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	g.adj = make(map[string][]string, len(g.Files))
	for _, e := range g.Edges {
		g.adj[e.From] = append(g.adj[e.From], e.To)
	}
}

// computeStats computes graph metrics.
func (g *Graph) computeStats(resolutions []Resolution) {
	g.Stats.TotalFiles = len(g.Files)
	g.Stats.TotalEdges = len(g.Edges)
	g.Stats.FanOut = make(map[string]int)

	for _, r := range resolutions {
		if r.Status == StatusUnresolved {
			g.Stats.UnresolvedImports++
		} else {
			g.Stats.ResolvedImports++
		}
	}

	fanIn := make(map[string]int)
	for _, e := range g.Edges {
		g.Stats.FanOut[e.From]++
		fanIn[e.To]++
	}
	// Files are sorted, so ties go to the lexically first file.
	for _, f := range g.Files {
		if c := g.Stats.FanOut[f]; c > g.Stats.MaxFanOut {
			g.Stats.MaxFanOut = c
			g.Stats.HotspotFile = f
		}
		if c := fanIn[f]; c > g.Stats.MaxFanIn {
			g.Stats.MaxFanIn = c
		}
	}

	g.Stats.ConnectedComponents = g.countComponents()
}

// countComponents counts weakly connected components via union-find.
func (g *Graph) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, f := range g.Files {
		find(f)
	}
	for _, e := range g.Edges {
		union(e.From, e.To)
	}

	roots := make(map[string]bool)
	for _, f := range g.Files {
		roots[find(f)] = true
	}
	return len(roots)
}
