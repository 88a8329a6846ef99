// Package depgraph resolves import edges into a file dependency graph and
// orders the files of a build.
package depgraph

import (
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/graph"
)

// Edge is a directed dependency: From imports a symbol defined in To.
type Edge struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Weight int    `json:"weight" yaml:"weight"` // number of import edges collapsed into this one
}

// Graph is the file dependency graph of one build. Every file of the build
// is a vertex, including files with no edges.
type Graph struct {
	BuildID string     `json:"build_id" yaml:"build_id"`
	Files   []string   `json:"files" yaml:"files"`
	Edges   []Edge     `json:"edges" yaml:"edges"`
	Stats   GraphStats `json:"stats" yaml:"stats"`

	adj map[string][]string
}

// GraphStats holds computed metrics about the graph.
type GraphStats struct {
	TotalFiles          int            `json:"total_files" yaml:"total_files"`
	TotalEdges          int            `json:"total_edges" yaml:"total_edges"`
	ResolvedImports     int            `json:"resolved_imports" yaml:"resolved_imports"`
	UnresolvedImports   int            `json:"unresolved_imports" yaml:"unresolved_imports"`
	MaxFanOut           int            `json:"max_fan_out" yaml:"max_fan_out"` // most dependencies
	MaxFanIn            int            `json:"max_fan_in" yaml:"max_fan_in"`   // most dependents
	HotspotFile         string         `json:"hotspot_file,omitempty" yaml:"hotspot_file,omitempty"`
	ConnectedComponents int            `json:"connected_components" yaml:"connected_components"`
	FanOut              map[string]int `json:"fan_out,omitempty" yaml:"fan_out,omitempty"`
}

// Dependencies returns the files that file depends on, sorted.
func (g *Graph) Dependencies(file string) []string {
	return g.adjacency()[file]
}

// adjacency returns the adjacency lists, rebuilding them from Edges for a
// graph that was decoded rather than built.
func (g *Graph) adjacency() map[string][]string {
	if g.adj != nil {
		return g.adj
	}
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	for _, deps := range adj {
		sort.Strings(deps)
	}
	return adj
}

// HasEdge reports whether from depends on to.
func (g *Graph) HasEdge(from, to string) bool {
	for _, d := range g.adjacency()[from] {
		if d == to {
			return true
		}
	}
	return false
}

// FileDependencies converts the edges for graph storage.
func (g *Graph) FileDependencies() []graph.FileDependency {
	out := make([]graph.FileDependency, len(g.Edges))
	for i, e := range g.Edges {
		out[i] = graph.FileDependency{From: e.From, To: e.To}
	}
	return out
}

// Status is the outcome of resolving one import edge.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusSelf       Status = "self" // resolved into the importing file itself
	StatusUnresolved Status = "unresolved"
)

// Resolution records how one import edge was resolved.
type Resolution struct {
	EdgeID   string `json:"edge_id" yaml:"edge_id"`
	File     string `json:"file" yaml:"file"`
	Imported string `json:"imported,omitempty" yaml:"imported,omitempty"`
	Matched  string `json:"matched,omitempty" yaml:"matched,omitempty"` // symbol table key that matched
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	Status   Status `json:"status" yaml:"status"`
}
