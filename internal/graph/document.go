// Package graph merges per-file IR documents and their semantic snapshots
// into one indexed project graph.
package graph

import (
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/ir"
)

// FileInfo is the per-file metadata carried over from the IR document.
type FileInfo struct {
	Path       string `json:"path"`
	Module     string `json:"module"`
	Language   string `json:"language,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
}

// Document is the assembled graph of one build. Indices are built once and
// the document is read-only afterwards, so it may be shared between
// goroutines.
type Document struct {
	BuildID string

	files    []FileInfo
	fileIdx  map[string]int
	nodes    []*ir.Node
	edges    []*ir.Edge
	byID     map[ir.NodeID]*ir.Node
	byKind   map[ir.NodeKind][]*ir.Node
	outgoing map[ir.NodeID][]*ir.Edge
	incoming map[ir.NodeID][]*ir.Edge
	enriched int
	diags    diag.List
}

// Files returns the build's files sorted by path.
func (d *Document) Files() []string {
	out := make([]string, len(d.files))
	for i, f := range d.files {
		out[i] = f.Path
	}
	return out
}

// FileInfos returns metadata for every file, sorted by path.
func (d *Document) FileInfos() []FileInfo {
	out := make([]FileInfo, len(d.files))
	copy(out, d.files)
	return out
}

// HasFile reports whether path is part of the build.
func (d *Document) HasFile(path string) bool {
	_, ok := d.fileIdx[path]
	return ok
}

// File returns metadata for path.
func (d *Document) File(path string) (FileInfo, bool) {
	i, ok := d.fileIdx[path]
	if !ok {
		return FileInfo{}, false
	}
	return d.files[i], true
}

// Nodes returns all nodes, ordered by file then by position in the file's
// IR document.
func (d *Document) Nodes() []*ir.Node { return d.nodes }

// Edges returns all edges in the same order as Nodes.
func (d *Document) Edges() []*ir.Edge { return d.edges }

// Node looks up a node by id.
func (d *Document) Node(id ir.NodeID) (*ir.Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// NodesOfKind returns the nodes of kind k in document order.
func (d *Document) NodesOfKind(k ir.NodeKind) []*ir.Node {
	return d.byKind[k]
}

// EdgesOfKind returns the edges of kind k in document order.
func (d *Document) EdgesOfKind(k ir.EdgeKind) []*ir.Edge {
	var out []*ir.Edge
	for _, e := range d.edges {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns the edges whose source is id.
func (d *Document) Outgoing(id ir.NodeID) []*ir.Edge {
	return d.outgoing[id]
}

// Incoming returns the node-typed edges that target id.
func (d *Document) Incoming(id ir.NodeID) []*ir.Edge {
	return d.incoming[id]
}

// Diagnostics returns the diagnostics carried by the input documents.
func (d *Document) Diagnostics() diag.List { return d.diags }

// Stats summarizes the document.
type Stats struct {
	Files    int `json:"files" yaml:"files"`
	Nodes    int `json:"nodes" yaml:"nodes"`
	Edges    int `json:"edges" yaml:"edges"`
	Enriched int `json:"enriched" yaml:"enriched"`
	Degraded int `json:"degraded" yaml:"degraded"`
}

// Stats returns counts for reporting.
func (d *Document) Stats() Stats {
	degraded := 0
	for _, n := range d.nodes {
		if n.Degraded {
			degraded++
		}
	}
	return Stats{
		Files:    len(d.files),
		Nodes:    len(d.nodes),
		Edges:    len(d.edges),
		Enriched: d.enriched,
		Degraded: degraded,
	}
}

// Indices is a comparable view of the lookup structures, with edges listed
// by id.
type Indices struct {
	Nodes    []ir.NodeID
	ByKind   map[ir.NodeKind][]ir.NodeID
	Outgoing map[ir.NodeID][]string
	Incoming map[ir.NodeID][]string
}

// Indices returns a copy of the document's indices.
func (d *Document) Indices() Indices {
	idx := Indices{
		Nodes:    make([]ir.NodeID, len(d.nodes)),
		ByKind:   make(map[ir.NodeKind][]ir.NodeID, len(d.byKind)),
		Outgoing: make(map[ir.NodeID][]string, len(d.outgoing)),
		Incoming: make(map[ir.NodeID][]string, len(d.incoming)),
	}
	for i, n := range d.nodes {
		idx.Nodes[i] = n.ID
	}
	for k, nodes := range d.byKind {
		for _, n := range nodes {
			idx.ByKind[k] = append(idx.ByKind[k], n.ID)
		}
	}
	for id, edges := range d.outgoing {
		idx.Outgoing[id] = edgeIDs(edges)
	}
	for id, edges := range d.incoming {
		idx.Incoming[id] = edgeIDs(edges)
	}
	return idx
}

func edgeIDs(edges []*ir.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID
	}
	return out
}

// Kinds returns the node kinds present, sorted.
func (d *Document) Kinds() []ir.NodeKind {
	out := make([]ir.NodeKind, 0, len(d.byKind))
	for k := range d.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
