package graph

import (
	"maps"
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
)

// Assemble merges the IR documents of one build with their snapshots. The
// input documents are not modified: nodes are copied before enrichment, and
// enrichment only fills fields the IR left empty. Any structural violation
// fails the whole build.
func Assemble(buildID string, docs []*ir.Document, snaps []*semantic.Snapshot) (*Document, error) {
	sorted := make([]*ir.Document, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.File == "" {
			return nil, diag.Structural("", "document without a file")
		}
		sorted = append(sorted, doc)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })

	g := &Document{
		BuildID:  buildID,
		fileIdx:  make(map[string]int, len(sorted)),
		byID:     make(map[ir.NodeID]*ir.Node),
		byKind:   make(map[ir.NodeKind][]*ir.Node),
		outgoing: make(map[ir.NodeID][]*ir.Edge),
		incoming: make(map[ir.NodeID][]*ir.Edge),
	}
	for i, doc := range sorted {
		if _, dup := g.fileIdx[doc.File]; dup {
			return nil, diag.Structural(doc.File, "file appears twice in the build")
		}
		g.fileIdx[doc.File] = i
		g.files = append(g.files, FileInfo{
			Path:       doc.File,
			Module:     doc.Module,
			Language:   doc.Language,
			SnapshotID: doc.SnapshotID,
			Nodes:      len(doc.Nodes),
			Edges:      len(doc.Edges),
		})
	}

	bySnapFile := make(map[string]*semantic.Snapshot, len(snaps))
	for _, s := range snaps {
		if s == nil {
			continue
		}
		if !g.HasFile(s.File) {
			return nil, diag.Structural(s.File, "semantic snapshot for a file outside the build")
		}
		if _, dup := bySnapFile[s.File]; dup {
			return nil, diag.Structural(s.File, "two semantic snapshots for one file")
		}
		bySnapFile[s.File] = s
	}

	for _, doc := range sorted {
		snap := bySnapFile[doc.File]
		for _, src := range doc.Nodes {
			if src.File != doc.File {
				return nil, diag.Structural(doc.File, "node %s belongs to %s", src.ID, src.File)
			}
			if _, dup := g.byID[src.ID]; dup {
				return nil, diag.Structural(doc.File, "duplicate node id %s", src.ID)
			}
			n := copyNode(src)
			if enrich(n, snap) {
				g.enriched++
			}
			g.nodes = append(g.nodes, n)
			g.byID[n.ID] = n
			g.byKind[n.Kind] = append(g.byKind[n.Kind], n)
		}
		g.diags.Extend(doc.Diagnostics)
	}

	edgeIDs := make(map[string]bool)
	for _, doc := range sorted {
		for _, src := range doc.Edges {
			if edgeIDs[src.ID] {
				return nil, diag.Structural(doc.File, "duplicate edge id %s", src.ID)
			}
			edgeIDs[src.ID] = true

			from, ok := g.byID[src.Source]
			if !ok || from.File != doc.File {
				return nil, diag.Structural(doc.File, "edge %s source %s is not a node of this file", src.ID, src.Source)
			}

			e := *src
			switch e.Target.Kind() {
			case ir.TargetNode:
				id, _ := e.Target.NodeID()
				if _, ok := g.byID[id]; !ok {
					return nil, diag.Structural(doc.File, "edge %s targets missing node %s", e.ID, id)
				}
				g.incoming[id] = append(g.incoming[id], &e)
			case ir.TargetFQN:
				if e.Target.Value() == "" {
					return nil, diag.Structural(doc.File, "edge %s has an empty fqn target", e.ID)
				}
			default:
				return nil, diag.Structural(doc.File, "edge %s has no target", e.ID)
			}
			g.edges = append(g.edges, &e)
			g.outgoing[e.Source] = append(g.outgoing[e.Source], &e)
		}
	}
	return g, nil
}

func copyNode(src *ir.Node) *ir.Node {
	n := *src
	if src.Attrs != nil {
		n.Attrs = maps.Clone(src.Attrs)
	}
	if src.Definition != nil {
		loc := *src.Definition
		n.Definition = &loc
	}
	return &n
}

// enrich fills the node's semantic fields from the snapshot without
// overwriting anything the IR already set.
func enrich(n *ir.Node, snap *semantic.Snapshot) bool {
	fact, ok := snap.Lookup(n.File, n.Span)
	if !ok {
		return false
	}
	changed := false
	if n.InferredType == "" && fact.InferredType != "" {
		n.InferredType = fact.InferredType
		changed = true
	}
	if n.Definition == nil && fact.Definition != nil {
		loc := *fact.Definition
		n.Definition = &loc
		changed = true
	}
	return changed
}
