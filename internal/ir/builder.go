package ir

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

// ImportTargetMode selects how the builder types Imports edge targets.
type ImportTargetMode string

const (
	// ImportTargetNode points Imports edges at the Import reference node,
	// whose Name holds the imported qualified name.
	ImportTargetNode ImportTargetMode = "node"
	// ImportTargetFQN points Imports edges at the imported qualified name
	// directly.
	ImportTargetFQN ImportTargetMode = "fqn"
)

// Attribute keys set by the builder.
const (
	AttrAlias        = "alias"
	AttrRef          = "ref"
	AttrDeclaredType = "declared_type"
	AttrDiagnostic   = "diagnostic"
	AttrImported     = "imported"
)

// BuilderOptions configures Builder.
type BuilderOptions struct {
	ImportTargets ImportTargetMode
}

// BuilderOption is a functional option for Builder.
type BuilderOption func(*BuilderOptions)

// WithImportTargets sets how Imports edge targets are typed.
func WithImportTargets(mode ImportTargetMode) BuilderOption {
	return func(o *BuilderOptions) {
		o.ImportTargets = mode
	}
}

// Builder turns syntax files into IR documents. It holds no per-build state
// and is safe for concurrent use.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	options := BuilderOptions{ImportTargets: ImportTargetNode}
	for _, opt := range opts {
		opt(&options)
	}
	if options.ImportTargets != ImportTargetFQN {
		options.ImportTargets = ImportTargetNode
	}
	return &Builder{options: options}
}

// Build converts one file. Malformed declarations become degraded nodes;
// the only error is a file without a path.
func (b *Builder) Build(f *syntax.File) (*Document, error) {
	if f == nil || f.Path == "" {
		return nil, diag.Structural("", "syntax file has no path")
	}

	module := f.Module
	if module == "" {
		module = ModuleName(f.Path)
	}

	db := &docBuilder{
		mode: b.options.ImportTargets,
		doc: &Document{
			File:       f.Path,
			Module:     module,
			Language:   f.Language,
			SnapshotID: f.SnapshotID,
		},
	}

	mod := db.addNode(KindModule, lastSegment(module), module, Span{StartLine: 1, EndLine: 1})

	for _, imp := range f.Imports {
		db.addImport(mod, imp)
	}
	for _, d := range f.Decls {
		db.addDecl(mod, d)
	}
	db.addRefs(mod, EdgeCalls, KindCallSite, "call", f.Calls)
	db.addRefs(mod, EdgeInstantiates, KindCallSite, "instantiate", f.Instantiates)
	db.addRefs(mod, EdgeReads, KindReference, "read", f.Reads)
	db.addRefs(mod, EdgeWrites, KindReference, "write", f.Writes)

	if err := db.checkTargets(); err != nil {
		return nil, err
	}
	return db.doc, nil
}

// ModuleName derives a dotted module name from a file path:
// "pkg/mod.py" -> "pkg.mod", "pkg/__init__.py" -> "pkg".
func ModuleName(path string) string {
	p := filepath.ToSlash(path)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, filepath.Ext(p))
	parts := strings.Split(p, "/")
	if len(parts) > 1 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

func lastSegment(fqn string) string {
	if i := strings.LastIndex(fqn, "."); i >= 0 {
		return fqn[i+1:]
	}
	return fqn
}

type docBuilder struct {
	mode  ImportTargetMode
	doc   *Document
	nodes int
	edges int
}

func (db *docBuilder) addNode(kind NodeKind, name, fqn string, span Span) *Node {
	n := &Node{
		ID:   NodeID(fmt.Sprintf("%s#%d", db.doc.File, db.nodes)),
		Kind: kind,
		Name: name,
		FQN:  fqn,
		File: db.doc.File,
		Span: span,
	}
	db.nodes++
	if !span.Valid() {
		db.degrade(n, "invalid span "+span.String())
	}
	db.doc.Nodes = append(db.doc.Nodes, n)
	return n
}

func (db *docBuilder) addEdge(kind EdgeKind, from *Node, target TargetRef, span *Span) *Edge {
	e := &Edge{
		ID:     fmt.Sprintf("%s#e%d", db.doc.File, db.edges),
		Kind:   kind,
		Source: from.ID,
		Target: target,
		Span:   span,
	}
	db.edges++
	db.doc.Edges = append(db.doc.Edges, e)
	return e
}

func (db *docBuilder) degrade(n *Node, reason string) {
	if n.Degraded {
		n.Attrs[AttrDiagnostic] += "; " + reason
	} else {
		n.Degraded = true
		setAttr(n, AttrDiagnostic, reason)
	}
	db.doc.Diagnostics.Add(diag.Diagnostic{
		Kind:    diag.KindDegradedNode,
		File:    db.doc.File,
		NodeID:  string(n.ID),
		FQN:     n.FQN,
		Message: reason,
	})
}

func (db *docBuilder) addImport(mod *Node, imp syntax.Import) {
	target := imp.Target()
	span := Span(imp.Span)
	n := db.addNode(KindImport, target, "", span)
	setAttr(n, AttrAlias, imp.Binding())

	edgeTarget := NodeTarget(n.ID)
	if target == "" {
		db.degrade(n, "import without a target name")
	} else if db.mode == ImportTargetFQN {
		edgeTarget = FQNTarget(target)
	}
	e := db.addEdge(EdgeImports, mod, edgeTarget, &span)
	if target != "" {
		e.Attrs = map[string]string{AttrImported: target}
	}
}

var declKinds = map[syntax.DeclKind]NodeKind{
	syntax.DeclClass:    KindClass,
	syntax.DeclFunction: KindFunction,
	syntax.DeclVariable: KindVariable,
}

func (db *docBuilder) addDecl(scope *Node, d syntax.Decl) {
	kind, known := declKinds[d.Kind]
	if !known {
		kind = KindVariable
	}

	fqn := ""
	if d.Name != "" && scope.FQN != "" {
		fqn = scope.FQN + "." + d.Name
	}
	n := db.addNode(kind, d.Name, fqn, Span(d.Span))
	if d.Type != "" {
		setAttr(n, AttrDeclaredType, d.Type)
	}
	switch {
	case !known:
		db.degrade(n, fmt.Sprintf("unknown declaration kind %q", d.Kind))
	case d.Name == "":
		db.degrade(n, "declaration without a name")
	}
	if d.Malformed != "" {
		db.degrade(n, d.Malformed)
	}
	span := n.Span
	db.addEdge(EdgeDefines, scope, NodeTarget(n.ID), &span)

	for _, p := range d.Params {
		pfqn := ""
		if p.Name != "" && fqn != "" {
			pfqn = fqn + "." + p.Name
		}
		pn := db.addNode(KindParameter, p.Name, pfqn, Span(p.Span))
		if p.Type != "" {
			setAttr(pn, AttrDeclaredType, p.Type)
		}
		if p.Name == "" {
			db.degrade(pn, "parameter without a name")
		}
		pspan := pn.Span
		db.addEdge(EdgeDefines, n, NodeTarget(pn.ID), &pspan)
	}

	db.addRefs(n, EdgeInherits, KindReference, "base", d.Bases)
	db.addRefs(n, EdgeCalls, KindCallSite, "call", d.Calls)
	db.addRefs(n, EdgeInstantiates, KindCallSite, "instantiate", d.Instantiates)
	db.addRefs(n, EdgeReads, KindReference, "read", d.Reads)
	db.addRefs(n, EdgeWrites, KindReference, "write", d.Writes)

	for _, child := range d.Children {
		db.addDecl(n, child)
	}
}

func (db *docBuilder) addRefs(scope *Node, edge EdgeKind, kind NodeKind, ref string, refs []syntax.Ref) {
	for _, r := range refs {
		n := db.addNode(kind, r.Name, "", Span(r.Span))
		setAttr(n, AttrRef, ref)
		if r.Name == "" {
			db.degrade(n, ref+" reference without a name")
		}
		span := n.Span
		db.addEdge(edge, scope, NodeTarget(n.ID), &span)
	}
}

// checkTargets enforces the target typing contract on what was just built:
// node targets name a node of this document, FQN targets are non-empty.
func (db *docBuilder) checkTargets() error {
	ids := make(map[NodeID]bool, len(db.doc.Nodes))
	for _, n := range db.doc.Nodes {
		ids[n.ID] = true
	}
	for _, e := range db.doc.Edges {
		switch e.Target.Kind() {
		case TargetNode:
			id, _ := e.Target.NodeID()
			if !ids[id] {
				return diag.Structural(db.doc.File, "edge %s targets unknown node %s", e.ID, id)
			}
		case TargetFQN:
			if e.Target.Value() == "" {
				return diag.Structural(db.doc.File, "edge %s has an empty fqn target", e.ID)
			}
		default:
			return diag.Structural(db.doc.File, "edge %s has no target", e.ID)
		}
	}
	return nil
}

func setAttr(n *Node, key, value string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[key] = value
}

// Validate checks a document produced outside this builder (a cache or a
// remote worker) for the invariants the builder guarantees locally. Node
// targets may point into other documents; the assembler checks those.
func Validate(doc *Document) error {
	if doc == nil || doc.File == "" {
		return diag.Structural("", "document has no file")
	}
	ids := make(map[NodeID]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.File != doc.File {
			return diag.Structural(doc.File, "node %s belongs to %s", n.ID, n.File)
		}
		if ids[n.ID] {
			return diag.Structural(doc.File, "duplicate node id %s", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range doc.Edges {
		if !ids[e.Source] {
			return diag.Structural(doc.File, "edge %s source %s is not in the document", e.ID, e.Source)
		}
		if e.Target.IsZero() {
			return diag.Structural(doc.File, "edge %s has no target", e.ID)
		}
		if e.Target.Kind() == TargetFQN && e.Target.Value() == "" {
			return diag.Structural(doc.File, "edge %s has an empty fqn target", e.ID)
		}
	}
	return nil
}
