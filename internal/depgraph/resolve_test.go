package depgraph

import (
	"reflect"
	"testing"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/symbols"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

func ln(n int) syntax.Span {
	return syntax.Span{StartLine: n, EndLine: n, EndCol: 6}
}

func fn(name string, line int) syntax.Decl {
	return syntax.Decl{Kind: syntax.DeclFunction, Name: name, Span: ln(line)}
}

func imp(module, name string, line int) syntax.Import {
	return syntax.Import{Module: module, Name: name, Span: ln(line)}
}

func scenarioFiles() []*syntax.File {
	return []*syntax.File{
		{Path: "utils.py", Decls: []syntax.Decl{fn("util", 1)}},
		{Path: "helpers.py", Imports: []syntax.Import{imp("utils", "", 1)}, Decls: []syntax.Decl{fn("helper", 3)}},
		{Path: "services.py", Imports: []syntax.Import{imp("utils", "", 1), imp("helpers", "", 2)}},
		{Path: "main.py", Imports: []syntax.Import{imp("services", "", 1)}},
	}
}

type fixture struct {
	doc   *graph.Document
	table *symbols.Table
}

func load(t *testing.T, mode ir.ImportTargetMode, files ...*syntax.File) fixture {
	t.Helper()
	b := ir.NewBuilder(ir.WithImportTargets(mode))
	var docs []*ir.Document
	for _, f := range files {
		d, err := b.Build(f)
		if err != nil {
			t.Fatalf("build %s: %v", f.Path, err)
		}
		docs = append(docs, d)
	}
	doc, err := graph.Assemble("test", docs, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	table, _ := symbols.Build(doc)
	return fixture{doc: doc, table: table}
}

func TestResolve_Scenario(t *testing.T) {
	fx := load(t, ir.ImportTargetNode, scenarioFiles()...)
	g, res, diags := Resolve(fx.doc, fx.table)

	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
	want := []Edge{
		{From: "helpers.py", To: "utils.py", Weight: 1},
		{From: "main.py", To: "services.py", Weight: 1},
		{From: "services.py", To: "helpers.py", Weight: 1},
		{From: "services.py", To: "utils.py", Weight: 1},
	}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges = %v, want %v", g.Edges, want)
	}
	if len(g.Files) != 4 {
		t.Errorf("expected 4 files, got %v", g.Files)
	}
	if deps := g.Dependencies("utils.py"); len(deps) != 0 {
		t.Errorf("utils.py should depend on nothing, got %v", deps)
	}

	for _, r := range res {
		if r.Status != StatusUnresolved && r.Imported == "" {
			t.Errorf("resolved import %s has an empty name", r.EdgeID)
		}
	}
	if g.Stats.ResolvedImports != 4 || g.Stats.UnresolvedImports != 0 {
		t.Errorf("unexpected stats %+v", g.Stats)
	}
	if g.Stats.ConnectedComponents != 1 {
		t.Errorf("expected 1 component, got %d", g.Stats.ConnectedComponents)
	}
	if g.Stats.HotspotFile != "services.py" || g.Stats.MaxFanOut != 2 {
		t.Errorf("expected services.py hotspot with fan-out 2, got %s/%d", g.Stats.HotspotFile, g.Stats.MaxFanOut)
	}
}

func TestResolve_BothTargetModesAgree(t *testing.T) {
	byNode := load(t, ir.ImportTargetNode, scenarioFiles()...)
	byFQN := load(t, ir.ImportTargetFQN, scenarioFiles()...)

	a, _, _ := Resolve(byNode.doc, byNode.table)
	b, _, _ := Resolve(byFQN.doc, byFQN.table)
	if !reflect.DeepEqual(a.Edges, b.Edges) {
		t.Errorf("node-target edges %v differ from fqn-target edges %v", a.Edges, b.Edges)
	}
}

// An Imports edge whose FQN target is not any node id must still resolve.
func TestResolve_FQNTargetIsNotANodeID(t *testing.T) {
	fx := load(t, ir.ImportTargetFQN,
		&syntax.File{Path: "utils.py", Decls: []syntax.Decl{fn("util", 1)}},
		&syntax.File{Path: "main.py", Imports: []syntax.Import{imp("utils", "util", 1)}},
	)
	edges := fx.doc.EdgesOfKind(ir.EdgeImports)
	if len(edges) != 1 {
		t.Fatalf("expected one import edge, got %d", len(edges))
	}
	if _, isNode := fx.doc.Node(ir.NodeID(edges[0].Target.Value())); isNode {
		t.Fatal("fixture target must not be a node id")
	}

	g, res, diags := Resolve(fx.doc, fx.table)
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
	if !g.HasEdge("main.py", "utils.py") {
		t.Errorf("expected main.py -> utils.py, got %v", g.Edges)
	}
	if res[0].Imported != "utils.util" || res[0].Matched != "utils.util" {
		t.Errorf("unexpected resolution %+v", res[0])
	}
}

// A local definition shadowing an imported name keeps its own table entry.
func TestResolve_LocalDefinitionShadowsImport(t *testing.T) {
	fx := load(t, ir.ImportTargetNode,
		&syntax.File{Path: "lib.py", Decls: []syntax.Decl{fn("helper", 1)}},
		&syntax.File{
			Path:    "app.py",
			Imports: []syntax.Import{imp("lib", "helper", 1)},
			Decls:   []syntax.Decl{fn("helper", 3)},
		},
	)

	sym, ok := fx.table.Lookup("app.helper")
	if !ok {
		t.Fatal("expected app.helper in the symbol table")
	}
	n, _ := fx.doc.Node(sym.Node)
	if n.Kind != ir.KindFunction || n.File != "app.py" || n.Span.StartLine != 3 {
		t.Errorf("expected the local definition, got %+v", n)
	}
	for _, s := range fx.table.Symbols() {
		n, _ := fx.doc.Node(s.Node)
		if n.Kind == ir.KindImport {
			t.Errorf("import node %s leaked into the symbol table", n.ID)
		}
	}

	g, _, _ := Resolve(fx.doc, fx.table)
	if !g.HasEdge("app.py", "lib.py") {
		t.Errorf("expected app.py -> lib.py, got %v", g.Edges)
	}
}

func TestResolve_Unresolved(t *testing.T) {
	fx := load(t, ir.ImportTargetNode,
		&syntax.File{Path: "main.py", Imports: []syntax.Import{imp("os", "", 1), {Span: ln(2)}}},
	)
	g, res, diags := Resolve(fx.doc, fx.table)

	if len(g.Edges) != 0 {
		t.Errorf("expected no edges, got %v", g.Edges)
	}
	unresolved := diags.OfKind(diag.KindUnresolvedImport)
	if len(unresolved) != 2 {
		t.Fatalf("expected 2 unresolved-import diagnostics, got %v", diags)
	}
	if unresolved[0].FQN != "os" {
		t.Errorf("expected os to be named, got %+v", unresolved[0])
	}
	for _, r := range res {
		if r.Status != StatusUnresolved {
			t.Errorf("expected unresolved, got %+v", r)
		}
	}
	if len(g.Files) != 1 {
		t.Errorf("files without edges must stay vertices, got %v", g.Files)
	}
}

func TestResolve_PrefixSelfAndDedup(t *testing.T) {
	fx := load(t, ir.ImportTargetFQN,
		&syntax.File{Path: "utils.py", Decls: []syntax.Decl{fn("util", 1)}},
		&syntax.File{
			Path: "main.py",
			Imports: []syntax.Import{
				imp("utils.util", "inner", 1),
				imp("utils", "", 2),
				imp("main", "run", 3),
			},
			Decls: []syntax.Decl{fn("run", 5)},
		},
	)
	g, res, diags := Resolve(fx.doc, fx.table)
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
	want := []Edge{{From: "main.py", To: "utils.py", Weight: 2}}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges = %v, want %v", g.Edges, want)
	}
	if res[0].Matched != "utils.util" || res[0].Imported != "utils.util.inner" {
		t.Errorf("expected prefix match, got %+v", res[0])
	}
	if res[2].Status != StatusSelf {
		t.Errorf("expected self import, got %+v", res[2])
	}
}

func TestResolveImport_Idempotent(t *testing.T) {
	fx := load(t, ir.ImportTargetNode, scenarioFiles()...)
	for _, e := range fx.doc.EdgesOfKind(ir.EdgeImports) {
		a, okA := ResolveImport(fx.doc, e)
		b, okB := ResolveImport(fx.doc, e)
		if a != b || okA != okB {
			t.Errorf("edge %s resolved to %q then %q", e.ID, a, b)
		}
	}

	g1, r1, _ := Resolve(fx.doc, fx.table)
	g2, r2, _ := Resolve(fx.doc, fx.table)
	if !reflect.DeepEqual(g1, g2) || !reflect.DeepEqual(r1, r2) {
		t.Error("expected identical results from repeated resolution")
	}
}

func TestResolveImport_Targets(t *testing.T) {
	fx := load(t, ir.ImportTargetNode, scenarioFiles()...)
	mod := fx.doc.NodesOfKind(ir.KindModule)[0]

	tests := []struct {
		name   string
		target ir.TargetRef
		want   string
		ok     bool
	}{
		{"definition node", ir.NodeTarget(mod.ID), mod.FQN, true},
		{"missing node", ir.NodeTarget("ghost.py#1"), "", false},
		{"fqn", ir.FQNTarget("a.b"), "a.b", true},
		{"empty fqn", ir.FQNTarget(""), "", false},
		{"zero", ir.TargetRef{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveImport(fx.doc, &ir.Edge{Kind: ir.EdgeImports, Target: tt.target})
			if got != tt.want || ok != tt.ok {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNewGraph(t *testing.T) {
	g := NewGraph("b", []string{"b.py"}, []Edge{
		{From: "a.py", To: "b.py"},
		{From: "a.py", To: "b.py"},
		{From: "a.py", To: "a.py"},
	})
	if !reflect.DeepEqual(g.Files, []string{"a.py", "b.py"}) {
		t.Errorf("unexpected files %v", g.Files)
	}
	want := []Edge{{From: "a.py", To: "b.py", Weight: 2}}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges = %v, want %v", g.Edges, want)
	}
	deps := g.FileDependencies()
	if len(deps) != 1 || deps[0].From != "a.py" || deps[0].To != "b.py" {
		t.Errorf("unexpected file dependencies %v", deps)
	}
}
