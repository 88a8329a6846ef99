package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

func sampleGraph(t *testing.T) *graph.Document {
	t.Helper()
	doc, err := ir.NewBuilder().Build(&syntax.File{
		Path:    "app.py",
		Imports: []syntax.Import{{Module: "os", Span: syntax.Span{StartLine: 1, EndLine: 1}}},
		Decls: []syntax.Decl{{
			Kind:  syntax.DeclFunction,
			Name:  "main",
			Span:  syntax.Span{StartLine: 3, EndLine: 5},
			Calls: []syntax.Ref{{Name: "print", Span: syntax.Span{StartLine: 4, EndLine: 4}}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.Assemble("b1", []*ir.Document{doc}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestBuildMetrics_Collect(t *testing.T) {
	m := New("b1")
	g := sampleGraph(t)
	m.CollectGraph(g, 2)
	m.AddStage("assemble", 3*time.Millisecond, 1)

	fg := depgraph.NewGraph("b1", []string{"app.py"}, nil)
	m.CollectFiles(fg, &depgraph.Ordering{})
	m.Finish(diag.List{{Kind: diag.KindUnresolvedImport}, {Kind: diag.KindUnresolvedImport}}, nil)

	if m.Graph.Nodes != len(g.Nodes()) || m.Graph.Edges != len(g.Edges()) {
		t.Errorf("expected %d nodes and %d edges, got %+v", len(g.Nodes()), len(g.Edges()), m.Graph)
	}
	if m.Graph.ByNode["function"] != 1 || m.Graph.ByNode["module"] != 1 {
		t.Errorf("unexpected node kind counts %v", m.Graph.ByNode)
	}
	if m.Graph.ByEdge["calls"] != 1 || m.Graph.ByEdge["imports"] != 1 {
		t.Errorf("unexpected edge kind counts %v", m.Graph.ByEdge)
	}
	if m.Files.Count != 1 {
		t.Errorf("expected 1 file, got %d", m.Files.Count)
	}
	if m.Diagnostics["unresolved-import"] != 2 {
		t.Errorf("expected 2 unresolved imports, got %v", m.Diagnostics)
	}
	if m.Error != "" {
		t.Errorf("expected no error, got %q", m.Error)
	}
}

func TestBuildMetrics_PrintSummary(t *testing.T) {
	m := New("b1")
	m.CollectGraph(sampleGraph(t), 2)
	m.AddStage("order", time.Millisecond, 1)
	m.Finish(diag.List{{Kind: diag.KindDependencyCycle}}, errors.New("boom"))

	var buf bytes.Buffer
	m.PrintSummary(&buf)
	out := buf.String()
	for _, want := range []string{"CODEGRAPH BUILD REPORT", "Symbols:     2", "order", "dependency-cycle", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestBuildMetrics_Encodings(t *testing.T) {
	m := New("b1")
	m.CollectGraph(sampleGraph(t), 2)
	m.Finish(nil, nil)

	data, err := m.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON map[string]any
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatal(err)
	}
	if fromJSON["build_id"] != "b1" {
		t.Errorf("expected build_id b1 in JSON, got %v", fromJSON["build_id"])
	}

	data, err = m.YAML()
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML struct {
		BuildID string `yaml:"build_id"`
		Graph   struct {
			Symbols int `yaml:"symbols"`
		} `yaml:"graph"`
	}
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatal(err)
	}
	if fromYAML.BuildID != "b1" || fromYAML.Graph.Symbols != 2 {
		t.Errorf("unexpected YAML decode %+v", fromYAML)
	}
}
