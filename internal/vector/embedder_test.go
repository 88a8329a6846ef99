package vector

import (
	"context"
	"reflect"
	"testing"

	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/symbols"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

func TestTokenize(t *testing.T) {
	tests := map[string][]string{
		"utils.helper_fn": {"utils", "helper", "fn"},
		"parseURL":        {"parse", "url"},
		"HTTPServer":      {"http", "server"},
		"pkg.Mod2":        {"pkg", "mod2"},
		"":                nil,
	}
	for in, want := range tests {
		if got := Tokenize(in); !reflect.DeepEqual(got, want) {
			t.Errorf("Tokenize(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHashEmbedder(t *testing.T) {
	e := HashEmbedder{Dimensions: 64}
	a := e.Embed("services.user_service.fetch_user")
	if len(a) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(a))
	}
	if got := cosine(a, a); got < 0.999 {
		t.Errorf("expected self similarity 1, got %v", got)
	}
	if !reflect.DeepEqual(a, e.Embed("services.user_service.fetch_user")) {
		t.Error("embedding should be deterministic")
	}

	near := cosine(a, e.Embed("services.user_service.fetch_users_by_id"))
	far := cosine(a, e.Embed("matplotlib.pyplot.subplots"))
	if near <= far {
		t.Errorf("expected shared tokens to score higher: near=%v far=%v", near, far)
	}

	zero := e.Embed("...")
	for _, v := range zero {
		if v != 0 {
			t.Fatal("expected zero vector for text without tokens")
		}
	}
}

func TestPointID_Stable(t *testing.T) {
	if PointID("a.b") != PointID("a.b") {
		t.Error("point id should be deterministic")
	}
	if PointID("a.b") == PointID("a.c") {
		t.Error("different names should get different ids")
	}
}

func TestIndexer_IndexSymbols(t *testing.T) {
	doc, err := ir.NewBuilder().Build(&syntax.File{
		Path: "utils.py",
		Decls: []syntax.Decl{
			{Kind: syntax.DeclFunction, Name: "load_config", Span: syntax.Span{StartLine: 1, EndLine: 2}},
			{Kind: syntax.DeclClass, Name: "UserCache", Span: syntax.Span{StartLine: 4, EndLine: 9}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.Assemble("b1", []*ir.Document{doc}, nil)
	if err != nil {
		t.Fatal(err)
	}
	table, _ := symbols.Build(g)

	repo := NewMemoryRepository()
	idx := NewIndexer(HashEmbedder{Dimensions: 128}, repo)
	n, err := idx.IndexSymbols(context.Background(), "b1", table, g)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if n != 3 || repo.Len() != 3 {
		t.Fatalf("expected 3 indexed symbols, got n=%d stored=%d", n, repo.Len())
	}

	// Re-indexing overwrites points instead of duplicating them.
	if _, err := idx.IndexSymbols(context.Background(), "b2", table, g); err != nil {
		t.Fatal(err)
	}
	if repo.Len() != 3 {
		t.Errorf("expected 3 stored symbols after re-index, got %d", repo.Len())
	}

	results, err := idx.Search(context.Background(), "user cache", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata["fqn"] != "utils.UserCache" {
		t.Fatalf("expected utils.UserCache as best match, got %+v", results)
	}
	if results[0].Metadata["build_id"] != "b2" || results[0].Metadata["kind"] != "class" {
		t.Errorf("unexpected metadata %v", results[0].Metadata)
	}
}
