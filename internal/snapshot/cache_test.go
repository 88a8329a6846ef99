package snapshot

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

func openTest(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleDoc(t *testing.T, snapshotID string) *ir.Document {
	t.Helper()
	doc, err := ir.NewBuilder().Build(&syntax.File{
		Path:       "pkg/a.py",
		SnapshotID: snapshotID,
		Imports:    []syntax.Import{{Module: "b", Span: syntax.Span{StartLine: 1, EndLine: 1, EndCol: 8}}},
		Decls: []syntax.Decl{
			{Kind: syntax.DeclFunction, Name: "f", Span: syntax.Span{StartLine: 3, EndLine: 4}},
		},
	})
	require.NoError(t, err)
	return doc
}

func TestCache_DocumentRoundTrip(t *testing.T) {
	c := openTest(t)
	doc := sampleDoc(t, "v1")
	require.NoError(t, c.PutDocument("node", doc))

	got, ok, err := c.GetDocument("node", "pkg/a.py", "v1")
	require.NoError(t, err)
	require.True(t, ok)
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("cached document differs:\n got %+v\nwant %+v", got, doc)
	}
	if got.Edges[0].Target.Kind() != ir.TargetNode {
		t.Errorf("expected target tag to survive, got %s", got.Edges[0].Target)
	}
}

func TestCache_KeyedByVersionAndVariant(t *testing.T) {
	c := openTest(t)
	require.NoError(t, c.PutDocument("node", sampleDoc(t, "v1")))

	for _, tt := range []struct{ variant, id string }{
		{"node", "v2"},
		{"fqn", "v1"},
		{"node", ""},
	} {
		_, ok, err := c.GetDocument(tt.variant, "pkg/a.py", tt.id)
		require.NoError(t, err)
		if ok {
			t.Errorf("expected miss for variant=%s id=%q", tt.variant, tt.id)
		}
	}
}

func TestCache_SkipsUnversioned(t *testing.T) {
	c := openTest(t)
	require.NoError(t, c.PutDocument("node", sampleDoc(t, "")))
	hits, misses := c.Stats()
	if hits != 0 || misses != 0 {
		t.Errorf("expected untouched stats, got %d/%d", hits, misses)
	}
}

func TestCache_SemanticSnapshot(t *testing.T) {
	c := openTest(t)
	span := ir.Span{StartLine: 3, EndLine: 4}
	snap := semantic.NewSnapshot("pkg/a.py", "v1", []semantic.Entry{
		{Key: semantic.Key{File: "pkg/a.py", Span: span}, Fact: semantic.Fact{InferredType: "() -> int"}},
	})
	require.NoError(t, c.PutSnapshot(snap))

	got, ok, err := c.GetSnapshot("pkg/a.py", "v1")
	require.NoError(t, err)
	require.True(t, ok)
	fact, found := got.Lookup("pkg/a.py", span)
	if !found || fact.InferredType != "() -> int" {
		t.Errorf("expected cached fact, got %+v", fact)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 0 {
		t.Errorf("expected 1 hit, got %d hits %d misses", hits, misses)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected error without a path")
	}
}
