package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/plugins/source/python"
	"github.com/efebarandurmaz/codegraph/internal/snapshot"
	"github.com/efebarandurmaz/codegraph/internal/vector"
)

var project = map[string]string{
	"app/__init__.py": "",
	"app/models.py": `class User:
    def __init__(self, name):
        self.name = name
`,
	"app/repo.py": `from app.models import User


class UserRepo:
    def get(self, key):
        return User(key)
`,
	"app/service.py": `from .repo import UserRepo
import app.models


def fetch(key):
    repo = UserRepo()
    return repo.get(key)
`,
	"main.py": `from app.service import fetch
import requests

fetch("x")
`,
}

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range project {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func parse(t *testing.T, root string) []plugins.SourceFile {
	t.Helper()
	sources, err := plugins.LoadSourceFiles(root, python.New())
	require.NoError(t, err)
	return sources
}

func TestE2E_PythonProject(t *testing.T) {
	ctx := context.Background()
	sources := parse(t, writeProject(t))
	require.Len(t, sources, 5)

	files, err := python.New().Parse(ctx, sources)
	require.NoError(t, err)

	res, err := pipeline.New(pipeline.WithWorkers(3)).Run(ctx, files)
	require.NoError(t, err)

	// Dependencies come before their dependents.
	pos := make(map[string]int)
	for i, f := range res.Ordering.Build {
		pos[f] = i
	}
	require.Len(t, pos, 5)
	for _, e := range res.FileGraph.Edges {
		assert.Less(t, pos[e.To], pos[e.From], "%s imports %s", e.From, e.To)
	}
	assert.True(t, res.FileGraph.HasEdge("main.py", "app/service.py"))
	assert.True(t, res.FileGraph.HasEdge("app/service.py", "app/repo.py"))
	assert.True(t, res.FileGraph.HasEdge("app/service.py", "app/models.py"))
	assert.True(t, res.FileGraph.HasEdge("app/repo.py", "app/models.py"))
	assert.Len(t, res.FileGraph.Edges, 4)

	unresolved := res.Diagnostics.OfKind(diag.KindUnresolvedImport)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "main.py", unresolved[0].File)

	for _, r := range res.Resolutions {
		if r.Imported == "app.service.fetch" {
			assert.Equal(t, depgraph.StatusResolved, r.Status)
			assert.Equal(t, "app/service.py", r.Target)
		}
	}

	owner, ok := res.Table.OwningFile("app.repo.UserRepo.get")
	require.True(t, ok)
	assert.Equal(t, "app/repo.py", owner)
	assert.Equal(t, 5, res.Report.Files.Count)

	// Persist and query the stored graph.
	repo := graph.NewMemoryRepository()
	require.NoError(t, repo.StoreGraph(ctx, res.Graph))
	require.NoError(t, repo.StoreDependencies(ctx, res.BuildID, res.FileGraph.FileDependencies()))

	dependents, err := repo.QueryDependents(ctx, res.BuildID, "app/models.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/repo.py", "app/service.py"}, dependents)

	callees, err := repo.QueryCallees(ctx, "app.service.fetch")
	require.NoError(t, err)
	assert.Contains(t, callees, "repo.get")

	// Index the symbol table and search it.
	vectors := vector.NewMemoryRepository()
	indexer := vector.NewIndexer(vector.HashEmbedder{}, vectors)
	n, err := indexer.IndexSymbols(ctx, res.BuildID, res.Table, res.Graph)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Len(), n)

	results, err := indexer.Search(ctx, "user repo", 3)
	require.NoError(t, err)
	var found []string
	for _, r := range results {
		found = append(found, r.Metadata["fqn"])
	}
	assert.Contains(t, found, "app.repo.UserRepo")
}

func TestE2E_ImportTargetModesAgree(t *testing.T) {
	ctx := context.Background()
	files, err := python.New().Parse(ctx, parse(t, writeProject(t)))
	require.NoError(t, err)

	byNode, err := pipeline.New().Run(ctx, files)
	require.NoError(t, err)
	byFQN, err := pipeline.New(pipeline.WithImportTargets(ir.ImportTargetFQN)).Run(ctx, files)
	require.NoError(t, err)

	assert.Equal(t, byNode.Ordering.Build, byFQN.Ordering.Build)
	assert.Equal(t, byNode.FileGraph.Edges, byFQN.FileGraph.Edges)
}

func TestE2E_IncrementalRebuild(t *testing.T) {
	ctx := context.Background()
	root := writeProject(t)

	cache, err := snapshot.Open(snapshot.InMemoryConfig())
	require.NoError(t, err)
	defer cache.Close()
	p := pipeline.New(pipeline.WithCache(cache))

	files, err := python.New().Parse(ctx, parse(t, root))
	require.NoError(t, err)
	first, err := p.Run(ctx, files)
	require.NoError(t, err)

	// Break the repo -> models dependency; only app/repo.py changes.
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "repo.py"),
		[]byte("class UserRepo:\n    def get(self, key):\n        return key\n"), 0o644))

	files, err = python.New().Parse(ctx, parse(t, root))
	require.NoError(t, err)
	second, err := p.Run(ctx, files)
	require.NoError(t, err)

	assert.True(t, first.FileGraph.HasEdge("app/repo.py", "app/models.py"))
	assert.False(t, second.FileGraph.HasEdge("app/repo.py", "app/models.py"))
	assert.Equal(t, int64(4), second.Report.Cache.Hits)
}
