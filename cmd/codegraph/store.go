package main

import (
	"context"
	"fmt"
	"io"

	"github.com/efebarandurmaz/codegraph/internal/graph/neo4j"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/vector"
	"github.com/efebarandurmaz/codegraph/internal/vector/qdrant"
)

func runPersist(ctx context.Context, opts buildOptions, w io.Writer) error {
	res, s, err := build(ctx, opts)
	defer s.close(context.Background())
	if err != nil {
		return err
	}

	gc := s.cfg.Graph
	if gc.URI == "" {
		return fmt.Errorf("graph.uri is not configured")
	}
	repo, err := neo4j.NewNeo4j(ctx, gc.URI, gc.Username, gc.Password)
	if err != nil {
		return err
	}
	defer repo.Close(context.Background())

	ctx, span := observability.StartStoreSpan(ctx, "neo4j")
	defer span.End()

	if err := repo.StoreGraph(ctx, res.Graph); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("store graph: %w", err)
	}
	if err := repo.StoreDependencies(ctx, res.BuildID, res.FileGraph.FileDependencies()); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("store dependencies: %w", err)
	}

	stats := res.Graph.Stats()
	fmt.Fprintf(w, "Stored build %s: %d nodes, %d edges, %d file dependencies\n",
		res.BuildID, stats.Nodes, stats.Edges, len(res.FileGraph.Edges))
	return nil
}

func runIndex(ctx context.Context, opts buildOptions, query string, topK int, w io.Writer) error {
	res, s, err := build(ctx, opts)
	defer s.close(context.Background())
	if err != nil {
		return err
	}

	vc := s.cfg.Vector
	dims := vc.Dimensions
	if dims <= 0 {
		dims = vector.DefaultDimensions
	}

	var repo vector.Repository
	if vc.Host == "" {
		s.logger.Info("vector.host is not configured, indexing in memory")
		repo = vector.NewMemoryRepository()
	} else {
		q, err := qdrant.NewQdrant(ctx, vc.Host, vc.Port, vc.Collection)
		if err != nil {
			return err
		}
		if err := q.EnsureCollection(ctx, dims); err != nil {
			_ = q.Close()
			return err
		}
		repo = q
	}
	defer repo.Close()

	ctx, span := observability.StartStoreSpan(ctx, "vector")
	defer span.End()

	indexer := vector.NewIndexer(vector.HashEmbedder{Dimensions: dims}, repo)
	n, err := indexer.IndexSymbols(ctx, res.BuildID, res.Table, res.Graph)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	fmt.Fprintf(w, "Indexed %d symbols of build %s\n", n, res.BuildID)

	if query == "" {
		return nil
	}
	results, err := indexer.Search(ctx, query, topK)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(w, "  %.3f  %-40s %s\n", r.Score, r.Content, r.Metadata["file"])
	}
	return nil
}
