package graph

import (
	"context"
)

// FileDependency is a resolved "From imports To" relation between files.
type FileDependency struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Repository provides durable storage for an assembled graph.
type Repository interface {
	// StoreGraph persists the nodes and edges of a build.
	StoreGraph(ctx context.Context, doc *Document) error
	// StoreDependencies persists the file dependency edges of a build.
	StoreDependencies(ctx context.Context, buildID string, deps []FileDependency) error
	// QueryCallees returns the call-site names reached from the definition
	// with the given fully qualified name.
	QueryCallees(ctx context.Context, fqn string) ([]string, error)
	// QueryDependents returns the files that import the given file.
	QueryDependents(ctx context.Context, buildID, file string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
