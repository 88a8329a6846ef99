package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/efebarandurmaz/codegraph/internal/ir"
)

// MemoryRepository is an in-process Repository, used when no graph database
// is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	graphs map[string]*Document
	deps   map[string][]FileDependency
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		graphs: make(map[string]*Document),
		deps:   make(map[string][]FileDependency),
	}
}

func (m *MemoryRepository) StoreGraph(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[doc.BuildID] = doc
	return nil
}

func (m *MemoryRepository) StoreDependencies(_ context.Context, buildID string, deps []FileDependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[buildID] = append([]FileDependency(nil), deps...)
	return nil
}

func (m *MemoryRepository) QueryCallees(_ context.Context, fqn string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, doc := range m.graphs {
		for _, n := range doc.Nodes() {
			if n.FQN != fqn || !n.Kind.IsDefinition() {
				continue
			}
			for _, e := range doc.Outgoing(n.ID) {
				if e.Kind != ir.EdgeCalls {
					continue
				}
				if id, ok := e.Target.NodeID(); ok {
					if callee, ok := doc.Node(id); ok {
						seen[callee.Name] = true
					}
				} else {
					seen[e.Target.Value()] = true
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepository) QueryDependents(_ context.Context, buildID, file string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, d := range m.deps[buildID] {
		if d.To == file {
			out = append(out, d.From)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepository) Close(context.Context) error { return nil }

var _ Repository = (*MemoryRepository)(nil)
