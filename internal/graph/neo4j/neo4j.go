package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
)

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver    neo4j.DriverWithContext
	batchSize int
}

// NewNeo4j creates a Neo4j-backed repository.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver, batchSize: 500}, nil
}

// nodeRow flattens a node into the parameters of the MERGE statement.
func nodeRow(buildID string, n *ir.Node) map[string]any {
	row := map[string]any{
		"id":       string(n.ID),
		"build":    buildID,
		"kind":     string(n.Kind),
		"name":     n.Name,
		"fqn":      n.FQN,
		"file":     n.File,
		"line":     n.Span.StartLine,
		"degraded": n.Degraded,
		"type":     n.InferredType,
	}
	if n.Definition != nil {
		row["def_file"] = n.Definition.File
		row["def_line"] = n.Definition.Span.StartLine
	}
	return row
}

// relType maps an edge kind to a relationship type, e.g. "calls" -> CALLS.
func relType(k ir.EdgeKind) string {
	return strings.ToUpper(string(k))
}

func (r *Neo4jRepository) StoreGraph(ctx context.Context, doc *graph.Document) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, f := range doc.FileInfos() {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx,
				"MERGE (f:File {path: $path, build: $build}) SET f.module = $module, f.language = $lang",
				map[string]any{"path": f.Path, "build": doc.BuildID, "module": f.Module, "lang": f.Language})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("store file %s: %w", f.Path, err)
		}
	}

	nodes := doc.Nodes()
	for start := 0; start < len(nodes); start += r.batchSize {
		end := min(start+r.batchSize, len(nodes))
		rows := make([]map[string]any, 0, end-start)
		for _, n := range nodes[start:end] {
			rows = append(rows, nodeRow(doc.BuildID, n))
		}
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx,
				"UNWIND $rows AS row "+
					"MERGE (n:Node {id: row.id, build: row.build}) "+
					"SET n.kind = row.kind, n.name = row.name, n.fqn = row.fqn, n.line = row.line, "+
					"n.degraded = row.degraded, n.type = row.type, n.def_file = row.def_file, n.def_line = row.def_line "+
					"WITH n, row MATCH (f:File {path: row.file, build: row.build}) "+
					"MERGE (f)-[:CONTAINS]->(n)",
				map[string]any{"rows": rows})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("store nodes: %w", err)
		}
	}

	// Relationship types cannot be parameterized, so edges are grouped by
	// kind and each group gets its own statement.
	for _, kind := range []ir.EdgeKind{
		ir.EdgeDefines, ir.EdgeCalls, ir.EdgeImports, ir.EdgeInherits,
		ir.EdgeInstantiates, ir.EdgeReads, ir.EdgeWrites,
	} {
		var nodeRows, fqnRows []map[string]any
		for _, e := range doc.EdgesOfKind(kind) {
			row := map[string]any{"id": e.ID, "build": doc.BuildID, "source": string(e.Source), "target": e.Target.Value()}
			if e.Target.Kind() == ir.TargetNode {
				nodeRows = append(nodeRows, row)
			} else {
				fqnRows = append(fqnRows, row)
			}
		}
		if len(nodeRows)+len(fqnRows) == 0 {
			continue
		}
		rel := relType(kind)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			if len(nodeRows) > 0 {
				if _, err := tx.Run(ctx,
					"UNWIND $rows AS row "+
						"MATCH (a:Node {id: row.source, build: row.build}) "+
						"MATCH (b:Node {id: row.target, build: row.build}) "+
						"MERGE (a)-[:"+rel+" {id: row.id}]->(b)",
					map[string]any{"rows": nodeRows}); err != nil {
					return nil, err
				}
			}
			if len(fqnRows) > 0 {
				if _, err := tx.Run(ctx,
					"UNWIND $rows AS row "+
						"MATCH (a:Node {id: row.source, build: row.build}) "+
						"MERGE (s:Symbol {fqn: row.target}) "+
						"MERGE (a)-[:"+rel+" {id: row.id}]->(s)",
					map[string]any{"rows": fqnRows}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("store %s edges: %w", kind, err)
		}
	}
	return nil
}

func (r *Neo4jRepository) StoreDependencies(ctx context.Context, buildID string, deps []graph.FileDependency) error {
	if len(deps) == 0 {
		return nil
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	rows := make([]map[string]any, 0, len(deps))
	for _, d := range deps {
		rows = append(rows, map[string]any{"from": d.From, "to": d.To})
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"UNWIND $rows AS row "+
				"MERGE (a:File {path: row.from, build: $build}) "+
				"MERGE (b:File {path: row.to, build: $build}) "+
				"MERGE (a)-[:DEPENDS_ON]->(b)",
			map[string]any{"rows": rows, "build": buildID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("store dependencies: %w", err)
	}
	return nil
}

func (r *Neo4jRepository) QueryCallees(ctx context.Context, fqn string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (:Node {fqn: $fqn})-[:CALLS]->(callee) RETURN DISTINCT coalesce(callee.name, callee.fqn) AS name ORDER BY name",
			map[string]any{"fqn": fqn})
		if err != nil {
			return nil, err
		}
		var names []string
		for records.Next(ctx) {
			n, _ := records.Record().Get("name")
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		return names, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Neo4jRepository) QueryDependents(ctx context.Context, buildID, file string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (a:File {build: $build})-[:DEPENDS_ON]->(:File {path: $path, build: $build}) RETURN a.path AS path ORDER BY path",
			map[string]any{"build": buildID, "path": file})
		if err != nil {
			return nil, err
		}
		var paths []string
		for records.Next(ctx) {
			p, _ := records.Record().Get("path")
			if s, ok := p.(string); ok {
				paths = append(paths, s)
			}
		}
		return paths, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Ping verifies the database is reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)
