// Package metrics collects the summary report of one build.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
)

// BuildMetrics collects statistics for a full pipeline run.
type BuildMetrics struct {
	BuildID    string        `json:"build_id" yaml:"build_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	DurationMS int64         `json:"duration_ms" yaml:"duration_ms"`
	Graph      GraphMetrics  `json:"graph" yaml:"graph"`
	Files      FileMetrics   `json:"files" yaml:"files"`
	Stages     []StageMetric `json:"stages" yaml:"stages"`
	Cache      CacheMetrics  `json:"cache" yaml:"cache"`
	// Diagnostics counts diagnostics by kind.
	Diagnostics map[string]int `json:"diagnostics" yaml:"diagnostics"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
}

type GraphMetrics struct {
	Nodes    int            `json:"nodes" yaml:"nodes"`
	Edges    int            `json:"edges" yaml:"edges"`
	Enriched int            `json:"enriched" yaml:"enriched"`
	Degraded int            `json:"degraded" yaml:"degraded"`
	Symbols  int            `json:"symbols" yaml:"symbols"`
	ByNode   map[string]int `json:"by_node_kind" yaml:"by_node_kind"`
	ByEdge   map[string]int `json:"by_edge_kind" yaml:"by_edge_kind"`
}

type FileMetrics struct {
	Count             int    `json:"count" yaml:"count"`
	Dependencies      int    `json:"dependencies" yaml:"dependencies"`
	ResolvedImports   int    `json:"resolved_imports" yaml:"resolved_imports"`
	UnresolvedImports int    `json:"unresolved_imports" yaml:"unresolved_imports"`
	Cycles            int    `json:"cycles" yaml:"cycles"`
	Hotspot           string `json:"hotspot,omitempty" yaml:"hotspot,omitempty"`
}

type StageMetric struct {
	Name       string `json:"name" yaml:"name"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
	Items      int    `json:"items" yaml:"items"`
	duration   time.Duration
}

type CacheMetrics struct {
	Hits   int64 `json:"hits" yaml:"hits"`
	Misses int64 `json:"misses" yaml:"misses"`
}

// New starts tracking a build.
func New(buildID string) *BuildMetrics {
	return &BuildMetrics{
		BuildID:     buildID,
		StartedAt:   time.Now(),
		Diagnostics: map[string]int{},
	}
}

// AddStage records a single stage's timing.
func (m *BuildMetrics) AddStage(name string, d time.Duration, items int) {
	m.Stages = append(m.Stages, StageMetric{
		Name:       name,
		DurationMS: d.Milliseconds(),
		Items:      items,
		duration:   d,
	})
}

// CollectGraph computes node and edge counts from the assembled graph.
func (m *BuildMetrics) CollectGraph(doc *graph.Document, symbols int) {
	st := doc.Stats()
	m.Graph.Nodes = st.Nodes
	m.Graph.Edges = st.Edges
	m.Graph.Enriched = st.Enriched
	m.Graph.Degraded = st.Degraded
	m.Graph.Symbols = symbols
	m.Graph.ByNode = map[string]int{}
	m.Graph.ByEdge = map[string]int{}
	for _, n := range doc.Nodes() {
		m.Graph.ByNode[string(n.Kind)]++
	}
	for _, e := range doc.Edges() {
		m.Graph.ByEdge[string(e.Kind)]++
	}
}

// CollectFiles computes file-level metrics from the dependency graph.
func (m *BuildMetrics) CollectFiles(g *depgraph.Graph, o *depgraph.Ordering) {
	m.Files.Count = g.Stats.TotalFiles
	m.Files.Dependencies = g.Stats.TotalEdges
	m.Files.ResolvedImports = g.Stats.ResolvedImports
	m.Files.UnresolvedImports = g.Stats.UnresolvedImports
	m.Files.Hotspot = g.Stats.HotspotFile
	if o != nil {
		m.Files.Cycles = len(o.Cycles)
	}
}

// SetCache records snapshot cache counters.
func (m *BuildMetrics) SetCache(hits, misses int64) {
	m.Cache = CacheMetrics{Hits: hits, Misses: misses}
}

// Finish marks the build as complete.
func (m *BuildMetrics) Finish(diags diag.List, err error) {
	m.FinishedAt = time.Now()
	m.DurationMS = m.FinishedAt.Sub(m.StartedAt).Milliseconds()
	for k, n := range diags.Count() {
		m.Diagnostics[string(k)] = n
	}
	if err != nil {
		m.Error = err.Error()
	}
}

// PrintSummary writes a human-readable summary.
func (m *BuildMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        CODEGRAPH BUILD REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Build:       %-23s║\n", shorten(m.BuildID, 23))
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", (time.Duration(m.DurationMS) * time.Millisecond).String())
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ GRAPH\n")
	fmt.Fprintf(w, "║   Nodes:       %d (%d enriched, %d degraded)\n", m.Graph.Nodes, m.Graph.Enriched, m.Graph.Degraded)
	fmt.Fprintf(w, "║   Edges:       %d\n", m.Graph.Edges)
	fmt.Fprintf(w, "║   Symbols:     %d\n", m.Graph.Symbols)
	for _, k := range sortedKeys(m.Graph.ByNode) {
		fmt.Fprintf(w, "║     %-12s %d\n", k, m.Graph.ByNode[k])
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ FILES\n")
	fmt.Fprintf(w, "║   Files:       %d\n", m.Files.Count)
	fmt.Fprintf(w, "║   Deps:        %d\n", m.Files.Dependencies)
	fmt.Fprintf(w, "║   Imports:     %d resolved, %d unresolved\n", m.Files.ResolvedImports, m.Files.UnresolvedImports)
	fmt.Fprintf(w, "║   Cycles:      %d\n", m.Files.Cycles)
	if m.Files.Hotspot != "" {
		fmt.Fprintf(w, "║   Hotspot:     %s\n", m.Files.Hotspot)
	}
	if m.Cache.Hits+m.Cache.Misses > 0 {
		fmt.Fprintf(w, "║   Cache:       %d hits, %d misses\n", m.Cache.Hits, m.Cache.Misses)
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ STAGES\n")
	for _, s := range m.Stages {
		fmt.Fprintf(w, "║   %-14s %8s  %d items\n", s.Name, s.duration.Round(time.Millisecond), s.Items)
	}
	if len(m.Diagnostics) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ DIAGNOSTICS\n")
		for _, k := range sortedKeys(m.Diagnostics) {
			fmt.Fprintf(w, "║   • %-22s %d\n", k, m.Diagnostics[k])
		}
	}
	if m.Error != "" {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERROR\n")
		fmt.Fprintf(w, "║   %s\n", m.Error)
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *BuildMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// YAML returns the metrics as YAML.
func (m *BuildMetrics) YAML() ([]byte, error) {
	return yaml.Marshal(m)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
