package depgraph

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ExportDOT generates a Graphviz DOT representation of the file graph.
// Files are clustered by directory; files on a cycle are highlighted when
// an ordering is given.
func ExportDOT(g *Graph, o *Ordering) string {
	cyclic := cyclicSet(o)

	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" shape=box style=filled];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, dir := range sortedDirs(g) {
		files := filesIn(g, dir)
		indent := "  "
		if dir != "." {
			b.WriteString(fmt.Sprintf("  subgraph cluster_%s {\n", sanitizeID(dir)))
			b.WriteString(fmt.Sprintf("    label=\"%s\";\n", dir))
			b.WriteString("    style=dashed;\n")
			b.WriteString("    color=\"#58a6ff\";\n")
			indent = "    "
		}
		for _, f := range files {
			b.WriteString(fmt.Sprintf("%s\"%s\" [label=\"%s\" fillcolor=\"%s\"];\n",
				indent, f, path.Base(f), fileColor(f, cyclic)))
		}
		if dir != "." {
			b.WriteString("  }\n")
		}
		b.WriteString("\n")
	}

	for _, e := range g.Edges {
		color := "#8b949e"
		if cyclic[e.From] && cyclic[e.To] {
			color = "#f85149"
		}
		label := ""
		if e.Weight > 1 {
			label = fmt.Sprintf(" label=\"%d\"", e.Weight)
		}
		b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [color=\"%s\"%s];\n", e.From, e.To, color, label))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid diagram of the file graph.
func ExportMermaid(g *Graph, o *Ordering) string {
	cyclic := cyclicSet(o)

	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, dir := range sortedDirs(g) {
		files := filesIn(g, dir)
		if dir != "." {
			b.WriteString(fmt.Sprintf("  subgraph %s[\"%s\"]\n", sanitizeID("dir_"+dir), dir))
		}
		for _, f := range files {
			b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", sanitizeID(f), path.Base(f)))
		}
		if dir != "." {
			b.WriteString("  end\n")
		}
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if cyclic[e.From] && cyclic[e.To] {
			arrow = "==>"
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n", sanitizeID(e.From), arrow, sanitizeID(e.To)))
	}

	if len(cyclic) > 0 {
		b.WriteString("  classDef cycle fill:#f85149,color:#ffffff\n")
		names := make([]string, 0, len(cyclic))
		for f := range cyclic {
			names = append(names, sanitizeID(f))
		}
		sort.Strings(names)
		b.WriteString(fmt.Sprintf("  class %s cycle\n", strings.Join(names, ",")))
	}

	return b.String()
}

// ExportJSON serializes the graph to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph, o *Ordering) string {
	var b strings.Builder
	b.WriteString("File Dependency Graph\n")
	b.WriteString("=====================\n\n")
	b.WriteString(fmt.Sprintf("Files:       %d\n", g.Stats.TotalFiles))
	b.WriteString(fmt.Sprintf("Edges:       %d\n", g.Stats.TotalEdges))
	b.WriteString(fmt.Sprintf("Imports:     %d resolved, %d unresolved\n", g.Stats.ResolvedImports, g.Stats.UnresolvedImports))
	if g.Stats.HotspotFile != "" {
		b.WriteString(fmt.Sprintf("Max Fan-Out: %d (%s)\n", g.Stats.MaxFanOut, g.Stats.HotspotFile))
	}
	b.WriteString(fmt.Sprintf("Max Fan-In:  %d\n", g.Stats.MaxFanIn))
	b.WriteString(fmt.Sprintf("Components:  %d\n", g.Stats.ConnectedComponents))

	if o == nil {
		return b.String()
	}
	if len(o.Build) > 0 {
		b.WriteString("\nBuild Order:\n")
		for i, f := range o.Build {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, f))
		}
	}
	if len(o.Cycles) > 0 {
		b.WriteString(fmt.Sprintf("\nCyclic Dependencies: %d\n", len(o.Cycles)))
		for i, cycle := range o.Cycles {
			b.WriteString(fmt.Sprintf("  %d: %s\n", i+1, strings.Join(cycle, " <-> ")))
		}
	}
	return b.String()
}

func cyclicSet(o *Ordering) map[string]bool {
	set := make(map[string]bool)
	if o == nil {
		return set
	}
	for _, f := range o.Unordered {
		set[f] = true
	}
	return set
}

func sortedDirs(g *Graph) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range g.Files {
		d := path.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}

func filesIn(g *Graph, dir string) []string {
	var out []string
	for _, f := range g.Files {
		if path.Dir(f) == dir {
			out = append(out, f)
		}
	}
	return out
}

func fileColor(f string, cyclic map[string]bool) string {
	if cyclic[f] {
		return "#f85149"
	}
	return "#238636"
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}
