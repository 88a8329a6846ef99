// Package symbols maps fully qualified names to their defining nodes.
package symbols

import (
	"sort"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
)

// Symbol is one table entry.
type Symbol struct {
	FQN  string      `json:"fqn" yaml:"fqn"`
	Node ir.NodeID   `json:"node" yaml:"node"`
	Kind ir.NodeKind `json:"kind" yaml:"kind"`
	File string      `json:"file" yaml:"file"`
}

// Table is read-only after Build.
type Table struct {
	entries map[string]Symbol
	fqns    []string
}

// Build indexes every definition node with a non-empty FQN. Files are
// visited in path order, so when two definitions share an FQN the one from
// the lexically first file wins and the other is reported.
func Build(doc *graph.Document) (*Table, diag.List) {
	t := &Table{entries: make(map[string]Symbol)}
	var diags diag.List

	for _, n := range doc.Nodes() {
		if !n.Kind.IsDefinition() || n.FQN == "" {
			continue
		}
		if prev, ok := t.entries[n.FQN]; ok {
			diags.Add(diag.Diagnostic{
				Kind:    diag.KindDuplicateDefinition,
				File:    n.File,
				NodeID:  string(n.ID),
				FQN:     n.FQN,
				Message: "already defined by " + string(prev.Node) + " in " + prev.File,
			})
			continue
		}
		t.entries[n.FQN] = Symbol{FQN: n.FQN, Node: n.ID, Kind: n.Kind, File: n.File}
		t.fqns = append(t.fqns, n.FQN)
	}
	sort.Strings(t.fqns)
	return t, diags
}

// Lookup returns the symbol for an exact FQN.
func (t *Table) Lookup(fqn string) (Symbol, bool) {
	s, ok := t.entries[fqn]
	return s, ok
}

// LookupPrefix returns the symbol for the longest dotted prefix of fqn that
// is defined, including fqn itself. "pkg.mod.func" matches "pkg.mod.func",
// then "pkg.mod", then "pkg".
func (t *Table) LookupPrefix(fqn string) (Symbol, bool) {
	name := fqn
	for name != "" {
		if s, ok := t.entries[name]; ok {
			return s, true
		}
		i := strings.LastIndex(name, ".")
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return Symbol{}, false
}

// OwningFile returns the file that defines fqn.
func (t *Table) OwningFile(fqn string) (string, bool) {
	s, ok := t.entries[fqn]
	return s.File, ok
}

// FQNs returns every defined name, sorted.
func (t *Table) FQNs() []string {
	out := make([]string, len(t.fqns))
	copy(out, t.fqns)
	return out
}

// Symbols returns every entry sorted by FQN.
func (t *Table) Symbols() []Symbol {
	out := make([]Symbol, len(t.fqns))
	for i, f := range t.fqns {
		out[i] = t.entries[f]
	}
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }
