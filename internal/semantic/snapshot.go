package semantic

import (
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/ir"
)

// Key identifies a location within a project.
type Key struct {
	File string  `json:"file"`
	Span ir.Span `json:"span"`
}

// Fact is what the analyzer learned about one location.
type Fact struct {
	InferredType string       `json:"inferred_type,omitempty"`
	Definition   *ir.Location `json:"definition,omitempty"`
}

func (f Fact) empty() bool {
	return f.InferredType == "" && f.Definition == nil
}

// Entry is one snapshot fact with its key.
type Entry struct {
	Key  Key  `json:"key"`
	Fact Fact `json:"fact"`
}

// Snapshot is the sparse set of facts for one file. It is read-only once
// returned by Analyze.
type Snapshot struct {
	File       string
	SnapshotID string
	facts      map[Key]Fact
}

// NewSnapshot rebuilds a snapshot from entries, for example after decoding.
func NewSnapshot(file, snapshotID string, entries []Entry) *Snapshot {
	s := &Snapshot{File: file, SnapshotID: snapshotID, facts: make(map[Key]Fact, len(entries))}
	for _, e := range entries {
		if !e.Fact.empty() {
			s.facts[e.Key] = e.Fact
		}
	}
	return s
}

// Lookup returns the fact recorded for a location.
func (s *Snapshot) Lookup(file string, span ir.Span) (Fact, bool) {
	if s == nil {
		return Fact{}, false
	}
	f, ok := s.facts[Key{File: file, Span: span}]
	return f, ok
}

// Len returns the number of enriched locations.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.facts)
}

// Entries returns all facts ordered by position.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.facts))
	for k, f := range s.facts {
		out = append(out, Entry{Key: k, Fact: f})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Span.StartLine != b.Span.StartLine {
			return a.Span.StartLine < b.Span.StartLine
		}
		if a.Span.StartCol != b.Span.StartCol {
			return a.Span.StartCol < b.Span.StartCol
		}
		if a.Span.EndLine != b.Span.EndLine {
			return a.Span.EndLine < b.Span.EndLine
		}
		return a.Span.EndCol < b.Span.EndCol
	})
	return out
}
