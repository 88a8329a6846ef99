// Package diag holds the diagnostics that pipeline stages report alongside
// their results, and the structural error that is the only fatal failure.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a diagnostic.
type Kind string

const (
	KindDegradedNode            Kind = "degraded-node"
	KindUnresolvedImport        Kind = "unresolved-import"
	KindDuplicateDefinition     Kind = "duplicate-definition"
	KindDependencyCycle         Kind = "dependency-cycle"
	KindCollaboratorUnavailable Kind = "collaborator-unavailable"
)

// Kinds lists every diagnostic kind in report order.
var Kinds = []Kind{
	KindDegradedNode,
	KindUnresolvedImport,
	KindDuplicateDefinition,
	KindDependencyCycle,
	KindCollaboratorUnavailable,
}

// Diagnostic is a non-fatal finding recorded by a stage.
type Diagnostic struct {
	Kind    Kind     `json:"kind" yaml:"kind"`
	File    string   `json:"file,omitempty" yaml:"file,omitempty"`
	NodeID  string   `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	EdgeID  string   `json:"edge_id,omitempty" yaml:"edge_id,omitempty"`
	FQN     string   `json:"fqn,omitempty" yaml:"fqn,omitempty"`
	Members []string `json:"members,omitempty" yaml:"members,omitempty"`
	Message string   `json:"message" yaml:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.File != "" {
		b.WriteString(" ")
		b.WriteString(d.File)
	}
	if d.FQN != "" {
		b.WriteString(" [")
		b.WriteString(d.FQN)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	if len(d.Members) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(d.Members, " -> "))
		b.WriteString(")")
	}
	return b.String()
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	*l = append(*l, d)
}

// Extend appends every diagnostic of other.
func (l *List) Extend(other List) {
	*l = append(*l, other...)
}

// OfKind returns the diagnostics of kind k, in recorded order.
func (l List) OfKind(k Kind) List {
	var out List
	for _, d := range l {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Count returns the number of diagnostics per kind.
func (l List) Count() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, d := range l {
		counts[d.Kind]++
	}
	return counts
}

// Sorted returns a copy ordered by file, kind, then message. Only
// diagnostics equal in all three keep their recorded order.
func (l List) Sorted() List {
	out := make(List, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// ErrStructural marks input that cannot be processed at all, such as a
// document that references a file outside the current build.
var ErrStructural = errors.New("structurally invalid input")

// StructuralError describes why an input was rejected.
type StructuralError struct {
	File   string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%v: %s", ErrStructural, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrStructural, e.File, e.Reason)
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// Structural builds a *StructuralError with a formatted reason.
func Structural(file, format string, args ...any) error {
	return &StructuralError{File: file, Reason: fmt.Sprintf(format, args...)}
}
