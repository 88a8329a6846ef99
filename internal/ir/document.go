package ir

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/codegraph/internal/diag"
)

// NodeID identifies a node. It is unique within one file build and, because
// it embeds the file path, across a project.
type NodeID string

// NodeKind classifies graph nodes.
type NodeKind string

const (
	KindModule    NodeKind = "module"
	KindClass     NodeKind = "class"
	KindFunction  NodeKind = "function"
	KindVariable  NodeKind = "variable"
	KindParameter NodeKind = "parameter"
	KindImport    NodeKind = "import"
	KindCallSite  NodeKind = "call_site"
	KindReference NodeKind = "reference"
)

// IsDefinition reports whether nodes of this kind declare something. Only
// definitions may occupy a symbol-table slot.
func (k NodeKind) IsDefinition() bool {
	switch k {
	case KindModule, KindClass, KindFunction, KindVariable, KindParameter:
		return true
	}
	return false
}

// EdgeKind classifies relationships.
type EdgeKind string

const (
	EdgeDefines      EdgeKind = "defines"
	EdgeCalls        EdgeKind = "calls"
	EdgeImports      EdgeKind = "imports"
	EdgeInherits     EdgeKind = "inherits"
	EdgeInstantiates EdgeKind = "instantiates"
	EdgeReads        EdgeKind = "reads"
	EdgeWrites       EdgeKind = "writes"
)

// Span is a source range. Lines are 1-based, columns 0-based.
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Valid reports whether the span is well formed.
func (s Span) Valid() bool {
	if s.StartLine < 1 || s.StartCol < 0 || s.EndCol < 0 {
		return false
	}
	if s.EndLine < s.StartLine {
		return false
	}
	return s.EndLine > s.StartLine || s.EndCol >= s.StartCol
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Location is a span inside a file.
type Location struct {
	File string `json:"file"`
	Span Span   `json:"span"`
}

// Node is one declaration or reference.
type Node struct {
	ID       NodeID            `json:"id"`
	Kind     NodeKind          `json:"kind"`
	Name     string            `json:"name"`
	FQN      string            `json:"fqn,omitempty"`
	File     string            `json:"file"`
	Span     Span              `json:"span"`
	Degraded bool              `json:"degraded,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`

	// Enrichment, written once during graph assembly.
	InferredType string    `json:"inferred_type,omitempty"`
	Definition   *Location `json:"definition,omitempty"`
}

// Attr returns the attribute value for key, or "".
func (n *Node) Attr(key string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[key]
}

// TargetKind tags the value held by a TargetRef.
type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetNode
	TargetFQN
)

func (k TargetKind) String() string {
	switch k {
	case TargetNode:
		return "node"
	case TargetFQN:
		return "fqn"
	default:
		return "none"
	}
}

// TargetRef is the target of an edge: either a node id or a literal fully
// qualified name. The tag is fixed by the producer and never reinterpreted.
type TargetRef struct {
	kind  TargetKind
	value string
}

// NodeTarget references a graph node.
func NodeTarget(id NodeID) TargetRef {
	return TargetRef{kind: TargetNode, value: string(id)}
}

// FQNTarget references a symbol by fully qualified name.
func FQNTarget(fqn string) TargetRef {
	return TargetRef{kind: TargetFQN, value: fqn}
}

// Kind returns the tag.
func (t TargetRef) Kind() TargetKind { return t.kind }

// IsZero reports whether the ref was never set.
func (t TargetRef) IsZero() bool { return t.kind == TargetNone }

// NodeID returns the node id when the ref is node-typed.
func (t TargetRef) NodeID() (NodeID, bool) {
	if t.kind != TargetNode {
		return "", false
	}
	return NodeID(t.value), true
}

// FQN returns the name when the ref is FQN-typed.
func (t TargetRef) FQN() (string, bool) {
	if t.kind != TargetFQN {
		return "", false
	}
	return t.value, true
}

// Value returns the raw value regardless of tag.
func (t TargetRef) Value() string { return t.value }

func (t TargetRef) String() string {
	return t.kind.String() + ":" + t.value
}

type targetJSON struct {
	Node *string `json:"node,omitempty"`
	FQN  *string `json:"fqn,omitempty"`
}

// MarshalJSON writes {"node": id} or {"fqn": name} so the tag survives
// serialization.
func (t TargetRef) MarshalJSON() ([]byte, error) {
	var out targetJSON
	switch t.kind {
	case TargetNode:
		out.Node = &t.value
	case TargetFQN:
		out.FQN = &t.value
	default:
		return nil, errors.New("ir: cannot marshal zero TargetRef")
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the tagged form written by MarshalJSON.
func (t *TargetRef) UnmarshalJSON(data []byte) error {
	var in targetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Node != nil && in.FQN != nil:
		return errors.New("ir: target has both node and fqn")
	case in.Node != nil:
		*t = NodeTarget(NodeID(*in.Node))
	case in.FQN != nil:
		*t = FQNTarget(*in.FQN)
	default:
		return errors.New("ir: target has neither node nor fqn")
	}
	return nil
}

// Edge is a directed relationship between a source node and a target.
type Edge struct {
	ID     string            `json:"id"`
	Kind   EdgeKind          `json:"kind"`
	Source NodeID            `json:"source"`
	Target TargetRef         `json:"target"`
	Span   *Span             `json:"span,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Document is the IR of a single file. It is immutable once built.
type Document struct {
	File        string    `json:"file"`
	Module      string    `json:"module"`
	Language    string    `json:"language,omitempty"`
	SnapshotID  string    `json:"snapshot_id,omitempty"`
	Nodes       []*Node   `json:"nodes"`
	Edges       []*Edge   `json:"edges"`
	Diagnostics diag.List `json:"diagnostics,omitempty"`
}

// ModuleNode returns the document's module node, which the builder always
// emits first.
func (d *Document) ModuleNode() *Node {
	if len(d.Nodes) == 0 || d.Nodes[0].Kind != KindModule {
		return nil
	}
	return d.Nodes[0]
}
