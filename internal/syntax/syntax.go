// Package syntax defines the per-file syntax representation handed over by
// parser plugins. The graph core treats it as an opaque list of declarations
// and references; it never looks at source text.
package syntax

// Span is a source range. Lines are 1-based, columns 0-based.
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// DeclKind classifies a declaration.
type DeclKind string

const (
	DeclClass    DeclKind = "class"
	DeclFunction DeclKind = "function"
	DeclVariable DeclKind = "variable"
)

// File is the parser output for one source file.
type File struct {
	Path       string   `json:"path"`
	Module     string   `json:"module,omitempty"`
	Language   string   `json:"language,omitempty"`
	SnapshotID string   `json:"snapshot_id,omitempty"`
	Imports    []Import `json:"imports,omitempty"`
	Decls      []Decl   `json:"decls,omitempty"`

	// Module-level references outside any declaration.
	Calls        []Ref `json:"calls,omitempty"`
	Instantiates []Ref `json:"instantiates,omitempty"`
	Reads        []Ref `json:"reads,omitempty"`
	Writes       []Ref `json:"writes,omitempty"`
}

// Import is one imported binding. "import a.b" has Module "a.b" and no Name;
// "from a.b import c as d" has Module "a.b", Name "c" and Alias "d".
type Import struct {
	Module string `json:"module"`
	Name   string `json:"name,omitempty"`
	Alias  string `json:"alias,omitempty"`
	Span   Span   `json:"span"`
}

// Target returns the qualified name the import refers to.
func (i Import) Target() string {
	switch {
	case i.Module == "":
		return i.Name
	case i.Name == "":
		return i.Module
	default:
		return i.Module + "." + i.Name
	}
}

// Binding returns the local name the import introduces.
func (i Import) Binding() string {
	if i.Alias != "" {
		return i.Alias
	}
	if i.Name != "" {
		return i.Name
	}
	return i.Module
}

// Decl is a declaration. Nested declarations (methods, inner functions,
// class attributes) live in Children.
type Decl struct {
	Kind      DeclKind `json:"kind"`
	Name      string   `json:"name"`
	Span      Span     `json:"span"`
	Type      string   `json:"type,omitempty"`
	Malformed string   `json:"malformed,omitempty"`

	Params       []Param `json:"params,omitempty"`
	Bases        []Ref   `json:"bases,omitempty"`
	Calls        []Ref   `json:"calls,omitempty"`
	Instantiates []Ref   `json:"instantiates,omitempty"`
	Reads        []Ref   `json:"reads,omitempty"`
	Writes       []Ref   `json:"writes,omitempty"`
	Children     []Decl  `json:"children,omitempty"`
}

// Param is a function parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Span Span   `json:"span"`
}

// Ref is a use of a name at a location.
type Ref struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
}
