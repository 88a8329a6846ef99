//go:build cgo && treesitter

package python

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	tspython "github.com/smacker/go-tree-sitter/python"

	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

const treeSitterAvailable = true

var dottedName = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)

// parseTree parses one file with the tree-sitter Python grammar. Each call
// uses its own parser, so files may be parsed concurrently.
func parseTree(ctx context.Context, f plugins.SourceFile) (*syntax.File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tspython.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, f.Content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	w := &treeWalker{
		src: f.Content,
		pkg: packageOf(f.Path),
		file: &syntax.File{
			Path:       f.Path,
			Language:   "python",
			SnapshotID: plugins.ContentID(f.Content),
		},
	}
	w.file.Decls = w.body(tree.RootNode(), nil)
	return w.file, nil
}

type treeWalker struct {
	src  []byte
	pkg  string
	file *syntax.File
}

func (w *treeWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func nodeSpan(n *sitter.Node) syntax.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return syntax.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
	}
}

// declSpan starts at the declared name and ends with the body.
func declSpan(def, name *sitter.Node) syntax.Span {
	span := nodeSpan(def)
	if name != nil {
		start := name.StartPoint()
		span.StartLine, span.StartCol = int(start.Row)+1, int(start.Column)
	}
	return span
}

func (w *treeWalker) ref(n *sitter.Node) syntax.Ref {
	return syntax.Ref{Name: w.text(n), Span: nodeSpan(n)}
}

// body visits the statements of a module or block. owner receives the
// references; nil means module level.
func (w *treeWalker) body(n *sitter.Node, owner *syntax.Decl) []syntax.Decl {
	var decls []syntax.Decl
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decls = append(decls, w.statement(n.NamedChild(i), owner)...)
	}
	return decls
}

func (w *treeWalker) statement(n *sitter.Node, owner *syntax.Decl) []syntax.Decl {
	switch n.Type() {
	case "comment", "future_import_statement", "pass_statement":
		return nil
	case "import_statement":
		w.importStatement(n)
		return nil
	case "import_from_statement":
		w.importFrom(n)
		return nil
	case "class_definition":
		return []syntax.Decl{w.class(n)}
	case "function_definition":
		return []syntax.Decl{w.function(n)}
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			return w.statement(def, owner)
		}
		return nil
	case "expression_statement":
		var decls []syntax.Decl
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "assignment" {
				decls = append(decls, w.assignment(c, owner)...)
				continue
			}
			w.refs(c, owner)
		}
		return decls
	}

	// Compound statements: declarations inside their blocks belong to the
	// enclosing scope.
	var decls []syntax.Decl
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		t := c.Type()
		if t == "block" || strings.HasSuffix(t, "_statement") || strings.HasSuffix(t, "_clause") || strings.HasSuffix(t, "_definition") {
			decls = append(decls, w.statement(c, owner)...)
			continue
		}
		w.refs(c, owner)
	}
	return decls
}

func (w *treeWalker) importStatement(n *sitter.Node) {
	span := nodeSpan(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			w.file.Imports = append(w.file.Imports, syntax.Import{Module: w.text(c), Span: span})
		case "aliased_import":
			w.file.Imports = append(w.file.Imports, syntax.Import{
				Module: w.text(c.ChildByFieldName("name")),
				Alias:  w.text(c.ChildByFieldName("alias")),
				Span:   span,
			})
		}
	}
}

func (w *treeWalker) importFrom(n *sitter.Node) {
	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return
	}
	dots, name := 0, w.text(mod)
	if mod.Type() == "relative_import" {
		name = ""
		for i := 0; i < int(mod.NamedChildCount()); i++ {
			c := mod.NamedChild(i)
			switch c.Type() {
			case "import_prefix":
				dots = len(strings.TrimSpace(w.text(c)))
			case "dotted_name":
				name = w.text(c)
			}
		}
	}
	module := resolveRelative(w.pkg, dots, name)

	span := nodeSpan(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == mod.StartByte() {
			continue
		}
		switch c.Type() {
		case "wildcard_import":
			w.file.Imports = append(w.file.Imports, syntax.Import{Module: module, Span: span})
		case "dotted_name":
			w.file.Imports = append(w.file.Imports, syntax.Import{Module: module, Name: w.text(c), Span: span})
		case "aliased_import":
			w.file.Imports = append(w.file.Imports, syntax.Import{
				Module: module,
				Name:   w.text(c.ChildByFieldName("name")),
				Alias:  w.text(c.ChildByFieldName("alias")),
				Span:   span,
			})
		}
	}
}

func (w *treeWalker) class(n *sitter.Node) syntax.Decl {
	name := n.ChildByFieldName("name")
	d := syntax.Decl{Kind: syntax.DeclClass, Name: w.text(name), Span: declSpan(n, name)}
	if sc := n.ChildByFieldName("superclasses"); sc != nil {
		for i := 0; i < int(sc.NamedChildCount()); i++ {
			b := sc.NamedChild(i)
			if t := b.Type(); t == "identifier" || t == "attribute" {
				d.Bases = append(d.Bases, w.ref(b))
			}
		}
	}
	if n.HasError() {
		d.Malformed = "syntax error in class"
	}
	if body := n.ChildByFieldName("body"); body != nil {
		d.Children = w.body(body, &d)
	}
	return d
}

func (w *treeWalker) function(n *sitter.Node) syntax.Decl {
	name := n.ChildByFieldName("name")
	d := syntax.Decl{Kind: syntax.DeclFunction, Name: w.text(name), Span: declSpan(n, name)}
	if ps := n.ChildByFieldName("parameters"); ps != nil {
		d.Params = w.params(ps)
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		d.Type = w.text(rt)
	}
	if n.HasError() {
		d.Malformed = "syntax error in function"
	}
	if body := n.ChildByFieldName("body"); body != nil {
		d.Children = w.body(body, &d)
	}
	return d
}

func (w *treeWalker) params(ps *sitter.Node) []syntax.Param {
	var out []syntax.Param
	for i := 0; i < int(ps.NamedChildCount()); i++ {
		p := ps.NamedChild(i)
		var name, typ *sitter.Node
		switch p.Type() {
		case "identifier":
			name = p
		case "list_splat_pattern", "dictionary_splat_pattern":
			name = splatName(p)
		case "typed_parameter":
			if p.NamedChildCount() > 0 {
				name = p.NamedChild(0)
				if name.Type() != "identifier" {
					name = splatName(name)
				}
			}
			typ = p.ChildByFieldName("type")
		case "default_parameter", "typed_default_parameter":
			name = p.ChildByFieldName("name")
			typ = p.ChildByFieldName("type")
		}
		if name == nil || name.Type() != "identifier" {
			continue
		}
		out = append(out, syntax.Param{Name: w.text(name), Type: w.text(typ), Span: nodeSpan(name)})
	}
	return out
}

func splatName(n *sitter.Node) *sitter.Node {
	if n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}

// assignment declares a variable at module or class level and records a
// write inside functions.
func (w *treeWalker) assignment(n *sitter.Node, owner *syntax.Decl) []syntax.Decl {
	var decls []syntax.Decl
	if left := n.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
		if owner == nil || owner.Kind == syntax.DeclClass {
			decls = append(decls, syntax.Decl{
				Kind: syntax.DeclVariable,
				Name: w.text(left),
				Type: w.text(n.ChildByFieldName("type")),
				Span: nodeSpan(left),
			})
		} else {
			owner.Writes = append(owner.Writes, w.ref(left))
		}
	}
	if right := n.ChildByFieldName("right"); right != nil {
		if right.Type() == "assignment" {
			decls = append(decls, w.assignment(right, owner)...)
		} else {
			w.refs(right, owner)
		}
	}
	return decls
}

// refs records the calls, instantiations and name reads of an expression.
func (w *treeWalker) refs(n *sitter.Node, owner *syntax.Decl) {
	switch n.Type() {
	case "call":
		if fn := n.ChildByFieldName("function"); fn != nil {
			if name := w.text(fn); dottedName.MatchString(name) {
				kind := refCall
				last := name[strings.LastIndex(name, ".")+1:]
				if last != "" && unicode.IsUpper(rune(last[0])) {
					kind = refInstantiate
				}
				w.add(kind, owner, w.ref(fn))
			} else {
				w.refs(fn, owner)
			}
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			w.refs(args, owner)
		}
		return
	case "identifier":
		w.add(refRead, owner, w.ref(n))
		return
	case "attribute":
		if obj := n.ChildByFieldName("object"); obj != nil {
			w.refs(obj, owner)
		}
		return
	case "keyword_argument":
		if v := n.ChildByFieldName("value"); v != nil {
			w.refs(v, owner)
		}
		return
	case "string", "lambda", "comment":
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.refs(n.NamedChild(i), owner)
	}
}

func (w *treeWalker) add(kind refKind, owner *syntax.Decl, r syntax.Ref) {
	if owner == nil {
		switch kind {
		case refCall:
			w.file.Calls = append(w.file.Calls, r)
		case refInstantiate:
			w.file.Instantiates = append(w.file.Instantiates, r)
		case refRead:
			w.file.Reads = append(w.file.Reads, r)
		}
		return
	}
	switch kind {
	case refCall:
		owner.Calls = append(owner.Calls, r)
	case refInstantiate:
		owner.Instantiates = append(owner.Instantiates, r)
	case refRead:
		owner.Reads = append(owner.Reads, r)
	}
}
