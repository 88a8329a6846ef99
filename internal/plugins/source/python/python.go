// Package python is the Python source plugin. The default parser is
// line-based: it recognizes imports, classes, functions, assignments and
// call sites well enough to build a dependency graph. Binaries built with
// cgo and the treesitter tag can parse with the tree-sitter grammar instead.
package python

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

// Parser names accepted by ParserOption.
const (
	ParserLine       = "line"
	ParserTreeSitter = "treesitter"
)

// ErrTreeSitterDisabled is returned when tree-sitter parsing is requested
// from a binary built without it.
var ErrTreeSitterDisabled = errors.New("treesitter disabled (build with -tags=treesitter and CGO enabled)")

// TreeSitterAvailable reports whether this binary can parse with
// tree-sitter.
func TreeSitterAvailable() bool { return treeSitterAvailable }

// Plugin implements SourcePlugin for Python.
type Plugin struct {
	treeSitter bool
}

type Option func(*Plugin)

// WithTreeSitter parses with the tree-sitter grammar.
func WithTreeSitter() Option {
	return func(p *Plugin) { p.treeSitter = true }
}

// ParserOption maps a configured parser name to an Option. An empty name
// selects the line parser.
func ParserOption(name string) (Option, error) {
	switch name {
	case "", ParserLine:
		return func(*Plugin) {}, nil
	case ParserTreeSitter:
		if !treeSitterAvailable {
			return nil, ErrTreeSitterDisabled
		}
		return WithTreeSitter(), nil
	}
	return nil, fmt.Errorf("unknown python parser %q", name)
}

func New(opts ...Option) *Plugin {
	p := &Plugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Language() string { return "python" }

func (p *Plugin) FileExtensions() []string { return []string{".py"} }

func (p *Plugin) Parse(ctx context.Context, files []plugins.SourceFile) ([]*syntax.File, error) {
	out := make([]*syntax.File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.treeSitter {
			out = append(out, ParseFile(f))
			continue
		}
		sf, err := parseTree(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		out = append(out, sf)
	}
	return out, nil
}

var (
	importPattern   = regexp.MustCompile(`^import\s+(.+)$`)
	fromPattern     = regexp.MustCompile(`^from\s+(\.*)([\w.]*)\s+import\s+(.+)$`)
	defPattern      = regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\((.*)\)\s*(?:->\s*([^:]+?))?\s*:`)
	defHeadPattern  = regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	classPattern    = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*(?:\((.*)\))?\s*:`)
	assignPattern   = regexp.MustCompile(`^([A-Za-z_]\w*)\s*(?::\s*([^=]+?))?\s*=[^=]`)
	callPattern     = regexp.MustCompile(`([A-Za-z_][\w.]*)\s*\(`)
	returnPattern   = regexp.MustCompile(`^return\s+([A-Za-z_]\w*)\s*$`)
	stringPattern   = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
	tripleDelimiter = regexp.MustCompile(`"""|'''`)
)

var keywords = map[string]bool{
	"if": true, "elif": true, "while": true, "for": true, "return": true,
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"with": true, "assert": true, "del": true, "lambda": true, "yield": true,
	"await": true, "except": true, "raise": true, "def": true, "class": true,
}

type declNode struct {
	decl syntax.Decl
	kids []*declNode
}

func (n *declNode) build() syntax.Decl {
	d := n.decl
	for _, k := range n.kids {
		d.Children = append(d.Children, k.build())
	}
	return d
}

type frame struct {
	indent int
	node   *declNode
}

type parser struct {
	file    *syntax.File
	pkg     string
	top     []*declNode
	stack   []frame
	lastLn  int
	lastLen int

	inTriple     bool
	pendingFrom  string
	pendingLine  int
	pendingNames []string
}

// ParseFile parses one file. It never fails: lines it cannot make sense of
// are skipped.
func ParseFile(f plugins.SourceFile) *syntax.File {
	p := &parser{
		file: &syntax.File{
			Path:       f.Path,
			Language:   "python",
			SnapshotID: plugins.ContentID(f.Content),
		},
		pkg: packageOf(f.Path),
	}
	for i, line := range strings.Split(string(f.Content), "\n") {
		p.line(i+1, strings.TrimRight(line, "\r"))
	}
	p.closeFrames(0)
	for _, n := range p.top {
		p.file.Decls = append(p.file.Decls, n.build())
	}
	return p.file
}

// packageOf returns the package a file's relative imports are resolved
// against.
func packageOf(path string) string {
	mod := ir.ModuleName(path)
	if strings.HasSuffix(path, "__init__.py") {
		return mod
	}
	if i := strings.LastIndex(mod, "."); i >= 0 {
		return mod[:i]
	}
	return ""
}

func (p *parser) line(num int, raw string) {
	trimmed := strings.TrimSpace(raw)
	if p.inTriple {
		if tripleDelimiter.MatchString(trimmed) {
			p.inTriple = false
		}
		return
	}
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return
	}
	if p.pendingFrom != "" {
		p.continueFrom(num, trimmed)
		return
	}

	indent := len(raw) - len(strings.TrimLeft(raw, " \t"))
	p.closeFrames(indent)
	defer func() {
		p.lastLn, p.lastLen = num, len(raw)
	}()

	code := blankStrings(trimmed)
	if locs := tripleDelimiter.FindAllStringIndex(code, -1); len(locs)%2 == 1 {
		code = code[:locs[len(locs)-1][0]]
		p.inTriple = true
	}
	if i := strings.Index(code, "#"); i >= 0 {
		code = code[:i]
	}
	code = strings.TrimRight(code, " \t")
	if code == "" {
		return
	}

	span := syntax.Span{StartLine: num, StartCol: indent, EndLine: num, EndCol: len(raw)}
	switch {
	case importPattern.MatchString(code):
		p.imports(importPattern.FindStringSubmatch(code)[1], span)
	case fromPattern.MatchString(code):
		m := fromPattern.FindStringSubmatch(code)
		p.from(num, m[1], m[2], m[3], span)
	case classPattern.MatchString(code):
		loc := classPattern.FindStringSubmatchIndex(code)
		n := p.open(indent, syntax.DeclClass, code[loc[2]:loc[3]], num, indent+loc[2], code)
		if loc[4] >= 0 {
			n.decl.Bases = refs(code[loc[4]:loc[5]], num, indent+loc[4])
		}
	case defHeadPattern.MatchString(code):
		if loc := defPattern.FindStringSubmatchIndex(code); loc != nil {
			n := p.open(indent, syntax.DeclFunction, code[loc[2]:loc[3]], num, indent+loc[2], code)
			n.decl.Params = params(code[loc[4]:loc[5]], num, indent+loc[4])
			if loc[6] >= 0 {
				n.decl.Type = strings.TrimSpace(code[loc[6]:loc[7]])
			}
			// One-line bodies: "def f(): return g()".
			p.calls(num, indent, code[loc[1]:], loc[1])
		} else {
			loc := defHeadPattern.FindStringSubmatchIndex(code)
			n := p.open(indent, syntax.DeclFunction, code[loc[2]:loc[3]], num, indent+loc[2], code)
			n.decl.Malformed = "parameters span multiple lines"
		}
	case assignPattern.MatchString(code):
		m := assignPattern.FindStringSubmatch(code)
		p.assign(m[1], strings.TrimSpace(m[2]), num, indent)
		eq := strings.Index(code, "=")
		p.calls(num, indent, code[eq+1:], eq+1)
	case returnPattern.MatchString(code):
		name := returnPattern.FindStringSubmatch(code)[1]
		col := indent + strings.LastIndex(code, name)
		p.addRef(refRead, syntax.Ref{Name: name, Span: nameSpan(num, col, name)})
	default:
		p.calls(num, indent, code, 0)
	}
}

// blankStrings replaces string literals with spaces so columns are kept.
func blankStrings(s string) string {
	s = strings.ReplaceAll(s, `"""`, "\x00\x00\x00")
	s = strings.ReplaceAll(s, `'''`, "\x01\x01\x01")
	s = stringPattern.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
	s = strings.ReplaceAll(s, "\x00\x00\x00", `"""`)
	return strings.ReplaceAll(s, "\x01\x01\x01", `'''`)
}

func nameSpan(line, col int, name string) syntax.Span {
	return syntax.Span{StartLine: line, StartCol: col, EndLine: line, EndCol: col + len(name)}
}

// closeFrames ends every declaration whose body is not indented past indent.
func (p *parser) closeFrames(indent int) {
	for len(p.stack) > 0 && p.stack[len(p.stack)-1].indent >= indent {
		n := p.stack[len(p.stack)-1].node
		if p.lastLn > n.decl.Span.StartLine {
			n.decl.Span.EndLine = p.lastLn
			n.decl.Span.EndCol = p.lastLen
		}
		p.stack = p.stack[:len(p.stack)-1]
	}
}

func (p *parser) scope() *declNode {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1].node
}

func (p *parser) attach(n *declNode) {
	if s := p.scope(); s != nil {
		s.kids = append(s.kids, n)
		return
	}
	p.top = append(p.top, n)
}

func (p *parser) open(indent int, kind syntax.DeclKind, name string, line, col int, code string) *declNode {
	n := &declNode{decl: syntax.Decl{
		Kind: kind,
		Name: name,
		Span: syntax.Span{StartLine: line, StartCol: col, EndLine: line, EndCol: indent + len(code)},
	}}
	p.attach(n)
	p.stack = append(p.stack, frame{indent: indent, node: n})
	return n
}

func (p *parser) assign(name, typ string, line, indent int) {
	s := p.scope()
	if s == nil || s.decl.Kind == syntax.DeclClass {
		p.attach(&declNode{decl: syntax.Decl{
			Kind: syntax.DeclVariable,
			Name: name,
			Type: typ,
			Span: nameSpan(line, indent, name),
		}})
		return
	}
	s.decl.Writes = append(s.decl.Writes, syntax.Ref{Name: name, Span: nameSpan(line, indent, name)})
}

type refKind int

const (
	refCall refKind = iota
	refInstantiate
	refRead
)

func (p *parser) addRef(kind refKind, r syntax.Ref) {
	s := p.scope()
	if s == nil {
		switch kind {
		case refCall:
			p.file.Calls = append(p.file.Calls, r)
		case refInstantiate:
			p.file.Instantiates = append(p.file.Instantiates, r)
		case refRead:
			p.file.Reads = append(p.file.Reads, r)
		}
		return
	}
	switch kind {
	case refCall:
		s.decl.Calls = append(s.decl.Calls, r)
	case refInstantiate:
		s.decl.Instantiates = append(s.decl.Instantiates, r)
	case refRead:
		s.decl.Reads = append(s.decl.Reads, r)
	}
}

// calls records every call expression in code, which starts at column
// indent+offset of the line.
func (p *parser) calls(line, indent int, code string, offset int) {
	for _, loc := range callPattern.FindAllStringSubmatchIndex(code, -1) {
		name := code[loc[2]:loc[3]]
		if keywords[name] {
			continue
		}
		if loc[2] > 0 && code[loc[2]-1] == '.' {
			continue
		}
		col := indent + offset + loc[2]
		r := syntax.Ref{Name: name, Span: nameSpan(line, col, name)}
		last := name[strings.LastIndex(name, ".")+1:]
		if last != "" && unicode.IsUpper(rune(last[0])) {
			p.addRef(refInstantiate, r)
		} else {
			p.addRef(refCall, r)
		}
	}
}

func (p *parser) imports(list string, span syntax.Span) {
	for _, part := range strings.Split(list, ",") {
		mod, alias := splitAlias(part)
		if mod == "" {
			continue
		}
		p.file.Imports = append(p.file.Imports, syntax.Import{Module: mod, Alias: alias, Span: span})
	}
}

func (p *parser) from(line int, dots, mod, names string, span syntax.Span) {
	module := resolveRelative(p.pkg, len(dots), mod)
	names = strings.TrimSpace(names)
	if strings.HasPrefix(names, "(") && !strings.Contains(names, ")") {
		p.pendingFrom = module
		p.pendingLine = line
		p.pendingNames = append(p.pendingNames[:0], strings.TrimPrefix(names, "("))
		return
	}
	p.fromNames(module, strings.Trim(names, "()"), span)
}

func (p *parser) continueFrom(line int, trimmed string) {
	if i := strings.Index(trimmed, "#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	done := strings.Contains(trimmed, ")")
	p.pendingNames = append(p.pendingNames, strings.TrimRight(trimmed, ") "))
	if !done {
		return
	}
	span := syntax.Span{StartLine: p.pendingLine, EndLine: line, EndCol: len(trimmed)}
	p.fromNames(p.pendingFrom, strings.Join(p.pendingNames, ","), span)
	p.pendingFrom = ""
	p.pendingNames = p.pendingNames[:0]
	p.lastLn, p.lastLen = line, len(trimmed)
}

func (p *parser) fromNames(module, names string, span syntax.Span) {
	for _, part := range strings.Split(names, ",") {
		name, alias := splitAlias(part)
		switch name {
		case "":
			continue
		case "*":
			p.file.Imports = append(p.file.Imports, syntax.Import{Module: module, Span: span})
		default:
			p.file.Imports = append(p.file.Imports, syntax.Import{Module: module, Name: name, Alias: alias, Span: span})
		}
	}
}

func splitAlias(part string) (name, alias string) {
	fields := strings.Fields(part)
	switch {
	case len(fields) == 3 && fields[1] == "as":
		return fields[0], fields[2]
	case len(fields) >= 1:
		return fields[0], ""
	}
	return "", ""
}

// resolveRelative turns "from ..x import y" into an absolute module name.
func resolveRelative(pkg string, dots int, mod string) string {
	if dots == 0 {
		return mod
	}
	base := pkg
	for i := 1; i < dots && base != ""; i++ {
		if j := strings.LastIndex(base, "."); j >= 0 {
			base = base[:j]
		} else {
			base = ""
		}
	}
	switch {
	case base == "":
		return mod
	case mod == "":
		return base
	default:
		return base + "." + mod
	}
}

// refs parses a comma-separated list of names starting at column col.
func refs(list string, line, col int) []syntax.Ref {
	var out []syntax.Ref
	offset := 0
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name != "" && !strings.Contains(name, "=") {
			out = append(out, syntax.Ref{
				Name: name,
				Span: nameSpan(line, col+offset+strings.Index(part, name), name),
			})
		}
		offset += len(part) + 1
	}
	return out
}

// params parses "a, b: int = 1, *args, **kw". Defaults containing commas
// are split incorrectly; the names still come out right in common code.
func params(list string, line, col int) []syntax.Param {
	var out []syntax.Param
	offset := 0
	for _, part := range splitTopLevel(list) {
		text := strings.TrimSpace(part)
		start := offset + strings.Index(part, text)
		offset += len(part) + 1

		if eq := strings.Index(text, "="); eq >= 0 {
			text = strings.TrimSpace(text[:eq])
		}
		name, typ := text, ""
		if c := strings.Index(text, ":"); c >= 0 {
			name, typ = strings.TrimSpace(text[:c]), strings.TrimSpace(text[c+1:])
		}
		stars := len(name) - len(strings.TrimLeft(name, "*"))
		name = name[stars:]
		if name == "" || name == "/" {
			continue
		}
		out = append(out, syntax.Param{
			Name: name,
			Type: typ,
			Span: nameSpan(line, col+start+stars, name),
		})
	}
	return out
}

// splitTopLevel splits on commas outside brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, last := 0, 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}
