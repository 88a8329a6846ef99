//go:build cgo && treesitter

package python

import (
	"context"
	"reflect"
	"testing"

	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

func parseServicesTree(t *testing.T) *syntax.File {
	t.Helper()
	f, err := parseTree(context.Background(), plugins.SourceFile{Path: "app/services/users.py", Content: []byte(servicesSrc)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return f
}

func TestParseTree_ImportsMatchLineParser(t *testing.T) {
	tree := parseServicesTree(t)
	line := parseServices(t)

	type imp struct{ Module, Name, Alias string }
	collect := func(f *syntax.File) []imp {
		var out []imp
		for _, i := range f.Imports {
			out = append(out, imp{i.Module, i.Name, i.Alias})
		}
		return out
	}
	if got, want := collect(tree), collect(line); !reflect.DeepEqual(got, want) {
		t.Errorf("imports = %v\nwant %v", got, want)
	}
}

func TestParseTree_Declarations(t *testing.T) {
	f := parseServicesTree(t)
	if len(f.Decls) != 3 {
		t.Fatalf("expected 3 top-level declarations, got %d: %+v", len(f.Decls), f.Decls)
	}

	svc := f.Decls[1]
	if svc.Kind != syntax.DeclClass || svc.Name != "UserService" || svc.Span.StartLine != 13 {
		t.Fatalf("unexpected class %+v", svc)
	}
	if len(svc.Bases) != 2 || svc.Bases[0].Name != "Base" {
		t.Errorf("unexpected bases %+v", svc.Bases)
	}
	var names []string
	for _, c := range svc.Children {
		names = append(names, c.Name)
	}
	if !reflect.DeepEqual(names, []string{"cache", "__init__", "fetch"}) {
		t.Errorf("unexpected class members %v", names)
	}

	ctor := svc.Children[1]
	var params []string
	for _, p := range ctor.Params {
		params = append(params, p.Name+":"+p.Type)
	}
	if !reflect.DeepEqual(params, []string{"self:", "repo:", "limit:int"}) {
		t.Errorf("unexpected params %v", params)
	}
	if len(ctor.Writes) != 1 || ctor.Writes[0].Name != "total" {
		t.Errorf("expected write of total, got %+v", ctor.Writes)
	}

	fetch := svc.Children[2]
	if fetch.Type != "User" {
		t.Errorf("expected return type User, got %q", fetch.Type)
	}
	if len(fetch.Calls) != 1 || fetch.Calls[0].Name != "self.repo.get" {
		t.Errorf("expected self.repo.get call only, got %+v", fetch.Calls)
	}
	if len(fetch.Instantiates) != 1 || fetch.Instantiates[0].Name != "User" {
		t.Errorf("expected User instantiation, got %+v", fetch.Instantiates)
	}
	if len(f.Calls) != 1 || f.Calls[0].Name != "main" {
		t.Errorf("expected module-level main call, got %+v", f.Calls)
	}
}

func TestParseTree_MultiLineSignature(t *testing.T) {
	f, err := parseTree(context.Background(), plugins.SourceFile{Path: "a.py", Content: []byte("def run(a,\n        b):\n    pass\n")})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Decls) != 1 || f.Decls[0].Malformed != "" || len(f.Decls[0].Params) != 2 {
		t.Fatalf("expected one well-formed declaration with two params, got %+v", f.Decls)
	}
}

func TestParseTree_BuildsValidIR(t *testing.T) {
	doc, err := ir.NewBuilder().Build(parseServicesTree(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := ir.Validate(doc); err != nil {
		t.Fatalf("invalid document: %v", err)
	}
}

func TestPlugin_ParseWithTreeSitter(t *testing.T) {
	opt, err := ParserOption(ParserTreeSitter)
	if err != nil {
		t.Fatal(err)
	}
	files, err := New(opt).Parse(context.Background(), []plugins.SourceFile{{Path: "a.py", Content: []byte("import b\n")}})
	if err != nil {
		t.Fatal(err)
	}
	if len(files[0].Imports) != 1 || files[0].Imports[0].Module != "b" {
		t.Errorf("unexpected imports %+v", files[0].Imports)
	}
}
