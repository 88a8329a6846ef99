// Package jsonsyntax reads syntax files produced by an external parser.
// Each input holds one syntax.File object or an array of them, in the JSON
// encoding of the syntax package.
package jsonsyntax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

// Plugin implements SourcePlugin for JSON syntax dumps.
type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Language() string { return "syntax-json" }

func (p *Plugin) FileExtensions() []string { return []string{".json"} }

func (p *Plugin) Parse(ctx context.Context, files []plugins.SourceFile) ([]*syntax.File, error) {
	var out []*syntax.File
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := decode(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		out = append(out, parsed...)
	}
	return out, nil
}

func decode(f plugins.SourceFile) ([]*syntax.File, error) {
	data := bytes.TrimSpace(f.Content)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty syntax dump")
	}

	var files []*syntax.File
	if data[0] == '[' {
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, fmt.Errorf("decode syntax files: %w", err)
		}
		for i, sf := range files {
			if sf == nil || sf.Path == "" {
				return nil, fmt.Errorf("syntax file %d has no path", i)
			}
		}
	} else {
		var sf syntax.File
		if err := json.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("decode syntax file: %w", err)
		}
		// A single dump may rely on its own name: "pkg/mod.py.json".
		if sf.Path == "" {
			sf.Path = strings.TrimSuffix(f.Path, ".json")
		}
		files = []*syntax.File{&sf}
	}

	for _, sf := range files {
		if sf.SnapshotID == "" {
			sf.SnapshotID = plugins.ContentID(f.Content)
		}
	}
	return files, nil
}
