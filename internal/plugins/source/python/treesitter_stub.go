//go:build !cgo || !treesitter

package python

import (
	"context"

	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

const treeSitterAvailable = false

func parseTree(context.Context, plugins.SourceFile) (*syntax.File, error) {
	return nil, ErrTreeSitterDisabled
}
