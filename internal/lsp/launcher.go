package lsp

import (
	"context"

	"github.com/efebarandurmaz/codegraph/internal/semantic"
)

// Launcher starts language servers for workspaces that are only known at
// build time. Each server is initialized with the build's root, so the
// paths a build queries resolve inside it.
type Launcher struct {
	Command string
	Args    []string
	Options []Option
}

// Start launches a server rooted at root.
func (l Launcher) Start(ctx context.Context, root string) (*Client, error) {
	opts := append([]Option(nil), l.Options...)
	opts = append(opts, WithRoot(root))
	return Start(ctx, l.Command, l.Args, opts...)
}

// Inferrer is Start in the shape the build activities expect. release shuts
// the server down.
func (l Launcher) Inferrer(ctx context.Context, root string) (semantic.Inferrer, func(context.Context) error, error) {
	c, err := l.Start(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Shutdown, nil
}
