// Package semantic enriches IR documents with facts obtained from an
// optional type-inference provider, such as a language server.
package semantic

import (
	"context"
	"errors"

	"github.com/efebarandurmaz/codegraph/internal/ir"
)

// ErrUnavailable is returned by providers that cannot answer at all. The
// analyzer stops querying a file once it sees it.
var ErrUnavailable = errors.New("type inference unavailable")

// Hover is the type information a provider reports for a location.
type Hover struct {
	Type string `json:"type"`
	Doc  string `json:"doc,omitempty"`
}

// Inferrer answers questions about a source location. Implementations must
// tolerate repeated calls and may return ErrUnavailable (wrapped or not).
type Inferrer interface {
	Hover(ctx context.Context, file string, span ir.Span) (*Hover, error)
	Definition(ctx context.Context, file string, span ir.Span) ([]ir.Location, error)
	References(ctx context.Context, file string, span ir.Span) ([]ir.Location, error)
}

// Unavailable is the Inferrer used when no provider is configured or the
// configured one failed to start.
type Unavailable struct{}

func (Unavailable) Hover(context.Context, string, ir.Span) (*Hover, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Definition(context.Context, string, ir.Span) ([]ir.Location, error) {
	return nil, ErrUnavailable
}

func (Unavailable) References(context.Context, string, ir.Span) ([]ir.Location, error) {
	return nil, ErrUnavailable
}

var _ Inferrer = Unavailable{}
