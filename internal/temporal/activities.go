package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
)

// ErrTypeStructural is the application error type of builds rejected as
// structurally invalid.
const ErrTypeStructural = "StructuralError"

// InferenceFactory starts a type inference provider for one build. Files
// are queried relative to root. release is called when the build is done.
type InferenceFactory func(ctx context.Context, root string) (inf semantic.Inferrer, release func(context.Context) error, err error)

const releaseTimeout = 10 * time.Second

// Activities holds the resources shared by the build activities. Register
// a value with the worker; its exported methods become activities.
type Activities struct {
	Registry *plugins.Registry
	// Options are applied to every build before the per-input options.
	Options []pipeline.Option
	Graphs  graph.Repository

	// Inference, when set, enriches every build through a provider started
	// for the build's root.
	Inference        InferenceFactory
	InferenceOptions []semantic.Option

	// Logger is used when a method runs outside an activity context.
	Logger *slog.Logger
}

// NewActivities creates Activities. A nil repository stores graphs in
// memory.
func NewActivities(reg *plugins.Registry, repo graph.Repository, opts ...pipeline.Option) *Activities {
	if repo == nil {
		repo = graph.NewMemoryRepository()
	}
	return &Activities{Registry: reg, Options: opts, Graphs: repo}
}

// Build parses the source tree, runs the pipeline and, when asked to
// persist, stores the assembled graph.
func (a *Activities) Build(ctx context.Context, input BuildInput) (*BuildOutput, error) {
	logger := a.logger(ctx)

	src, err := a.Registry.Source(input.Language)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "UnknownLanguage", err)
	}
	sources, err := plugins.LoadSourceFiles(input.Root, src)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	files, err := src.Parse(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	opts := append([]pipeline.Option(nil), a.Options...)
	switch input.ImportTargets {
	case "", string(ir.ImportTargetNode):
	case string(ir.ImportTargetFQN):
		opts = append(opts, pipeline.WithImportTargets(ir.ImportTargetFQN))
	default:
		err := fmt.Errorf("unknown import target mode %q", input.ImportTargets)
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	if a.Inference != nil {
		inf, release := a.startInference(ctx, logger, input.Root)
		if release != nil {
			defer func() {
				rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
				defer cancel()
				if err := release(rctx); err != nil {
					logger.Warn("inference release failed", "root", input.Root, "error", err)
				}
			}()
		}
		opts = append(opts, pipeline.WithInferrer(inf, a.InferenceOptions...))
	}

	res, err := pipeline.New(opts...).Run(ctx, files)
	if err != nil {
		if errors.Is(err, diag.ErrStructural) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeStructural, err)
		}
		return nil, err
	}
	logger.Info("build finished", "build_id", res.BuildID, "files", len(files), "diagnostics", len(res.Diagnostics))

	if input.Persist {
		if err := a.Graphs.StoreGraph(ctx, res.Graph); err != nil {
			return nil, fmt.Errorf("store graph: %w", err)
		}
	}

	return newBuildOutput(res), nil
}

// startInference falls back to an unavailable provider when the factory
// fails, so the build still runs and reports the degradation per file.
func (a *Activities) startInference(ctx context.Context, logger log.Logger, root string) (semantic.Inferrer, func(context.Context) error) {
	inf, release, err := a.Inference(ctx, root)
	if err != nil {
		logger.Warn("type inference unavailable", "root", root, "error", err)
		return semantic.Unavailable{}, nil
	}
	return inf, release
}

func (a *Activities) logger(ctx context.Context) log.Logger {
	if activity.IsActivity(ctx) {
		return activity.GetLogger(ctx)
	}
	l := a.Logger
	if l == nil {
		l = slog.Default()
	}
	return log.NewStructuredLogger(l)
}

// PersistDependencies stores the file dependency edges of a build.
func (a *Activities) PersistDependencies(ctx context.Context, input PersistInput) error {
	if err := a.Graphs.StoreDependencies(ctx, input.BuildID, input.Dependencies); err != nil {
		return fmt.Errorf("store dependencies: %w", err)
	}
	return nil
}

func newBuildOutput(res *pipeline.Result) *BuildOutput {
	stats := res.Graph.Stats()
	out := &BuildOutput{
		BuildID:      res.BuildID,
		Files:        stats.Files,
		Nodes:        stats.Nodes,
		Edges:        stats.Edges,
		Build:        res.Ordering.Build,
		Topological:  res.Ordering.Topological,
		Cycles:       res.Ordering.Cycles,
		Dependencies: res.FileGraph.FileDependencies(),
	}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.String())
	}
	return out
}
