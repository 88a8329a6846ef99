// Package pipeline runs the full build: IR construction and semantic
// analysis per file in parallel, then a single-threaded merge through graph
// assembly, symbol table, cross-file resolution and ordering.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/metrics"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
	"github.com/efebarandurmaz/codegraph/internal/snapshot"
	"github.com/efebarandurmaz/codegraph/internal/symbols"
	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

// Stage names, used for spans, metrics and the build report.
const (
	StageFiles    = "files"
	StageAssemble = "assemble"
	StageSymbols  = "symbols"
	StageResolve  = "resolve"
	StageOrder    = "order"
)

// Options configures a Pipeline.
type Options struct {
	Workers         int
	ImportTargets   ir.ImportTargetMode
	Inferrer        semantic.Inferrer
	AnalyzerOptions []semantic.Option
	Cache           *snapshot.Cache
	Metrics         *observability.Metrics
	Logger          *slog.Logger
	BuildID         string
}

// Option is a functional option for Pipeline.
type Option func(*Options)

// WithWorkers bounds the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

func WithImportTargets(mode ir.ImportTargetMode) Option {
	return func(o *Options) { o.ImportTargets = mode }
}

// WithInferrer enables semantic analysis through inf.
func WithInferrer(inf semantic.Inferrer, opts ...semantic.Option) Option {
	return func(o *Options) {
		o.Inferrer = inf
		o.AnalyzerOptions = opts
	}
}

// WithCache reuses IR documents and semantic snapshots of unchanged files.
func WithCache(c *snapshot.Cache) Option {
	return func(o *Options) { o.Cache = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithBuildID fixes the build id instead of generating one.
func WithBuildID(id string) Option {
	return func(o *Options) { o.BuildID = id }
}

// Pipeline is safe for concurrent use; each Run is an independent build.
type Pipeline struct {
	options  Options
	builder  *ir.Builder
	analyzer *semantic.Analyzer
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	options := Options{
		Workers:       runtime.GOMAXPROCS(0),
		ImportTargets: ir.ImportTargetNode,
		Logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	p := &Pipeline{
		options: options,
		builder: ir.NewBuilder(ir.WithImportTargets(options.ImportTargets)),
	}
	if options.Inferrer != nil {
		aopts := []semantic.Option{semantic.WithLogger(options.Logger)}
		if options.Metrics != nil {
			aopts = append(aopts, semantic.WithObserver(options.Metrics))
		}
		aopts = append(aopts, options.AnalyzerOptions...)
		p.analyzer = semantic.NewAnalyzer(options.Inferrer, aopts...)
	}
	return p
}

// Result is everything one build produces.
type Result struct {
	BuildID     string
	Graph       *graph.Document
	Table       *symbols.Table
	FileGraph   *depgraph.Graph
	Resolutions []depgraph.Resolution
	Ordering    *depgraph.Ordering
	Diagnostics diag.List
	Report      *metrics.BuildMetrics
}

type fileResult struct {
	doc   *ir.Document
	snap  *semantic.Snapshot
	diags diag.List
}

// Run builds files. A structural error or a cancelled context aborts the
// build without a partial result; everything else is reported as
// diagnostics.
func (p *Pipeline) Run(ctx context.Context, files []*syntax.File) (res *Result, err error) {
	buildID := p.options.BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}
	logger := p.options.Logger.With("build_id", buildID)
	report := metrics.New(buildID)

	ctx, span := observability.StartStageSpan(ctx, "build", buildID)
	defer func() {
		if err != nil {
			observability.RecordError(span, err)
		}
		span.End()
		if p.options.Metrics != nil {
			p.options.Metrics.ObserveBuild(err)
		}
	}()

	logger.Info("build started", "files", len(files))

	results := make([]fileResult, len(files))
	err = p.stage(ctx, buildID, report, StageFiles, len(files), func(ctx context.Context) (diag.List, error) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.options.Workers)
		for i, f := range files {
			g.Go(func() error {
				r, err := p.processFile(gctx, f)
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		}
		return nil, g.Wait()
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]*ir.Document, len(results))
	snaps := make([]*semantic.Snapshot, 0, len(results))
	var diags diag.List
	for i, r := range results {
		docs[i] = r.doc
		if r.snap != nil && r.snap.Len() > 0 {
			snaps = append(snaps, r.snap)
		}
		diags.Extend(r.diags)
	}

	var doc *graph.Document
	err = p.stage(ctx, buildID, report, StageAssemble, len(docs), func(context.Context) (diag.List, error) {
		var err error
		doc, err = graph.Assemble(buildID, docs, snaps)
		if err != nil {
			return nil, fmt.Errorf("assembling graph: %w", err)
		}
		return doc.Diagnostics(), nil
	})
	if err != nil {
		return nil, err
	}
	diags.Extend(doc.Diagnostics())

	var table *symbols.Table
	_ = p.stage(ctx, buildID, report, StageSymbols, len(doc.Nodes()), func(context.Context) (diag.List, error) {
		var d diag.List
		table, d = symbols.Build(doc)
		diags.Extend(d)
		return d, nil
	})

	var (
		fileGraph   *depgraph.Graph
		resolutions []depgraph.Resolution
	)
	_ = p.stage(ctx, buildID, report, StageResolve, len(doc.EdgesOfKind(ir.EdgeImports)), func(context.Context) (diag.List, error) {
		var d diag.List
		fileGraph, resolutions, d = depgraph.Resolve(doc, table)
		diags.Extend(d)
		return d, nil
	})

	var ordering *depgraph.Ordering
	_ = p.stage(ctx, buildID, report, StageOrder, len(fileGraph.Files), func(context.Context) (diag.List, error) {
		var d diag.List
		ordering, d = depgraph.Order(fileGraph)
		diags.Extend(d)
		return d, nil
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diags = diags.Sorted()
	report.CollectGraph(doc, table.Len())
	report.CollectFiles(fileGraph, ordering)
	if p.options.Cache != nil {
		report.SetCache(p.options.Cache.Stats())
	}
	report.Finish(diags, nil)

	if m := p.options.Metrics; m != nil {
		st := doc.Stats()
		m.SetGraphSize(st.Nodes, st.Edges)
		m.ObserveDiagnostics(diags)
	}
	logger.Info("build finished",
		"files", len(files),
		"nodes", len(doc.Nodes()),
		"edges", len(doc.Edges()),
		"diagnostics", len(diags),
		"cycles", len(ordering.Cycles),
	)

	return &Result{
		BuildID:     buildID,
		Graph:       doc,
		Table:       table,
		FileGraph:   fileGraph,
		Resolutions: resolutions,
		Ordering:    ordering,
		Diagnostics: diags,
		Report:      report,
	}, nil
}

// stage runs fn inside a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, buildID string, report *metrics.BuildMetrics, name string, items int, fn func(context.Context) (diag.List, error)) error {
	ctx, span := observability.StartStageSpan(ctx, name, buildID)
	defer span.End()

	start := time.Now()
	d, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	observability.RecordStageResult(span, items, len(d), elapsed)
	report.AddStage(name, elapsed, items)
	if p.options.Metrics != nil {
		p.options.Metrics.ObserveStage(name, elapsed)
	}
	return nil
}

// processFile runs the per-file stages, consulting the cache first.
func (p *Pipeline) processFile(ctx context.Context, f *syntax.File) (fileResult, error) {
	if f == nil {
		return fileResult{}, diag.Structural("", "nil syntax file")
	}
	ctx, span := observability.StartFileSpan(ctx, f.Path)
	defer span.End()

	variant := string(p.options.ImportTargets)
	cache := p.options.Cache
	cached := false

	var doc *ir.Document
	if cache != nil && f.SnapshotID != "" {
		d, ok, err := cache.GetDocument(variant, f.Path, f.SnapshotID)
		if err != nil {
			p.options.Logger.Warn("snapshot cache read failed", "file", f.Path, "error", err)
		}
		p.observeCache(ok)
		if ok {
			doc, cached = d, true
		}
	}
	if doc == nil {
		var err error
		doc, err = p.builder.Build(f)
		if err != nil {
			observability.RecordError(span, err)
			return fileResult{}, err
		}
		if cache != nil {
			if err := cache.PutDocument(variant, doc); err != nil {
				p.options.Logger.Warn("snapshot cache write failed", "file", f.Path, "error", err)
			}
		}
	}

	r := fileResult{doc: doc}
	if p.analyzer != nil {
		r.snap, r.diags = p.analyze(ctx, doc)
	}
	if p.options.Metrics != nil {
		p.options.Metrics.ObserveFile(cached)
	}
	return r, nil
}

func (p *Pipeline) analyze(ctx context.Context, doc *ir.Document) (*semantic.Snapshot, diag.List) {
	cache := p.options.Cache
	if cache != nil && doc.SnapshotID != "" {
		snap, ok, err := cache.GetSnapshot(doc.File, doc.SnapshotID)
		if err != nil {
			p.options.Logger.Warn("snapshot cache read failed", "file", doc.File, "error", err)
		}
		p.observeCache(ok)
		if ok {
			return snap, nil
		}
	}

	snap, diags := p.analyzer.Analyze(ctx, doc)
	// Incomplete snapshots are retried on the next build.
	if cache != nil && len(diags) == 0 && ctx.Err() == nil {
		if err := cache.PutSnapshot(snap); err != nil {
			p.options.Logger.Warn("snapshot cache write failed", "file", doc.File, "error", err)
		}
	}
	return snap, diags
}

func (p *Pipeline) observeCache(hit bool) {
	if p.options.Metrics != nil {
		p.options.Metrics.ObserveCache(hit)
	}
}
