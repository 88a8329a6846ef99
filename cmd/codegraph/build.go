package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/diag"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/lsp"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
	"github.com/efebarandurmaz/codegraph/internal/snapshot"
)

type buildOptions struct {
	input         string
	language      string
	configPath    string
	importTargets string
	cache         bool
	noInference   bool
}

// session is one configured build and the resources it holds open.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracing *observability.TracerProvider
	lsp     *lsp.Client
	cache   *snapshot.Cache
}

func (s *session) close(ctx context.Context) {
	if s.lsp != nil {
		_ = s.lsp.Shutdown(ctx)
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("closing cache", "error", err)
		}
	}
	if s.tracing != nil {
		_ = s.tracing.Shutdown(ctx)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	return cfg
}

// build parses the input and runs the pipeline. The caller closes the
// returned session.
func build(ctx context.Context, opts buildOptions) (*pipeline.Result, *session, error) {
	cfg := loadConfig(opts.configPath)
	s := &session{
		cfg:    cfg,
		logger: observability.NewLogger(observability.LoggingConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr),
	}

	tcfg := observability.DefaultTracingConfig()
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.tracing = tp
	}

	registry, err := newRegistry(cfg.Pipeline.PythonParser)
	if err != nil {
		return nil, s, err
	}
	src, err := registry.Source(opts.language)
	if err != nil {
		return nil, s, err
	}
	sources, err := plugins.LoadSourceFiles(opts.input, src)
	if err != nil {
		return nil, s, fmt.Errorf("load sources: %w", err)
	}
	files, err := src.Parse(ctx, sources)
	if err != nil {
		return nil, s, fmt.Errorf("parse: %w", err)
	}
	s.logger.Info("parsed sources", "language", opts.language, "files", len(files))

	mode := cfg.Pipeline.ImportTargets
	if opts.importTargets != "" {
		mode = opts.importTargets
	}
	popts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithMetrics(observability.NewMetrics()),
	}
	switch mode {
	case "", string(ir.ImportTargetNode):
	case string(ir.ImportTargetFQN):
		popts = append(popts, pipeline.WithImportTargets(ir.ImportTargetFQN))
	default:
		return nil, s, fmt.Errorf("unknown import target mode %q", mode)
	}

	if opts.cache || cfg.Cache.Enabled {
		c, err := snapshot.Open(snapshot.Config{Path: cfg.Cache.Path, Logger: s.logger})
		if err != nil {
			return nil, s, fmt.Errorf("open cache: %w", err)
		}
		s.cache = c
		popts = append(popts, pipeline.WithCache(c))
	}

	if cfg.Inference.Command != "" && !opts.noInference {
		popts = append(popts, s.inference(ctx, cfg.Inference, inferenceRoot(opts.input)))
	}

	res, err := pipeline.New(popts...).Run(ctx, files)
	if err != nil {
		return nil, s, err
	}
	return res, s, nil
}

// inference starts the configured language server. When it cannot be
// started every query is unavailable, so the build still runs and reports
// the degradation per file.
func (s *session) inference(ctx context.Context, ic config.InferenceConfig, root string) pipeline.Option {
	aopts := []semantic.Option{
		semantic.WithMaxInFlight(int64(ic.MaxInFlight)),
		semantic.WithTimeout(ic.Timeout),
	}
	if ic.RateLimit > 0 {
		aopts = append(aopts, semantic.WithRateLimit(ic.RateLimit, ic.Burst))
	}

	client, err := lsp.Start(ctx, ic.Command, ic.Args,
		lsp.WithRoot(root),
		lsp.WithLanguageID(ic.LanguageID),
		lsp.WithLogger(s.logger),
	)
	if err != nil {
		s.logger.Warn("language server unavailable", "command", ic.Command, "error", err)
		return pipeline.WithInferrer(semantic.Unavailable{}, aopts...)
	}
	s.lsp = client
	return pipeline.WithInferrer(client, aopts...)
}

func inferenceRoot(input string) string {
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return filepath.Dir(input)
	}
	return input
}

func runBuild(ctx context.Context, opts buildOptions, format string, w io.Writer) error {
	res, s, err := build(ctx, opts)
	defer s.close(context.Background())
	if err != nil {
		return err
	}
	return writeResult(w, res, format)
}

// buildReport is the serialized form of a build.
type buildReport struct {
	BuildID     string                `json:"build_id" yaml:"build_id"`
	Graph       graph.Stats           `json:"graph" yaml:"graph"`
	Symbols     int                   `json:"symbols" yaml:"symbols"`
	FileGraph   *depgraph.Graph       `json:"file_graph" yaml:"file_graph"`
	Resolutions []depgraph.Resolution `json:"resolutions" yaml:"resolutions"`
	Ordering    *depgraph.Ordering    `json:"ordering" yaml:"ordering"`
	Diagnostics diag.List             `json:"diagnostics" yaml:"diagnostics"`
}

func newBuildReport(res *pipeline.Result) buildReport {
	return buildReport{
		BuildID:     res.BuildID,
		Graph:       res.Graph.Stats(),
		Symbols:     res.Table.Len(),
		FileGraph:   res.FileGraph,
		Resolutions: res.Resolutions,
		Ordering:    res.Ordering,
		Diagnostics: res.Diagnostics,
	}
}

func writeResult(w io.Writer, res *pipeline.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newBuildReport(res))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newBuildReport(res)); err != nil {
			return err
		}
		return enc.Close()
	case "dot":
		_, err := io.WriteString(w, depgraph.ExportDOT(res.FileGraph, res.Ordering))
		return err
	case "mermaid":
		_, err := io.WriteString(w, depgraph.ExportMermaid(res.FileGraph, res.Ordering))
		return err
	case "text", "":
		res.Report.PrintSummary(w)
		fmt.Fprint(w, depgraph.FormatStats(res.FileGraph, res.Ordering))
		fmt.Fprintln(w, "\nBuild order:")
		for i, f := range res.Ordering.Build {
			fmt.Fprintf(w, "  %3d. %s\n", i+1, f)
		}
		for _, c := range res.Ordering.Cycles {
			fmt.Fprintf(w, "  cycle: %v\n", c)
		}
		if len(res.Diagnostics) > 0 {
			fmt.Fprintln(w, "\nDiagnostics:")
			for _, d := range res.Diagnostics {
				fmt.Fprintf(w, "  %s\n", d)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
