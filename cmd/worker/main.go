package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"

	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/graph/neo4j"
	"github.com/efebarandurmaz/codegraph/internal/lsp"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/plugins/source/jsonsyntax"
	"github.com/efebarandurmaz/codegraph/internal/plugins/source/python"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
	"github.com/efebarandurmaz/codegraph/internal/server"
	temporalmod "github.com/efebarandurmaz/codegraph/internal/temporal"
)

func main() {
	configPath := flag.String("config", "", "Config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := observability.NewLogger(observability.LoggingConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	ctx := context.Background()
	shutdown := server.NewShutdownHandler(0, logger)

	tcfg := observability.DefaultTracingConfig()
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	shutdown.RegisterHook("tracing", server.PriorityTracing, tp.Shutdown)

	parserOpt, err := python.ParserOption(cfg.Pipeline.PythonParser)
	if err != nil {
		log.Fatalf("python parser: %v", err)
	}
	registry := plugins.NewRegistry()
	registry.RegisterSource(python.New(parserOpt))
	registry.RegisterSource(jsonsyntax.New())

	metrics := observability.NewMetrics()
	admin := server.NewAdminServer(server.AdminConfig{Version: tcfg.ServiceVersion, Metrics: metrics.Handler(), Logger: logger})

	popts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithMetrics(metrics),
	}

	// Each build gets its own language server rooted at the build's tree.
	var inference temporalmod.InferenceFactory
	var aopts []semantic.Option
	if ic := cfg.Inference; ic.Command != "" {
		aopts = []semantic.Option{
			semantic.WithMaxInFlight(int64(ic.MaxInFlight)),
			semantic.WithTimeout(ic.Timeout),
		}
		if ic.RateLimit > 0 {
			aopts = append(aopts, semantic.WithRateLimit(ic.RateLimit, ic.Burst))
		}
		launcher := lsp.Launcher{
			Command: ic.Command,
			Args:    ic.Args,
			Options: []lsp.Option{lsp.WithLanguageID(ic.LanguageID), lsp.WithLogger(logger)},
		}
		var mu sync.Mutex
		var lastErr error
		inference = func(ctx context.Context, root string) (semantic.Inferrer, func(context.Context) error, error) {
			inf, release, err := launcher.Inferrer(ctx, root)
			mu.Lock()
			lastErr = err
			mu.Unlock()
			return inf, release, err
		}
		admin.RegisterCheck("inference", server.InferenceChecker(ic.Command, func() error {
			mu.Lock()
			defer mu.Unlock()
			return lastErr
		}))
	}

	var repo graph.Repository = graph.NewMemoryRepository()
	if gc := cfg.Graph; gc.URI != "" {
		n, err := neo4j.NewNeo4j(ctx, gc.URI, gc.Username, gc.Password)
		if err != nil {
			log.Fatalf("graph store: %v", err)
		}
		repo = n
		admin.RegisterCheck("graph", server.DependencyChecker("neo4j", n.Ping))
	}
	shutdown.RegisterHook("graph-store", server.PriorityStore, repo.Close)

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	shutdown.RegisterHook("temporal-client", server.PriorityStore, func(context.Context) error {
		c.Close()
		return nil
	})
	admin.RegisterCheck("temporal", server.DependencyChecker("temporal", func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))

	acts := temporalmod.NewActivities(registry, repo, popts...)
	acts.Inference = inference
	acts.InferenceOptions = aopts
	acts.Logger = logger
	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue, cfg.Temporal.MaxConcurrentBuilds, acts)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	shutdown.RegisterHook("temporal-worker", server.PriorityWorker, func(context.Context) error {
		w.Stop()
		return nil
	})

	if cfg.Metrics.Addr != "" {
		admin.Start(cfg.Metrics.Addr)
		shutdown.RegisterHook("admin-server", server.PriorityAdmin, admin.Shutdown)
	}
	admin.SetReady(true)

	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "languages", registry.Languages())
	shutdown.Start()
	shutdown.Wait()
	logger.Info("worker stopped")
}
