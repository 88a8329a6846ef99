package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/codegraph/internal/plugins"
	"github.com/efebarandurmaz/codegraph/internal/plugins/source/jsonsyntax"
	"github.com/efebarandurmaz/codegraph/internal/plugins/source/python"
)

func newRegistry(pythonParser string) (*plugins.Registry, error) {
	opt, err := python.ParserOption(pythonParser)
	if err != nil {
		return nil, err
	}
	registry := plugins.NewRegistry()
	registry.RegisterSource(python.New(opt))
	registry.RegisterSource(jsonsyntax.New())
	return registry, nil
}

func main() {
	var opts buildOptions

	rootCmd := &cobra.Command{
		Use:   "codegraph",
		Short: "Build code graphs, symbol tables and file build orders",
	}

	addBuildFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&opts.input, "input", "", "Input path (file or directory)")
		cmd.Flags().StringVar(&opts.language, "language", "python", "Source language")
		cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file path")
		cmd.Flags().StringVar(&opts.importTargets, "import-targets", "", "Import edge targets: node or fqn (overrides config)")
		cmd.Flags().BoolVar(&opts.cache, "cache", false, "Reuse results of unchanged files (overrides config)")
		cmd.Flags().BoolVar(&opts.noInference, "no-inference", false, "Skip type inference even when a language server is configured")
		_ = cmd.MarkFlagRequired("input")
	}

	var format string
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the graph and print the file order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), opts, format, cmd.OutOrStdout())
		},
	}
	addBuildFlags(buildCmd)
	buildCmd.Flags().StringVar(&format, "format", "text", "Output format: text, json, yaml, dot or mermaid")

	persistCmd := &cobra.Command{
		Use:   "persist",
		Short: "Build the graph and store it in Neo4j",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersist(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	addBuildFlags(persistCmd)

	var (
		query string
		topK  int
	)
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the graph and index its symbols in Qdrant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), opts, query, topK, cmd.OutOrStdout())
		},
	}
	addBuildFlags(indexCmd)
	indexCmd.Flags().StringVar(&query, "query", "", "Search the index after indexing")
	indexCmd.Flags().IntVar(&topK, "top", 10, "Number of search results")

	languagesCmd := &cobra.Command{
		Use:   "languages",
		Short: "List available source languages",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Available source languages:")
			registry, _ := newRegistry(python.ParserLine)
			for _, lang := range registry.Languages() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", lang)
			}
		},
	}

	rootCmd.AddCommand(buildCmd, persistCmd, indexCmd, languagesCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
