package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_Defaults(t *testing.T) {
	if warnings := Default().Validate(); len(warnings) != 0 {
		t.Errorf("defaults should have no warnings, got %v", warnings)
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"negative workers", Config{Pipeline: PipelineConfig{Workers: -1}}, "workers"},
		{"bad import targets", Config{Pipeline: PipelineConfig{ImportTargets: "both"}}, "import_targets"},
		{"bad python parser", Config{Pipeline: PipelineConfig{PythonParser: "ast"}}, "python_parser"},
		{"no in-flight", Config{Inference: InferenceConfig{Command: "pyright-langserver"}}, "max_in_flight"},
		{"negative rate", Config{Inference: InferenceConfig{RateLimit: -1}}, "rate_limit"},
		{"cache without path", Config{Cache: CacheConfig{Enabled: true}}, "cache"},
		{"graph without user", Config{Graph: GraphConfig{URI: "bolt://localhost:7687"}}, "username"},
		{"vector port", Config{Vector: VectorConfig{Host: "localhost", Port: 70000}}, "port"},
		{"sample rate", Config{Tracing: TracingConfig{SampleRate: 1.5}}, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := tt.cfg.Validate()
			found := false
			for _, w := range warnings {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected warning containing %q, got %v", tt.want, warnings)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Pipeline.ImportTargets != "node" {
		t.Errorf("expected import_targets=node, got %s", cfg.Pipeline.ImportTargets)
	}
	if cfg.Pipeline.PythonParser != "line" {
		t.Errorf("expected python_parser=line, got %s", cfg.Pipeline.PythonParser)
	}
	if cfg.Inference.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Inference.Timeout)
	}
	if cfg.Temporal.TaskQueue != "codegraph" {
		t.Errorf("expected task queue codegraph, got %s", cfg.Temporal.TaskQueue)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codegraph.yaml")
	content := `
pipeline:
  workers: 4
  import_targets: fqn
inference:
  command: pyright-langserver
  args: ["--stdio"]
  timeout: 2s
graph:
  uri: bolt://localhost:7687
  username: neo4j
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CODEGRAPH_GRAPH_PASSWORD", "secret")
	t.Setenv("CODEGRAPH_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.ImportTargets != "fqn" {
		t.Errorf("unexpected pipeline config %+v", cfg.Pipeline)
	}
	if cfg.Inference.Timeout != 2*time.Second {
		t.Errorf("expected 2s timeout, got %s", cfg.Inference.Timeout)
	}
	if len(cfg.Inference.Args) != 1 || cfg.Inference.Args[0] != "--stdio" {
		t.Errorf("unexpected args %v", cfg.Inference.Args)
	}
	if cfg.Graph.Password != "secret" {
		t.Errorf("expected password from env, got %q", cfg.Graph.Password)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level from env, got %q", cfg.Log.Level)
	}
	if cfg.Inference.MaxInFlight != 8 {
		t.Errorf("expected default max_in_flight 8, got %d", cfg.Inference.MaxInFlight)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("CODEGRAPH_INFERENCE_COMMAND", "pylsp")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Inference.Command != "pylsp" {
		t.Errorf("expected command from env, got %q", cfg.Inference.Command)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
