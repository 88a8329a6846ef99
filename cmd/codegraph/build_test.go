package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeInput(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.py":  "import lib\n\nlib.run()\n",
		"lib.py":   "def run():\n    return 1\n",
		"a.py":     "import b\n",
		"b.py":     "import a\n",
		"notes.md": "ignored\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func runFormat(t *testing.T, format string) string {
	t.Helper()
	t.Setenv("CODEGRAPH_INFERENCE_COMMAND", "")
	var out bytes.Buffer
	opts := buildOptions{input: writeInput(t), language: "python"}
	if err := runBuild(context.Background(), opts, format, &out); err != nil {
		t.Fatalf("build: %v", err)
	}
	return out.String()
}

func TestRunBuild_JSON(t *testing.T) {
	var report struct {
		BuildID  string `json:"build_id"`
		Ordering struct {
			Build  []string   `json:"build"`
			Cycles [][]string `json:"cycles"`
		} `json:"ordering"`
		Diagnostics []struct {
			Kind string `json:"kind"`
		} `json:"diagnostics"`
	}
	if err := json.Unmarshal([]byte(runFormat(t, "json")), &report); err != nil {
		t.Fatal(err)
	}
	if report.BuildID == "" {
		t.Error("expected a build id")
	}
	if got := strings.Join(report.Ordering.Build, ","); got != "lib.py,main.py" {
		t.Errorf("expected build order lib.py,main.py, got %s", got)
	}
	if len(report.Ordering.Cycles) != 1 || strings.Join(report.Ordering.Cycles[0], ",") != "a.py,b.py" {
		t.Errorf("expected cycle a.py,b.py, got %v", report.Ordering.Cycles)
	}
	found := false
	for _, d := range report.Diagnostics {
		if d.Kind == "dependency-cycle" {
			found = true
		}
	}
	if !found {
		t.Error("expected a dependency-cycle diagnostic")
	}
}

func TestRunBuild_YAML(t *testing.T) {
	var report map[string]any
	if err := yaml.Unmarshal([]byte(runFormat(t, "yaml")), &report); err != nil {
		t.Fatal(err)
	}
	if _, ok := report["ordering"]; !ok {
		t.Errorf("expected ordering in yaml report, got keys %v", report)
	}
}

func TestRunBuild_TextAndGraphs(t *testing.T) {
	text := runFormat(t, "text")
	if !strings.Contains(text, "Build order:") || !strings.Contains(text, "lib.py") {
		t.Errorf("unexpected text output:\n%s", text)
	}
	if dot := runFormat(t, "dot"); !strings.HasPrefix(dot, "digraph") {
		t.Errorf("expected DOT output, got:\n%s", dot)
	}
	if mm := runFormat(t, "mermaid"); !strings.Contains(mm, "graph") {
		t.Errorf("expected mermaid output, got:\n%s", mm)
	}
}

func TestRunBuild_Errors(t *testing.T) {
	input := writeInput(t)
	tests := []struct {
		name   string
		opts   buildOptions
		format string
	}{
		{"unknown language", buildOptions{input: input, language: "cobol"}, "text"},
		{"unknown format", buildOptions{input: input, language: "python"}, "xml"},
		{"unknown import targets", buildOptions{input: input, language: "python", importTargets: "path"}, "text"},
		{"missing input", buildOptions{input: filepath.Join(input, "missing"), language: "python"}, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runBuild(context.Background(), tt.opts, tt.format, &bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
