package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Inference InferenceConfig `mapstructure:"inference"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type PipelineConfig struct {
	// Workers bounds concurrent per-file work. 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
	// ImportTargets is "node" or "fqn".
	ImportTargets string `mapstructure:"import_targets"`
	// PythonParser is "line" or "treesitter".
	PythonParser string `mapstructure:"python_parser"`
}

// InferenceConfig configures the optional language server used for type
// inference. An empty Command disables inference.
type InferenceConfig struct {
	Command     string        `mapstructure:"command"`
	Args        []string      `mapstructure:"args"`
	LanguageID  string        `mapstructure:"language_id"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // calls per second, 0 = unlimited
	Burst       int           `mapstructure:"burst"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Dimensions int    `mapstructure:"dimensions"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// MaxConcurrentBuilds bounds the activities a worker runs at once.
	// 0 keeps the SDK default.
	MaxConcurrentBuilds int `mapstructure:"max_concurrent_builds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.import_targets", "node")
	v.SetDefault("pipeline.python_parser", "line")
	// Every key needs a default so AutomaticEnv can override it on Unmarshal.
	v.SetDefault("inference.command", "")
	v.SetDefault("inference.args", []string{})
	v.SetDefault("inference.rate_limit", 0.0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "")
	v.SetDefault("graph.password", "")
	v.SetDefault("vector.host", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("inference.language_id", "python")
	v.SetDefault("inference.max_in_flight", 8)
	v.SetDefault("inference.timeout", "5s")
	v.SetDefault("inference.burst", 1)
	v.SetDefault("cache.path", ".codegraph/cache")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "codegraph_symbols")
	v.SetDefault("vector.dimensions", 256)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "codegraph")
	v.SetDefault("temporal.max_concurrent_builds", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Pipeline.Workers < 0 {
		warnings = append(warnings, fmt.Sprintf("pipeline workers %d is negative", c.Pipeline.Workers))
	}
	switch c.Pipeline.ImportTargets {
	case "", "node", "fqn":
	default:
		warnings = append(warnings, fmt.Sprintf("pipeline import_targets %q is not 'node' or 'fqn'", c.Pipeline.ImportTargets))
	}
	switch c.Pipeline.PythonParser {
	case "", "line", "treesitter":
	default:
		warnings = append(warnings, fmt.Sprintf("pipeline python_parser %q is not 'line' or 'treesitter'", c.Pipeline.PythonParser))
	}

	if c.Inference.Command != "" && c.Inference.MaxInFlight < 1 {
		warnings = append(warnings, fmt.Sprintf("inference max_in_flight %d must be at least 1", c.Inference.MaxInFlight))
	}
	if c.Inference.RateLimit < 0 {
		warnings = append(warnings, fmt.Sprintf("inference rate_limit %.2f is negative", c.Inference.RateLimit))
	}
	if c.Inference.Timeout < 0 {
		warnings = append(warnings, fmt.Sprintf("inference timeout %s is negative", c.Inference.Timeout))
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		warnings = append(warnings, "cache is enabled but path is empty")
	}
	if c.Graph.URI != "" && c.Graph.Username == "" {
		warnings = append(warnings, "graph uri is configured but username is empty")
	}
	if c.Vector.Host != "" && (c.Vector.Port <= 0 || c.Vector.Port > 65535) {
		warnings = append(warnings, fmt.Sprintf("vector port %d is out of range", c.Vector.Port))
	}
	if c.Vector.Dimensions < 0 {
		warnings = append(warnings, fmt.Sprintf("vector dimensions %d is negative", c.Vector.Dimensions))
	}

	if c.Temporal.MaxConcurrentBuilds < 0 {
		warnings = append(warnings, fmt.Sprintf("temporal max_concurrent_builds %d is negative", c.Temporal.MaxConcurrentBuilds))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from an optional file and the environment.
// Environment variables use the CODEGRAPH prefix, e.g.
// CODEGRAPH_INFERENCE_COMMAND.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CODEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
