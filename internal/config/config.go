// Package config loads experiment configuration from YAML files and CTPY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds experiment design constants and runtime settings.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Store      StoreConfig      `yaml:"store"`
	Export     ExportConfig     `yaml:"export"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ExperimentConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// MaxAlleles bounds every trait value: 0 <= value < MaxAlleles.
	MaxAlleles           int64     `yaml:"max_alleles"`
	DimensionPartitions  []int     `yaml:"dimension_partitions"`
	DimensionsStudied    []int     `yaml:"dimensions_studied"`
	RandomModeReplicates int       `yaml:"random_mode_replicates"`
	InnovationRates      []float64 `yaml:"innovation_rates"`
	PopulationSizes      []int     `yaml:"population_sizes"`
	SampleSizes          []int     `yaml:"sample_sizes"`
	Replications         int       `yaml:"replications"`
	SlatkinReplicates    int       `yaml:"slatkin_replicates"`
	Seed                 int64     `yaml:"seed"`
}

type RuntimeConfig struct {
	Workers         int  `yaml:"workers"`
	BatchSize       int  `yaml:"batch_size"`
	ModeCacheSize   int  `yaml:"mode_cache_size"`
	SaveIndividuals bool `yaml:"save_individuals"`
	MaxAttempts     int  `yaml:"max_attempts"`
}

type StoreConfig struct {
	// Kind is "memory", "sqlite" or "postgres".
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

type ExportConfig struct {
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
}

type LoggingConfig struct {
	// Level is "info" (default), "debug" or "trace".
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `yaml:"addr,omitempty"`
}

func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			Name:                 "ctpy",
			MaxAlleles:           1000000000,
			DimensionPartitions:  []int{2, 3, 4, 8, 16, 32},
			DimensionsStudied:    []int{2, 3, 4, 6, 8},
			RandomModeReplicates: 10,
			InnovationRates:      []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
			PopulationSizes:      []int{500, 1000, 2500, 5000},
			SampleSizes:          []int{25, 50, 100, 200},
			Replications:         10,
			SlatkinReplicates:    1000,
			Seed:                 1,
		},
		Runtime: RuntimeConfig{
			Workers:         4,
			BatchSize:       500,
			ModeCacheSize:   1024,
			MaxAttempts:     3,
			SaveIndividuals: true,
		},
		Store: StoreConfig{
			Kind: "memory",
		},
		Export: ExportConfig{
			Dir: "export",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns defaults, overlaid by path when non-empty, then by environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, used by `ctpyctl init` to emit a starting file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	e := c.Experiment
	if e.Name == "" {
		return errors.New("experiment.name is required")
	}
	if e.MaxAlleles <= 0 {
		return fmt.Errorf("experiment.max_alleles must be positive, got %d", e.MaxAlleles)
	}
	if err := positive("experiment.dimension_partitions", e.DimensionPartitions); err != nil {
		return err
	}
	if err := positive("experiment.dimensions_studied", e.DimensionsStudied); err != nil {
		return err
	}
	if err := positive("experiment.sample_sizes", e.SampleSizes); err != nil {
		return err
	}
	if e.RandomModeReplicates < 0 {
		return fmt.Errorf("experiment.random_mode_replicates must not be negative, got %d", e.RandomModeReplicates)
	}
	if e.SlatkinReplicates < 0 {
		return fmt.Errorf("experiment.slatkin_replicates must not be negative, got %d", e.SlatkinReplicates)
	}
	if c.Runtime.Workers <= 0 {
		return fmt.Errorf("runtime.workers must be positive, got %d", c.Runtime.Workers)
	}
	if c.Runtime.MaxAttempts <= 0 {
		return fmt.Errorf("runtime.max_attempts must be positive, got %d", c.Runtime.MaxAttempts)
	}
	switch c.Store.Kind {
	case "", "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for %s", c.Store.Kind)
		}
	default:
		return fmt.Errorf("store.kind must be memory, sqlite or postgres, got %q", c.Store.Kind)
	}
	return nil
}

func positive(name string, values []int) error {
	if len(values) == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	for _, v := range values {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTPY_EXPERIMENT"); v != "" {
		cfg.Experiment.Name = v
	}
	if v := os.Getenv("CTPY_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Experiment.Seed = n
		}
	}
	if v := os.Getenv("CTPY_SLATKIN_REPLICATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Experiment.SlatkinReplicates = n
		}
	}
	if v := os.Getenv("CTPY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.Workers = n
		}
	}
	if v := os.Getenv("CTPY_SAVE_INDIVIDUALS"); v != "" {
		cfg.Runtime.SaveIndividuals = v == "true" || v == "1"
	}
	if v := os.Getenv("CTPY_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("CTPY_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("CTPY_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	if v := os.Getenv("CTPY_EXPORT_BUCKET"); v != "" {
		cfg.Export.Bucket = v
	}
	if v := os.Getenv("CTPY_EXPORT_REGION"); v != "" {
		cfg.Export.Region = v
	}
	if v := os.Getenv("CTPY_EXPORT_ENDPOINT"); v != "" {
		cfg.Export.Endpoint = v
	}
	if v := os.Getenv("CTPY_EXPORT_PATH_STYLE"); v != "" {
		cfg.Export.PathStyle = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CTPY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CTPY_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}
