// Package config loads estimation run settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mc-integrator/catalog"
	"mc-integrator/estimator"
	"mc-integrator/region"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")

// Config is one estimation run.
type Config struct {
	// Problem names a catalog entry.
	Problem string `yaml:"problem" json:"problem"`

	// Region optionally overrides the problem's region.
	Region *RegionConfig `yaml:"region,omitempty" json:"region,omitempty"`

	// Samples per batch.
	Samples int `yaml:"samples" json:"samples"`

	// Batches is the number of independent batches.
	Batches int `yaml:"batches" json:"batches"`

	// Seed makes the run reproducible when set.
	Seed *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Workers bounds batch parallelism; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`

	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// RegionConfig holds per-dimension bounds.
type RegionConfig struct {
	Low  []float64 `yaml:"low" json:"low"`
	High []float64 `yaml:"high" json:"high"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
}

// MetricsConfig controls run metrics.
type MetricsConfig struct {
	// Export is a path for the JSON performance report; empty disables it.
	Export string `yaml:"export" json:"export"`

	// Prometheus dumps the Prometheus registry after the run.
	Prometheus bool `yaml:"prometheus" json:"prometheus"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Problem: "pi",
		Samples: estimator.DefaultSamples,
		Batches: 10,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks counts, logging settings and region bounds.
func (c Config) Validate() error {
	if c.Problem == "" {
		return fmt.Errorf("%w: problem is required", ErrInvalidConfig)
	}
	if c.Samples < 1 {
		return fmt.Errorf("%w: samples: %w", ErrInvalidConfig, estimator.ErrInvalidSampleCount)
	}
	if c.Batches < 1 {
		return fmt.Errorf("%w: batches: %w", ErrInvalidConfig, estimator.ErrInvalidSampleCount)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Region != nil {
		if _, err := region.New(c.Region.Low, c.Region.High); err != nil {
			return fmt.Errorf("%w: region: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ResolveProblem looks up the catalog entry and applies the region override.
func (c Config) ResolveProblem() (catalog.Problem, error) {
	p, err := catalog.Lookup(c.Problem)
	if err != nil {
		return catalog.Problem{}, err
	}
	if c.Region == nil {
		return p, nil
	}
	r, err := region.New(c.Region.Low, c.Region.High)
	if err != nil {
		return catalog.Problem{}, err
	}
	if r.Dim() != p.Region.Dim() {
		return catalog.Problem{}, fmt.Errorf("%w: region has %d dimensions, problem %s needs %d",
			ErrInvalidConfig, r.Dim(), p.Name, p.Region.Dim())
	}
	return p.WithRegion(r), nil
}

// Options turns the run settings into estimator options.
func (c Config) Options() []estimator.Option {
	opts := []estimator.Option{
		estimator.WithSamples(c.Samples),
		estimator.WithBatches(c.Batches),
		estimator.WithWorkers(c.Workers),
	}
	if c.Seed != nil {
		opts = append(opts, estimator.WithSeed(*c.Seed))
	}
	return opts
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// NewLogger builds the slog logger described by the log settings.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
