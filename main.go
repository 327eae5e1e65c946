package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"mc-integrator/catalog"
	"mc-integrator/config"
	"mc-integrator/estimator"
	"mc-integrator/metrics"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcint",
		Short:         "Monte Carlo integration over bounded regions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEstimateCmd(), newListCmd(), newVersionCmd())
	return root
}

type estimateFlags struct {
	configPath string
	problem    string
	low        string
	high       string
	samples    int
	batches    int
	seed       uint64
	workers    int
	logLevel   string
	logFormat  string
	export     string
	prometheus bool
	jsonOut    bool
}

func newEstimateCmd() *cobra.Command {
	f := &estimateFlags{}
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate a catalog integral",
		Example: `  mcint estimate --problem pi --samples 1000000 --batches 10 --seed 42
  mcint estimate --problem square-1d --low 0 --high 2
  mcint estimate --config run.yaml --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				slog.Error("Invalid configuration", "error", err)
				return err
			}
			return runEstimate(cmd, cfg, f.jsonOut)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML run configuration")
	fl.StringVar(&f.problem, "problem", "", "catalog problem (see 'mcint list')")
	fl.StringVar(&f.low, "low", "", "comma separated lower bounds overriding the problem region")
	fl.StringVar(&f.high, "high", "", "comma separated upper bounds overriding the problem region")
	fl.IntVar(&f.samples, "samples", 0, "samples per batch")
	fl.IntVar(&f.batches, "batches", 0, "number of independent batches")
	fl.Uint64Var(&f.seed, "seed", 0, "seed for a reproducible run")
	fl.IntVar(&f.workers, "workers", 0, "parallel batches (0 = GOMAXPROCS)")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fl.StringVar(&f.logFormat, "log-format", "", "text or json")
	fl.StringVar(&f.export, "export", "", "path to export performance metrics (JSON format)")
	fl.BoolVar(&f.prometheus, "prometheus", false, "print Prometheus metrics after the run")
	fl.BoolVar(&f.jsonOut, "json", false, "print the result as JSON")
	return cmd
}

// resolveConfig layers defaults, the config file and explicit flags
func resolveConfig(cmd *cobra.Command, f *estimateFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("problem") {
		cfg.Problem = f.problem
	}
	if changed("samples") {
		cfg.Samples = f.samples
	}
	if changed("batches") {
		cfg.Batches = f.batches
	}
	if changed("seed") {
		seed := f.seed
		cfg.Seed = &seed
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("export") {
		cfg.Metrics.Export = f.export
	}
	if changed("prometheus") {
		cfg.Metrics.Prometheus = f.prometheus
	}
	if changed("low") || changed("high") {
		low, err := parseBounds(f.low)
		if err != nil {
			return config.Config{}, fmt.Errorf("--low: %w", err)
		}
		high, err := parseBounds(f.high)
		if err != nil {
			return config.Config{}, fmt.Errorf("--high: %w", err)
		}
		cfg.Region = &config.RegionConfig{Low: low, High: high}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func parseBounds(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("bounds are required")
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad bound %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func runEstimate(cmd *cobra.Command, cfg config.Config, jsonOut bool) error {
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	problem, err := cfg.ResolveProblem()
	if err != nil {
		slog.Error("Failed to resolve problem", "problem", cfg.Problem, "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	collector := metrics.NewMetricsCollector()
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Prometheus {
		if err := collector.Register(registry); err != nil {
			logger.Warn("Prometheus registration failed", "error", err)
		}
	}

	opts := append(cfg.Options(),
		estimator.WithPredicate(problem.Predicate),
		estimator.WithLogger(logger),
		estimator.WithRecorder(collector),
	)

	collector.Start()
	collector.TakeSnapshot()
	res, err := estimator.Estimate(ctx, problem.Region, problem.Integrand, opts...)
	collector.TakeSnapshot()
	collector.Stop()
	if err != nil {
		logger.Error("Estimation failed", "problem", problem.Name, "error", err)
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newReport(runID, problem, res)); err != nil {
			return err
		}
	} else {
		printResult(cmd, runID, problem, res)
	}

	if cfg.Metrics.Export != "" {
		if err := exportMetrics(collector, cfg.Metrics.Export); err != nil {
			logger.Error("Error exporting metrics", "path", cfg.Metrics.Export, "error", err)
			return err
		}
		logger.Info("Metrics exported", "path", cfg.Metrics.Export)
	}
	if cfg.Metrics.Prometheus {
		if err := writePrometheus(out, registry); err != nil {
			return err
		}
	}
	return nil
}

type report struct {
	RunID    string           `json:"run_id"`
	Problem  string           `json:"problem"`
	Exact    *float64         `json:"exact,omitempty"`
	AbsError *float64         `json:"abs_error,omitempty"`
	Result   estimator.Result `json:"result"`
}

func newReport(runID string, p catalog.Problem, res estimator.Result) report {
	r := report{RunID: runID, Problem: p.Name, Result: res}
	if p.HasExact() {
		exact := p.Exact
		absErr := math.Abs(res.Value - exact)
		r.Exact, r.AbsError = &exact, &absErr
	}
	return r
}

func printResult(cmd *cobra.Command, runID string, p catalog.Problem, res estimator.Result) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "========== Monte Carlo Estimate ==========")
	fmt.Fprintf(w, "Run:       %s\n", runID)
	fmt.Fprintf(w, "Problem:   %s (%s)\n", p.Name, p.Description)
	fmt.Fprintf(w, "Samples:   %d in %d batches (seed %d)\n", res.Samples, len(res.Batches), res.Seed)
	fmt.Fprintf(w, "Estimate:  %.10g\n", res.Value)
	if res.HasStdErr {
		lo, hi := res.Interval(2.576)
		fmt.Fprintf(w, "Std error: %.3e (99%% CI [%.10g, %.10g])\n", res.StdErr, lo, hi)
	}
	if p.HasExact() {
		fmt.Fprintf(w, "Exact:     %.10g (error %.3e)\n", p.Exact, math.Abs(res.Value-p.Exact))
	}
	if p.Predicate != nil {
		fmt.Fprintf(w, "Accepted:  %.4f%% of samples\n", 100*res.AcceptanceRate())
	}
	fmt.Fprintf(w, "Elapsed:   %v\n", res.Elapsed.Truncate(time.Microsecond))
}

// exportMetrics saves metrics to JSON file
func exportMetrics(collector *metrics.MetricsCollector, exportPath string) error {
	if err := os.MkdirAll(filepath.Dir(exportPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := collector.ExportToJSON()
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	return os.WriteFile(exportPath, data, 0o644)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the problem catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDIM\tEXACT\tDESCRIPTION")
			for _, p := range catalog.All() {
				fmt.Fprintf(tw, "%s\t%d\t%.10g\t%s\n", p.Name, p.Region.Dim(), p.Exact, p.Description)
			}
			fmt.Fprintln(tw, "mean-square-<d>d\td\t1\t(3/d)*sum x_i^2 on [0,1]^d")
			fmt.Fprintln(tw, "product-<d>d\td\t1\tprod 2*x_i on [0,1]^d")
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcint %s\n", version)
		},
	}
}

// writePrometheus dumps the registry in the text exposition format
func writePrometheus(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
