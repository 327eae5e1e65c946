package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mc-integrator/catalog"
	"mc-integrator/evaluation"
)

type runnerFlags struct {
	outputDir     string
	quickTest     bool
	scalability   bool
	fullBenchmark bool
	seed          uint64
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := newRunnerCmd().Execute(); err != nil {
		slog.Error("Evaluation failed", "error", err)
		os.Exit(1)
	}
}

func newRunnerCmd() *cobra.Command {
	f := &runnerFlags{}
	cmd := &cobra.Command{
		Use:          "evaluation_runner",
		Short:        "Run Monte Carlo convergence, dimension and concurrency studies",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.outputDir, "output", "evaluation_results", "output directory for results")
	fl.BoolVar(&f.quickTest, "quick", false, "run quick evaluation tests")
	fl.BoolVar(&f.scalability, "scalability", false, "run dimension and worker scalability tests")
	fl.BoolVar(&f.fullBenchmark, "full-benchmark", false, "run comprehensive benchmark suite")
	fl.Uint64Var(&f.seed, "seed", 2024, "base seed for the studies")
	return cmd
}

func run(ctx context.Context, f *runnerFlags) error {
	fmt.Println("========== Monte Carlo Integration Evaluation Runner ==========")

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var err error
	switch {
	case f.quickTest:
		err = runQuickEvaluation(ctx, f)
	case f.scalability:
		err = runScalabilityEvaluation(ctx, f)
	case f.fullBenchmark:
		err = runFullBenchmarkSuite(ctx, f)
	default:
		err = runBasicComparison(ctx, f)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nEvaluation completed. Results saved to: %s\n", f.outputDir)
	return nil
}

// runBasicComparison runs a parallel vs sequential comparison on the π problem
func runBasicComparison(ctx context.Context, f *runnerFlags) error {
	fmt.Println("\n=== Running Basic Concurrency Comparison ===")

	p, err := catalog.Lookup("pi")
	if err != nil {
		return err
	}
	comparison, err := evaluation.RunConcurrencyComparison(ctx, p, 250000, 32, 0)
	if err != nil {
		return err
	}
	evaluation.PrintComparisonReport(os.Stdout, comparison)
	return saveJSON(f.outputDir, "basic_comparison.json", comparison)
}

// runQuickEvaluation runs small convergence studies for rapid feedback
func runQuickEvaluation(ctx context.Context, f *runnerFlags) error {
	fmt.Println("\n=== Running Quick Evaluation Tests ===")

	studies := make([]evaluation.ConvergenceStudy, 0, 3)
	for _, name := range []string{"pi", "square-1d", "sphere-3d"} {
		p, err := catalog.Lookup(name)
		if err != nil {
			return err
		}
		study, err := evaluation.RunConvergenceStudy(ctx, p, []int{1000, 10000, 100000}, f.seed)
		if err != nil {
			return err
		}
		evaluation.PrintConvergenceReport(os.Stdout, study)
		studies = append(studies, study)
	}
	return saveJSON(f.outputDir, "quick_evaluation.json", studies)
}

// runScalabilityEvaluation covers dimension independence and worker scaling
func runScalabilityEvaluation(ctx context.Context, f *runnerFlags) error {
	fmt.Println("\n=== Running Scalability Evaluation ===")

	dims, err := evaluation.RunDimensionStudy(ctx, []int{1, 2, 3, 4, 6, 8, 12}, 50000, 20, f.seed)
	if err != nil {
		return err
	}
	evaluation.PrintDimensionReport(os.Stdout, dims)

	p, err := catalog.Lookup("sphere-3d")
	if err != nil {
		return err
	}
	workers := []int{1, 2, 4, 8}
	results, err := evaluation.RunScalabilityTest(ctx, p, 100000, 32, workers)
	if err != nil {
		return err
	}

	fmt.Printf("\nWorker Scalability:\n")
	fmt.Printf("%-10s %-18s %-15s %-15s\n", "Workers", "Samples/Sec", "Memory(MB)", "Duration")
	fmt.Printf("%-10s %-18s %-15s %-15s\n", "-------", "-----------", "----------", "--------")
	for _, r := range results {
		fmt.Printf("%-10d %-18.2f %-15.2f %-15v\n", r.Workers, r.SamplesPerSecond, r.PeakMemoryMB, r.Duration.Truncate(time.Microsecond))
	}

	if err := saveJSON(f.outputDir, "dimension_study.json", dims); err != nil {
		return err
	}
	return saveJSON(f.outputDir, "scalability_evaluation.json", results)
}

// runFullBenchmarkSuite runs every study and writes a text report
func runFullBenchmarkSuite(ctx context.Context, f *runnerFlags) error {
	fmt.Println("\n=== Running Full Benchmark Suite ===")

	fmt.Println("1. Convergence Studies...")
	counts := []int{1000, 10000, 100000, 1000000}
	convergence := make([]evaluation.ConvergenceStudy, 0)
	for _, p := range catalog.All() {
		study, err := evaluation.RunConvergenceStudy(ctx, p, counts, f.seed)
		if err != nil {
			return err
		}
		convergence = append(convergence, study)
	}

	fmt.Println("2. Dimension Study...")
	dims, err := evaluation.RunDimensionStudy(ctx, []int{1, 2, 3, 4, 6, 8, 12, 16}, 100000, 20, f.seed)
	if err != nil {
		return err
	}

	fmt.Println("3. Batch Consistency...")
	consistency := make([]evaluation.BatchConsistency, 0)
	for _, name := range []string{"square-1d", "pi", "masked-2d"} {
		p, err := catalog.Lookup(name)
		if err != nil {
			return err
		}
		c, err := evaluation.RunBatchConsistency(ctx, p, 10, 2000, 200, f.seed)
		if err != nil {
			return err
		}
		consistency = append(consistency, c)
	}

	fmt.Println("4. Concurrency Comparison...")
	p, err := catalog.Lookup("pi")
	if err != nil {
		return err
	}
	comparison, err := evaluation.RunConcurrencyComparison(ctx, p, 500000, 64, 0)
	if err != nil {
		return err
	}

	for name, v := range map[string]any{
		"full_benchmark_convergence.json": convergence,
		"full_benchmark_dimensions.json":  dims,
		"full_benchmark_consistency.json": consistency,
		"full_benchmark_comparison.json":  comparison,
	} {
		if err := saveJSON(f.outputDir, name, v); err != nil {
			return err
		}
	}
	return generateBenchmarkReport(f.outputDir, convergence, dims, consistency, comparison)
}

// saveJSON writes v as indented JSON into dir/filename
func saveJSON(dir, filename string, v any) error {
	path := filepath.Join(dir, filename)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filename, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	slog.Info("Results saved", "path", path)
	return nil
}

// generateBenchmarkReport creates a comprehensive text report
func generateBenchmarkReport(
	dir string,
	convergence []evaluation.ConvergenceStudy,
	dims evaluation.DimensionStudy,
	consistency []evaluation.BatchConsistency,
	comparison evaluation.ConcurrencyComparison,
) error {
	reportPath := filepath.Join(dir, "benchmark_report.txt")
	file, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "Monte Carlo Integration - Comprehensive Benchmark Report\n")
	fmt.Fprintf(file, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "========================================================\n")

	for _, s := range convergence {
		evaluation.PrintConvergenceReport(file, s)
	}
	evaluation.PrintDimensionReport(file, dims)
	for _, c := range consistency {
		evaluation.PrintConsistencyReport(file, c)
	}
	evaluation.PrintComparisonReport(file, comparison)

	slog.Info("Comprehensive report saved", "path", reportPath)
	return nil
}
