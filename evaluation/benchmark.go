package evaluation

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"mc-integrator/catalog"
	"mc-integrator/estimator"
	"mc-integrator/metrics"
)

// BenchmarkResult contains the results of one timed estimation
type BenchmarkResult struct {
	Name             string        `json:"name"`
	Workers          int           `json:"workers"`
	Duration         time.Duration `json:"duration"`
	Value            float64       `json:"value"`
	StdErr           float64       `json:"stderr"`
	TotalSamples     int64         `json:"total_samples"`
	SamplesPerSecond float64       `json:"samples_per_second"`
	AvgBatchLatency  time.Duration `json:"avg_batch_latency"`
	PeakMemoryMB     float64       `json:"peak_memory_mb"`
	MaxGoroutines    int           `json:"max_goroutines"`
	GCPauseTimeMs    float64       `json:"gc_pause_time_ms"`
}

// ConcurrencyComparison compares parallel batches against a single worker
type ConcurrencyComparison struct {
	RunID            string          `json:"run_id"`
	Timestamp        time.Time       `json:"timestamp"`
	Problem          string          `json:"problem"`
	ConcurrentResult BenchmarkResult `json:"concurrent_result"`
	SequentialResult BenchmarkResult `json:"sequential_result"`
	SpeedupRatio     float64         `json:"speedup_ratio"`
	EfficiencyGain   float64         `json:"efficiency_gain"`
	IdenticalValues  bool            `json:"identical_values"`
}

// RunBenchmark times a single seeded estimate of p with the given worker count
func RunBenchmark(ctx context.Context, p catalog.Problem, samples, batches, workers int, seed uint64) (BenchmarkResult, error) {
	collector := metrics.NewMetricsCollector()
	collector.Start()
	collector.TakeSnapshot()

	// Sample the runtime while batches are in flight
	snapCtx, stopSnapshots := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-snapCtx.Done():
				return
			case <-ticker.C:
				collector.TakeSnapshot()
			}
		}
	}()

	start := time.Now()
	res, err := estimator.Estimate(ctx, p.Region, p.Integrand,
		estimator.WithPredicate(p.Predicate),
		estimator.WithSamples(samples),
		estimator.WithBatches(batches),
		estimator.WithWorkers(workers),
		estimator.WithSeed(seed),
		estimator.WithRecorder(collector),
	)
	elapsed := time.Since(start)

	stopSnapshots()
	<-done
	collector.TakeSnapshot()
	collector.Stop()

	if err != nil {
		return BenchmarkResult{}, err
	}

	m := collector.GetMetrics()
	return BenchmarkResult{
		Name:             fmt.Sprintf("%s_%d_workers", p.Name, workers),
		Workers:          workers,
		Duration:         elapsed,
		Value:            res.Value,
		StdErr:           res.StdErr,
		TotalSamples:     m.TotalSamples,
		SamplesPerSecond: float64(m.TotalSamples) / elapsed.Seconds(),
		AvgBatchLatency:  m.AvgBatchLatency,
		PeakMemoryMB:     float64(m.PeakMemoryUsage) / 1024 / 1024,
		MaxGoroutines:    m.MaxGoroutines,
		GCPauseTimeMs:    float64(m.TotalGCPauses) / 1e6,
	}, nil
}

// RunConcurrencyComparison runs the same seeded estimate on one worker and on
// `workers` workers. A workers value below 1 uses GOMAXPROCS.
func RunConcurrencyComparison(ctx context.Context, p catalog.Problem, samples, batches, workers int) (ConcurrencyComparison, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	seed := uint64(time.Now().UnixNano())

	concurrent, err := RunBenchmark(ctx, p, samples, batches, workers, seed)
	if err != nil {
		return ConcurrencyComparison{}, err
	}
	sequential, err := RunBenchmark(ctx, p, samples, batches, 1, seed)
	if err != nil {
		return ConcurrencyComparison{}, err
	}

	speedup := 1.0
	if concurrent.Duration > 0 {
		speedup = sequential.Duration.Seconds() / concurrent.Duration.Seconds()
	}

	return ConcurrencyComparison{
		RunID:            uuid.NewString(),
		Timestamp:        time.Now(),
		Problem:          p.Name,
		ConcurrentResult: concurrent,
		SequentialResult: sequential,
		SpeedupRatio:     speedup,
		EfficiencyGain:   (speedup - 1) * 100,
		IdenticalValues:  concurrent.Value == sequential.Value,
	}, nil
}

// RunScalabilityTest times the same estimate across worker counts
func RunScalabilityTest(ctx context.Context, p catalog.Problem, samples, batches int, workerCounts []int) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(workerCounts))
	seed := uint64(time.Now().UnixNano())
	for _, w := range workerCounts {
		r, err := RunBenchmark(ctx, p, samples, batches, w, seed)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// PrintComparisonReport writes a comparison report
func PrintComparisonReport(w io.Writer, c ConcurrencyComparison) {
	fmt.Fprintf(w, "\n========== CONCURRENCY COMPARISON REPORT ==========\n")
	fmt.Fprintf(w, "Run %s (%s)\n", c.RunID, c.Problem)
	for _, r := range []struct {
		label string
		res   BenchmarkResult
	}{
		{"Concurrent", c.ConcurrentResult},
		{"Sequential", c.SequentialResult},
	} {
		fmt.Fprintf(w, "%s Performance (%d workers):\n", r.label, r.res.Workers)
		fmt.Fprintf(w, "  - Duration: %v\n", r.res.Duration)
		fmt.Fprintf(w, "  - Samples/Second: %.2f\n", r.res.SamplesPerSecond)
		fmt.Fprintf(w, "  - Average Batch Latency: %v\n", r.res.AvgBatchLatency)
		fmt.Fprintf(w, "  - Peak Memory: %.2f MB\n", r.res.PeakMemoryMB)
		fmt.Fprintf(w, "  - GC Pause Time: %.2f ms\n", r.res.GCPauseTimeMs)
	}

	fmt.Fprintf(w, "\nComparison Results:\n")
	fmt.Fprintf(w, "  - Speedup Ratio: %.2fx\n", c.SpeedupRatio)
	fmt.Fprintf(w, "  - Efficiency Gain: %.2f%%\n", c.EfficiencyGain)
	fmt.Fprintf(w, "  - Identical Estimates: %v (%.10g)\n", c.IdenticalValues, c.ConcurrentResult.Value)
	fmt.Fprintf(w, "==================================================\n")
}

// meanStdErr returns the mean of xs and its standard error
func meanStdErr(xs []float64) (float64, float64) {
	if len(xs) < 2 {
		if len(xs) == 1 {
			return xs[0], math.NaN()
		}
		return math.NaN(), math.NaN()
	}
	mean, std := stat.MeanStdDev(xs, nil)
	return mean, stat.StdErr(std, float64(len(xs)))
}
