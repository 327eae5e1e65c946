package evaluation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"mc-integrator/catalog"
	"mc-integrator/estimator"
)

// ConfidenceZ is the two-sided 99% normal quantile.
const ConfidenceZ = 2.576

var errNoExact = errors.New("problem has no closed form")

// ConvergencePoint is one sample count of a convergence study
type ConvergencePoint struct {
	Samples     int     `json:"samples"`
	Estimate    float64 `json:"estimate"`
	AbsError    float64 `json:"abs_error"`
	ScaledError float64 `json:"scaled_error"` // |error|·√n, roughly flat when error is O(1/√n)
}

// ConvergenceStudy tracks the error of one problem as the sample count grows
type ConvergenceStudy struct {
	RunID     string             `json:"run_id"`
	Timestamp time.Time          `json:"timestamp"`
	Problem   string             `json:"problem"`
	Exact     float64            `json:"exact"`
	Seed      uint64             `json:"seed"`
	Points    []ConvergencePoint `json:"points"`
}

// RunConvergenceStudy estimates p once per sample count
func RunConvergenceStudy(ctx context.Context, p catalog.Problem, sampleCounts []int, seed uint64) (ConvergenceStudy, error) {
	if !p.HasExact() {
		return ConvergenceStudy{}, fmt.Errorf("convergence study of %s: %w", p.Name, errNoExact)
	}
	study := ConvergenceStudy{
		RunID:     uuid.NewString(),
		Timestamp: time.Now(),
		Problem:   p.Name,
		Exact:     p.Exact,
		Seed:      seed,
		Points:    make([]ConvergencePoint, 0, len(sampleCounts)),
	}
	for i, n := range sampleCounts {
		res, err := estimator.Estimate(ctx, p.Region, p.Integrand,
			estimator.WithPredicate(p.Predicate),
			estimator.WithSamples(n),
			estimator.WithSeed(seed+uint64(i)),
		)
		if err != nil {
			return ConvergenceStudy{}, err
		}
		absErr := math.Abs(res.Value - p.Exact)
		study.Points = append(study.Points, ConvergencePoint{
			Samples:     n,
			Estimate:    res.Value,
			AbsError:    absErr,
			ScaledError: absErr * math.Sqrt(float64(n)),
		})
	}
	return study, nil
}

// DimensionPoint is the outcome for one dimension
type DimensionPoint struct {
	Dimensions  int     `json:"dimensions"`
	Estimate    float64 `json:"estimate"`
	StdErr      float64 `json:"stderr"`
	RelError    float64 `json:"rel_error"`
	RelStdErr   float64 `json:"rel_stderr"`
	WithinBound bool    `json:"within_bound"` // |error| <= z·stderr
}

// DimensionStudy holds relative errors at a fixed sample budget across dimensions
type DimensionStudy struct {
	RunID     string           `json:"run_id"`
	Timestamp time.Time        `json:"timestamp"`
	Samples   int              `json:"samples"`
	Batches   int              `json:"batches"`
	Points    []DimensionPoint `json:"points"`
}

// RunDimensionStudy integrates catalog.MeanSquare(d) for each d with the same
// sample budget. Grid quadrature would need n^(1/d) points per axis; here the
// error stays at the O(1/√n) scale regardless of d.
func RunDimensionStudy(ctx context.Context, dims []int, samples, batches int, seed uint64) (DimensionStudy, error) {
	study := DimensionStudy{
		RunID:     uuid.NewString(),
		Timestamp: time.Now(),
		Samples:   samples,
		Batches:   batches,
		Points:    make([]DimensionPoint, 0, len(dims)),
	}
	for _, d := range dims {
		p, err := catalog.MeanSquare(d)
		if err != nil {
			return DimensionStudy{}, err
		}
		res, err := estimator.Estimate(ctx, p.Region, p.Integrand,
			estimator.WithSamples(samples),
			estimator.WithBatches(batches),
			estimator.WithSeed(seed+uint64(d)),
		)
		if err != nil {
			return DimensionStudy{}, err
		}
		errAbs := math.Abs(res.Value - p.Exact)
		study.Points = append(study.Points, DimensionPoint{
			Dimensions:  d,
			Estimate:    res.Value,
			StdErr:      res.StdErr,
			RelError:    errAbs / math.Abs(p.Exact),
			RelStdErr:   res.StdErr / math.Abs(p.Exact),
			WithinBound: res.HasStdErr && errAbs <= 4*res.StdErr,
		})
	}
	return study, nil
}

// BatchConsistency compares k batches of n samples against one batch of k·n
type BatchConsistency struct {
	RunID        string  `json:"run_id"`
	Problem      string  `json:"problem"`
	Batches      int     `json:"batches"`
	Samples      int     `json:"samples"`
	Trials       int     `json:"trials"`
	MeanBatched  float64 `json:"mean_batched"`
	MeanSingle   float64 `json:"mean_single"`
	MeanDiff     float64 `json:"mean_diff"`
	DiffStdErr   float64 `json:"diff_stderr"`
	Consistent   bool    `json:"consistent"` // |mean_diff| <= z·diff_stderr
	MeanReported float64 `json:"mean_reported_stderr"`
	Observed     float64 `json:"observed_single_sd"` // spread of single-batch estimates
}

// RunBatchConsistency repeats both configurations over independent seeds and
// checks, within a 99% confidence interval, that they agree in expectation.
// It also compares the batch-reported stderr with the observed spread of the
// single-batch estimates, which has the same target.
func RunBatchConsistency(ctx context.Context, p catalog.Problem, batches, samples, trials int, seed uint64) (BatchConsistency, error) {
	if trials < 2 {
		return BatchConsistency{}, fmt.Errorf("%w: need at least 2 trials, got %d", estimator.ErrInvalidSampleCount, trials)
	}
	if batches < 2 {
		return BatchConsistency{}, fmt.Errorf("%w: need at least 2 batches, got %d", estimator.ErrInvalidSampleCount, batches)
	}

	batched := make([]float64, trials)
	single := make([]float64, trials)
	diffs := make([]float64, trials)
	reported := make([]float64, trials)
	for t := 0; t < trials; t++ {
		b, err := estimator.Estimate(ctx, p.Region, p.Integrand,
			estimator.WithPredicate(p.Predicate),
			estimator.WithSamples(samples),
			estimator.WithBatches(batches),
			estimator.WithSeed(seed+uint64(2*t)),
		)
		if err != nil {
			return BatchConsistency{}, err
		}
		s, err := estimator.Estimate(ctx, p.Region, p.Integrand,
			estimator.WithPredicate(p.Predicate),
			estimator.WithSamples(samples*batches),
			estimator.WithSeed(seed+uint64(2*t+1)),
		)
		if err != nil {
			return BatchConsistency{}, err
		}
		batched[t], single[t] = b.Value, s.Value
		diffs[t] = b.Value - s.Value
		reported[t] = b.StdErr
	}

	meanBatched, _ := meanStdErr(batched)
	meanSingle, singleSE := meanStdErr(single)
	meanDiff, diffSE := meanStdErr(diffs)
	meanReported, _ := meanStdErr(reported)

	return BatchConsistency{
		RunID:        uuid.NewString(),
		Problem:      p.Name,
		Batches:      batches,
		Samples:      samples,
		Trials:       trials,
		MeanBatched:  meanBatched,
		MeanSingle:   meanSingle,
		MeanDiff:     meanDiff,
		DiffStdErr:   diffSE,
		Consistent:   math.Abs(meanDiff) <= ConfidenceZ*diffSE,
		MeanReported: meanReported,
		Observed:     singleSE * math.Sqrt(float64(trials)),
	}, nil
}

// PrintConvergenceReport writes a convergence table
func PrintConvergenceReport(w io.Writer, s ConvergenceStudy) {
	fmt.Fprintf(w, "\n========== CONVERGENCE: %s (exact %.10g) ==========\n", s.Problem, s.Exact)
	fmt.Fprintf(w, "%-12s %-16s %-14s %-14s\n", "Samples", "Estimate", "|Error|", "|Error|*sqrt(n)")
	for _, pt := range s.Points {
		fmt.Fprintf(w, "%-12d %-16.10f %-14.3e %-14.4f\n", pt.Samples, pt.Estimate, pt.AbsError, pt.ScaledError)
	}
}

// PrintDimensionReport writes a dimension table
func PrintDimensionReport(w io.Writer, s DimensionStudy) {
	fmt.Fprintf(w, "\n========== DIMENSION STUDY (%d x %d samples) ==========\n", s.Batches, s.Samples)
	fmt.Fprintf(w, "%-6s %-14s %-12s %-12s %-8s\n", "Dim", "Estimate", "RelError", "RelStdErr", "InBound")
	for _, pt := range s.Points {
		fmt.Fprintf(w, "%-6d %-14.8f %-12.3e %-12.3e %-8v\n", pt.Dimensions, pt.Estimate, pt.RelError, pt.RelStdErr, pt.WithinBound)
	}
}

// PrintConsistencyReport writes the batching consistency check
func PrintConsistencyReport(w io.Writer, c BatchConsistency) {
	fmt.Fprintf(w, "\n========== BATCH CONSISTENCY: %s ==========\n", c.Problem)
	fmt.Fprintf(w, "%d batches x %d samples vs 1 x %d, %d trials\n", c.Batches, c.Samples, c.Batches*c.Samples, c.Trials)
	fmt.Fprintf(w, "  - Mean (batched): %.10f\n", c.MeanBatched)
	fmt.Fprintf(w, "  - Mean (single):  %.10f\n", c.MeanSingle)
	fmt.Fprintf(w, "  - Difference: %.3e ± %.3e (z=%.3f)\n", c.MeanDiff, c.DiffStdErr, ConfidenceZ)
	fmt.Fprintf(w, "  - Consistent: %v\n", c.Consistent)
	fmt.Fprintf(w, "  - Reported stderr %.3e vs observed %.3e\n", c.MeanReported, c.Observed)
}
