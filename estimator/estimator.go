// Package estimator computes Monte Carlo estimates of definite integrals.
//
// Each estimate is split into independent batches. A batch draws its points
// uniformly from the region using its own random stream, sums the masked
// integrand values and scales by the region volume. Batches run in parallel
// and are reduced in index order, so a seeded call is bit-for-bit reproducible
// whatever the worker count.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"mc-integrator/integrand"
	"mc-integrator/region"
	"mc-integrator/rng"
)

const tracerName = "mc-integrator/estimator"

var (
	// ErrInvalidRegion is returned when the region bounds are malformed.
	ErrInvalidRegion = region.ErrInvalidRegion

	// ErrInvalidSampleCount is returned when samples or batches is below 1.
	ErrInvalidSampleCount = errors.New("invalid sample count")

	errNilIntegrand = errors.New("estimator: nil integrand")
)

// Result is the outcome of one Estimate call.
type Result struct {
	Value     float64       `json:"value"`
	StdErr    float64       `json:"stderr"`
	HasStdErr bool          `json:"has_stderr"`
	Batches   []float64     `json:"batches"`
	Seed      uint64        `json:"seed"`
	Samples   int           `json:"samples"`
	Accepted  int           `json:"accepted"`
	Volume    float64       `json:"volume"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Interval returns Value ± z·StdErr. Without a standard error both ends equal Value.
func (r Result) Interval(z float64) (float64, float64) {
	if !r.HasStdErr {
		return r.Value, r.Value
	}
	return r.Value - z*r.StdErr, r.Value + z*r.StdErr
}

// AcceptanceRate is the fraction of samples the predicate accepted.
func (r Result) AcceptanceRate() float64 {
	if r.Samples == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Samples)
}

type batchResult struct {
	estimate float64
	accepted int
}

// Estimate integrates f over reg.
//
// It fails with ErrInvalidRegion or ErrInvalidSampleCount before any sampling.
// An error returned by f is passed through unwrapped, and no partial result is
// reported. The context is only checked between batches.
func Estimate(ctx context.Context, reg region.Region, f integrand.Integrand, opts ...Option) (Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate(reg, f, o); err != nil {
		return Result{}, err
	}
	if !o.seeded {
		o.seed = rng.EntropySeed()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "mcint.estimate",
		trace.WithAttributes(
			attribute.Int("mcint.dimensions", reg.Dim()),
			attribute.Int("mcint.samples", o.samples),
			attribute.Int("mcint.batches", o.batches),
			attribute.Int("mcint.workers", o.workers),
			attribute.Int64("mcint.seed", int64(o.seed)),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := run(ctx, reg, integrand.NewMasked(f, o.predicate), o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.DebugContext(ctx, "estimate failed", slog.String("error", err.Error()))
		return Result{}, err
	}
	res.Elapsed = time.Since(start)

	span.SetAttributes(attribute.Float64("mcint.value", res.Value))
	span.SetStatus(codes.Ok, "")

	attrs := []any{
		slog.Float64("value", res.Value),
		slog.Int("dimensions", reg.Dim()),
		slog.Int("samples", res.Samples),
		slog.Int("batches", o.batches),
		slog.Uint64("seed", res.Seed),
		slog.Duration("elapsed", res.Elapsed),
	}
	if res.HasStdErr {
		attrs = append(attrs, slog.Float64("stderr", res.StdErr))
	}
	o.logger.InfoContext(ctx, "estimate complete", attrs...)

	return res, nil
}

// EstimateFunc is Estimate for a total function.
func EstimateFunc(ctx context.Context, reg region.Region, f func([]float64) float64, opts ...Option) (Result, error) {
	if f == nil {
		return Result{}, errNilIntegrand
	}
	return Estimate(ctx, reg, integrand.Func(f), opts...)
}

func validate(reg region.Region, f integrand.Integrand, o options) error {
	if reg.Dim() == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidRegion)
	}
	for i := 0; i < reg.Dim(); i++ {
		if lo, hi := reg.Bounds(i); !(lo < hi) {
			return fmt.Errorf("%w: dimension %d has low %v >= high %v", ErrInvalidRegion, i, lo, hi)
		}
	}
	if o.samples < 1 {
		return fmt.Errorf("%w: samples per batch is %d", ErrInvalidSampleCount, o.samples)
	}
	if o.batches < 1 {
		return fmt.Errorf("%w: batches is %d", ErrInvalidSampleCount, o.batches)
	}
	if f == nil {
		return errNilIntegrand
	}
	return nil
}

func run(ctx context.Context, reg region.Region, m *integrand.Masked, o options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	results := make([]batchResult, o.batches)
	volume := reg.Volume()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := 0; i < o.batches; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			begin := time.Now()
			br, err := runBatch(reg, m, o.samples, volume, rng.Substream(o.seed, i))
			if err != nil {
				return err
			}
			results[i] = br
			latency := time.Since(begin)
			if o.recorder != nil {
				o.recorder.RecordBatch(latency, o.samples, br.accepted)
			}
			o.logger.Debug("batch complete",
				slog.Int("batch", i),
				slog.Float64("estimate", br.estimate),
				slog.Int("accepted", br.accepted),
				slog.Duration("latency", latency),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return aggregate(results, o, volume), nil
}

// runBatch draws n points and returns volume·mean(contribution).
func runBatch(reg region.Region, m *integrand.Masked, n int, volume float64, seed uint64) (batchResult, error) {
	src := rng.NewSeeded(seed)
	point := make([]float64, reg.Dim())

	var sum float64
	accepted := 0
	for j := 0; j < n; j++ {
		reg.Sample(src, point)
		v, ok, err := m.Contribute(point)
		if err != nil {
			return batchResult{}, err
		}
		if ok {
			accepted++
			sum += v
		}
	}
	return batchResult{
		estimate: volume * sum / float64(n),
		accepted: accepted,
	}, nil
}

func aggregate(results []batchResult, o options, volume float64) Result {
	estimates := make([]float64, len(results))
	accepted := 0
	for i, br := range results {
		estimates[i] = br.estimate
		accepted += br.accepted
	}

	res := Result{
		Batches:  estimates,
		Seed:     o.seed,
		Samples:  o.samples * o.batches,
		Accepted: accepted,
		Volume:   volume,
	}
	if len(estimates) == 1 {
		res.Value = estimates[0]
		return res
	}

	mean, std := stat.MeanStdDev(estimates, nil)
	res.Value = mean
	res.StdErr = stat.StdErr(std, float64(len(estimates)))
	res.HasStdErr = !math.IsNaN(res.StdErr)
	return res
}
