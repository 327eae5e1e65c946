package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mc-integrator/integrand"
	"mc-integrator/region"
)

func square(x []float64) float64 { return x[0] * x[0] }

func TestEstimate_SquareIntervals(t *testing.T) {
	tests := []struct {
		a, b float64
		n    int
		want float64
	}{
		{0, 1, 1000000, 1.0 / 3.0}, // Integral of x^2 from 0 to 1 is 1/3
		{0, 2, 1000000, 8.0 / 3.0}, // Integral of x^2 from 0 to 2 is 8/3
		{-1, 1, 1000000, 2.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("Integrating from %.2f to %.2f with %d points", tt.a, tt.b, tt.n), func(t *testing.T) {
			reg := region.MustNew([]float64{tt.a}, []float64{tt.b})
			got, err := EstimateFunc(context.Background(), reg, square, WithSamples(tt.n), WithSeed(2024))
			require.NoError(t, err)
			assert.InEpsilon(t, tt.want, got.Value, 0.01)
		})
	}
}

func TestEstimate_ConstantOnUnitInterval(t *testing.T) {
	reg, err := region.Unit(1)
	require.NoError(t, err)

	res, err := Estimate(context.Background(), reg, integrand.Constant(1), WithSamples(1000000), WithSeed(1))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Value, 0.01)
	assert.False(t, res.HasStdErr)
	assert.Equal(t, 1000000, res.Samples)
	assert.Equal(t, 1000000, res.Accepted)
}

func TestEstimate_CircleInSquare(t *testing.T) {
	reg := region.MustNew([]float64{-1, -1}, []float64{1, 1})
	res, err := Estimate(context.Background(), reg, integrand.Constant(1),
		WithPredicate(integrand.Ball([]float64{0, 0}, 1)),
		WithSamples(1000000),
		WithSeed(314),
	)
	require.NoError(t, err)

	// the disc area is π directly; 4·(hits/n) is the same number
	assert.InDelta(t, math.Pi, res.Value, 0.01)
	assert.InDelta(t, math.Pi, 4*res.AcceptanceRate(), 0.01)
	assert.Equal(t, 4.0, res.Volume)
}

func TestEstimate_Determinism(t *testing.T) {
	reg := region.MustNew([]float64{0, 0, 0}, []float64{1, 2, 3})
	f := func(x []float64) float64 { return math.Sin(x[0]) + x[1]*x[2] }
	ctx := context.Background()

	a, err := EstimateFunc(ctx, reg, f, WithSamples(20000), WithBatches(8), WithSeed(99))
	require.NoError(t, err)
	b, err := EstimateFunc(ctx, reg, f, WithSamples(20000), WithBatches(8), WithSeed(99))
	require.NoError(t, err)
	assert.Equal(t, a.Value, b.Value)
	assert.Equal(t, a.StdErr, b.StdErr)
	assert.Equal(t, a.Batches, b.Batches)

	c, err := EstimateFunc(ctx, reg, f, WithSamples(20000), WithBatches(8), WithSeed(100))
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, c.Value)
}

func TestEstimate_WorkerCountDoesNotChangeResult(t *testing.T) {
	reg := region.MustNew([]float64{0, 0}, []float64{1, 1})
	f := func(x []float64) float64 { return math.Exp(-x[0] * x[1]) }
	ctx := context.Background()

	sequential, err := EstimateFunc(ctx, reg, f, WithSamples(5000), WithBatches(16), WithSeed(5), WithWorkers(1))
	require.NoError(t, err)
	parallel, err := EstimateFunc(ctx, reg, f, WithSamples(5000), WithBatches(16), WithSeed(5), WithWorkers(8))
	require.NoError(t, err)

	assert.Equal(t, sequential.Value, parallel.Value)
	assert.Equal(t, sequential.Batches, parallel.Batches)
}

func TestEstimate_UnseededRecordsSeed(t *testing.T) {
	reg, _ := region.Unit(1)
	ctx := context.Background()

	first, err := EstimateFunc(ctx, reg, square, WithSamples(1000))
	require.NoError(t, err)

	replay, err := EstimateFunc(ctx, reg, square, WithSamples(1000), WithSeed(first.Seed))
	require.NoError(t, err)
	assert.Equal(t, first.Value, replay.Value)
}

func TestEstimate_InvalidInput(t *testing.T) {
	unit, _ := region.Unit(2)
	ctx := context.Background()
	one := integrand.Constant(1)

	tests := []struct {
		name    string
		reg     region.Region
		opts    []Option
		wantErr error
	}{
		{"empty region", region.Region{}, nil, ErrInvalidRegion},
		{"zero samples", unit, []Option{WithSamples(0)}, ErrInvalidSampleCount},
		{"negative samples", unit, []Option{WithSamples(-5)}, ErrInvalidSampleCount},
		{"zero batches", unit, []Option{WithBatches(0)}, ErrInvalidSampleCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(ctx, tt.reg, one, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEstimate_RegionErrorIsShared(t *testing.T) {
	_, err := region.New([]float64{1}, []float64{0})
	assert.ErrorIs(t, err, ErrInvalidRegion)
}

func TestEstimate_NilIntegrand(t *testing.T) {
	unit, _ := region.Unit(1)
	_, err := Estimate(context.Background(), unit, nil)
	assert.Error(t, err)

	_, err = EstimateFunc(context.Background(), unit, nil)
	assert.Error(t, err)
}

func TestEstimate_IntegrandErrorPropagates(t *testing.T) {
	boom := errors.New("integrand failed")
	f := integrand.Checked(func(x []float64) (float64, error) {
		if x[0] > 0.5 {
			return 0, boom
		}
		return x[0], nil
	})
	unit, _ := region.Unit(1)

	res, err := Estimate(context.Background(), unit, f, WithSamples(1000), WithBatches(4), WithSeed(3))
	assert.Equal(t, boom, err)
	assert.Equal(t, Result{}, res)
}

func TestEstimate_PredicateGuardsIntegrand(t *testing.T) {
	f := integrand.Checked(func(x []float64) (float64, error) {
		if x[0] > 0.5 {
			return 0, errors.New("evaluated outside the predicate")
		}
		return 1, nil
	})
	unit, _ := region.Unit(1)
	lowerHalf := integrand.HalfSpace([]float64{1}, 0.5)

	res, err := Estimate(context.Background(), unit, f, WithPredicate(lowerHalf), WithSamples(100000), WithSeed(8))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Value, 0.01)
}

func TestEstimate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	unit, _ := region.Unit(1)

	_, err := EstimateFunc(ctx, unit, square, WithBatches(4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimate_CancelBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	unit, _ := region.Unit(1)

	var once sync.Once
	f := func(x []float64) float64 {
		once.Do(cancel)
		return x[0]
	}

	_, err := EstimateFunc(ctx, unit, f, WithSamples(10), WithBatches(50), WithWorkers(1), WithSeed(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimate_BatchStdErr(t *testing.T) {
	unit, _ := region.Unit(1)
	res, err := EstimateFunc(context.Background(), unit, square, WithSamples(10000), WithBatches(25), WithSeed(77))
	require.NoError(t, err)

	require.True(t, res.HasStdErr)
	require.Len(t, res.Batches, 25)

	var mean float64
	for _, b := range res.Batches {
		mean += b
	}
	mean /= float64(len(res.Batches))
	assert.InDelta(t, mean, res.Value, 1e-12)

	// sd(x^2) on [0,1] is sqrt(4/45); the batch stderr targets sd/sqrt(n·k)
	want := math.Sqrt(4.0/45.0) / math.Sqrt(10000*25)
	assert.InEpsilon(t, want, res.StdErr, 0.5)

	lo, hi := res.Interval(4)
	assert.True(t, lo < 1.0/3.0 && 1.0/3.0 < hi, "interval [%v, %v] misses 1/3", lo, hi)
}

func TestEstimate_BatchingConsistency(t *testing.T) {
	unit, _ := region.Unit(1)
	ctx := context.Background()
	const (
		trials  = 200
		k       = 10
		n       = 1000
		z       = 4.0
		exactSd = 0.29814239699997197 // sqrt(4/45)
	)

	diffs := make([]float64, trials)
	var stderrSum float64
	for trial := 0; trial < trials; trial++ {
		batched, err := EstimateFunc(ctx, unit, square, WithSamples(n), WithBatches(k), WithSeed(uint64(1000+trial)))
		require.NoError(t, err)
		single, err := EstimateFunc(ctx, unit, square, WithSamples(k*n), WithSeed(uint64(900000+trial)))
		require.NoError(t, err)
		diffs[trial] = batched.Value - single.Value
		stderrSum += batched.StdErr
	}

	var mean float64
	for _, d := range diffs {
		mean += d
	}
	mean /= trials
	var ss float64
	for _, d := range diffs {
		ss += (d - mean) * (d - mean)
	}
	se := math.Sqrt(ss/(trials-1)) / math.Sqrt(trials)
	assert.Less(t, math.Abs(mean), z*se, "mean difference %v outside ±%v", mean, z*se)

	// batch stderr should track the true standard error of a k·n estimate
	ratio := (stderrSum / trials) / (exactSd / math.Sqrt(k*n))
	assert.InDelta(t, 1.0, ratio, 0.15)
}

func TestEstimate_DimensionIndependence(t *testing.T) {
	ctx := context.Background()
	// (3/d)·Σ x_i² integrates to 1 on [0,1]^d in every dimension
	meanSquare := func(x []float64) float64 {
		var s float64
		for _, xi := range x {
			s += xi * xi
		}
		return 3 * s / float64(len(x))
	}

	stderrs := make(map[int]float64)
	for d := 1; d <= 6; d++ {
		reg, err := region.Unit(d)
		require.NoError(t, err)
		res, err := EstimateFunc(ctx, reg, meanSquare, WithSamples(25000), WithBatches(40), WithSeed(uint64(d)))
		require.NoError(t, err)

		assert.Less(t, math.Abs(res.Value-1), 0.01, "d=%d", d)
		stderrs[d] = res.StdErr
	}
	assert.Less(t, stderrs[3], 1.5*stderrs[1])
	assert.Less(t, stderrs[6], 1.5*stderrs[1])
}

type countingRecorder struct {
	mu       sync.Mutex
	batches  int
	samples  int
	accepted int
}

func (c *countingRecorder) RecordBatch(_ time.Duration, samples, accepted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	c.samples += samples
	c.accepted += accepted
}

func TestEstimate_Recorder(t *testing.T) {
	rec := &countingRecorder{}
	reg := region.MustNew([]float64{-1, -1}, []float64{1, 1})

	res, err := Estimate(context.Background(), reg, integrand.Constant(1),
		WithPredicate(integrand.Ball([]float64{0, 0}, 1)),
		WithSamples(2000),
		WithBatches(6),
		WithSeed(6),
		WithRecorder(rec),
	)
	require.NoError(t, err)

	assert.Equal(t, 6, rec.batches)
	assert.Equal(t, 12000, rec.samples)
	assert.Equal(t, res.Accepted, rec.accepted)
}

func BenchmarkEstimatePi(b *testing.B) {
	reg := region.MustNew([]float64{-1, -1}, []float64{1, 1})
	disc := integrand.Ball([]float64{0, 0}, 1)
	for i := 0; i < b.N; i++ {
		_, _ = Estimate(context.Background(), reg, integrand.Constant(1),
			WithPredicate(disc), WithSamples(100000), WithBatches(8), WithSeed(uint64(i)))
	}
}
