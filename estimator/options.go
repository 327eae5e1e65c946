package estimator

import (
	"log/slog"
	"runtime"
	"time"

	"mc-integrator/integrand"
)

// DefaultSamples is the per-batch sample count used when none is given.
const DefaultSamples = 100000

// Recorder receives per-batch measurements. metrics.Collector implements it.
type Recorder interface {
	RecordBatch(latency time.Duration, samples, accepted int)
}

type options struct {
	predicate integrand.Predicate
	samples   int
	batches   int
	seed      uint64
	seeded    bool
	workers   int
	logger    *slog.Logger
	recorder  Recorder
}

func defaultOptions() options {
	return options{
		samples: DefaultSamples,
		batches: 1,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
}

// Option configures a single Estimate call.
type Option func(*options)

// WithPredicate restricts sampling to the points p accepts.
func WithPredicate(p integrand.Predicate) Option {
	return func(o *options) { o.predicate = p }
}

// WithSamples sets the number of samples drawn per batch.
func WithSamples(n int) Option {
	return func(o *options) { o.samples = n }
}

// WithBatches sets the number of independent batches.
func WithBatches(k int) Option {
	return func(o *options) { o.batches = k }
}

// WithSeed makes the estimate exactly reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithWorkers bounds how many batches run at once. Values below 1 keep the default.
// The result does not depend on the worker count.
func WithWorkers(w int) Option {
	return func(o *options) {
		if w > 0 {
			o.workers = w
		}
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder reports batch measurements to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}
