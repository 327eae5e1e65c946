package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type promInstruments struct {
	samples       prometheus.Counter
	accepted      prometheus.Counter
	batches       prometheus.Counter
	batchDuration prometheus.Histogram
}

func (p *promInstruments) observe(latency time.Duration, samples, accepted int) {
	p.samples.Add(float64(samples))
	p.accepted.Add(float64(accepted))
	p.batches.Inc()
	p.batchDuration.Observe(latency.Seconds())
}

// Register exposes the collector's counters as Prometheus instruments on reg.
// Batches recorded before Register are not replayed.
func (mc *MetricsCollector) Register(reg prometheus.Registerer) error {
	p := &promInstruments{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcint_samples_total",
			Help: "Sample points drawn across all batches.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcint_samples_accepted_total",
			Help: "Sample points accepted by the region predicate.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcint_batches_total",
			Help: "Completed estimation batches.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcint_batch_duration_seconds",
			Help:    "Wall time of a single estimation batch.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{p.samples, p.accepted, p.batches, p.batchDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	mc.mutex.Lock()
	mc.prom = p
	mc.mutex.Unlock()
	return nil
}
