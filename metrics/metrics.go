package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"
	"time"
)

// MetricsCollector tracks the performance of estimation runs
type MetricsCollector struct {
	mutex           sync.RWMutex
	startTime       time.Time       // time when collection started
	endTime         time.Time       // time when collection stopped
	totalBatches    int64           // batches completed
	totalSamples    int64           // points drawn
	acceptedSamples int64           // points the predicate accepted
	batchLatencies  []time.Duration // collected latencies per batch
	memoryUsage     []MemorySnapshot
	gcStats         []GCSnapshot
	numCPU          int
	maxGoroutines   int
	prom            *promInstruments // nil unless registered
}

// MemorySnapshot captures memory usage at a point in time
type MemorySnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	HeapAlloc    uint64    `json:"heap_alloc"`
	HeapSys      uint64    `json:"heap_sys"`
	HeapInuse    uint64    `json:"heap_inuse"`
	StackInuse   uint64    `json:"stack_inuse"`
	NumGoroutine int       `json:"num_goroutine"`
}

// GCSnapshot captures garbage collection statistics
type GCSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	NumGC        uint32    `json:"num_gc"`
	PauseTotalNs uint64    `json:"pause_total_ns"`
	LastPauseNs  uint64    `json:"last_pause_ns"`
}

// PerformanceMetrics contains all collected performance data
type PerformanceMetrics struct {
	Duration         time.Duration    `json:"duration"`
	TotalBatches     int64            `json:"total_batches"`
	TotalSamples     int64            `json:"total_samples"`
	AcceptedSamples  int64            `json:"accepted_samples"`
	SamplesPerSecond float64          `json:"samples_per_second"`
	BatchesPerSecond float64          `json:"batches_per_second"`
	AvgBatchLatency  time.Duration    `json:"avg_batch_latency"`
	P95BatchLatency  time.Duration    `json:"p95_batch_latency"`
	P99BatchLatency  time.Duration    `json:"p99_batch_latency"`
	PeakMemoryUsage  uint64           `json:"peak_memory_usage"`
	MaxGoroutines    int              `json:"max_goroutines"`
	NumCPU           int              `json:"num_cpu"`
	TotalGCPauses    uint64           `json:"total_gc_pauses"`
	MemorySnapshots  []MemorySnapshot `json:"memory_snapshots"`
	GCSnapshots      []GCSnapshot     `json:"gc_snapshots"`
	BatchLatencyHist []int64          `json:"batch_latency_histogram"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:      time.Now(),
		batchLatencies: make([]time.Duration, 0, 1024),
		memoryUsage:    make([]MemorySnapshot, 0, 256),
		gcStats:        make([]GCSnapshot, 0, 256),
		numCPU:         runtime.NumCPU(),
	}
}

// Start begins metrics collection
func (mc *MetricsCollector) Start() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.startTime = time.Now()
	mc.endTime = time.Time{}
}

// Stop ends metrics collection
func (mc *MetricsCollector) Stop() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.endTime = time.Now()
}

// RecordBatch records one finished batch. It satisfies estimator.Recorder.
func (mc *MetricsCollector) RecordBatch(latency time.Duration, samples, accepted int) {
	mc.mutex.Lock()
	mc.totalBatches++
	mc.totalSamples += int64(samples)
	mc.acceptedSamples += int64(accepted)
	mc.batchLatencies = append(mc.batchLatencies, latency)
	prom := mc.prom
	mc.mutex.Unlock()

	if prom != nil {
		prom.observe(latency, samples, accepted)
	}
}

// TakeSnapshot captures current runtime state
func (mc *MetricsCollector) TakeSnapshot() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	now := time.Now()
	numGoroutines := runtime.NumGoroutine()

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.memoryUsage = append(mc.memoryUsage, MemorySnapshot{
		Timestamp:    now,
		HeapAlloc:    memStats.HeapAlloc,
		HeapSys:      memStats.HeapSys,
		HeapInuse:    memStats.HeapInuse,
		StackInuse:   memStats.StackInuse,
		NumGoroutine: numGoroutines,
	})

	mc.gcStats = append(mc.gcStats, GCSnapshot{
		Timestamp:    now,
		NumGC:        memStats.NumGC,
		PauseTotalNs: memStats.PauseTotalNs,
		// PauseNs is a ring buffer indexed by NumGC
		LastPauseNs: memStats.PauseNs[(memStats.NumGC+255)%256],
	})

	if numGoroutines > mc.maxGoroutines {
		mc.maxGoroutines = numGoroutines
	}
}

// GetMetrics returns comprehensive performance metrics
func (mc *MetricsCollector) GetMetrics() PerformanceMetrics {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	duration := mc.endTime.Sub(mc.startTime)
	if mc.endTime.IsZero() || duration <= 0 {
		duration = time.Since(mc.startTime)
	}

	var avgLatency, p95Latency, p99Latency time.Duration
	if len(mc.batchLatencies) > 0 {
		var total time.Duration
		for _, lat := range mc.batchLatencies {
			total += lat
		}
		avgLatency = total / time.Duration(len(mc.batchLatencies))

		sorted := slices.Clone(mc.batchLatencies)
		slices.Sort(sorted)
		p95Latency = percentile(sorted, 0.95)
		p99Latency = percentile(sorted, 0.99)
	}

	var peakMemory uint64
	for _, snapshot := range mc.memoryUsage {
		if snapshot.HeapAlloc > peakMemory {
			peakMemory = snapshot.HeapAlloc
		}
	}

	var totalGCPauses uint64
	if n := len(mc.gcStats); n > 0 {
		totalGCPauses = mc.gcStats[n-1].PauseTotalNs - mc.gcStats[0].PauseTotalNs
	}

	seconds := duration.Seconds()
	return PerformanceMetrics{
		Duration:         duration,
		TotalBatches:     mc.totalBatches,
		TotalSamples:     mc.totalSamples,
		AcceptedSamples:  mc.acceptedSamples,
		SamplesPerSecond: float64(mc.totalSamples) / seconds,
		BatchesPerSecond: float64(mc.totalBatches) / seconds,
		AvgBatchLatency:  avgLatency,
		P95BatchLatency:  p95Latency,
		P99BatchLatency:  p99Latency,
		PeakMemoryUsage:  peakMemory,
		MaxGoroutines:    mc.maxGoroutines,
		NumCPU:           mc.numCPU,
		TotalGCPauses:    totalGCPauses,
		MemorySnapshots:  slices.Clone(mc.memoryUsage),
		GCSnapshots:      slices.Clone(mc.gcStats),
		BatchLatencyHist: latencyHistogram(mc.batchLatencies, 20),
	}
}

// percentile expects sorted input
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// latencyHistogram buckets latencies into equal-width bins up to the maximum
func latencyHistogram(latencies []time.Duration, bins int) []int64 {
	if len(latencies) == 0 {
		return []int64{}
	}
	buckets := make([]int64, bins)

	maxLatency := slices.Max(latencies)
	if maxLatency == 0 {
		buckets[0] = int64(len(latencies))
		return buckets
	}

	bucketSize := maxLatency / time.Duration(bins)
	if bucketSize == 0 {
		bucketSize = 1
	}
	for _, lat := range latencies {
		idx := int(lat / bucketSize)
		if idx >= bins {
			idx = bins - 1
		}
		buckets[idx]++
	}
	return buckets
}

// ExportToJSON exports metrics to JSON format
func (mc *MetricsCollector) ExportToJSON() ([]byte, error) {
	return json.MarshalIndent(mc.GetMetrics(), "", "  ")
}

// PrintSummary writes a summary of the metrics
func (mc *MetricsCollector) PrintSummary(w io.Writer) {
	m := mc.GetMetrics()

	fmt.Fprintln(w, "\n========== PERFORMANCE METRICS SUMMARY ==========")
	fmt.Fprintf(w, "Duration: %v\n", m.Duration)
	fmt.Fprintf(w, "Batches: %d\n", m.TotalBatches)
	fmt.Fprintf(w, "Samples: %d (accepted %d)\n", m.TotalSamples, m.AcceptedSamples)
	fmt.Fprintf(w, "Samples/Second: %.2f\n", m.SamplesPerSecond)
	fmt.Fprintf(w, "Average Batch Latency: %v\n", m.AvgBatchLatency)
	fmt.Fprintf(w, "P95 Batch Latency: %v\n", m.P95BatchLatency)
	fmt.Fprintf(w, "P99 Batch Latency: %v\n", m.P99BatchLatency)
	fmt.Fprintf(w, "Peak Memory Usage: %.2f MB\n", float64(m.PeakMemoryUsage)/1024/1024)
	fmt.Fprintf(w, "Max Goroutines: %d\n", m.MaxGoroutines)
	fmt.Fprintf(w, "Number of CPUs: %d\n", m.NumCPU)
	fmt.Fprintf(w, "Total GC Pauses: %.2f ms\n", float64(m.TotalGCPauses)/1e6)
	fmt.Fprintln(w, "=================================================")
}
