package bcache

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the per-device latency histogram buckets in
// nanoseconds. Formatting is dominated by fsync and, on busy devices, by
// the release wait, so buckets run from 100us to 30s.
var LatencyBuckets = []uint64{
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
	30_000_000_000, // 30s
}

const numLatencyBuckets = 7

// Metrics tracks what a run of Format did
type Metrics struct {
	// Device counters
	CacheFormats   atomic.Uint64 // Cache devices written directly
	BackingFormats atomic.Uint64 // Backing devices written directly
	Registrations  atomic.Uint64 // Backing devices registered over the control channel

	// Byte counters
	BytesWritten   atomic.Uint64 // Head zeroing plus superblock records
	DiscardedBytes atomic.Uint64 // Bytes successfully discarded

	// Error counters
	FormatErrors   atomic.Uint64 // Direct writes that failed
	RegisterErrors atomic.Uint64 // Control channel registrations that failed
	DiscardErrors  atomic.Uint64 // Best-effort discards that failed

	// Release protocol
	QuiesceRuns     atomic.Uint64 // Busy devices the release protocol ran for
	QuiesceAttempts atomic.Uint64 // Reopen attempts that found the device still busy
	QuiesceFailures atomic.Uint64 // Runs that ended Aborted

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative per-device latency
	OpCount        atomic.Uint64 // Devices handled (for average latency calculation)

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of devices handled in <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordFormat records a direct superblock write
func (m *Metrics) RecordFormat(backing bool, bytes uint64, latencyNs uint64, success bool) {
	if success {
		if backing {
			m.BackingFormats.Add(1)
		} else {
			m.CacheFormats.Add(1)
		}
	} else {
		m.FormatErrors.Add(1)
	}
	m.BytesWritten.Add(bytes)
	m.recordLatency(latencyNs)
}

// RecordRegister records a control channel registration
func (m *Metrics) RecordRegister(latencyNs uint64, success bool) {
	if success {
		m.Registrations.Add(1)
	} else {
		m.RegisterErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDiscard records a best-effort discard
func (m *Metrics) RecordDiscard(bytes uint64, success bool) {
	if success {
		m.DiscardedBytes.Add(bytes)
	} else {
		m.DiscardErrors.Add(1)
	}
}

// RecordQuiesce records one run of the release protocol
func (m *Metrics) RecordQuiesce(failedAttempts int, success bool) {
	m.QuiesceRuns.Add(1)
	m.QuiesceAttempts.Add(uint64(failedAttempts))
	if !success {
		m.QuiesceFailures.Add(1)
	}
}

// recordLatency records per-device latency and updates the histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the run as finished
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	CacheFormats   uint64
	BackingFormats uint64
	Registrations  uint64

	BytesWritten   uint64
	DiscardedBytes uint64

	FormatErrors   uint64
	RegisterErrors uint64
	DiscardErrors  uint64

	QuiesceRuns     uint64
	QuiesceAttempts uint64
	QuiesceFailures uint64

	AvgLatencyNs uint64
	LatencyP50Ns uint64
	LatencyP99Ns uint64
	DurationNs   uint64

	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	Devices   uint64  // Devices successfully formatted or registered
	Errors    uint64  // Fatal device failures
	ErrorRate float64 // Percentage of devices that failed
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		CacheFormats:    m.CacheFormats.Load(),
		BackingFormats:  m.BackingFormats.Load(),
		Registrations:   m.Registrations.Load(),
		BytesWritten:    m.BytesWritten.Load(),
		DiscardedBytes:  m.DiscardedBytes.Load(),
		FormatErrors:    m.FormatErrors.Load(),
		RegisterErrors:  m.RegisterErrors.Load(),
		DiscardErrors:   m.DiscardErrors.Load(),
		QuiesceRuns:     m.QuiesceRuns.Load(),
		QuiesceAttempts: m.QuiesceAttempts.Load(),
		QuiesceFailures: m.QuiesceFailures.Load(),
	}

	snap.Devices = snap.CacheFormats + snap.BackingFormats + snap.Registrations
	snap.Errors = snap.FormatErrors + snap.RegisterErrors
	if total := snap.Devices + snap.Errors; total > 0 {
		snap.ErrorRate = float64(snap.Errors) / float64(total) * 100.0
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.DurationNs = uint64(stopTime - startTime)
	} else {
		snap.DurationNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable metrics collection
type Observer interface {
	// ObserveFormat is called once per directly written device
	ObserveFormat(backing bool, bytes uint64, latencyNs uint64, success bool)

	// ObserveRegister is called once per control channel registration
	ObserveRegister(latencyNs uint64, success bool)

	// ObserveDiscard is called when a cache device discard was attempted
	ObserveDiscard(bytes uint64, success bool)

	// ObserveQuiesce is called after the release protocol ran for a busy device
	ObserveQuiesce(failedAttempts int, success bool)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveFormat(bool, uint64, uint64, bool) {}
func (NoOpObserver) ObserveRegister(uint64, bool)             {}
func (NoOpObserver) ObserveDiscard(uint64, bool)              {}
func (NoOpObserver) ObserveQuiesce(int, bool)                 {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveFormat(backing bool, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordFormat(backing, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRegister(latencyNs uint64, success bool) {
	o.metrics.RecordRegister(latencyNs, success)
}

func (o *MetricsObserver) ObserveDiscard(bytes uint64, success bool) {
	o.metrics.RecordDiscard(bytes, success)
}

func (o *MetricsObserver) ObserveQuiesce(failedAttempts int, success bool) {
	o.metrics.RecordQuiesce(failedAttempts, success)
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
