package aio

import (
	"sync/atomic"
	"time"

	"github.com/sanerun/aio/internal/request"
)

// LatencyBuckets defines the completion-latency histogram buckets in
// nanoseconds, grounded on the teacher's logarithmic 1us-10s spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks per-request-type completion counts, byte totals, and
// blocking-poll behavior for one EventLoop.
type Metrics struct {
	RequestsCompleted [request.NumTypes]atomic.Uint64
	RequestErrors     [request.NumTypes]atomic.Uint64
	BytesRead         atomic.Uint64
	BytesWritten      atomic.Uint64

	BlockingPolls    atomic.Uint64 // times syncWithKernel blocked (ForcedForwardProgress)
	NoWaitPolls      atomic.Uint64 // times it returned immediately
	WakeUpsCoalesced atomic.Uint64 // WakeUp calls that found pending already set

	ActiveHandles atomic.Int64 // most recent numActiveHandles sample

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCompletion records one request's completion. bytes is 0 for
// request types with no byte payload (timers, wake-ups, work). Bytes
// of a failed completion are not counted.
func (m *Metrics) RecordCompletion(t request.Type, bytes uint64, latencyNs uint64, success bool) {
	if int(t) >= 0 && int(t) < len(m.RequestsCompleted) {
		m.RequestsCompleted[t].Add(1)
		if !success {
			m.RequestErrors[t].Add(1)
		}
	}
	if success {
		switch t {
		case request.TypeFileRead, request.TypeSocketReceive:
			m.BytesRead.Add(bytes)
		case request.TypeFileWrite, request.TypeSocketSend:
			m.BytesWritten.Add(bytes)
		}
	}
	m.recordLatency(latencyNs)
}

// RecordBlockingPoll records one syncWithKernel call.
func (m *Metrics) RecordBlockingPoll(waited bool) {
	if waited {
		m.BlockingPolls.Add(1)
	} else {
		m.NoWaitPolls.Add(1)
	}
}

// RecordWakeUpCoalesced records an external WakeUp call that found
// the wake-up request already pending.
func (m *Metrics) RecordWakeUpCoalesced() { m.WakeUpsCoalesced.Add(1) }

// RecordActiveHandles samples the loop's numActiveHandles counter.
func (m *Metrics) RecordActiveHandles(n int) { m.ActiveHandles.Store(int64(n)) }

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the loop as stopped.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time copy of Metrics, safe to retain
// or serialize after Snapshot returns.
type MetricsSnapshot struct {
	RequestsCompleted [request.NumTypes]uint64
	RequestErrors     [request.NumTypes]uint64
	BytesRead         uint64
	BytesWritten      uint64

	BlockingPolls    uint64
	NoWaitPolls      uint64
	WakeUpsCoalesced uint64
	ActiveHandles    int64

	AvgLatencyNs     uint64
	LatencyP50Ns     uint64
	LatencyP99Ns     uint64
	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs uint64
	TotalOps uint64
}

// Snapshot copies out the current counters and derives averages,
// percentiles, and uptime.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot
	for i := range m.RequestsCompleted {
		snap.RequestsCompleted[i] = m.RequestsCompleted[i].Load()
		snap.RequestErrors[i] = m.RequestErrors[i].Load()
		snap.TotalOps += snap.RequestsCompleted[i]
	}
	snap.BytesRead = m.BytesRead.Load()
	snap.BytesWritten = m.BytesWritten.Load()
	snap.BlockingPolls = m.BlockingPolls.Load()
	snap.NoWaitPolls = m.NoWaitPolls.Load()
	snap.WakeUpsCoalesced = m.WakeUpsCoalesced.Load()
	snap.ActiveHandles = m.ActiveHandles.Load()

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
		snap.LatencyP50Ns = m.calculatePercentile(opCount, 0.50)
		snap.LatencyP99Ns = m.calculatePercentile(opCount, 0.99)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}
	return snap
}

func (m *Metrics) calculatePercentile(totalOps uint64, percentile float64) uint64 {
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

// Observer is the pluggable hook EventLoop.SetListeners drives:
// beforeBlockingPoll/afterBlockingPoll in §4.3, generalized to also
// observe individual request completions.
type Observer interface {
	ObserveCompletion(t request.Type, bytes uint64, latencyNs uint64, success bool)
	ObserveBlockingPoll(waited bool, durationNs uint64)
	ObserveActiveHandles(n int)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(request.Type, uint64, uint64, bool) {}
func (NoOpObserver) ObserveBlockingPoll(bool, uint64)                    {}
func (NoOpObserver) ObserveActiveHandles(int)                            {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver builds an observer backed by m.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveCompletion(t request.Type, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordCompletion(t, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveBlockingPoll(waited bool, _ uint64) {
	o.metrics.RecordBlockingPoll(waited)
}

func (o *MetricsObserver) ObserveActiveHandles(n int) { o.metrics.RecordActiveHandles(n) }

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)
