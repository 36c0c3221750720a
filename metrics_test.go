package aio

import (
	"testing"
	"time"

	"github.com/sanerun/aio/internal/request"
)

func TestMetricsRecordsCompletions(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.RecordCompletion(request.TypeFileRead, 1024, 1_000_000, true)
	m.RecordCompletion(request.TypeFileWrite, 2048, 2_000_000, true)
	m.RecordCompletion(request.TypeFileRead, 512, 500_000, false)

	snap = m.Snapshot()
	if snap.RequestsCompleted[request.TypeFileRead] != 2 {
		t.Errorf("Expected 2 FileRead completions, got %d", snap.RequestsCompleted[request.TypeFileRead])
	}
	if snap.RequestsCompleted[request.TypeFileWrite] != 1 {
		t.Errorf("Expected 1 FileWrite completion, got %d", snap.RequestsCompleted[request.TypeFileWrite])
	}
	if snap.BytesRead != 1024 {
		t.Errorf("Expected 1024 bytes read (errored op doesn't count), got %d", snap.BytesRead)
	}
	if snap.BytesWritten != 2048 {
		t.Errorf("Expected 2048 bytes written, got %d", snap.BytesWritten)
	}
	if snap.RequestErrors[request.TypeFileRead] != 1 {
		t.Errorf("Expected 1 FileRead error, got %d", snap.RequestErrors[request.TypeFileRead])
	}
}

func TestMetricsBlockingPolls(t *testing.T) {
	m := NewMetrics()
	m.RecordBlockingPoll(true)
	m.RecordBlockingPoll(true)
	m.RecordBlockingPoll(false)

	snap := m.Snapshot()
	if snap.BlockingPolls != 2 {
		t.Errorf("Expected 2 blocking polls, got %d", snap.BlockingPolls)
	}
	if snap.NoWaitPolls != 1 {
		t.Errorf("Expected 1 no-wait poll, got %d", snap.NoWaitPolls)
	}
}

func TestMetricsLatencyAverage(t *testing.T) {
	m := NewMetrics()
	m.RecordCompletion(request.TypeFileRead, 1024, 1_000_000, true)
	m.RecordCompletion(request.TypeFileWrite, 1024, 2_000_000, true)

	snap := m.Snapshot()
	expectedAvgNs := uint64(1_500_000)
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestObserverForwardsToMetrics(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveCompletion(request.TypeFileRead, 1024, 1_000_000, true)
	observer.ObserveBlockingPoll(true, 1_000_000)
	observer.ObserveActiveHandles(3)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveCompletion(request.TypeFileRead, 1024, 1_000_000, true)
	metricsObserver.ObserveCompletion(request.TypeFileWrite, 2048, 2_000_000, true)
	metricsObserver.ObserveActiveHandles(5)

	snap := m.Snapshot()
	if snap.RequestsCompleted[request.TypeFileRead] != 1 {
		t.Errorf("Expected 1 FileRead completion from observer, got %d", snap.RequestsCompleted[request.TypeFileRead])
	}
	if snap.BytesWritten != 2048 {
		t.Errorf("Expected 2048 bytes written from observer, got %d", snap.BytesWritten)
	}
	if snap.ActiveHandles != 5 {
		t.Errorf("Expected ActiveHandles 5, got %d", snap.ActiveHandles)
	}
}

func TestMetricsHistogramPercentiles(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 50; i++ {
		m.RecordCompletion(request.TypeFileRead, 1024, 500_000, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordCompletion(request.TypeFileWrite, 1024, 5_000_000, true) // 5ms
	}
	m.RecordCompletion(request.TypeFileWrite, 1024, 50_000_000, true) // 50ms

	snap := m.Snapshot()
	if snap.TotalOps != 100 {
		t.Errorf("Expected 100 total ops, got %d", snap.TotalOps)
	}
	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}
}
