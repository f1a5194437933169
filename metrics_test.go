package identity

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("login success = %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure = %d", snap.Counters[MetricLoginFailure])
	}
	if _, ok := snap.Counters[MetricLogout]; ok {
		t.Fatal("zero counter included in snapshot")
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled metrics recorded data: %+v", snap)
	}
}

func TestMetricsOutOfRangeID(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true, EnableLatencyHistogram: true})

	m.Inc(MetricID(10_000))
	m.Observe(MetricID(10_000), time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("out-of-range ID recorded: %+v", snap)
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true, EnableLatencyHistogram: true})

	if !m.LatencyEnabled() {
		t.Fatal("LatencyEnabled = false")
	}

	m.Observe(MetricLoginLatency, 2*time.Millisecond)    // bucket 0
	m.Observe(MetricLoginLatency, 30*time.Millisecond)   // bucket 3
	m.Observe(MetricLoginLatency, 900*time.Millisecond)  // +Inf bucket
	m.Observe(MetricLoginLatency, 5*time.Millisecond)    // bucket 0 boundary
	m.Observe(MetricLoginLatency, 51*time.Millisecond)   // bucket 4

	buckets := m.Snapshot().Histograms[MetricLoginLatency]
	if buckets == nil {
		t.Fatal("no histogram recorded")
	}
	if buckets[0] != 2 {
		t.Fatalf("bucket[0] = %d, want 2", buckets[0])
	}
	if buckets[3] != 1 {
		t.Fatalf("bucket[3] = %d, want 1", buckets[3])
	}
	if buckets[4] != 1 {
		t.Fatalf("bucket[4] = %d, want 1", buckets[4])
	}
	if buckets[histBucketCount-1] != 1 {
		t.Fatalf("+Inf bucket = %d, want 1", buckets[histBucketCount-1])
	}
}

func TestMetricsLatencyOffByDefault(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	if m.LatencyEnabled() {
		t.Fatal("latency histogram enabled without opt-in")
	}
	m.Observe(MetricLoginLatency, time.Millisecond)
	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("histogram recorded while disabled")
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricRefreshSuccess]; got != workers*perWorker {
		t.Fatalf("counter = %d, want %d", got, workers*perWorker)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)
	if m.LatencyEnabled() {
		t.Fatal("nil metrics report latency enabled")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatal("nil metrics returned counters")
	}
}
