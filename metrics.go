package identity

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID uint16

const (
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterConflict counts duplicate-email registrations.
	MetricRegisterConflict
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected credentials.
	MetricLoginFailure
	// MetricLoginLocked counts logins denied by an active lockout.
	MetricLoginLocked
	// MetricRefreshSuccess counts access tokens minted via refresh.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricLogout counts refresh-token revocations via logout.
	MetricLogout
	// MetricPasswordResetRequest counts reset-token issuances.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess counts completed password resets.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts rejected reset confirmations.
	MetricPasswordResetFailure
	// MetricPasswordChangeSuccess counts completed password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeFailure counts rejected password changes.
	MetricPasswordChangeFailure
	// MetricEmailVerifySuccess counts verified emails (including no-op
	// re-verifications).
	MetricEmailVerifySuccess
	// MetricEmailVerifyFailure counts rejected verification tokens.
	MetricEmailVerifyFailure
	// MetricSessionsRevoked counts refresh-set clears forced by a
	// password reset or change.
	MetricSessionsRevoked
	// MetricLoginLatency is the login-duration histogram.
	MetricLoginLatency

	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so concurrent
// increments of different metrics do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional latency histogram. All
// operations are lock-free; when disabled every method is a no-op.
type Metrics struct {
	enabled        bool
	latencyEnabled bool
	counters       [metricIDCount]paddedCounter
	histograms     [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all non-zero metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:        cfg.Enabled,
		latencyEnabled: cfg.Enabled && cfg.EnableLatencyHistogram,
	}
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// LatencyEnabled reports whether Observe records anything.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latencyEnabled
}

// Observe records a duration into the histogram for id.
// Buckets: ≤5ms, ≤10ms, ≤25ms, ≤50ms, ≤100ms, ≤250ms, ≤500ms, +Inf.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latencyEnabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketFor(d)], 1)
}

func bucketFor(d time.Duration) int {
	bounds := [histBucketCount - 1]time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
	}
	for i, bound := range bounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}

// Snapshot deep-copies all non-zero counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if v := atomic.LoadUint64(&m.counters[id].value); v > 0 {
			snap.Counters[id] = v
		}
		var buckets []uint64
		for b := 0; b < histBucketCount; b++ {
			if v := atomic.LoadUint64(&m.histograms[id].buckets[b]); v > 0 {
				if buckets == nil {
					buckets = make([]uint64, histBucketCount)
				}
				buckets[b] = v
			}
		}
		if buckets != nil {
			snap.Histograms[id] = buckets
		}
	}

	return snap
}
