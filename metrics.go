package goRotate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricIssueSuccess counts pairs minted by Issue.
	MetricIssueSuccess MetricID = iota
	// MetricIssueFailure counts Issue calls that failed.
	MetricIssueFailure
	// MetricRefreshSuccess counts rotations that produced a new pair,
	// excluding idempotent replays.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected or failed refresh calls.
	MetricRefreshFailure
	// MetricRefreshFastPath counts rotations validated from the active cache.
	MetricRefreshFastPath
	// MetricRefreshIdempotentHit counts refresh calls answered from the
	// idempotency cache.
	MetricRefreshIdempotentHit
	// MetricRefreshCoalesced counts refresh calls that shared an in-process
	// rotation with an identical concurrent call.
	MetricRefreshCoalesced
	// MetricRefreshConflict counts rotations that lost the store swap.
	MetricRefreshConflict
	// MetricRefreshRateLimited counts throttled refresh calls.
	MetricRefreshRateLimited
	// MetricLockContention counts refresh calls that gave up waiting for the
	// rotation lock.
	MetricLockContention
	// MetricLockWait counts refresh calls that found the lock held and waited.
	MetricLockWait
	// MetricCacheError counts cache backend failures. Caches degrade to a miss.
	MetricCacheError
	// MetricLogout counts single-record revocations.
	MetricLogout
	// MetricLogoutAll counts RevokeAll calls.
	MetricLogoutAll
	// MetricValidateSuccess counts access tokens accepted by ValidateAccess.
	MetricValidateSuccess
	// MetricValidateFailure counts access tokens rejected by ValidateAccess.
	MetricValidateFailure
	// MetricSweepDeleted counts records removed by SweepExpired.
	MetricSweepDeleted
	// MetricAuditDelivered counts audit events the sink accepted. It is read
	// from the dispatcher at snapshot time.
	MetricAuditDelivered
	// MetricAuditFailed counts audit events that made the sink panic.
	MetricAuditFailed
	// MetricRefreshLatency is a histogram of end-to-end Refresh latency.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A disabled Metrics records
// nothing and snapshots empty.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only histogram IDs accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRefreshLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
