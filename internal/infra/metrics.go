package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	enquiriesCreated atomic.Uint64
	instantTrades    atomic.Uint64
	itemsTraded      atomic.Uint64
	collects         atomic.Uint64
	flushErrors      atomic.Uint64

	// Match loop latency tracking
	matchLatencySumNs atomic.Int64
	matchLatencyCount atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEnquiryCreated counts a successfully created enquiry.
func (m *Metrics) RecordEnquiryCreated() {
	m.enquiriesCreated.Add(1)
}

// RecordInstantTrade counts one instant transaction together with the
// units it moved and the time the match loop took.
func (m *Metrics) RecordInstantTrade(items int, latencyNs int64) {
	m.instantTrades.Add(1)
	m.itemsTraded.Add(uint64(items))
	m.matchLatencySumNs.Add(latencyNs)
	m.matchLatencyCount.Add(1)
}

// RecordCollect counts a collect or remnant withdrawal.
func (m *Metrics) RecordCollect() {
	m.collects.Add(1)
}

// RecordFlushError counts a failed ledger or snapshot write.
func (m *Metrics) RecordFlushError() {
	m.flushErrors.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EnquiriesCreated  uint64
	InstantTrades     uint64
	ItemsTraded       uint64
	Collects          uint64
	FlushErrors       uint64
	AvgMatchLatencyNs int64
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.matchLatencyCount.Load()
	if count > 0 {
		avgLatency = m.matchLatencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EnquiriesCreated:  m.enquiriesCreated.Load(),
		InstantTrades:     m.instantTrades.Load(),
		ItemsTraded:       m.itemsTraded.Load(),
		Collects:          m.collects.Load(),
		FlushErrors:       m.flushErrors.Load(),
		AvgMatchLatencyNs: avgLatency,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.enquiriesCreated.Store(0)
	m.instantTrades.Store(0)
	m.itemsTraded.Store(0)
	m.collects.Store(0)
	m.flushErrors.Store(0)
	m.matchLatencySumNs.Store(0)
	m.matchLatencyCount.Store(0)
}
