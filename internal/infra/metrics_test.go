package infra

import (
	"sync"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := &Metrics{}

	m.RecordEnquiryCreated()
	m.RecordEnquiryCreated()
	m.RecordInstantTrade(5, 1000)
	m.RecordInstantTrade(3, 3000)
	m.RecordCollect()
	m.RecordFlushError()

	snap := m.Snapshot()
	if snap.EnquiriesCreated != 2 {
		t.Errorf("enquiries: got %d, want 2", snap.EnquiriesCreated)
	}
	if snap.InstantTrades != 2 {
		t.Errorf("trades: got %d, want 2", snap.InstantTrades)
	}
	if snap.ItemsTraded != 8 {
		t.Errorf("items: got %d, want 8", snap.ItemsTraded)
	}
	if snap.Collects != 1 {
		t.Errorf("collects: got %d, want 1", snap.Collects)
	}
	if snap.FlushErrors != 1 {
		t.Errorf("flush errors: got %d, want 1", snap.FlushErrors)
	}
	if snap.AvgMatchLatencyNs != 2000 {
		t.Errorf("avg latency: got %d, want 2000", snap.AvgMatchLatencyNs)
	}

	m.Reset()
	snap = m.Snapshot()
	if snap.EnquiriesCreated != 0 || snap.ItemsTraded != 0 || snap.AvgMatchLatencyNs != 0 {
		t.Errorf("reset left counters: %+v", snap)
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := &Metrics{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordEnquiryCreated()
				m.RecordInstantTrade(1, 10)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.EnquiriesCreated != 1000 {
		t.Errorf("enquiries: got %d, want 1000", snap.EnquiriesCreated)
	}
	if snap.ItemsTraded != 1000 {
		t.Errorf("items: got %d, want 1000", snap.ItemsTraded)
	}
}
