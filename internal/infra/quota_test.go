package infra

import (
	"testing"

	"github.com/google/uuid"
)

func TestQuotaLimit(t *testing.T) {
	q := NewQuota(2)
	p := uuid.New()

	for i := 0; i < 2; i++ {
		if !q.CanAcquire(p) {
			t.Fatalf("slot %d: CanAcquire false below limit", i)
		}
		if !q.TryAcquire(p) {
			t.Fatalf("slot %d: TryAcquire false below limit", i)
		}
	}
	if q.CanAcquire(p) {
		t.Error("CanAcquire true at limit")
	}
	if q.TryAcquire(p) {
		t.Error("TryAcquire true at limit")
	}
	if got := q.Count(p); got != 2 {
		t.Errorf("count: got %d, want 2", got)
	}

	// slots are per player
	if !q.TryAcquire(uuid.New()) {
		t.Error("other player blocked")
	}

	q.Release(p)
	if !q.TryAcquire(p) {
		t.Error("TryAcquire false after release")
	}
}

func TestQuotaDisabled(t *testing.T) {
	q := NewQuota(0)
	p := uuid.New()
	for i := 0; i < 100; i++ {
		if !q.TryAcquire(p) {
			t.Fatalf("acquire %d failed with disabled limit", i)
		}
	}
	if !q.CanAcquire(p) {
		t.Error("CanAcquire false with disabled limit")
	}
}

func TestQuotaReleaseBelowZero(t *testing.T) {
	q := NewQuota(3)
	p := uuid.New()
	q.Release(p) // no slot held; must not underflow
	if got := q.Count(p); got != 0 {
		t.Errorf("count after stray release: got %d, want 0", got)
	}
	if !q.TryAcquire(p) {
		t.Error("acquire failed after stray release")
	}
	if got := q.Count(p); got != 1 {
		t.Errorf("count: got %d, want 1", got)
	}
}

func TestQuotaAcquireBypassesLimit(t *testing.T) {
	q := NewQuota(1)
	p := uuid.New()
	// snapshot restore counts existing enquiries even past the limit
	q.Acquire(p)
	q.Acquire(p)
	if got := q.Count(p); got != 2 {
		t.Errorf("count: got %d, want 2", got)
	}
	if q.TryAcquire(p) {
		t.Error("TryAcquire true above limit")
	}
	q.Release(p)
	q.Release(p)
	if !q.TryAcquire(p) {
		t.Error("TryAcquire false after draining")
	}
}
