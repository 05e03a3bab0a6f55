package infra

import (
	"sync"

	"github.com/google/uuid"
)

// Quota caps the number of concurrently live enquiries per player.
// Thread-safe; a limit <= 0 disables the cap.
type Quota struct {
	mu    sync.Mutex
	limit int
	open  map[uuid.UUID]int
}

// NewQuota creates a quota tracker with the given per-player limit.
func NewQuota(limit int) *Quota {
	return &Quota{
		limit: limit,
		open:  make(map[uuid.UUID]int),
	}
}

// CanAcquire reports whether the player has headroom for one more
// enquiry, without taking a slot.
func (q *Quota) CanAcquire(player uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit <= 0 || q.open[player] < q.limit
}

// TryAcquire takes a slot for the player. Returns false when the player
// is at the limit.
func (q *Quota) TryAcquire(player uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && q.open[player] >= q.limit {
		return false
	}
	q.open[player]++
	return true
}

// Acquire takes a slot unconditionally. Used when rebuilding state from
// a snapshot, where the enquiries already exist and must be counted even
// if the configured limit has since been lowered.
func (q *Quota) Acquire(player uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.open[player]++
}

// Release frees a slot previously taken with TryAcquire.
func (q *Quota) Release(player uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.open[player]
	switch {
	case n <= 1:
		delete(q.open, player)
	default:
		q.open[player] = n - 1
	}
}

// Count returns the number of slots the player currently holds.
func (q *Quota) Count(player uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open[player]
}
