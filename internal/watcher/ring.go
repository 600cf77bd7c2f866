package watcher

import (
	"sync"

	"gold-rate-alerts/internal/fetcher"
)

// SnapshotRing keeps a bounded history of recent snapshots for the chart
// and stats endpoints. In-memory only.
type SnapshotRing struct {
	mu       sync.Mutex
	buf      []fetcher.PriceSnapshot
	next     int
	filled   bool
	capacity int
}

// NewSnapshotRing constructs a ring with the given capacity.
func NewSnapshotRing(capacity int) *SnapshotRing {
	if capacity <= 0 {
		capacity = 500
	}
	return &SnapshotRing{buf: make([]fetcher.PriceSnapshot, capacity), capacity: capacity}
}

// Append records a snapshot, overwriting the oldest when full.
func (r *SnapshotRing) Append(s fetcher.PriceSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = s
	r.next++
	if r.next == r.capacity {
		r.next = 0
		r.filled = true
	}
}

// Points returns the retained snapshots oldest-first.
func (r *SnapshotRing) Points() []fetcher.PriceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]fetcher.PriceSnapshot, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]fetcher.PriceSnapshot, 0, r.capacity)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
