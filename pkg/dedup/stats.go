package dedup

import (
	"sync"
	"time"
)

// Snapshot is a derived, read-only view of the accumulator counters.
// It is computed on demand and never stored as authoritative state.
type Snapshot struct {
	// TotalRequests is the number of Execute calls observed.
	TotalRequests int64 `json:"total_requests"`

	// DedupedRequests is the number of calls that attached to an
	// existing fresh entry instead of starting a new operation.
	DedupedRequests int64 `json:"deduped_requests"`

	// HitRate is DedupedRequests / TotalRequests, 0 when no requests.
	HitRate float64 `json:"hit_rate"`

	// StoreSize is the current number of cache entries.
	StoreSize int `json:"store_size"`

	// EstimatedBytes is a coarse memory estimate: a per-entry size
	// constant times the store size. It correlates monotonically with
	// store size; precision is not a goal.
	EstimatedBytes int64 `json:"estimated_bytes"`

	// AvgLatency is the running mean latency of completed operations.
	AvgLatency time.Duration `json:"avg_latency"`
}

// accumulator tracks request counters for the engine. All updates come
// from the engine's hot path, so it keeps its own small lock instead of
// sharing the store mutex.
type accumulator struct {
	mu           sync.Mutex
	requests     int64
	hits         int64
	latencySum   time.Duration
	latencyCount int64
}

func (a *accumulator) recordRequest() {
	a.mu.Lock()
	a.requests++
	a.mu.Unlock()
}

func (a *accumulator) recordHit() {
	a.mu.Lock()
	a.hits++
	a.mu.Unlock()
}

func (a *accumulator) recordLatency(d time.Duration) {
	a.mu.Lock()
	a.latencySum += d
	a.latencyCount++
	a.mu.Unlock()
}

// snapshot computes the derived view for the given store size and
// per-entry memory estimate constant.
func (a *accumulator) snapshot(storeSize int, entryBytes int64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TotalRequests:   a.requests,
		DedupedRequests: a.hits,
		StoreSize:       storeSize,
		EstimatedBytes:  int64(storeSize) * entryBytes,
	}
	if a.requests > 0 {
		snap.HitRate = float64(a.hits) / float64(a.requests)
	}
	if a.latencyCount > 0 {
		snap.AvgLatency = a.latencySum / time.Duration(a.latencyCount)
	}
	return snap
}
