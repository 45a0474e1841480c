package dedup

import (
	"context"
	"time"
)

// flight is the shared handle for one execution of an underlying
// operation. All callers attached to the same flight observe the
// identical outcome: one settlement is fanned out to every waiter.
type flight struct {
	done  chan struct{}
	value any
	err   error
}

func newFlight() *flight {
	return &flight{done: make(chan struct{})}
}

// settle publishes the outcome and wakes all waiters. Must be called
// exactly once.
func (f *flight) settle(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// wait blocks until the flight settles or the caller's context is done.
// A context cancellation detaches only this caller; the shared
// operation keeps running for the other waiters.
func (f *flight) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settled reports whether the underlying operation has completed.
func (f *flight) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// entry is a stored cache record for one fingerprint. The flight is
// fixed at creation: an entry refers to exactly one execution for its
// whole lifetime.
type entry struct {
	flight *flight

	// Original descriptor metadata, retained so pattern invalidation
	// can match against the literal target even though the fingerprint
	// is opaque.
	target   string
	verb     Verb
	priority Priority
	tag      string

	ttl          time.Duration
	createdAt    time.Time
	lastAccessed time.Time
	requestCount int64

	// cleanup is the self-removal timer armed when the flight settles.
	cleanup *time.Timer
}

// fresh reports whether the entry is still within its TTL.
func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.createdAt) < e.ttl
}

// age returns the time since creation.
func (e *entry) age(now time.Time) time.Duration {
	return now.Sub(e.createdAt)
}

// stopCleanup cancels the pending self-removal timer, if armed.
func (e *entry) stopCleanup() {
	if e.cleanup != nil {
		e.cleanup.Stop()
	}
}

// info returns the exported view used by invalidation predicates.
func (e *entry) info(fp Fingerprint) EntryInfo {
	return EntryInfo{
		Fingerprint:  fp,
		Target:       e.target,
		Verb:         e.verb,
		Priority:     e.priority,
		Tag:          e.tag,
		TTL:          e.ttl,
		CreatedAt:    e.createdAt,
		LastAccessed: e.lastAccessed,
		RequestCount: e.requestCount,
	}
}

// EntryInfo is a read-only snapshot of a cache entry's metadata,
// passed to InvalidateByPattern predicates.
type EntryInfo struct {
	Fingerprint  Fingerprint
	Target       string
	Verb         Verb
	Priority     Priority
	Tag          string
	TTL          time.Duration
	CreatedAt    time.Time
	LastAccessed time.Time
	RequestCount int64
}
