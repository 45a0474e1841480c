package dedup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Operation starts the underlying unit of work (typically a network
// call) and returns its result or failure. The engine invokes it at
// most once per fresh fingerprint.
type Operation func(ctx context.Context) (any, error)

// Config holds the engine configuration.
type Config struct {
	// Policy is the eligibility and TTL configuration.
	Policy PolicyConfig

	// MaxEntries bounds the store size. Exceeding it triggers an
	// immediate synchronous eviction pass.
	MaxEntries int

	// EntryOverheadBytes is the per-entry constant used for the memory
	// footprint estimate in snapshots.
	EntryOverheadBytes int64

	// SweepInterval is the period of the background eviction sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Policy:             DefaultPolicyConfig(),
		MaxEntries:         100,
		EntryOverheadBytes: 2048,
		SweepInterval:      30 * time.Second,
	}
}

// Cache is the request deduplication and caching engine. It coalesces
// concurrent and recently-repeated requests with equal fingerprints
// onto a single execution of the underlying operation.
//
// A Cache owns one background sweep goroutine; call Close for clean
// teardown. Multiple independent instances may coexist (e.g. in tests).
type Cache struct {
	mu      sync.Mutex
	entries map[Fingerprint]*entry
	closed  bool

	policy  *Policy
	cfg     Config
	stats   accumulator
	sweeper *sweeper
	logger  zerolog.Logger
}

// NewCache creates an engine and starts its eviction sweep.
func NewCache(cfg Config) *Cache {
	defaults := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaults.MaxEntries
	}
	if cfg.EntryOverheadBytes <= 0 {
		cfg.EntryOverheadBytes = defaults.EntryOverheadBytes
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}

	c := &Cache{
		entries: make(map[Fingerprint]*entry),
		policy:  NewPolicy(cfg.Policy),
		cfg:     cfg,
		logger:  log.With().Str("component", "dedup-cache").Logger(),
	}
	c.sweeper = newSweeper(c, cfg.SweepInterval)
	c.sweeper.start()
	return c
}

// Execute runs the operation through the deduplication engine.
//
// Ineligible requests bypass caching and invoke op directly. Eligible
// requests either attach to an existing fresh entry (op is not invoked)
// or create a new entry wrapping a single shared execution. All callers
// attached to one entry receive the identical outcome, success or
// failure; failures are propagated verbatim and never retried here.
//
// Cancelling ctx detaches only this caller. The shared operation keeps
// running for other attached callers.
func (c *Cache) Execute(ctx context.Context, desc RequestDescriptor, op Operation) (any, error) {
	if op == nil {
		panic("dedup: operation cannot be nil")
	}
	c.stats.recordRequest()

	if !c.policy.IsEligible(desc) {
		return c.runDirect(ctx, desc, op)
	}

	fp, err := ComputeFingerprint(desc)
	if err != nil {
		// Fail open: an unfingerprintable request bypasses caching
		// instead of surfacing a caching-layer error to the caller.
		c.logger.Debug().
			Err(err).
			Str("target", desc.Target).
			Msg("Fingerprinting failed, bypassing cache")
		return c.runDirect(ctx, desc, op)
	}

	now := time.Now()
	c.mu.Lock()
	if e, ok := c.entries[fp]; ok && e.fresh(now) {
		e.requestCount++
		e.lastAccessed = now
		fl := e.flight
		c.mu.Unlock()

		c.stats.recordHit()
		requestsTotal.WithLabelValues("hit").Inc()
		c.logger.Debug().
			Str("target", desc.Target).
			Str("verb", string(desc.verb())).
			Msg("Dedup hit, attaching to shared operation")
		return fl.wait(ctx)
	}

	e := &entry{
		flight:       newFlight(),
		target:       desc.Target,
		verb:         desc.verb(),
		priority:     desc.priority(),
		tag:          desc.Tag,
		ttl:          c.policy.TTLFor(desc),
		createdAt:    now,
		lastAccessed: now,
		requestCount: 1,
	}
	c.entries[fp] = e
	if len(c.entries) > c.cfg.MaxEntries {
		// Self-bounding even if the periodic sweep is delayed.
		c.sweepLocked(now, "overflow")
	}
	cacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	requestsTotal.WithLabelValues("miss").Inc()
	c.logger.Debug().
		Str("target", desc.Target).
		Str("verb", string(desc.verb())).
		Dur("ttl", e.ttl).
		Msg("Dedup miss, starting operation")

	go c.run(context.WithoutCancel(ctx), fp, e, op)
	return e.flight.wait(ctx)
}

// runDirect invokes the operation without any cache bookkeeping.
func (c *Cache) runDirect(ctx context.Context, desc RequestDescriptor, op Operation) (any, error) {
	requestsTotal.WithLabelValues("bypass").Inc()
	c.logger.Debug().
		Str("target", desc.Target).
		Str("verb", string(desc.verb())).
		Msg("Request not eligible for deduplication")

	start := time.Now()
	value, err := op(ctx)
	elapsed := time.Since(start)
	c.stats.recordLatency(elapsed)
	requestDuration.Observe(elapsed.Seconds())
	return value, err
}

// run executes the single shared operation for an entry, settles its
// flight, and arms the delayed self-cleanup: one TTL after settlement
// the entry removes itself, but only if it is still the same instance.
func (c *Cache) run(ctx context.Context, fp Fingerprint, e *entry, op Operation) {
	start := time.Now()
	value, err := op(ctx)
	elapsed := time.Since(start)

	c.stats.recordLatency(elapsed)
	requestDuration.Observe(elapsed.Seconds())
	e.flight.settle(value, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if cur, ok := c.entries[fp]; ok && cur == e {
		e.cleanup = time.AfterFunc(e.ttl, func() {
			c.removeIf(fp, e, "settled")
		})
	}
}

// removeIf deletes the entry for fp only if it is still the given
// instance. Removing an already-absent or replaced entry is a no-op.
func (c *Cache) removeIf(fp Fingerprint, e *entry, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(fp, e, reason)
}

func (c *Cache) removeLocked(fp Fingerprint, e *entry, reason string) {
	if cur, ok := c.entries[fp]; !ok || cur != e {
		return
	}
	e.stopCleanup()
	delete(c.entries, fp)
	evictionsTotal.WithLabelValues(reason).Inc()
	cacheEntries.Set(float64(len(c.entries)))
}

// Forget drops the entry for the descriptor's fingerprint, if present.
// The next identical request will start a fresh operation. Callers
// already attached to the dropped entry keep their shared outcome.
func (c *Cache) Forget(desc RequestDescriptor) {
	fp, err := ComputeFingerprint(desc)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fp]; ok {
		c.removeLocked(fp, e, "invalidated")
	}
}

// InvalidateByPattern removes all entries whose metadata matches the
// predicate and returns the number removed.
func (c *Cache) InvalidateByPattern(match func(EntryInfo) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, e := range c.entries {
		if match(e.info(fp)) {
			c.removeLocked(fp, e, "invalidated")
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("Invalidated entries by pattern")
	}
	return removed
}

// InvalidateByTarget removes all entries whose original target contains
// the given substring (case-insensitive) and returns the number removed.
func (c *Cache) InvalidateByTarget(substring string) int {
	needle := strings.ToLower(substring)
	return c.InvalidateByPattern(func(info EntryInfo) bool {
		return strings.Contains(strings.ToLower(info.Target), needle)
	})
}

// InvalidateByTag removes all entries recorded with the given tag and
// returns the number removed.
func (c *Cache) InvalidateByTag(tag string) int {
	return c.InvalidateByPattern(func(info EntryInfo) bool {
		return info.Tag == tag
	})
}

// ClearAll removes every entry from the store.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.stopCleanup()
	}
	evictionsTotal.WithLabelValues("cleared").Add(float64(len(c.entries)))
	c.entries = make(map[Fingerprint]*entry)
	cacheEntries.Set(0)
	c.logger.Debug().Msg("Cache cleared")
}

// Metrics returns the current metrics snapshot.
func (c *Cache) Metrics() Snapshot {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return c.stats.snapshot(size, c.cfg.EntryOverheadBytes)
}

// Size returns the current number of stored entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweep, cancels pending self-cleanup
// timers, and empties the store. The cache must not be used afterwards.
func (c *Cache) Close() {
	c.sweeper.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, e := range c.entries {
		e.stopCleanup()
	}
	c.entries = make(map[Fingerprint]*entry)
	cacheEntries.Set(0)
}
