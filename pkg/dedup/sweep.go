package dedup

import (
	"sort"
	"sync"
	"time"
)

// sweeper runs the periodic eviction pass on its own goroutine. A
// single loop services the ticker, so a sweep in progress can never
// overlap a newly-due tick.
type sweeper struct {
	cache    *Cache
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newSweeper(c *Cache, interval time.Duration) *sweeper {
	return &sweeper{
		cache:    c,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *sweeper) start() {
	go s.loop()
}

func (s *sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cache.sweepNow()
		}
	}
}

// Stop cancels the sweep loop and waits for it to exit. Safe to call
// more than once.
func (s *sweeper) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// sweepNow runs one full eviction pass.
func (c *Cache) sweepNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(time.Now(), "pressure")
}

// sweepLocked removes expired and stale entries, then evicts down to
// the size cap. Settled entries past their TTL are expired; any entry
// past twice its TTL is removed regardless of state, as the hard stale
// bound backstopping a self-cleanup that failed to fire.
//
// capReason labels size-cap evictions ("pressure" for the periodic
// sweep, "overflow" for the synchronous pass after an insert).
func (c *Cache) sweepLocked(now time.Time, capReason string) {
	for fp, e := range c.entries {
		age := e.age(now)
		switch {
		case age > 2*e.ttl:
			c.removeLocked(fp, e, "stale")
		case age > e.ttl && e.flight.settled():
			c.removeLocked(fp, e, "expired")
		}
	}
	c.evictToCapLocked(capReason)
	cacheEntries.Set(float64(len(c.entries)))
}

// evictToCapLocked removes entries until the store is within
// MaxEntries, preferring lowest-priority, least-recently-accessed
// entries first.
func (c *Cache) evictToCapLocked(reason string) {
	if len(c.entries) <= c.cfg.MaxEntries {
		return
	}

	type candidate struct {
		fp Fingerprint
		e  *entry
	}
	candidates := make([]candidate, 0, len(c.entries))
	for fp, e := range c.entries {
		candidates = append(candidates, candidate{fp, e})
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := candidates[i].e.priority.rank(), candidates[j].e.priority.rank()
		if ri != rj {
			return ri < rj
		}
		return candidates[i].e.lastAccessed.Before(candidates[j].e.lastAccessed)
	})

	for _, cand := range candidates {
		if len(c.entries) <= c.cfg.MaxEntries {
			break
		}
		c.removeLocked(cand.fp, cand.e, reason)
	}
}
