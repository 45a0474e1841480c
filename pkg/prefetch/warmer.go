// Package prefetch warms the deduplication cache ahead of demand by
// executing a batch of requests through a bounded worker pool, e.g.
// priming product detail pages before a campaign landing.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/dedup"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the number of parallel warm-up workers.
	MaxConcurrency int

	// Timeout bounds each individual warm-up fetch.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        10 * time.Second,
	}
}

// OperationFor builds the underlying operation for one descriptor.
type OperationFor func(desc dedup.RequestDescriptor) dedup.Operation

// Result is the outcome of warming a single descriptor.
type Result struct {
	Target string
	Err    error
}

// Warmer primes a deduplication cache in parallel.
type Warmer struct {
	cache  *dedup.Cache
	cfg    Config
	logger zerolog.Logger
}

// NewWarmer creates a warmer for the given cache.
func NewWarmer(cache *dedup.Cache, cfg Config) *Warmer {
	if cache == nil {
		panic("cache cannot be nil")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Warmer{
		cache:  cache,
		cfg:    cfg,
		logger: log.With().Str("component", "prefetch").Logger(),
	}
}

// Warm executes every descriptor through the cache using a worker pool
// and returns one result per descriptor. Descriptors already cached and
// fresh are hits and cost nothing; failures are reported per descriptor
// and do not abort the batch.
func (w *Warmer) Warm(ctx context.Context, descs []dedup.RequestDescriptor, opFor OperationFor) []Result {
	start := time.Now()

	queue := make(chan dedup.RequestDescriptor, len(descs))
	for _, desc := range descs {
		queue <- desc
	}
	close(queue)

	results := make(chan Result, len(descs))
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for desc := range queue {
				results <- w.warmOne(ctx, desc, opFor)
			}
		}()
	}
	wg.Wait()
	close(results)

	out := make([]Result, 0, len(descs))
	failed := 0
	for res := range results {
		if res.Err != nil {
			failed++
		}
		out = append(out, res)
	}

	w.logger.Info().
		Int("descriptors", len(descs)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Cache warm-up complete")
	return out
}

func (w *Warmer) warmOne(ctx context.Context, desc dedup.RequestDescriptor, opFor OperationFor) Result {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	_, err := w.cache.Execute(fetchCtx, desc, opFor(desc))
	if err != nil {
		w.logger.Warn().Err(err).Str("target", desc.Target).Msg("Warm-up fetch failed")
	}
	return Result{Target: desc.Target, Err: err}
}
