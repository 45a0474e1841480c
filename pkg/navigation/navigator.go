// Package navigation provides the smart-navigation layer of the
// storefront: fetches go through the deduplication cache, transient
// failures are retried with exponential backoff and jitter, and an
// optional fallback serves degraded content once retries are exhausted.
package navigation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/dedup"
)

// Prometheus metrics for navigation retries.
var (
	navRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_nav_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	navRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_nav_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	navRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_nav_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	navFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_nav_fallbacks_total",
		Help: "Total number of fetches served by the fallback",
	})
)

// Config holds the navigator configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the
	// initial fetch.
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64

	// Classify maps operation errors to error classes. Defaults to the
	// built-in classifier.
	Classify func(error) ErrorClass

	// Fallback, when set, is invoked after retries are exhausted
	// instead of returning ErrRetryExhausted (e.g. serve stale or
	// offline content).
	Fallback func(ctx context.Context, desc dedup.RequestDescriptor) (any, error)
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Navigator fetches through the deduplication cache with retry and
// fallback handling.
type Navigator struct {
	cache  *dedup.Cache
	cfg    Config
	logger zerolog.Logger
}

// New creates a navigator on top of the given cache.
func New(cache *dedup.Cache, cfg Config) (*Navigator, error) {
	if cache == nil {
		return nil, fmt.Errorf("dedup cache is required")
	}
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if cfg.Classify == nil {
		cfg.Classify = defaultClassify
	}

	return &Navigator{
		cache:  cache,
		cfg:    cfg,
		logger: log.With().Str("component", "navigation").Logger(),
	}, nil
}

// Fetch executes the operation through the cache, retrying retriable
// failures with exponential backoff and jitter. Before each retry the
// cached failure is forgotten so the attempt reaches the backend
// instead of coalescing onto the shared failure.
func (n *Navigator) Fetch(ctx context.Context, desc dedup.RequestDescriptor, op dedup.Operation) (any, error) {
	var lastErr error
	var lastClass ErrorClass
	backoff := n.cfg.InitialBackoff

	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		value, err := n.cache.Execute(ctx, desc, op)
		if err == nil {
			if attempt > 1 {
				n.logger.Info().
					Str("target", desc.Target).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return value, nil
		}

		lastErr = err
		lastClass = n.cfg.Classify(err)
		if !shouldRetry(lastClass) {
			return nil, err
		}
		if attempt >= n.cfg.MaxAttempts {
			break
		}

		navRetriesTotal.WithLabelValues(string(lastClass)).Inc()

		// Drop the cached failure so the retry re-attempts the backend.
		n.cache.Forget(desc)

		// Jitter of +-20% to avoid synchronized retries.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		navRetryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(jitter.Seconds())

		n.logger.Debug().
			Str("target", desc.Target).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying fetch after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * n.cfg.BackoffMultiplier)
		if backoff > n.cfg.MaxBackoff {
			backoff = n.cfg.MaxBackoff
		}
	}

	navRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	n.logger.Warn().
		Str("target", desc.Target).
		Str("error_class", string(lastClass)).
		Int("max_attempts", n.cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	if n.cfg.Fallback != nil {
		navFallbacksTotal.Inc()
		n.logger.Info().Str("target", desc.Target).Msg("Serving fallback content")
		return n.cfg.Fallback(ctx, desc)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, n.cfg.MaxAttempts, lastErr)
}
