// Package metrics provides the centralized Prometheus metrics registry
// for the storefront caching stack. All metrics are defined in their
// respective packages (dedup, navigation) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the storefront
// caching stack. All metrics are automatically registered via promauto
// in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Deduplication Metrics (pkg/dedup):
//   - storefront_dedup_requests_total{mode} (Counter): Requests by outcome (hit, miss, bypass)
//   - storefront_dedup_cache_entries (Gauge): Current store size
//   - storefront_dedup_evictions_total{reason} (Counter): Removals by reason
//     (settled, expired, stale, overflow, pressure, invalidated, cleared)
//   - storefront_dedup_request_duration_seconds (Histogram): Underlying operation latency
//
// Navigation Metrics (pkg/navigation):
//   - storefront_nav_retries_total{error_class} (Counter): Retry attempts by error class
//   - storefront_nav_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - storefront_nav_retry_exhausted_total{error_class} (Counter): Fetches that exhausted retries
//   - storefront_nav_fallbacks_total (Counter): Fetches served by the fallback
//
// Example Prometheus Queries:
//
//   # Dedup Hit Rate
//   sum(rate(storefront_dedup_requests_total{mode="hit"}[5m])) /
//   sum(rate(storefront_dedup_requests_total{mode=~"hit|miss"}[5m]))
//
//   # Store Size
//   storefront_dedup_cache_entries
//
//   # Eviction Pressure
//   rate(storefront_dedup_evictions_total{reason="pressure"}[5m])
//
//   # P95 Operation Latency
//   histogram_quantile(0.95, rate(storefront_dedup_request_duration_seconds_bucket[5m]))
//
//   # Retry Exhaustion Rate
//   rate(storefront_nav_retry_exhausted_total[5m])
