package dedup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal tracks Execute calls by outcome mode.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_dedup_requests_total",
			Help: "Total requests seen by the deduplication engine",
		},
		[]string{"mode"}, // "hit", "miss", "bypass"
	)

	// cacheEntries tracks the current store size.
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_dedup_cache_entries",
			Help: "Current number of entries in the deduplication cache",
		},
	)

	// evictionsTotal tracks entry removals by reason.
	evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_dedup_evictions_total",
			Help: "Total cache entries removed",
		},
		[]string{"reason"}, // "settled", "expired", "stale", "overflow", "pressure", "invalidated", "cleared"
	)

	// requestDuration tracks underlying operation latency.
	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_dedup_request_duration_seconds",
			Help:    "Duration of underlying operations executed through the engine",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)
)
