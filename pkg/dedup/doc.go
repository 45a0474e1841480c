// Package dedup provides the in-memory request deduplication and
// caching engine that fronts all outbound calls of the storefront.
//
// The engine decides whether a new request can reuse an in-flight or
// recently-completed operation, assigns per-endpoint freshness windows,
// tracks hit/miss metrics, and reclaims memory under pressure:
//
// - Deterministic fingerprinting of verb, target, body, and the
//   cache-relevant headers (content-type, authorization, accept)
// - At most one in-flight operation per fingerprint; concurrent callers
//   attach to the shared execution and observe the identical outcome
// - Per-endpoint-class TTLs with a configurable eligibility policy
//   (reads always, DELETE never, allow-listed mutations coalesced)
// - Per-entry self-cleanup one TTL after settlement, backstopped by a
//   periodic sweep enforcing a hard 2xTTL stale bound
// - Priority-aware LRU eviction keeping the store within a size cap
// - Prometheus metrics plus an in-process snapshot accumulator
//
// # Basic Usage
//
//	cache := dedup.NewCache(dedup.DefaultConfig())
//	defer cache.Close()
//
//	desc := dedup.RequestDescriptor{
//		Target: "/api/products/abc",
//		Verb:   dedup.VerbGet,
//	}
//
//	result, err := cache.Execute(ctx, desc, func(ctx context.Context) (any, error) {
//		return fetchProduct(ctx, "abc")
//	})
//
// Concurrent Execute calls with equal fingerprints invoke the operation
// once; every caller receives the same value or the same failure.
//
// # Invalidation
//
//	cache.InvalidateByTarget("/api/products")
//	cache.InvalidateByTag("checkout")
//	cache.ClearAll()
//
// Entries retain the original target string and tag, so invalidation
// matches precisely even though fingerprints are opaque hashes.
//
// # Metrics
//
//	snap := cache.Metrics()
//	fmt.Printf("hit rate %.2f over %d requests\n", snap.HitRate, snap.TotalRequests)
//
// Prometheus metrics exported by this package:
//
//   - storefront_dedup_requests_total{mode} - requests by hit/miss/bypass
//   - storefront_dedup_cache_entries - current store size
//   - storefront_dedup_evictions_total{reason} - removals by reason
//   - storefront_dedup_request_duration_seconds - operation latency
//
// # Error Handling
//
// Caching-layer bookkeeping never surfaces to callers: a request whose
// body cannot be serialized simply bypasses caching for that call, and
// memory pressure is handled by eviction. Only the underlying
// operation's own failure reaches the caller, unchanged and unretried.
package dedup
