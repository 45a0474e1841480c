// Command storefront-gateway fronts the storefront origin with the
// request deduplication cache. Duplicate and rapidly repeated requests
// are coalesced onto a single origin call; admin endpoints expose cache
// metrics and invalidation.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/dedup"
	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/invalidation"
	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/logging"
	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/navigation"
)

func main() {
	// Configuration from environment
	port := getEnv("PORT", "8080")
	originURL := getEnv("ORIGIN_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	logLevel := getEnv("LOG_LEVEL", "info")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Output: os.Stderr,
	})

	if originURL == "" {
		logger.Fatal().Msg("ORIGIN_URL is required")
	}

	cache := dedup.NewCache(dedup.DefaultConfig())
	defer cache.Close()

	nav, err := navigation.New(cache, navigation.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create navigator")
	}

	gw := newGateway(originURL, cache, nav, logging.NewLogger("gateway"))

	// Optional cross-replica invalidation fan-out.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis", redisURL).Msg("Connected to Redis")

		gw.broadcaster = invalidation.NewBroadcaster(redisClient)
		listener := invalidation.NewListener(redisClient, cache)
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("Invalidation listener terminated")
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/cache/metrics", gw.cacheMetricsHandler)
	mux.HandleFunc("/cache/clear", gw.cacheClearHandler)
	mux.HandleFunc("/cache/invalidate", gw.cacheInvalidateHandler)
	mux.HandleFunc("/", gw.proxyHandler)

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("origin", originURL).
		Msg("Starting storefront gateway")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// originResponse is the cached result of one origin fetch.
type originResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// gateway proxies storefront traffic through the deduplication cache.
type gateway struct {
	origin      string
	httpClient  *http.Client
	cache       *dedup.Cache
	nav         *navigation.Navigator
	broadcaster *invalidation.Broadcaster
	logger      zerolog.Logger
}

func newGateway(origin string, cache *dedup.Cache, nav *navigation.Navigator, logger zerolog.Logger) *gateway {
	return &gateway{
		origin:     strings.TrimRight(origin, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		nav:        nav,
		logger:     logger,
	}
}

// descriptorFromRequest builds the cache descriptor for an inbound
// request. The descriptor's target is path plus query; only the
// cache-relevant headers are carried over. Priority and tag come from
// the X-Cache-Priority and X-Cache-Tag headers when present.
func descriptorFromRequest(r *http.Request, body []byte) dedup.RequestDescriptor {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	headers := make(map[string]string)
	for _, key := range []string{"Content-Type", "Authorization", "Accept"} {
		if value := r.Header.Get(key); value != "" {
			headers[key] = value
		}
	}

	desc := dedup.RequestDescriptor{
		Target:   target,
		Verb:     dedup.Verb(r.Method),
		Headers:  headers,
		Priority: dedup.Priority(r.Header.Get("X-Cache-Priority")),
		Tag:      r.Header.Get("X-Cache-Tag"),
	}
	if len(body) > 0 {
		desc.Body = string(body)
	}
	return desc
}

// fetchOp builds the origin fetch operation for one descriptor.
func (g *gateway) fetchOp(desc dedup.RequestDescriptor, body []byte) dedup.Operation {
	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, string(desc.Verb), g.origin+desc.Target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create origin request: %w", err)
		}
		for key, value := range desc.Headers {
			req.Header.Set(key, value)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, &navigation.Error{
				Class:   navigation.ErrorClassNetwork,
				Message: "origin unreachable",
				Err:     err,
			}
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read origin response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &navigation.Error{
				Class:      navigation.ClassifyStatus(resp.StatusCode),
				StatusCode: resp.StatusCode,
				Message:    resp.Status,
			}
		}

		return &originResponse{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        payload,
		}, nil
	}
}

func (g *gateway) proxyHandler(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
	}

	desc := descriptorFromRequest(r, body)
	result, err := g.nav.Fetch(r.Context(), desc, g.fetchOp(desc, body))
	if err != nil {
		var fetchErr *navigation.Error
		if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
			http.Error(w, fetchErr.Message, fetchErr.StatusCode)
			return
		}
		http.Error(w, fmt.Sprintf("origin fetch failed: %v", err), http.StatusBadGateway)
		return
	}

	resp, ok := result.(*originResponse)
	if !ok {
		http.Error(w, "unexpected response type", http.StatusInternalServerError)
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (g *gateway) cacheMetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.cache.Metrics()); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to encode metrics snapshot")
	}
}

func (g *gateway) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g.cache.ClearAll()
	g.publish(r.Context(), invalidation.Event{ClearAll: true})
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) cacheInvalidateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := r.URL.Query().Get("target")
	tag := r.URL.Query().Get("tag")
	if target == "" && tag == "" {
		http.Error(w, "target or tag query parameter required", http.StatusBadRequest)
		return
	}

	removed := 0
	if tag != "" {
		removed += g.cache.InvalidateByTag(tag)
	}
	if target != "" {
		removed += g.cache.InvalidateByTarget(target)
	}
	g.publish(r.Context(), invalidation.Event{Target: target, Tag: tag})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

// publish fans the invalidation out to other replicas, when configured.
func (g *gateway) publish(ctx context.Context, ev invalidation.Event) {
	if g.broadcaster == nil {
		return
	}
	if err := g.broadcaster.Publish(ctx, ev); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to broadcast invalidation")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
