package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/richyriminem-re/shopwith-sky-now-sub003/internal/testutil"
	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/dedup"
	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/navigation"
)

func newTestGateway(t *testing.T, originURL string) *gateway {
	t.Helper()

	cfg := dedup.DefaultConfig()
	cfg.SweepInterval = time.Hour
	cache := dedup.NewCache(cfg)
	t.Cleanup(cache.Close)

	nav, err := navigation.New(cache, navigation.Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("navigation.New error: %v", err)
	}
	return newGateway(originURL, cache, nav, zerolog.Nop())
}

func TestDescriptorFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		url        string
		headers    map[string]string
		body       string
		wantTarget string
		wantVerb   dedup.Verb
	}{
		{
			name:       "path only",
			method:     "GET",
			url:        "/api/products/abc",
			wantTarget: "/api/products/abc",
			wantVerb:   dedup.VerbGet,
		},
		{
			name:       "query preserved",
			method:     "GET",
			url:        "/api/search?q=shoes&page=2",
			wantTarget: "/api/search?q=shoes&page=2",
			wantVerb:   dedup.VerbGet,
		},
		{
			name:       "post with body",
			method:     "POST",
			url:        "/api/cart/add",
			body:       `{"sku":"abc"}`,
			wantTarget: "/api/cart/add",
			wantVerb:   dedup.VerbPost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, strings.NewReader(tt.body))
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			desc := descriptorFromRequest(req, []byte(tt.body))
			if desc.Target != tt.wantTarget {
				t.Errorf("Target = %q, want %q", desc.Target, tt.wantTarget)
			}
			if desc.Verb != tt.wantVerb {
				t.Errorf("Verb = %q, want %q", desc.Verb, tt.wantVerb)
			}
			if tt.body == "" && desc.Body != nil {
				t.Errorf("Body = %v, want nil for empty request body", desc.Body)
			}
		})
	}
}

func TestDescriptorFromRequest_HeaderHandling(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/products/abc", nil)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Cache-Priority", "high")
	req.Header.Set("X-Cache-Tag", "catalog")

	desc := descriptorFromRequest(req, nil)
	if desc.Headers["Authorization"] != "Bearer token" {
		t.Error("Authorization header should be carried over")
	}
	if desc.Headers["Accept"] != "application/json" {
		t.Error("Accept header should be carried over")
	}
	if _, ok := desc.Headers["User-Agent"]; ok {
		t.Error("User-Agent should not be carried over")
	}
	if desc.Priority != dedup.PriorityHigh {
		t.Errorf("Priority = %q, want high", desc.Priority)
	}
	if desc.Tag != "catalog" {
		t.Errorf("Tag = %q, want catalog", desc.Tag)
	}
}

func TestGateway_ProxyDeduplicates(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/api/products/abc", testutil.NewProductResponse(`{"id":"abc","name":"Sneaker"}`))

	gw := newTestGateway(t, origin.URL())

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		gw.proxyHandler(rec, httptest.NewRequest("GET", "/api/products/abc", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}

	if count := origin.PathCount("/api/products/abc"); count != 1 {
		t.Errorf("origin received %d requests, want 1 (deduplicated)", count)
	}
	if bodies[0] != bodies[1] {
		t.Errorf("responses differ: %q vs %q", bodies[0], bodies[1])
	}
}

func TestGateway_ProxyPassesOriginClientErrors(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/api/products/missing", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"not found"}`,
	})

	gw := newTestGateway(t, origin.URL())

	rec := httptest.NewRecorder()
	gw.proxyHandler(rec, httptest.NewRequest("GET", "/api/products/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	// Client errors are not retried.
	if count := origin.PathCount("/api/products/missing"); count != 1 {
		t.Errorf("origin received %d requests, want 1", count)
	}
}

func TestGateway_CacheMetricsHandler(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	gw := newTestGateway(t, origin.URL())

	rec := httptest.NewRecorder()
	gw.proxyHandler(rec, httptest.NewRequest("GET", "/api/products/abc", nil))

	rec = httptest.NewRecorder()
	gw.cacheMetricsHandler(rec, httptest.NewRequest("GET", "/cache/metrics", nil))

	var snap dedup.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", snap.TotalRequests)
	}
	if snap.StoreSize != 1 {
		t.Errorf("StoreSize = %d, want 1", snap.StoreSize)
	}
}

func TestGateway_CacheClearHandler(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	gw := newTestGateway(t, origin.URL())

	rec := httptest.NewRecorder()
	gw.proxyHandler(rec, httptest.NewRequest("GET", "/api/products/abc", nil))
	if gw.cache.Size() != 1 {
		t.Fatalf("store size = %d, want 1", gw.cache.Size())
	}

	rec = httptest.NewRecorder()
	gw.cacheClearHandler(rec, httptest.NewRequest("POST", "/cache/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if gw.cache.Size() != 0 {
		t.Errorf("store size = %d, want 0 after clear", gw.cache.Size())
	}

	rec = httptest.NewRecorder()
	gw.cacheClearHandler(rec, httptest.NewRequest("GET", "/cache/clear", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405 for GET", rec.Code)
	}
}

func TestGateway_CacheInvalidateHandler(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	gw := newTestGateway(t, origin.URL())

	rec := httptest.NewRecorder()
	gw.proxyHandler(rec, httptest.NewRequest("GET", "/api/products/abc", nil))

	rec = httptest.NewRecorder()
	gw.cacheInvalidateHandler(rec, httptest.NewRequest("POST", "/cache/invalidate?target=/api/products", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var result map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["removed"] != 1 {
		t.Errorf("removed = %d, want 1", result["removed"])
	}

	rec = httptest.NewRecorder()
	gw.cacheInvalidateHandler(rec, httptest.NewRequest("POST", "/cache/invalidate", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without parameters", rec.Code)
	}
}
