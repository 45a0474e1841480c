package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/dedup"
	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/invalidation"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newSeededCache creates a cache preloaded with settled entries for the
// given targets.
func newSeededCache(t *testing.T, targets []string, tag string) *dedup.Cache {
	t.Helper()

	cfg := dedup.DefaultConfig()
	cfg.SweepInterval = time.Hour
	cache := dedup.NewCache(cfg)
	t.Cleanup(cache.Close)

	ctx := context.Background()
	for _, target := range targets {
		desc := dedup.RequestDescriptor{Target: target, Verb: dedup.VerbGet, Tag: tag}
		if _, err := cache.Execute(ctx, desc, func(ctx context.Context) (any, error) {
			return "payload", nil
		}); err != nil {
			t.Fatalf("Failed to seed %s: %v", target, err)
		}
	}
	return cache
}

// waitForSize polls until the cache reaches the expected size or the
// deadline passes. Pub/sub delivery is asynchronous.
func waitForSize(t *testing.T, cache *dedup.Cache, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cache.Size() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Cache size = %d, want %d after waiting", cache.Size(), want)
}

// TestInvalidationFanOut tests that an invalidation published by one
// replica is applied by a listening replica.
func TestInvalidationFanOut(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Replica A publishes, replica B listens.
	cacheA := newSeededCache(t, []string{"/api/products/sku-1", "/api/products/sku-2"}, "catalog")
	cacheB := newSeededCache(t, []string{"/api/products/sku-1", "/api/checkout/summary"}, "catalog")

	listener := invalidation.NewListener(redisClient, cacheB)
	listenerDone := make(chan error, 1)
	go func() {
		listenerDone <- listener.Run(ctx)
	}()

	// Give the subscription time to establish before publishing.
	time.Sleep(200 * time.Millisecond)

	broadcaster := invalidation.NewBroadcaster(redisClient)

	// Local invalidation on A plus broadcast to B.
	removed := cacheA.InvalidateByTarget("/api/products")
	if removed != 2 {
		t.Errorf("Local invalidation removed %d entries, want 2", removed)
	}
	if err := broadcaster.Publish(ctx, invalidation.Event{Target: "/api/products"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// B drops its matching entry but keeps the checkout entry.
	waitForSize(t, cacheB, 1)

	cancel()
	select {
	case <-listenerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Listener did not stop after context cancellation")
	}
}

// TestInvalidationClearAll tests that a clear-all event empties every
// listening replica.
func TestInvalidationClearAll(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := newSeededCache(t, []string{
		"/api/products/sku-1",
		"/api/search?q=shoes",
		"/api/checkout/summary",
	}, "")

	listener := invalidation.NewListener(redisClient, cache)
	go listener.Run(ctx)
	time.Sleep(200 * time.Millisecond)

	broadcaster := invalidation.NewBroadcaster(redisClient)
	if err := broadcaster.Publish(ctx, invalidation.Event{ClearAll: true}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitForSize(t, cache, 0)
}

// TestInvalidationByTag tests tag-based fan-out across replicas.
func TestInvalidationByTag(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := dedup.DefaultConfig()
	cfg.SweepInterval = time.Hour
	cache := dedup.NewCache(cfg)
	t.Cleanup(cache.Close)

	noop := func(ctx context.Context) (any, error) { return "payload", nil }
	seedCtx := context.Background()
	cache.Execute(seedCtx, dedup.RequestDescriptor{Target: "/api/products/sku-1", Verb: dedup.VerbGet, Tag: "catalog"}, noop)
	cache.Execute(seedCtx, dedup.RequestDescriptor{Target: "/api/products/sku-2", Verb: dedup.VerbGet, Tag: "catalog"}, noop)
	cache.Execute(seedCtx, dedup.RequestDescriptor{Target: "/api/profile", Verb: dedup.VerbGet, Tag: "account"}, noop)

	listener := invalidation.NewListener(redisClient, cache)
	go listener.Run(ctx)
	time.Sleep(200 * time.Millisecond)

	broadcaster := invalidation.NewBroadcaster(redisClient)
	if err := broadcaster.Publish(ctx, invalidation.Event{Tag: "catalog"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Only the account-tagged entry survives.
	waitForSize(t, cache, 1)
}
