// Package invalidation fans administrative cache-invalidation events
// out to every storefront gateway replica via redis pub/sub. The
// deduplication cache itself stays purely in-memory; this package only
// carries the admin "clear this" signal across processes.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/richyriminem-re/shopwith-sky-now-sub003/pkg/dedup"
)

// Channel is the redis pub/sub channel for invalidation events.
const Channel = "storefront:cache:invalidate"

// Event describes one invalidation. Exactly one of the fields should
// be meaningful: ClearAll wins over Tag, Tag over Target.
type Event struct {
	// Target invalidates entries whose target contains this substring.
	Target string `json:"target,omitempty"`

	// Tag invalidates entries recorded with this tag.
	Tag string `json:"tag,omitempty"`

	// ClearAll empties the whole store.
	ClearAll bool `json:"clear_all,omitempty"`
}

// Broadcaster publishes invalidation events to all listeners.
type Broadcaster struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewBroadcaster creates a broadcaster on the given redis client.
func NewBroadcaster(redisClient *redis.Client) *Broadcaster {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Broadcaster{
		redis:  redisClient,
		logger: log.With().Str("component", "invalidation-broadcaster").Logger(),
	}
}

// Publish sends the event to every subscribed replica, including the
// local one.
func (b *Broadcaster) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal invalidation event: %w", err)
	}
	if err := b.redis.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	b.logger.Debug().
		Str("target", ev.Target).
		Str("tag", ev.Tag).
		Bool("clear_all", ev.ClearAll).
		Msg("Published invalidation event")
	return nil
}

// Listener applies published invalidation events to a local cache.
type Listener struct {
	redis  *redis.Client
	cache  *dedup.Cache
	logger zerolog.Logger
}

// NewListener creates a listener applying events to the given cache.
func NewListener(redisClient *redis.Client, cache *dedup.Cache) *Listener {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cache == nil {
		panic("cache cannot be nil")
	}
	return &Listener{
		redis:  redisClient,
		cache:  cache,
		logger: log.With().Str("component", "invalidation-listener").Logger(),
	}
}

// Run subscribes to the invalidation channel and applies events until
// the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.redis.Subscribe(ctx, Channel)
	defer sub.Close()

	// Confirm the subscription before reporting readiness in logs.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	l.logger.Info().Str("channel", Channel).Msg("Listening for invalidation events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				l.logger.Warn().Err(err).Str("payload", msg.Payload).Msg("Dropping malformed invalidation event")
				continue
			}
			removed := l.apply(ev)
			l.logger.Debug().
				Int("removed", removed).
				Str("target", ev.Target).
				Str("tag", ev.Tag).
				Bool("clear_all", ev.ClearAll).
				Msg("Applied invalidation event")
		}
	}
}

// apply executes one event against the local cache and returns the
// number of entries removed.
func (l *Listener) apply(ev Event) int {
	switch {
	case ev.ClearAll:
		removed := l.cache.Size()
		l.cache.ClearAll()
		return removed
	case ev.Tag != "":
		return l.cache.InvalidateByTag(ev.Tag)
	case ev.Target != "":
		return l.cache.InvalidateByTarget(ev.Target)
	default:
		return 0
	}
}
