// Package redisbus implements the negotiation Transport on Redis Pub/Sub.
//
// Each subscribed channel gets its own PubSub connection and receive goroutine, so
// messages on one channel are delivered to the handler in order and one at a time,
// while different channels are handled concurrently.
//
// Delivery is at-most-once, as with any Redis Pub/Sub consumer: a message published
// while nobody is subscribed is lost, and a handler that blocks for too long lets
// go-redis drop messages from its internal buffer.
package redisbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Bus is a Redis-backed negotiation.Transport.
// It is safe for concurrent use, including Subscribe and Unsubscribe calls made from
// inside a handler.
type Bus struct {
	rdb *redis.Client
	log zerolog.Logger

	mu   sync.Mutex
	subs map[string]*subscription

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

type subscription struct {
	pubsub  *redis.PubSub
	stopped atomic.Bool
}

// New creates a bus for the Redis server described by redisOpts.
func New(redisOpts *redis.Options, logger zerolog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		rdb:    redis.NewClient(redisOpts),
		log:    logger.With().Str("component", "redisbus").Logger(),
		subs:   make(map[string]*subscription),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Open parses a redis:// URL and creates a bus for it.
func Open(redisURL string, logger zerolog.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return New(opts, logger), nil
}

// Connect verifies Redis connectivity.
func (b *Bus) Connect(ctx context.Context) error {
	if err := b.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Ping checks Redis is reachable. Useful for health checks.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Subscribe starts delivering messages published on channel to h.
// Subscribing to a channel that is already subscribed is a no-op and keeps the
// original handler. Subscribe returns once Redis has confirmed the subscription.
func (b *Bus) Subscribe(ctx context.Context, channel string, h negotiation.Handler) error {
	return b.subscribe(ctx, channel, h, false)
}

// PSubscribe is Subscribe for a glob pattern. The handler receives the concrete
// channel each message was published on.
func (b *Bus) PSubscribe(ctx context.Context, pattern string, h negotiation.Handler) error {
	return b.subscribe(ctx, pattern, h, true)
}

func (b *Bus) subscribe(ctx context.Context, name string, h negotiation.Handler, pattern bool) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	key := subKey(name, pattern)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[key]; ok {
		return nil
	}

	var pubsub *redis.PubSub
	if pattern {
		pubsub = b.rdb.PSubscribe(ctx, name)
	} else {
		pubsub = b.rdb.Subscribe(ctx, name)
	}

	// Wait for confirmation so that nothing published after Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}

	sub := &subscription{pubsub: pubsub}
	b.subs[key] = sub

	b.wg.Add(1)
	go b.receive(name, sub, h)

	b.log.Debug().Str("channel", name).Bool("pattern", pattern).Msg("Subscribed")
	return nil
}

// receive pumps one subscription into its handler until the subscription or the bus
// is closed.
func (b *Bus) receive(name string, sub *subscription, h negotiation.Handler) {
	defer b.wg.Done()

	ch := sub.pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Messages already buffered when Unsubscribe ran are dropped
			if sub.stopped.Load() {
				continue
			}
			h(b.ctx, msg.Payload, msg.Channel)
		}
	}
}

// Unsubscribe stops delivery for channel. Unsubscribing from a channel that is not
// subscribed is a no-op. It does not wait for an in-flight handler to return, so it
// may be called from that handler.
func (b *Bus) Unsubscribe(ctx context.Context, channel string) error {
	return b.unsubscribe(subKey(channel, false))
}

// PUnsubscribe is Unsubscribe for a pattern subscription.
func (b *Bus) PUnsubscribe(ctx context.Context, pattern string) error {
	return b.unsubscribe(subKey(pattern, true))
}

func (b *Bus) unsubscribe(key string) error {
	b.mu.Lock()
	sub, ok := b.subs[key]
	delete(b.subs, key)
	b.mu.Unlock()

	if !ok {
		return nil
	}

	sub.stopped.Store(true)
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", key, err)
	}

	b.log.Debug().Str("subscription", key).Msg("Unsubscribed")
	return nil
}

// Publish sends payload on channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload string) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Channels returns the currently subscribed channels and patterns, sorted.
// Patterns are prefixed with "pattern:".
func (b *Bus) Channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.subs))
	for key := range b.subs {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Close stops every subscription, waits for in-flight handlers to return and closes
// the Redis connection. Implements io.Closer. Must not be called from a handler.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.cancel()

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stopped.Store(true)
		sub.pubsub.Close()
	}

	b.wg.Wait()
	return b.rdb.Close()
}

func subKey(name string, pattern bool) string {
	if pattern {
		return "pattern:" + name
	}
	return name
}
