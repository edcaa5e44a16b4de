package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes events on a single Redis Pub/Sub channel so that
// PROGRESS/END/GLOBAL_MODE_CHANGED notifications fan out across multiple
// gateway processes sharing one simulation backend. Opt-in; the zero-config
// default remains LocalBus.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	subs    *subscriberSet
	cancel  context.CancelFunc
}

// NewRedisBus connects to addr and starts the background subscription loop
// for channel. Returns the bus and any connection error; callers should fall
// back to NewLocalBus() if this fails.
func NewRedisBus(addr, password string, db int, channel string) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	ctx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelPing()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("notify: redis ping failed (%s): %w", addr, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{rdb: rdb, channel: channel, subs: newSubscriberSet(), cancel: cancel}
	b.listen(subCtx)

	slog.Info("notify: redis bus connected", "addr", addr, "channel", channel)
	return b, nil
}

// listen subscribes once and fans incoming messages out to local handlers;
// it never blocks the caller beyond the initial subscribe confirmation.
func (b *RedisBus) listen(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	ch := sub.Channel()
	go func() {
		for msg := range ch {
			b.subs.broadcast(Event{Kind: "redis", Payload: []byte(msg.Payload)})
		}
	}()
}

// Publish sends event.Payload on the shared channel; Kind is not carried
// over Redis (the payload is expected to be self-describing, e.g. a framed
// protocol message).
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	return b.rdb.Publish(ctx, b.channel, event.Payload).Err()
}

// Subscribe registers a local handler fed by the background subscription
// goroutine.
func (b *RedisBus) Subscribe(_ context.Context, handler func(Event)) (func(), error) {
	return b.subs.add(handler), nil
}

// Close stops the subscription loop and closes the Redis connection.
func (b *RedisBus) Close() error {
	b.cancel()
	return b.rdb.Close()
}
