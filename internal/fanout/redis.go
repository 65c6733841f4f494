package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	logpkg "github.com/rzbill/coedit/pkg/log"
)

// Redis relays events through Redis pub/sub. Publish only writes to Redis;
// local subscribers receive events when Redis echoes them back, so every
// process sees the same order.
type Redis struct {
	rdb    redis.UniversalClient
	hub    *Hub
	ps     *redis.PubSub
	logger logpkg.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedis starts the pub/sub reader.
func NewRedis(rdb redis.UniversalClient, buffer int, logger logpkg.Logger) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{
		rdb:    rdb,
		hub:    NewHub(buffer),
		ps:     rdb.Subscribe(ctx),
		logger: logger.WithComponent("fanout"),
		cancel: cancel,
	}
	// called with the hub lock held
	r.hub.onFirst = func(ch string) {
		if err := r.ps.Subscribe(ctx, ch); err != nil {
			r.logger.Warn("redis subscribe failed", logpkg.Str("channel", ch), logpkg.Err(err))
		}
	}
	r.hub.onLast = func(ch string) {
		if err := r.ps.Unsubscribe(ctx, ch); err != nil {
			r.logger.Debug("redis unsubscribe failed", logpkg.Str("channel", ch), logpkg.Err(err))
		}
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Redis) loop() {
	defer r.wg.Done()
	for msg := range r.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.logger.Warn("drop undecodable event", logpkg.Str("channel", msg.Channel), logpkg.Err(err))
			continue
		}
		_ = r.hub.deliver(msg.Channel, ev)
	}
}

func (r *Redis) Publish(ctx context.Context, channel string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channel, b).Err()
}

func (r *Redis) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	return r.hub.Subscribe(ctx, channel)
}

// Close stops the reader and closes local subscriptions. The Redis client
// itself is left open.
func (r *Redis) Close() error {
	r.cancel()
	err := r.ps.Close()
	r.wg.Wait()
	_ = r.hub.Close()
	return err
}
