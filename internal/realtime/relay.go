package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// Channel is the Redis pub/sub channel shared by every API instance.
const Channel = "dispatch:realtime"

// LocalRelay delivers straight to the in-process hub.
type LocalRelay struct{ hub *Hub }

func NewLocalRelay(hub *Hub) LocalRelay { return LocalRelay{hub: hub} }

func (r LocalRelay) Publish(_ context.Context, room, event string, payload any) error {
	ev, err := NewEvent(room, event, payload)
	if err != nil {
		return err
	}
	r.hub.Deliver(ev)
	return nil
}

// RedisRelay publishes events to Redis; Run feeds events received from Redis
// into the local hub, including this instance's own.
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	log     *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, log *slog.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, channel: Channel, log: log.With("component", "relay")}
}

func (r *RedisRelay) Publish(ctx context.Context, room, event string, payload any) error {
	ev, err := NewEvent(room, event, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, string(b)).Err()
}

// Run subscribes until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.log.Warn("drop malformed relay message", "err", err)
		return
	}
	r.hub.Deliver(ev)
}
