package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisChannel publishes notifications as JSON on a Redis pub/sub channel.
type RedisChannel struct {
	client  *redis.Client
	channel string
}

// NewRedisChannel creates a channel publishing on the given pub/sub channel.
func NewRedisChannel(client *redis.Client, channel string) *RedisChannel {
	return &RedisChannel{client: client, channel: channel}
}

func (r *RedisChannel) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Relay subscribes to the pub/sub channel and hands every decoded
// notification to dst until ctx is done.
func (r *RedisChannel) Relay(ctx context.Context, dst Channel) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	slog.Info("relaying notifications", "channel", r.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				slog.Warn("skipping malformed notification", "channel", r.channel, "error", err)
				continue
			}
			if err := dst.Publish(ctx, n); err != nil {
				slog.Warn("relay delivery failed", "id", n.ID, "error", err)
			}
		}
	}
}
