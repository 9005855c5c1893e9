package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisChannel = "unibro:auth:changed"

// RedisBroadcaster sends signals over a Redis pub/sub channel.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

// NewRedisBroadcaster builds a broadcaster on addr.
func NewRedisBroadcaster(addr, password, channel string) (*RedisBroadcaster, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("notify: redis addr is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &RedisBroadcaster{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		channel: channel,
	}, nil
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, origin string) error {
	return b.client.Publish(ctx, b.channel, origin).Err()
}

func (b *RedisBroadcaster) Listen(ctx context.Context, fn func(origin string)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	msgs := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
