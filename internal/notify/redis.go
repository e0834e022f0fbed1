package notify

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/brandon/mailsync/internal/config"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisChannel publishes the JSON payload on a Redis pub/sub channel.
type RedisChannel struct {
	client  publisher
	channel string
}

func NewRedisChannel(cfg config.NotifyConfig) *RedisChannel {
	return &RedisChannel{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		channel: cfg.RedisChannel,
	}
}

func (c *RedisChannel) Name() string { return "redis" }

func (c *RedisChannel) Send(ctx context.Context, n *Notification) error {
	body, err := marshalPayload(n)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.channel, body).Err()
}

// Close closes the Redis client.
func (c *RedisChannel) Close() error {
	if cl, ok := c.client.(*redis.Client); ok {
		return cl.Close()
	}
	return nil
}
