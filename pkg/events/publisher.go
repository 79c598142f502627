package events

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Publisher emits envelopes onto the role-event stream
type Publisher interface {
	PublishEvent(ctx context.Context, env Envelope) error
}

// RedisPublisher publishes to the shared Redis channel. The expiry sweep
// uses this so lapsed assignments flow through the same invalidation path
// as explicit removals.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher for the given channel
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = Channel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// PublishEvent implements Publisher
func (p *RedisPublisher) PublishEvent(ctx context.Context, env Envelope) error {
	return Publish(ctx, p.client, p.channel, env)
}
