package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces lifecycle channels, e.g. "evenia:registration.attended".
const ChannelPrefix = "evenia:"

// Redis publishes messages on a Redis pub/sub channel per topic.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis pub/sub publisher.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Publish sends msg to ChannelPrefix+msg.Topic.
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	body, err := msg.body()
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, ChannelPrefix+msg.Topic, body).Err()
}

// Subscribe delivers messages of the given topics to handler until ctx is done.
func (r *Redis) Subscribe(ctx context.Context, handler func(channel string, payload []byte), topics ...string) error {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = ChannelPrefix + t
	}
	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Close is a no-op; the client is owned by the caller.
func (r *Redis) Close() error { return nil }
