package relay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultBackplaneChannel = "pagesync:events"

// BackplaneMessage carries a frame between relay processes. Origin identifies
// the publishing process so it can ignore its own messages.
type BackplaneMessage struct {
	Origin string          `json:"origin"`
	Sender string          `json:"sender"`
	Frame  json.RawMessage `json:"frame"`
}

// Backplane connects several relay processes serving the same document.
type Backplane interface {
	Publish(ctx context.Context, msg BackplaneMessage) error
	// Subscribe delivers messages to handle until ctx is done.
	Subscribe(ctx context.Context, handle func(BackplaneMessage)) error
	Close() error
}

type Logger interface {
	Printf(format string, args ...any)
}

type RedisBackplane struct {
	client  *redis.Client
	channel string
	logger  Logger
}

func NewRedisBackplane(redisURL, channel string, logger Logger) (*RedisBackplane, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultBackplaneChannel
	}
	return &RedisBackplane{
		client:  redis.NewClient(opts),
		channel: channel,
		logger:  logger,
	}, nil
}

func (b *RedisBackplane) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackplane) Publish(ctx context.Context, msg BackplaneMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBackplane) Subscribe(ctx context.Context, handle func(BackplaneMessage)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			var msg BackplaneMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				if b.logger != nil {
					b.logger.Printf("backplane: discarding malformed message: %v", err)
				}
				continue
			}
			handle(msg)
		}
	}
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
