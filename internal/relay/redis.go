package relay

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis fans frames out through Redis pub/sub so that several service
// instances share rooms. Every instance, including the publisher, receives
// each frame exactly once through its pattern subscription.
type Redis struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedis constructs a Redis relay. Channels are named <prefix>:room:<id>.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) channel(room string) string {
	return r.prefix + ":room:" + room
}

func (r *Redis) Publish(ctx context.Context, room string, payload []byte) error {
	return r.client.Publish(ctx, r.channel(room), payload).Err()
}

// Subscribe blocks until the pattern subscription is confirmed, then
// delivers in a background goroutine until Close.
func (r *Redis) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	pubsub := r.client.PSubscribe(ctx, r.channel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("psubscribe: %w", err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.pubsub = pubsub
	r.done = done
	r.mu.Unlock()

	roomPrefix := r.channel("")
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			room := strings.TrimPrefix(msg.Channel, roomPrefix)
			deliver(room, []byte(msg.Payload))
		}
		log.Printf("relay: redis subscription closed")
	}()
	return nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub, r.done = nil, nil
	r.mu.Unlock()

	if pubsub != nil {
		_ = pubsub.Close()
		<-done
	}
	return r.client.Close()
}
