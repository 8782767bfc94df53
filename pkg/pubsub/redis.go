package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// RedisPubSub implements PubSub interface using Redis.
type RedisPubSub struct {
	client        *redis.Client
	subscriptions map[*redis.PubSub]struct{}
	mu            sync.Mutex
	closed        bool
}

// NewRedisPubSub creates a new Redis-based PubSub instance.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPubSubFromClient(client), nil
}

// NewRedisPubSubFromClient wraps an existing client. Close closes the client.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[*redis.PubSub]struct{}),
	}
}

// Publish publishes the raw payload to msg.Channel.
func (r *RedisPubSub) Publish(ctx context.Context, msg *Message) error {
	if err := r.client.Publish(ctx, msg.Channel, msg.Payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Channel, err)
	}
	return nil
}

// Subscribe subscribes to a specific channel. The subscription is
// confirmed before returning, so a Redis outage surfaces as an error here.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	ps := r.client.Subscribe(ctx, channel)
	r.subscriptions[ps] = struct{}{}
	r.mu.Unlock()

	if _, err := ps.Receive(ctx); err != nil {
		r.release(ps)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msgCh := make(chan *Message, 100)
	go r.processMessages(ctx, ps, msgCh)

	return msgCh, nil
}

// Close closes all subscriptions and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for ps := range r.subscriptions {
		ps.Close()
	}
	r.subscriptions = make(map[*redis.PubSub]struct{})
	r.mu.Unlock()

	return r.client.Close()
}

// Client returns the underlying Redis client.
func (r *RedisPubSub) Client() *redis.Client {
	return r.client
}

func (r *RedisPubSub) release(ps *redis.PubSub) {
	r.mu.Lock()
	delete(r.subscriptions, ps)
	r.mu.Unlock()
	ps.Close()
}

// processMessages forwards messages from the Redis subscription until ctx is
// cancelled or the subscription channel is closed.
func (r *RedisPubSub) processMessages(ctx context.Context, ps *redis.PubSub, msgCh chan<- *Message) {
	defer close(msgCh)
	defer r.release(ps)

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				l := log.L()
				l.Warn().Str(log.FieldDriver, DriverRedis).Msg("redis subscription channel closed")
				return
			}

			select {
			case msgCh <- &Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}
}
