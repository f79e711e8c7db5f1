package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisKV is a Redis-backed storage backend.
// It's suitable for multi-server deployments: values live in Redis keys
// and storage events reach other browsing contexts via pub/sub, even when
// those contexts are connected to a different server.
type RedisKV struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	subs   []*redisWatch
	closed bool
}

type redisWatch struct {
	clientID string
	ch       chan Event
	pubsub   *redis.PubSub
	done     chan struct{}
	stopOnce sync.Once
}

// RedisKVOption configures RedisKV behavior.
type RedisKVOption func(*redisKVConfig)

type redisKVConfig struct {
	prefix string
}

// WithKeyPrefix sets the Redis key prefix. Default: "shopfront".
func WithKeyPrefix(prefix string) RedisKVOption {
	return func(c *redisKVConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// NewRedisKV creates a Redis-backed storage backend.
func NewRedisKV(client *redis.Client, opts ...RedisKVOption) *RedisKV {
	cfg := &redisKVConfig{prefix: "shopfront"}
	for _, opt := range opts {
		opt(cfg)
	}
	return &RedisKV{
		client: client,
		prefix: cfg.prefix,
	}
}

// Get retrieves the value for a client's key.
func (r *RedisKV) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(clientID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set stores the value for a client's key and publishes a storage event.
func (r *RedisKV) Set(ctx context.Context, clientID, key string, data []byte, origin string) error {
	if err := r.client.Set(ctx, r.key(clientID, key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	r.publish(ctx, Event{ClientID: clientID, Key: key, Data: data, Origin: origin})
	return nil
}

// Delete removes a client's key and publishes a nil-data storage event.
func (r *RedisKV) Delete(ctx context.Context, clientID, key, origin string) error {
	if err := r.client.Del(ctx, r.key(clientID, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	r.publish(ctx, Event{ClientID: clientID, Key: key, Origin: origin})
	return nil
}

// Watch subscribes to storage events for a client via Redis pub/sub.
func (r *RedisKV) Watch(clientID string) (<-chan Event, func()) {
	ch := make(chan Event, watchBuffer)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}

	pubsub := r.client.Subscribe(context.Background(), r.channel(clientID))
	w := &redisWatch{
		clientID: clientID,
		ch:       ch,
		pubsub:   pubsub,
		done:     make(chan struct{}),
	}
	r.subs = append(r.subs, w)
	r.mu.Unlock()

	go w.run()

	cancel := func() {
		r.mu.Lock()
		for i, sub := range r.subs {
			if sub == w {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		w.stop()
	}
	return ch, cancel
}

// Close shuts down the backend. The Redis client itself is owned by the
// caller and is not closed.
func (r *RedisKV) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, w := range subs {
		w.stop()
	}
	return nil
}

func (r *RedisKV) key(clientID, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, clientID, key)
}

func (r *RedisKV) channel(clientID string) string {
	return fmt.Sprintf("%s:events:%s", r.prefix, clientID)
}

// publish broadcasts a storage event. Publish failures are ignored:
// event delivery is best-effort and the write itself already succeeded.
func (r *RedisKV) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = r.client.Publish(ctx, r.channel(ev.ClientID), payload).Err()
}

func (w *redisWatch) run() {
	defer close(w.ch)
	msgs := w.pubsub.Channel()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case w.ch <- ev:
			default:
				// Slow consumer; drop.
			}
		case <-w.done:
			return
		}
	}
}

func (w *redisWatch) stop() {
	w.stopOnce.Do(func() {
		_ = w.pubsub.Close()
		close(w.done)
	})
}
