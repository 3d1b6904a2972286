package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps JSON-encoded values under a key prefix so several
// processes can share tokens and sessions. Redis handles expiry itself.
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
}

func NewRedisStore[T any](client *redis.Client, prefix string) *RedisStore[T] {
	return &RedisStore[T]{client: client, prefix: prefix}
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore[T]) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache value: %w", err)
	}
	return nil
}

func (s *RedisStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to read cache value: %w", err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache value: %w", err)
	}
	return nil
}

// Sweep is a no-op: keys carry their own TTL.
func (s *RedisStore[T]) Sweep(context.Context) (int, error) {
	return 0, nil
}
