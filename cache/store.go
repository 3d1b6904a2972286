// Package cache holds the expiring key-value stores backing card tokens and
// 3-D Secure sessions.
package cache

import (
	"context"
	"time"
)

// Store is the contract shared by every backend. A Get past an entry's
// expiry always reports a miss.
type Store[T any] interface {
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Get(ctx context.Context, key string) (T, bool, error)
	Delete(ctx context.Context, key string) error
	Sweep(ctx context.Context) (int, error)
}

type Entry[T any] struct {
	Key       string
	Value     T
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Stats struct {
	Size        int    `json:"size"`
	MaxSize     int    `json:"maxSize"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}
