package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultMaxEntries = 10000

// MemoryStore is the in-process Store. Expiry is lazy on Get and
// opportunistic on Set; when the store is full, expired entries are dropped
// first and then the oldest tenth by creation time (insertion order, not
// access order).
type MemoryStore[T any] struct {
	mu      sync.Mutex
	entries map[string]*Entry[T]
	maxSize int
	now     func() time.Time

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

type Option func(*options)

type options struct {
	maxSize int
	now     func() time.Time
}

// WithMaxEntries bounds the number of live entries. Values below 1 are ignored.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func NewMemoryStore[T any](opts ...Option) *MemoryStore[T] {
	o := options{maxSize: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore[T]{
		entries: make(map[string]*Entry[T]),
		maxSize: o.maxSize,
		now:     o.now,
	}
}

func (s *MemoryStore[T]) Set(_ context.Context, key string, value T, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		s.cleanupLocked(now)
	}

	s.entries[key] = &Entry[T]{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (s *MemoryStore[T]) Get(_ context.Context, key string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	entry, ok := s.entries[key]
	if !ok {
		s.misses++
		return zero, false, nil
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.entries, key)
		s.expirations++
		s.misses++
		return zero, false, nil
	}
	s.hits++
	return entry.Value, true, nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and reports how many were dropped.
func (s *MemoryStore[T]) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now()), nil
}

func (s *MemoryStore[T]) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry[T])
	s.mu.Unlock()
}

func (s *MemoryStore[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Size:        len(s.entries),
		MaxSize:     s.maxSize,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
}

// Len counts stored entries, expired ones included until they are swept.
func (s *MemoryStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor sweeps the store every interval until ctx is done. A
// non-positive interval disables it.
func (s *MemoryStore[T]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

func (s *MemoryStore[T]) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	s.expirations += uint64(removed)
	return removed
}

// cleanupLocked makes room for one more entry.
func (s *MemoryStore[T]) cleanupLocked(now time.Time) {
	s.sweepLocked(now)

	softLimit := s.maxSize - s.maxSize/10
	if len(s.entries) < softLimit {
		return
	}

	n := len(s.entries) / 10
	if n < 1 {
		n = 1
	}
	// keep at least one free slot for the incoming entry
	if over := len(s.entries) - s.maxSize + 1; over > n {
		n = over
	}

	ordered := make([]*Entry[T], 0, len(s.entries))
	for _, entry := range s.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	for _, entry := range ordered[:n] {
		delete(s.entries, entry.Key)
	}
	s.evictions += uint64(n)
}
