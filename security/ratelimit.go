package security

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRateLimitWindow      = 15 * time.Minute
	DefaultRateLimitMaxAttempts = 5
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands every identifier a token bucket holding maxAttempts
// tokens that refills completely over one window. A caller gets at most
// maxAttempts requests in a burst and at most maxAttempts per window
// sustained.
type RateLimiter struct {
	mu          sync.Mutex
	entries     map[string]*limiterEntry
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	lastSweep   time.Time
}

func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	if maxAttempts < 1 {
		maxAttempts = DefaultRateLimitMaxAttempts
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{
		entries:     make(map[string]*limiterEntry),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// WithClock replaces time.Now and returns the limiter.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.mu.Lock()
	rl.now = now
	rl.mu.Unlock()
	return rl
}

func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}

// IsAllowed consumes one attempt for identifier.
func (rl *RateLimiter) IsAllowed(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	entry, ok := rl.entries[identifier]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.maxAttempts)), rl.maxAttempts),
		}
		rl.entries[identifier] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RemainingAttempts reports how many calls identifier could make right now.
func (rl *RateLimiter) RemainingAttempts(identifier string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[identifier]
	if !ok {
		return rl.maxAttempts
	}
	tokens := math.Floor(entry.limiter.TokensAt(rl.now()))
	if tokens < 0 {
		return 0
	}
	if int(tokens) > rl.maxAttempts {
		return rl.maxAttempts
	}
	return int(tokens)
}

// RetryAfter is how long identifier has to wait for its next attempt.
func (rl *RateLimiter) RetryAfter(identifier string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[identifier]
	if !ok {
		return 0
	}
	now := rl.now()
	missing := 1 - entry.limiter.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	perToken := rl.window / time.Duration(rl.maxAttempts)
	return time.Duration(missing * float64(perToken))
}

// Reset forgets identifier, restoring its full allowance.
func (rl *RateLimiter) Reset(identifier string) {
	rl.mu.Lock()
	delete(rl.entries, identifier)
	rl.mu.Unlock()
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// sweepLocked drops identifiers idle for a full window; their bucket would
// be full again anyway. Runs at most once per window.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for id, entry := range rl.entries {
		if now.Sub(entry.lastSeen) >= rl.window {
			delete(rl.entries, id)
		}
	}
}
