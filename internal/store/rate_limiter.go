package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/redis/go-redis/v9"
)

// Rate limiter defaults.
const (
	DefaultRateLimitMax    = 20
	DefaultRateLimitWindow = time.Minute
)

// RateLimiter bounds how many requests a key may make per window.
type RateLimiter interface {
	// Allow records one request for key. It returns a *models.RateLimitError once the
	// key has used up its window.
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

func rateLimitKey(key string) string {
	return "rate_limit:" + key
}

// RedisRateLimiter is a fixed-window counter stored under rate_limit:{key}.
type RedisRateLimiter struct {
	client redis.Cmdable
	max    int64
	window time.Duration
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter allows max requests per window for each key.
func NewRedisRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisRateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RedisRateLimiter{client: client, max: int64(limit), window: window}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) error {
	k := rateLimitKey(key)
	count, err := l.client.Get(ctx, k).Int64()
	if errors.Is(err, redis.Nil) {
		if err := l.client.Set(ctx, k, 1, l.window).Err(); err != nil {
			return fmt.Errorf("failed to start rate limit window: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	if count >= l.max {
		ttl, err := l.client.TTL(ctx, k).Result()
		if err != nil || ttl <= 0 {
			ttl = l.window
		}
		return &models.RateLimitError{Key: key, RetryAfter: ttl}
	}
	if err := l.client.Incr(ctx, k).Err(); err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return nil
}

func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, rateLimitKey(key)).Err()
}

// Remaining returns how many requests key may still make in the current window.
func (l *RedisRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.client.Get(ctx, rateLimitKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return int(l.max), nil
	}
	if err != nil {
		return 0, err
	}
	return int(max(0, l.max-count)), nil
}

type counterWindow struct {
	count   int
	resetAt time.Time
}

// InMemoryRateLimiter is the process-local equivalent of RedisRateLimiter.
type InMemoryRateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	windows map[string]counterWindow
	now     func() time.Time
}

var _ RateLimiter = (*InMemoryRateLimiter)(nil)

// NewInMemoryRateLimiter allows max requests per window for each key.
func NewInMemoryRateLimiter(limit int, win time.Duration, clock func() time.Time) *InMemoryRateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if win <= 0 {
		win = DefaultRateLimitWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryRateLimiter{max: limit, window: win, windows: make(map[string]counterWindow), now: clock}
}

func (l *InMemoryRateLimiter) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = counterWindow{count: 1, resetAt: now.Add(l.window)}
		return nil
	}
	if w.count >= l.max {
		return &models.RateLimitError{Key: key, RetryAfter: w.resetAt.Sub(now)}
	}
	w.count++
	l.windows[key] = w
	return nil
}

func (l *InMemoryRateLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}
