// Package ratelimit provides best-effort fixed-window throttling for the
// claim endpoints. It is not a security boundary: the memory counter is
// process-local, and counter failures admit the request.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Counter increments a windowed counter for a key and reports the count
// within the current window. The first increment of a window returns 1.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Decision struct {
	Allowed   bool
	Remaining int
}

type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

func New(counter Counter, limit int, window time.Duration) *Limiter {
	return &Limiter{counter: counter, limit: limit, window: window}
}

func (l *Limiter) Admit(ctx context.Context, key string) Decision {
	count, err := l.counter.Increment(ctx, key, l.window)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate counter unavailable, admitting")
		return Decision{Allowed: true, Remaining: l.limit}
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: int(count) <= l.limit, Remaining: remaining}
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.entries[key]
	if !ok || entry.expiresAt.Before(now) {
		c.entries[key] = memoryEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	entry.count++
	c.entries[key] = entry
	return entry.count, nil
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
