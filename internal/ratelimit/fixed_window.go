// Package ratelimit throttles verification code requests per phone number.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter allows limit requests per key in each window. Counters
// live in process memory, or in Redis when several clients share a quota.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counts   map[string]windowCount
	lastSlot int64

	redisClient *redis.Client
	redisPrefix string
}

type windowCount struct {
	slot  int64
	count int
}

// NewFixedWindowLimiter creates an in-process limiter.
func NewFixedWindowLimiter(limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and a window of at least 1ms")
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		counts: make(map[string]windowCount),
	}, nil
}

// NewRedisFixedWindowLimiter creates a Redis-backed limiter.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	l, err := NewFixedWindowLimiter(limit, window)
	if err != nil {
		return nil, err
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "doit:ratelimit"
	}
	l.redisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	l.redisPrefix = prefix
	return l, nil
}

// Allow returns true when key is within quota.
// On Redis failures, it fails closed and returns false.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	if l.redisClient != nil {
		return l.allowRedis(ctx, key, slot)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.lastSlot {
		for k, c := range l.counts {
			if c.slot < slot {
				delete(l.counts, k)
			}
		}
		l.lastSlot = slot
	}
	c := l.counts[key]
	if c.slot != slot {
		c = windowCount{slot: slot}
	}
	c.count++
	l.counts[key] = c
	return c.count <= l.limit
}

func (l *FixedWindowLimiter) allowRedis(ctx context.Context, key string, slot int64) bool {
	redisKey := fmt.Sprintf("%s:%s:%d", l.redisPrefix, key, slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.redisClient, []string{redisKey}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false
	}
	return res <= int64(l.limit)
}

// Close releases the Redis connection, if any.
func (l *FixedWindowLimiter) Close() error {
	if l == nil || l.redisClient == nil {
		return nil
	}
	return l.redisClient.Close()
}
