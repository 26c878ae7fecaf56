package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterMemory(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if !limiter.Allow(ctx, "5550100100") || !limiter.Allow(ctx, "5550100100") {
		t.Fatalf("first two requests should pass")
	}
	if limiter.Allow(ctx, "5550100100") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow(ctx, "5550100200") {
		t.Fatalf("other phone numbers have their own quota")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "5550100100") {
		t.Fatalf("quota should reset in the next window")
	}
}

func TestFixedWindowLimiterDropsExpiredWindows(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	for _, phone := range []string{"5550100100", "5550100200", "5550100300"} {
		limiter.Allow(ctx, phone)
	}
	if len(limiter.counts) != 3 {
		t.Fatalf("counts = %d, want 3", len(limiter.counts))
	}
	now = now.Add(2 * time.Minute)
	if !limiter.Allow(ctx, "5550100400") {
		t.Fatalf("new window request should pass")
	}
	if len(limiter.counts) != 1 {
		t.Fatalf("expected expired windows pruned, counts = %d", len(limiter.counts))
	}
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	defer limiter.Close()
	ctx := context.Background()
	if !limiter.Allow(ctx, "5550100100") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow(ctx, "5550100100") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow(ctx, "5550100100") {
		t.Fatalf("third request should be blocked")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow(context.Background(), "5550100100") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewFixedWindowLimiter(0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *FixedWindowLimiter
	if !limiter.Allow(context.Background(), "x") {
		t.Fatalf("nil limiter should allow")
	}
}
