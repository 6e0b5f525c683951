package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewRedisFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retryAfter := limiter.Allow(ctx, "user-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %s", retryAfter)
	}
	if ok, _ := limiter.Allow(ctx, "user-2"); !ok {
		t.Fatalf("other key should pass")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewRedisFixedWindowLimiter(client, "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if ok, _ := limiter.Allow(context.Background(), "user-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter(nil, "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil redis client")
	}
}

func TestMemoryFixedWindowLimiterResetsPerWindow(t *testing.T) {
	limiter, err := NewMemoryFixedWindowLimiter(1, time.Second)
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatalf("second request should be blocked")
	}
	now = now.Add(time.Second)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("request in next window should pass")
	}
}
