package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisCacheMark(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: srv.Addr()}), "test:dedup")
	ctx := context.Background()

	if seen, err := c.Mark(ctx, MessageKey("u1", "M1"), 10*time.Second); err != nil || seen {
		t.Fatalf("first mark: seen=%v err=%v", seen, err)
	}
	if seen, _ := c.Mark(ctx, MessageKey("u1", "M1"), 10*time.Second); !seen {
		t.Fatalf("second mark should be seen")
	}
	srv.FastForward(11 * time.Second)
	if seen, _ := c.Mark(ctx, MessageKey("u1", "M1"), 10*time.Second); seen {
		t.Fatalf("mark after ttl should be fresh")
	}
}

func TestRedisCacheError(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: srv.Addr()}), "")
	srv.Close()
	if _, err := c.Mark(context.Background(), "k", time.Second); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if seen, _ := c.Mark(ctx, "k", 10*time.Second); seen {
		t.Fatalf("first mark should be fresh")
	}
	now = now.Add(9 * time.Second)
	if seen, _ := c.Mark(ctx, "k", 10*time.Second); !seen {
		t.Fatalf("mark within window should be seen")
	}
	now = now.Add(2 * time.Second)
	if seen, _ := c.Mark(ctx, "k", 10*time.Second); seen {
		t.Fatalf("mark after window should be fresh")
	}
}

func TestMemoryCacheCapacity(t *testing.T) {
	c := NewMemoryCache(2)
	ctx := context.Background()
	_, _ = c.Mark(ctx, "a", time.Minute)
	_, _ = c.Mark(ctx, "b", time.Minute)
	_, _ = c.Mark(ctx, "c", time.Minute)
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if seen, _ := c.Mark(ctx, "a", time.Minute); seen {
		t.Fatalf("oldest key should have been evicted")
	}
}

func TestTextKeyStable(t *testing.T) {
	if TextKey("u1", "M1", " hello ") != TextKey("u1", "M1", "hello") {
		t.Fatalf("text key should ignore surrounding space")
	}
	if TextKey("u1", "M1", "hello") == TextKey("u2", "M1", "hello") {
		t.Fatalf("text key must be per user")
	}
	if TextKey("u1", "M1", "hello") == TextKey("u1", "M2", "hello") {
		t.Fatalf("text key must be per inbound message")
	}
}

func TestForgetReleasesKey(t *testing.T) {
	srv := miniredis.RunT(t)
	caches := map[string]Cache{
		"redis":  NewRedisCache(redis.NewClient(&redis.Options{Addr: srv.Addr()}), "test:dedup"),
		"memory": NewMemoryCache(10),
	}
	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if seen, _ := c.Mark(ctx, "k", time.Minute); seen {
				t.Fatalf("first mark should be fresh")
			}
			if err := c.Forget(ctx, "k"); err != nil {
				t.Fatalf("forget: %v", err)
			}
			if seen, _ := c.Mark(ctx, "k", time.Minute); seen {
				t.Fatalf("mark after forget should be fresh")
			}
			if err := c.Forget(ctx, "missing"); err != nil {
				t.Fatalf("forget unknown key: %v", err)
			}
		})
	}
}
