package servicetoken

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryRevokerExpires(t *testing.T) {
	r := NewMemoryRevoker()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	ctx := context.Background()

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatalf("expected jti-1 revoked")
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("jti-2 was never revoked")
	}
	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	if revoked, _ := r.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("revocation should lapse with the token")
	}
	if err := r.Revoke(ctx, "jti-3", 0); err != nil {
		t.Fatalf("revoke with zero ttl: %v", err)
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-3"); revoked {
		t.Fatalf("expired tokens need no revocation entry")
	}
}

func TestRedisRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	r := NewRedisRevoker(client, "")
	ctx := context.Background()

	if err := r.Revoke(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !mr.Exists("selfiebot:admin:revoked:abc") {
		t.Fatalf("expected revocation key in redis")
	}
	if revoked, err := r.IsRevoked(ctx, "abc"); err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	mr.FastForward(2 * time.Minute)
	if revoked, _ := r.IsRevoked(ctx, "abc"); revoked {
		t.Fatalf("revocation should expire with its ttl")
	}

	mr.Close()
	if _, err := r.IsRevoked(ctx, "abc"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
