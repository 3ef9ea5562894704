package servicetoken

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker tracks revoked token ids until the token would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevoker keeps revoked ids in-memory (single instance only).
type MemoryRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Time
	now func() time.Time
}

// NewMemoryRevoker builds an in-memory revoker.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{ids: make(map[string]time.Time), now: time.Now}
}

// Revoke marks a token id as revoked for ttl.
func (r *MemoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 || strings.TrimSpace(jti) == "" {
		return nil
	}
	r.mu.Lock()
	r.ids[jti] = r.now().Add(ttl)
	r.mu.Unlock()
	return nil
}

// IsRevoked checks if the token id is revoked.
func (r *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.ids[jti]
	if !ok {
		return false, nil
	}
	if r.now().After(expiry) {
		delete(r.ids, jti)
		return false, nil
	}
	return true, nil
}

// RedisRevoker stores revoked ids in Redis with TTL so every instance sees them.
type RedisRevoker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevoker builds a Redis-backed revoker.
func NewRedisRevoker(client redis.UniversalClient, prefix string) *RedisRevoker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "selfiebot:admin:revoked"
	}
	return &RedisRevoker{client: client, prefix: prefix}
}

// Revoke marks a token id as revoked for ttl.
func (r *RedisRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 || strings.TrimSpace(jti) == "" {
		return nil
	}
	return r.client.Set(ctx, r.key(jti), "1", ttl).Err()
}

// IsRevoked checks if the token id is revoked.
func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRevoker) key(jti string) string {
	return r.prefix + ":" + jti
}
