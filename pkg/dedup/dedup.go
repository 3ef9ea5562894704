package dedup

import (
	"container/list"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers keys for a time window.
type Cache interface {
	// Mark records key and reports whether it was already present within ttl.
	Mark(ctx context.Context, key string, ttl time.Duration) (seen bool, err error)
	// Forget drops key so the next Mark reports it unseen.
	Forget(ctx context.Context, key string) error
}

// TextKey derives an outbound-dedup key from a user and message text. When
// replyTo is set the key is scoped to that inbound message, so the same text
// sent in answer to two different messages is not suppressed.
func TextKey(userID, replyTo, text string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(text)))
	scope := strings.TrimSpace(replyTo)
	if scope == "" {
		scope = "-"
	}
	return "out:" + userID + ":" + scope + ":" + hex.EncodeToString(sum[:8])
}

// MessageKey derives an inbound-dedup key from a provider message id.
func MessageKey(userID, messageID string) string {
	return "in:" + userID + ":" + messageID
}

// RedisCache shares dedup state across instances using SET NX PX.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "selfiebot:dedup"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+":"+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (c *RedisCache) Forget(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+":"+key).Err()
}

type memEntry struct {
	key     string
	expires time.Time
}

// MemoryCache is a process-local cache bounded by capacity; the oldest entries are evicted first.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
	now      func() time.Time
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (c *MemoryCache) Mark(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memEntry)
		if now.Before(entry.expires) {
			return true, nil
		}
		c.order.Remove(el)
		delete(c.entries, key)
	}
	c.entries[key] = c.order.PushBack(&memEntry{key: key, expires: now.Add(ttl)})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memEntry).key)
	}
	return false, nil
}

func (c *MemoryCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	return nil
}

// Len returns the number of tracked keys, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
