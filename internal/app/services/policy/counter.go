package policy

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter tracks rolling counts keyed by an arbitrary string (e.g.
// "automation_daily:<user_id>:<date>"), used for the policy engines' daily
// caps and per-entity cooldowns.
type Counter interface {
	// Increment bumps key by 1, setting it to expire after ttl if this is
	// the first increment, and returns the new count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current count for key, or 0 if unset.
	Get(ctx context.Context, key string) (int64, error)
}

// MemoryCounter is an in-process Counter for tests and single-instance
// deployments.
type MemoryCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryCounter returns an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64), expires: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryCounter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.expires[key]; ok && now.After(exp) {
		delete(c.counts, key)
		delete(c.expires, key)
	}
	c.counts[key]++
	if _, ok := c.expires[key]; !ok {
		c.expires[key] = now.Add(ttl)
	}
	return c.counts[key], nil
}

func (c *MemoryCounter) Get(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.expires[key]; ok && now.After(exp) {
		return 0, nil
	}
	return c.counts[key], nil
}

// RedisCounter is a Counter backed by Redis INCR/EXPIRE, used when policy
// checks must be consistent across multiple runtime instances. It is wired
// only when a Redis address is configured; otherwise the application falls
// back to MemoryCounter.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps an existing *redis.Client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Increment resets key's expiry to ttl on every call, not only on the first
// increment.
func (c *RedisCounter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
