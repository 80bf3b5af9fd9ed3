package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// ClaimStore grants each clip id to at most one analysis. Claim returns
// false if the id was already claimed and the claim has not expired.
type ClaimStore interface {
	Claim(ctx context.Context, clipID string) (bool, error)
	Release(ctx context.Context, clipID string) error
}

// MemoryClaims keeps claims in a bounded LRU with a TTL.
type MemoryClaims struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryClaims(maxKeys int, ttl time.Duration) *MemoryClaims {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &MemoryClaims{cache: c, ttl: ttl, now: time.Now}
}

func (m *MemoryClaims) Claim(_ context.Context, clipID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if claimedAt, ok := m.cache.Get(clipID); ok && now.Sub(claimedAt) < m.ttl {
		return false, nil
	}
	m.cache.Add(clipID, now)
	return true, nil
}

func (m *MemoryClaims) Release(_ context.Context, clipID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(clipID)
	return nil
}

// RedisClaims shares claims between backend replicas and across restarts.
type RedisClaims struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisClaims(rdb *redis.Client, ttl time.Duration) *RedisClaims {
	return &RedisClaims{rdb: rdb, ttl: ttl, prefix: "sentinel:claim:"}
}

func (r *RedisClaims) Claim(ctx context.Context, clipID string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+clipID, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim: %w", err)
	}
	return ok, nil
}

func (r *RedisClaims) Release(ctx context.Context, clipID string) error {
	if err := r.rdb.Del(ctx, r.prefix+clipID).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
