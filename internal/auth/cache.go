package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/lazypower/memkeeper/internal/store"
)

// UserSource loads users by id.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
}

// UserCache memoizes user lookups for authenticated requests.
type UserCache struct {
	src   UserSource
	ttl   time.Duration
	cache *ristretto.Cache

	// gen counts invalidations. A load that overlaps one is not cached.
	mu  sync.Mutex
	gen uint64
}

// NewUserCache wraps src. A non-positive ttl disables caching.
func NewUserCache(src UserSource, ttl time.Duration) (*UserCache, error) {
	c := &UserCache{src: src, ttl: ttl}
	if ttl <= 0 {
		return c, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000, // one unit per user
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("new user cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Get returns the user, from cache when possible. Returned users are copies.
func (c *UserCache) Get(ctx context.Context, id int64) (*store.User, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(id); ok {
			u := v.(store.User)
			return &u, nil
		}
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	u, err := c.src.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.cache.SetWithTTL(id, *u, 1, c.ttl)
		}
		c.mu.Unlock()
	}
	return u, nil
}

// Invalidate drops a cached user after it changes. It returns once the
// deletion is applied, so the next Get sees the change. Loads already in
// flight when it runs may have read the old row and are not cached.
func (c *UserCache) Invalidate(id int64) {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	c.cache.Del(id)
	c.mu.Unlock()
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *UserCache) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
