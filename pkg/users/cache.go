package users

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 5 * time.Minute
)

// CachedDirectory memoizes successful lookups for a bounded time.
//
// Misses are never cached so that newly registered users resolve immediately.
type CachedDirectory struct {
	next  Directory
	cache *expirable.LRU[string, Info]
}

// NewCachedDirectory wraps next with an LRU cache. Non-positive size or ttl
// select the defaults.
func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &CachedDirectory{
		next:  next,
		cache: expirable.NewLRU[string, Info](size, nil, ttl),
	}
}

func (c *CachedDirectory) Lookup(ctx context.Context, address string) (Info, bool, error) {
	address = normalizeAddress(address)
	if info, ok := c.cache.Get(address); ok {
		return info, true, nil
	}

	info, ok, err := c.next.Lookup(ctx, address)
	if err != nil || !ok {
		return info, ok, err
	}

	c.cache.Add(address, info)
	return info, true, nil
}

// Invalidate drops one cached profile.
func (c *CachedDirectory) Invalidate(address string) {
	c.cache.Remove(normalizeAddress(address))
}
