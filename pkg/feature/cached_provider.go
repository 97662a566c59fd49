package feature

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CachedProvider memoizes answers of a slower provider for ttl.
// Not-found answers are cached too; other errors are not.
type CachedProvider struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	enabled   bool
	notFound  bool
	expiresAt time.Time
}

// NewCachedProvider caches answers from next for ttl. A non-positive ttl
// disables caching.
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithClock swaps the time source. Test helper.
func (c *CachedProvider) WithClock(now func() time.Time) *CachedProvider {
	c.now = now
	return c
}

// IsEnabled answers from the cache when the entry is fresh, otherwise asks next.
// Errors other than ErrFlagNotFound are not cached.
func (c *CachedProvider) IsEnabled(ctx context.Context, flagName string) (bool, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[flagName]
	c.mu.Unlock()
	if ok && now.Before(e.expiresAt) {
		if e.notFound {
			return false, ErrFlagNotFound
		}
		return e.enabled, nil
	}

	enabled, err := c.next.IsEnabled(ctx, flagName)
	notFound := errors.Is(err, ErrFlagNotFound)
	if err != nil && !notFound {
		return false, err
	}

	c.mu.Lock()
	c.entries[flagName] = cacheEntry{enabled: enabled, notFound: notFound, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return enabled, err
}

// Invalidate drops cached answers for names, or all of them when none are given.
func (c *CachedProvider) Invalidate(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(names) == 0 {
		clear(c.entries)
		return
	}
	for _, n := range names {
		delete(c.entries, n)
	}
}
