// Package secrets fetches signing key material by name.
//
// The token service never holds keys itself: it asks a Store every time it
// signs or verifies, so key rotation in the backing store takes effect
// without a redeploy. Cache puts a short TTL in front of a slow store and
// lets callers drop an entry they believe is stale.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when the store has no secret under the given name.
var ErrNotFound = errors.New("secrets: secret not found")

// Store is anything that can resolve a secret name to key material.
type Store interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
}

// Static is an in-memory Store, used for local development and tests.
type Static map[string][]byte

func (s Static) GetSecret(_ context.Context, name string) ([]byte, error) {
	v, ok := s[name]
	if !ok || len(v) == 0 {
		return nil, fmt.Errorf("secrets: %q: %w", name, ErrNotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

type cacheEntry struct {
	value     []byte
	fetchedAt time.Time
}

// DefaultMinRefreshAge is how old a cached entry must be before Invalidate
// drops it. Anyone can present a token with a bad signature; this bounds how
// often that reaches the backing store.
const DefaultMinRefreshAge = 30 * time.Second

// Cache wraps a Store with a per-name TTL cache.
//
// A TTL of zero or less disables caching: every call goes to the store.
type Cache struct {
	store         Store
	ttl           time.Duration
	minRefreshAge time.Duration
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithMinRefreshAge overrides DefaultMinRefreshAge.
func WithMinRefreshAge(d time.Duration) CacheOption {
	return func(c *Cache) { c.minRefreshAge = d }
}

// NewCache returns a Cache in front of store.
func NewCache(store Store, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		store:         store,
		ttl:           ttl,
		minRefreshAge: DefaultMinRefreshAge,
		now:           time.Now,
		entries:       make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSecret returns the cached value for name if it is younger than the TTL,
// otherwise fetches it from the underlying store.
func (c *Cache) GetSecret(ctx context.Context, name string) ([]byte, error) {
	if c.ttl <= 0 {
		return c.store.GetSecret(ctx, name)
	}

	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.value, nil
	}

	// The lock is not held while fetching; two concurrent misses may both
	// hit the store, which is harmless.
	v, err := c.store.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops the cached value for name so the next GetSecret goes to
// the store. An entry younger than the minimum refresh age is kept. It
// reports whether an entry was dropped, i.e. whether a retry can see a
// different value.
func (c *Cache) Invalidate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || c.now().Sub(e.fetchedAt) < c.minRefreshAge {
		return false
	}
	delete(c.entries, name)
	return true
}
