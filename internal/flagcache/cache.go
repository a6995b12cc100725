// Package flagcache provides a TTL-bounded cache over the external flag
// provider, with hard-coded safe defaults when the provider is unavailable.
package flagcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cutover/internal/domain"
)

// fallbackVersion marks snapshots built from the hard-coded defaults.
const fallbackVersion = "fallback"

// Cache is a TTL cache over a domain.ConfigProvider. Safe for concurrent use.
//
// The failure defaults are deliberately asymmetric: ingestion defaults to
// enabled (dual writes are further along and safer to keep on) while queries
// default to disabled at 0% (the rollback-friendly side). Do not unify them.
type Cache struct {
	provider domain.ConfigProvider
	ttl      time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	snapshot  *domain.ConfigurationSnapshot
	fetchedAt time.Time

	now func() time.Time // overridable in tests
}

// New creates a Cache with the given TTL.
func New(provider domain.ConfigProvider, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		provider: provider,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the current configuration snapshot. A cached value younger than
// the TTL is returned as-is; otherwise the provider is consulted. Provider
// failures are logged and recovered with the safe-default snapshot; Get never
// returns an error to callers.
func (c *Cache) Get(ctx context.Context) domain.ConfigurationSnapshot {
	c.mu.RLock()
	if c.snapshot != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		snap := *c.snapshot
		c.mu.RUnlock()
		return snap
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.snapshot != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return *c.snapshot
	}

	snap, err := c.provider.GetConfiguration(ctx)
	if err != nil {
		c.logger.Warn("flag provider unavailable, using safe defaults", "error", err)
		return c.safeDefault()
	}

	fetched := *snap
	fetched.FetchedAt = c.now()
	c.snapshot = &fetched
	c.fetchedAt = fetched.FetchedAt
	return fetched
}

// Invalidate forces the next Get to bypass the cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
}

// safeDefault builds the hard-coded failure snapshot. The stale cached value,
// if any, is NOT reused: a provider outage must not extend a percentage beyond
// its TTL. Callers hold c.mu.
func (c *Cache) safeDefault() domain.ConfigurationSnapshot {
	return domain.ConfigurationSnapshot{
		IngestionEnabled:  true,
		QueryEnabled:      false,
		TrafficPercentage: 0,
		Version:           fallbackVersion,
		FetchedAt:         c.now(),
	}
}
