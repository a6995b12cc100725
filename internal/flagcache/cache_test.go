package flagcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutover/internal/domain"
	"cutover/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGetCachesWithinTTL(t *testing.T) {
	provider := &testutil.MockConfigProvider{
		GetConfigurationFn: func(context.Context) (*domain.ConfigurationSnapshot, error) {
			return &domain.ConfigurationSnapshot{QueryEnabled: true, TrafficPercentage: 25, Version: "v1"}, nil
		},
	}
	cache := New(provider, 30*time.Second, discard())

	base := time.Now()
	cache.now = func() time.Time { return base }

	first := cache.Get(context.Background())
	assert.Equal(t, 25, first.TrafficPercentage)
	assert.Equal(t, base, first.FetchedAt)

	// Still inside the TTL: no second provider call.
	cache.now = func() time.Time { return base.Add(29 * time.Second) }
	cache.Get(context.Background())
	assert.Equal(t, 1, provider.Gets)

	// TTL elapsed: refetch.
	cache.now = func() time.Time { return base.Add(31 * time.Second) }
	cache.Get(context.Background())
	assert.Equal(t, 2, provider.Gets)
}

func TestGetSafeDefaultsOnProviderFailure(t *testing.T) {
	provider := &testutil.MockConfigProvider{
		GetConfigurationFn: func(context.Context) (*domain.ConfigurationSnapshot, error) {
			return nil, errors.New("connection refused")
		},
	}
	cache := New(provider, time.Minute, discard())

	snap := cache.Get(context.Background())
	assert.True(t, snap.IngestionEnabled)
	assert.False(t, snap.QueryEnabled)
	assert.Equal(t, 0, snap.TrafficPercentage)
	assert.Equal(t, "fallback", snap.Version)
}

func TestGetFailureDoesNotReuseStaleSnapshot(t *testing.T) {
	healthy := true
	provider := &testutil.MockConfigProvider{
		GetConfigurationFn: func(context.Context) (*domain.ConfigurationSnapshot, error) {
			if healthy {
				return &domain.ConfigurationSnapshot{QueryEnabled: true, TrafficPercentage: 50, Version: "v1"}, nil
			}
			return nil, errors.New("provider down")
		},
	}
	cache := New(provider, time.Minute, discard())

	base := time.Now()
	cache.now = func() time.Time { return base }
	require.Equal(t, 50, cache.Get(context.Background()).TrafficPercentage)

	// Outage after the TTL expires must fall back, not serve the stale 50%.
	healthy = false
	cache.now = func() time.Time { return base.Add(2 * time.Minute) }
	snap := cache.Get(context.Background())
	assert.Equal(t, 0, snap.TrafficPercentage)
	assert.False(t, snap.QueryEnabled)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	provider := &testutil.MockConfigProvider{}
	cache := New(provider, time.Hour, discard())

	cache.Get(context.Background())
	cache.Get(context.Background())
	require.Equal(t, 1, provider.Gets)

	cache.Invalidate()
	cache.Get(context.Background())
	assert.Equal(t, 2, provider.Gets)
}

func TestGetConcurrentSingleFetch(t *testing.T) {
	provider := &testutil.MockConfigProvider{}
	cache := New(provider, time.Hour, discard())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get(context.Background())
		}()
	}
	wg.Wait()

	// The double-checked write lock collapses the stampede to one fetch.
	assert.Equal(t, 1, provider.Gets)
}
