package main

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCacheServesFreshEntryWithoutFetch(t *testing.T) {
	cache := NewPriceCache(10000)
	var calls int32

	first, err := cache.Fetch(context.Background(), "BTC-USD", 1000, 5000, func(ctx context.Context) (CacheEntry, error) {
		atomic.AddInt32(&calls, 1)
		return CacheEntry{TSMs: 1000, Samples: samplesOf(60000)}, nil
	})
	require.NoError(t, err)
	assert.Len(t, first.Samples, 1)

	second, err := cache.Fetch(context.Background(), "BTC-USD", 1500, 5000, func(ctx context.Context) (CacheEntry, error) {
		atomic.AddInt32(&calls, 1)
		return CacheEntry{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, first.TSMs, second.TSMs)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second call within TTL must not trigger another fetch")
}

func TestPriceCacheCoalescesConcurrentMisses(t *testing.T) {
	cache := NewPriceCache(10000)
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (CacheEntry, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return CacheEntry{TSMs: 2000, Samples: samplesOf(60000, 60010, 60020)}, nil
	}

	var wg sync.WaitGroup
	results := make([]CacheEntry, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			entry, err := cache.Fetch(context.Background(), "BTC-USD", 0, 100, fetch)
			require.NoError(t, err)
			results[idx] = entry
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "concurrent misses must collapse into a single fan-out")
	for _, r := range results {
		assert.Len(t, r.Samples, 3)
	}
}

func TestPriceCacheStaleWaiterUsesPriorEntryWithoutJoiningRound(t *testing.T) {
	cache := NewPriceCache(10000)

	_, err := cache.Fetch(context.Background(), "BTC-USD", 0, 100, func(ctx context.Context) (CacheEntry, error) {
		return CacheEntry{TSMs: 0, Samples: samplesOf(60000)}, nil
	})
	require.NoError(t, err)

	// A caller with a tolerant maxAgeMs against a still-fresh entry should
	// be served directly without invoking fetch again.
	var called bool
	entry, err := cache.Fetch(context.Background(), "BTC-USD", 50, 5000, func(ctx context.Context) (CacheEntry, error) {
		called = true
		return CacheEntry{}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Len(t, entry.Samples, 1)
}

func TestPriceCacheEnforcesTTLIndependentOfRequestedMaxAge(t *testing.T) {
	cache := NewPriceCache(100)

	_, err := cache.Fetch(context.Background(), "BTC-USD", 0, 5000, func(ctx context.Context) (CacheEntry, error) {
		return CacheEntry{TSMs: 0, Samples: samplesOf(60000)}, nil
	})
	require.NoError(t, err)

	// A caller with a permissive maxAgeMs (5000ms) must not be served an
	// entry that has outlived the cache's own CACHE_TTL_MS (100ms), even
	// though the client-side bound alone would still accept it.
	_, ok := cache.FreshEnough("BTC-USD", 150, 5000)
	assert.False(t, ok, "FreshEnough must clamp to CACHE_TTL_MS even when the caller's maxAgeMs is more permissive")

	var called bool
	_, err = cache.Fetch(context.Background(), "BTC-USD", 150, 5000, func(ctx context.Context) (CacheEntry, error) {
		called = true
		return CacheEntry{TSMs: 150, Samples: samplesOf(60005)}, nil
	})
	require.NoError(t, err)
	assert.True(t, called, "Fetch must trigger a new round once the entry exceeds CACHE_TTL_MS, regardless of maxAgeMs")
}
