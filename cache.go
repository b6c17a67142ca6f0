package main

import (
	"context"
	"sync"
)

// CacheEntry is one settled fetch round: the samples gathered and when the
// round completed, per spec.md §4.5.
type CacheEntry struct {
	TSMs    int64
	Samples []PriceSample
}

// cacheLine holds the current settled entry for one pair plus, while a
// fetch round is underway, the in-flight coordination state for it.
//
// golang.org/x/sync/singleflight.Group was considered and rejected here:
// a singleflight caller either joins the in-flight call or it doesn't, with
// no way for a waiter carrying a tolerant maxAgeMs to instead accept the
// entry that was already sitting in cache before the new round started.
// This hand-rolled gate keeps that prior entry reachable to waiters for the
// whole duration of the round, per spec.md §4.5's fallback rule.
type cacheLine struct {
	mu      sync.Mutex
	entry   *CacheEntry // last settled round, nil until the first completes
	waiting *inflight   // non-nil while a fetch round is in progress
}

type inflight struct {
	done   chan struct{}
	result *CacheEntry
	err    error
}

// PriceCache is a per-pair single-flight cache with a stale-tolerant
// fallback for waiters, grounded on the teacher's demo.go in-memory caching
// idiom generalized from a single global entry to a per-pair table.
type PriceCache struct {
	mu    sync.Mutex
	lines map[string]*cacheLine
	ttlMs int64
}

// NewPriceCache builds an empty per-pair cache enforcing ttlMs as an upper
// bound on freshness regardless of what a caller's own maxAgeMs allows, per
// spec.md §8's cache.ageMs <= CACHE_TTL_MS invariant.
func NewPriceCache(ttlMs int64) *PriceCache {
	return &PriceCache{lines: make(map[string]*cacheLine), ttlMs: ttlMs}
}

// effectiveMaxAge clamps a caller's requested maxAgeMs to the cache's own
// CACHE_TTL_MS, so no entry is ever served fresh past the shorter of the
// two bounds.
func (c *PriceCache) effectiveMaxAge(maxAgeMs int64) int64 {
	if c.ttlMs < maxAgeMs {
		return c.ttlMs
	}
	return maxAgeMs
}

func (c *PriceCache) lineFor(pair string) *cacheLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[pair]
	if !ok {
		l = &cacheLine{}
		c.lines[pair] = l
	}
	return l
}

// FreshEnough reports the cached entry for pair, if any exists and its age
// is within maxAgeMs, per spec.md §4.7 step 2.
func (c *PriceCache) FreshEnough(pair string, nowMs, maxAgeMs int64) (CacheEntry, bool) {
	maxAgeMs = c.effectiveMaxAge(maxAgeMs)
	l := c.lineFor(pair)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entry == nil {
		return CacheEntry{}, false
	}
	if nowMs-l.entry.TSMs > maxAgeMs {
		return CacheEntry{}, false
	}
	return *l.entry, true
}

// Fetch resolves a fresh entry for pair, coordinating concurrent callers
// through a single in-flight round per spec.md §4.5/§5 ("N concurrent
// misses for the same pair collapse into one upstream fan-out"). Callers
// whose maxAgeMs still accepts the last settled entry (staleOK) are handed
// that entry immediately rather than waiting on the round in progress.
func (c *PriceCache) Fetch(ctx context.Context, pair string, nowMs, maxAgeMs int64, fetch func(context.Context) (CacheEntry, error)) (CacheEntry, error) {
	maxAgeMs = c.effectiveMaxAge(maxAgeMs)
	l := c.lineFor(pair)

	l.mu.Lock()
	if l.entry != nil && nowMs-l.entry.TSMs <= maxAgeMs {
		entry := *l.entry
		l.mu.Unlock()
		return entry, nil
	}
	if l.waiting != nil {
		w := l.waiting
		l.mu.Unlock()
		select {
		case <-w.done:
			if w.err != nil {
				return CacheEntry{}, w.err
			}
			return *w.result, nil
		case <-ctx.Done():
			return CacheEntry{}, ctx.Err()
		}
	}

	w := &inflight{done: make(chan struct{})}
	l.waiting = w
	l.mu.Unlock()

	entry, err := fetch(ctx)

	l.mu.Lock()
	if err == nil {
		l.entry = &entry
	}
	l.waiting = nil
	l.mu.Unlock()

	w.result = &entry
	w.err = err
	close(w.done)

	if err != nil {
		return CacheEntry{}, err
	}
	return entry, nil
}
