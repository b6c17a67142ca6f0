package main

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitReason identifies which dimension denied a request, per
// spec.md §4.3 ("rate limited (ip)" / "rate limited (pubkey)").
type RateLimitReason string

const (
	RateLimitNone   RateLimitReason = ""
	RateLimitByIP   RateLimitReason = "rate limited (ip)"
	RateLimitByPubkey RateLimitReason = "rate limited (pubkey)"
)

// bucketTable is a lazily-populated, mutex-guarded map of per-key token
// buckets, mirroring the teacher's RateLimiter.windows /
// L402Middleware.freeUsage idiom but backed by golang.org/x/time/rate,
// grounded in rahjooh-CryptoTrade's per-connection *rate.Limiter usage
// (internal/reader/kucoin/pi.go, oi.go; internal/reader/binance/foi.go).
type bucketTable struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     float64
	burst   int
}

func newBucketTable(rps float64, burst int) *bucketTable {
	return &bucketTable{
		buckets: make(map[string]*rate.Limiter),
		rps:     rps,
		burst:   burst,
	}
}

func (t *bucketTable) allow(key string) bool {
	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(t.rps), t.burst)
		t.buckets[key] = b
	}
	t.mu.Unlock()
	return b.Allow()
}

// sweep drops entries currently sitting at full burst — indistinguishable
// on the next Allow from a freshly created limiter — bounding table growth
// the way the teacher's ratelimit.go/l402.go periodic cleanup() does.
func (t *bucketTable) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for key, b := range t.buckets {
		if b.Tokens() >= float64(t.burst) {
			delete(t.buckets, key)
			dropped++
		}
	}
	return dropped
}

// RateLimiter enforces the two-dimensional token-bucket admission rule
// from spec.md §4.3: both the IP bucket and the pubkey bucket must admit,
// IP checked first so it short-circuits.
type RateLimiter struct {
	ipBuckets     *bucketTable
	pubkeyBuckets *bucketTable
}

// NewRateLimiter builds a limiter with the given per-dimension rates and a
// shared burst capacity, per spec.md §6's defaults (ip rps=3, pubkey
// rps=2, burst=10).
func NewRateLimiter(ipRPS, pubkeyRPS float64, burst int) *RateLimiter {
	return &RateLimiter{
		ipBuckets:     newBucketTable(ipRPS, burst),
		pubkeyBuckets: newBucketTable(pubkeyRPS, burst),
	}
}

// Allow checks the IP bucket then the pubkey bucket, admitting only if
// both permit. Returns RateLimitNone on admission, else the reason for
// the first dimension that denied.
func (r *RateLimiter) Allow(ip, pubkey string) RateLimitReason {
	if !r.ipBuckets.allow(ip) {
		return RateLimitByIP
	}
	if !r.pubkeyBuckets.allow(pubkey) {
		return RateLimitByPubkey
	}
	return RateLimitNone
}

// StartJanitor runs a periodic sweep of both bucket tables using
// robfig/cron, replacing the teacher's raw time.NewTicker goroutine
// (ratelimit.go's cleanup, l402.go's cleanupFreeUsage) with a named cron
// schedule. Returns a stop function.
func (r *RateLimiter) StartJanitor(logger interface {
	Debugf(format string, args ...interface{})
}, spec string) func() {
	c := newCronScheduler()
	_, _ = c.AddFunc(spec, func() {
		droppedIP := r.ipBuckets.sweep()
		droppedPK := r.pubkeyBuckets.sweep()
		if logger != nil {
			logger.Debugf("rate limiter janitor: dropped %d ip buckets, %d pubkey buckets", droppedIP, droppedPK)
		}
	})
	c.Start()
	return func() { c.Stop() }
}

// idleSweepInterval is the janitor's cron spec: every 5 minutes.
const idleSweepInterval = "@every 5m"
