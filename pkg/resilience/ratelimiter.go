package resilience

import (
	"sync"
	"time"
)

// LimiterOpts configures a token bucket.
type LimiterOpts struct {
	// Rate is tokens added per second.
	Rate float64
	// Burst is the bucket capacity. Values below one become one.
	Burst int
}

// bucket is a token bucket guarded by its owner's lock.
type bucket struct {
	tokens float64
	last   time.Time
}

// take refills b up to now and spends one token if available.
func (b *bucket) take(now time.Time, opts LimiterOpts) bool {
	b.refill(now, opts)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *bucket) refill(now time.Time, opts LimiterOpts) {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*opts.Rate, float64(opts.Burst))
	}
	b.last = now
}

// KeyedLimiter keeps one token bucket per key, such as a client address.
// It is safe for concurrent use.
type KeyedLimiter struct {
	mu      sync.Mutex
	opts    LimiterOpts
	buckets map[string]*bucket
	now     func() time.Time
}

// NewKeyedLimiter creates a KeyedLimiter whose buckets all use opts.
func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &KeyedLimiter{opts: opts, buckets: make(map[string]*bucket), now: time.Now}
}

// Allow takes a token from key's bucket. New keys start with a full bucket.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(k.opts.Burst), last: now}
		k.buckets[key] = b
	}
	return b.take(now, k.opts)
}

// Prune drops buckets that have refilled completely and returns how many
// remain. Callers run it periodically to bound memory.
func (k *KeyedLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	for key, b := range k.buckets {
		b.refill(now, k.opts)
		if b.tokens >= float64(k.opts.Burst) {
			delete(k.buckets, key)
		}
	}
	return len(k.buckets)
}

// Len reports how many keys are tracked.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
