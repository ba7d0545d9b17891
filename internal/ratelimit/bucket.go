package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a per-key token-bucket limiter for callers that prefer smooth
// throttling over the fixed window's hard reset, such as general API
// admission. Login throttling uses FixedWindow.
type Bucket struct {
	perSecond rate.Limit
	burst     int
	ttl       time.Duration

	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewBucket constructs a token-bucket limiter refilling perSecond tokens with
// the given burst capacity per key.
func NewBucket(perSecond float64, burst int) *Bucket {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		ttl:       5 * time.Minute,
		buckets:   make(map[string]*bucketEntry),
	}
}

// Allow reports whether the key may proceed, consuming one token.
func (b *Bucket) Allow(key string) bool {
	b.mu.Lock()
	entry, ok := b.buckets[key]
	if !ok {
		entry = &bucketEntry{lim: rate.NewLimiter(b.perSecond, b.burst)}
		b.buckets[key] = entry
		b.sweepLocked()
	}
	entry.lastSeen = time.Now()
	b.mu.Unlock()
	return entry.lim.Allow()
}

// sweepLocked drops buckets idle beyond the TTL.
func (b *Bucket) sweepLocked() {
	cutoff := time.Now().Add(-b.ttl)
	for key, entry := range b.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(b.buckets, key)
		}
	}
}

var _ Limiter = (*Bucket)(nil)
