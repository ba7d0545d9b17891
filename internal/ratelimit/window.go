package ratelimit

import (
	"sync"
	"time"

	"aegis.org/internal/obs"
)

// Limiter answers whether an attempt keyed by an identity string is admitted.
type Limiter interface {
	Allow(key string) bool
}

type window struct {
	start time.Time
	count int
}

// FixedWindow is a fixed-window counter keyed by an arbitrary identity
// string. It admits boundary bursts of up to twice the threshold across a
// window edge; that is the documented trade-off of the algorithm, accepted
// for coarse login throttling.
type FixedWindow struct {
	threshold int
	window    time.Duration
	now       func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

// FixedWindowOption configures a FixedWindow.
type FixedWindowOption func(*FixedWindow)

// WithClock overrides the limiter's time source.
func WithClock(fn func() time.Time) FixedWindowOption {
	return func(l *FixedWindow) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewFixedWindow constructs a limiter admitting up to threshold attempts per
// key per window.
func NewFixedWindow(threshold int, windowDuration time.Duration, opts ...FixedWindowOption) *FixedWindow {
	if threshold < 1 {
		threshold = 1
	}
	if windowDuration <= 0 {
		windowDuration = time.Minute
	}
	l := &FixedWindow{
		threshold: threshold,
		window:    windowDuration,
		now:       time.Now,
		windows:   make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow records an attempt for the key and reports whether it is admitted.
// The per-key decision is atomic under the limiter's lock: two concurrent
// attempts can never both slip past the threshold. A refused attempt does not
// reset the window; it keeps accumulating until natural rollover, so a
// throttled client cannot clear its own refusal by retrying.
func (l *FixedWindow) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweepLocked(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	w.count++
	if w.count > l.threshold {
		obs.ObserveThrottled()
		return false
	}
	return true
}

// Remaining reports how many attempts the key has left in its live window.
func (l *FixedWindow) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		return l.threshold
	}
	left := l.threshold - w.count
	if left < 0 {
		return 0
	}
	return left
}

// maybeSweepLocked drops rolled-over windows once per window duration so the
// map does not grow with one entry per key forever.
func (l *FixedWindow) maybeSweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.window)) {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}

var _ Limiter = (*FixedWindow)(nil)
