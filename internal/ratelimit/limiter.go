// Package ratelimit implements an in-process fixed-window request counter.
//
// Counters live in a single process. Running several instances multiplies the
// effective limit; there is no cross-instance coordination.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default limits applied by New when zero values are passed.
const (
	DefaultMax    = 6
	DefaultWindow = 60 * time.Second
)

type record struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests per client key inside a fixed window.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter allowing max requests per window for each key.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		max:     max,
		window:  window,
		now:     time.Now,
		records: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the per-window request cap
func (l *Limiter) Max() int {
	return l.max
}

// Window returns the window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow records a request for key and reports whether it is within the limit.
// A denied request does not advance the counter.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || now.Sub(rec.windowStart) > l.window {
		l.records[key] = &record{count: 1, windowStart: now}
		return true
	}

	if rec.count >= l.max {
		return false
	}
	rec.count++
	return true
}

// Sweep removes records whose window started more than two windows ago and
// returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if rec.windowStart.Before(cutoff) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Run sweeps every two windows until ctx is cancelled. The optional onSweep
// callback receives the number of removed records.
func (l *Limiter) Run(ctx context.Context, onSweep func(removed int)) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.Sweep()
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}
