// Package ratelimit keeps one token bucket per caller key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter is a keyed token-bucket limiter. A non-positive rate disables it.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*entry
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}

	l.mu.Lock()
	now := l.now()
	e, ok := l.buckets[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = e
	}
	e.seen = now
	l.mu.Unlock()

	return e.lim.AllowN(now, 1)
}

// Cleanup forgets keys idle for longer than idle and returns how many were removed.
func (l *Limiter) Cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for k, e := range l.buckets {
		if e.seen.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Run cleans idle keys every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(10 * interval)
		}
	}
}
