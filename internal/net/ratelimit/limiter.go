// Package ratelimit provides per-venue token-bucket rate limiting.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per venue so a chatty venue cannot
// starve the others.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter with the given per-venue rate and burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) get(venue string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[venue]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[venue]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[venue] = limiter
	return limiter
}

// Wait blocks until the venue's bucket grants a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, venue string) error {
	return l.get(venue).Wait(ctx)
}

// Allow reports whether a token is immediately available for the venue.
func (l *Limiter) Allow(venue string) bool {
	return l.get(venue).Allow()
}
