// Package ratelimit implements a token bucket rate limiter keyed by client.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleEviction is how long an untouched bucket is kept. A bucket idle this long
// has refilled completely, so dropping it loses nothing.
const (
	idleEviction  = 3 * time.Minute
	pruneInterval = time.Minute
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute.
	Burst int
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages per-client rate limits.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	perMinute int
	lastPrune time.Time
	now       func() time.Time
}

// New creates a new Limiter. A non-positive RequestsPerMinute allows everything.
func New(cfg Config) *Limiter {
	l := &Limiter{
		buckets:   make(map[string]*bucket),
		limit:     rate.Inf,
		perMinute: cfg.RequestsPerMinute,
		now:       time.Now,
	}
	if cfg.RequestsPerMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	l.burst = cfg.Burst
	if l.burst <= 0 {
		l.burst = max(cfg.RequestsPerMinute, 1)
	}
	return l
}

// Allow consumes a token for key if one is available.
func (l *Limiter) Allow(key string) Decision {
	if l.limit == rate.Inf {
		return Decision{Allowed: true, Limit: l.perMinute}
	}
	now := l.now()

	l.mu.Lock()
	l.pruneLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	decision := Decision{Limit: l.perMinute}
	if b.limiter.AllowN(now, 1) {
		decision.Allowed = true
		decision.Remaining = int(math.Max(0, math.Floor(b.limiter.TokensAt(now))))
		return decision
	}

	r := b.limiter.ReserveN(now, 1)
	if r.OK() {
		decision.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}
	return decision
}

// Len reports how many client buckets are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < pruneInterval {
		return
	}
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleEviction {
			delete(l.buckets, key)
		}
	}
}
