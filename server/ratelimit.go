package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per requester key.
type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*visitor
	rate      rate.Limit
	burst     int
	idle      time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter allows perMinute requests per key with an equal burst.
// perMinute <= 0 disables limiting.
func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{
		limiters: make(map[string]*visitor),
		idle:     10 * time.Minute,
		now:      time.Now,
	}
	if perMinute <= 0 {
		rl.rate = rate.Inf
		return rl
	}
	rl.rate = rate.Every(time.Minute / time.Duration(perMinute))
	rl.burst = perMinute
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	if rl.rate == rate.Inf {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// prune drops idle keys at most once per idle window to keep the map bounded.
func (rl *rateLimiter) prune(now time.Time) {
	if now.Sub(rl.lastPrune) < rl.idle {
		return
	}
	rl.lastPrune = now
	cutoff := now.Add(-rl.idle)
	for k, v := range rl.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(rl.limiters, k)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
