package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxTrackedAccounts = 10000
	limiterIdle        = time.Hour
)

// accountLimiter hands out one token bucket per account.
type accountLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[int64]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newAccountLimiter(limit rate.Limit, burst int) *accountLimiter {
	if burst < 1 {
		burst = 1
	}
	return &accountLimiter{limit: limit, burst: burst, limiters: make(map[int64]*limiterEntry)}
}

// Allow reports whether id may act now. A zero limit disables limiting.
func (a *accountLimiter) Allow(id int64, now time.Time) bool {
	if a == nil || a.limit == 0 {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.limiters[id]
	if !ok {
		if len(a.limiters) >= maxTrackedAccounts {
			a.pruneLocked(now.Add(-limiterIdle))
		}
		e = &limiterEntry{lim: rate.NewLimiter(a.limit, a.burst)}
		a.limiters[id] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

// pruneLocked drops buckets idle since before cutoff. a.mu must be held.
func (a *accountLimiter) pruneLocked(cutoff time.Time) {
	for id, e := range a.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(a.limiters, id)
		}
	}
}
