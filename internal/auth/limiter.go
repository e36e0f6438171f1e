package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter throttles login attempts per key (username or client
// address). Keys idle long enough for their bucket to refill are dropped.
type LoginLimiter struct {
	mu        sync.Mutex
	limits    map[string]*limiterEntry
	every     time.Duration
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewLoginLimiter(every time.Duration, burst int) *LoginLimiter {
	return &LoginLimiter{
		limits: make(map[string]*limiterEntry),
		every:  every,
		burst:  burst,
		idle:   every * time.Duration(max(burst, 1)),
		now:    time.Now,
	}
}

func (l *LoginLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	e, ok := l.limits[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limits[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweep drops entries whose bucket is full again; a fresh limiter would
// behave the same.
func (l *LoginLimiter) sweep(now time.Time) {
	for key, e := range l.limits {
		if now.Sub(e.lastSeen) >= l.idle {
			delete(l.limits, key)
		}
	}
	l.lastSweep = now
}

func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limits)
}
