package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a keyed sliding-window limiter.
type Limiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	window  time.Duration
	maxHits int
	now     func() time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		hits:    make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// Allow records a hit for key when the window has room. When it does not,
// the returned duration is how long until the oldest hit expires.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	valid := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}

	if len(valid) >= l.maxHits {
		l.hits[key] = valid
		if len(valid) == 0 {
			return false, l.window
		}
		return false, valid[0].Add(l.window).Sub(now)
	}

	l.hits[key] = append(valid, now)
	return true, 0
}
