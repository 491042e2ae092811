package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// windowCount tracks requests inside one fixed window per caller.
type windowCount struct {
	seen    int
	resetAt time.Time
}

type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]windowCount
}

func newSimpleRateLimiter(limit int, window time.Duration, now func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string]windowCount),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, active := l.windows[key]
	if active && now.Before(w.resetAt) {
		if w.seen >= l.limit {
			return false
		}
		w.seen++
		l.windows[key] = w
		return true
	}

	// A fresh window also sweeps out finished ones so the map stays
	// bounded by active callers.
	for k, old := range l.windows {
		if !now.Before(old.resetAt) {
			delete(l.windows, k)
		}
	}
	l.windows[key] = windowCount{seen: 1, resetAt: now.Add(l.window)}
	return true
}
