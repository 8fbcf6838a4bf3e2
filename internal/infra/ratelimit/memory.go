// Package ratelimit holds the process-local fixed-window limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"tw-license-service/internal/domain"
	"tw-license-service/internal/domain/ports/adapter"
)

var (
	_ adapter.RateLimiter = (*MemoryLimiter)(nil)
	_ adapter.Sweeper     = (*MemoryLimiter)(nil)
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter counts calls per identifier in windows aligned to the Unix epoch.
// It is only authoritative for a single instance; use the Redis limiter when scaled out.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, identifier string, limit int, win time.Duration) (adapter.Decision, error) {
	if limit <= 0 || win <= 0 {
		return adapter.Decision{}, domain.ErrInvalidArgument
	}
	now := l.now()
	_, reset := WindowBounds(now, win)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: reset}
		l.windows[identifier] = w
	}
	if w.count >= limit {
		return adapter.Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: w.resetAt}, nil
	}
	w.count++
	return adapter.Decision{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: w.resetAt}, nil
}

// Sweep drops every window that has already reset.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked windows.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// WindowBounds returns the fixed window containing now: start is now
// truncated to a multiple of win since the Unix epoch.
func WindowBounds(now time.Time, win time.Duration) (start, reset time.Time) {
	ms := now.UnixMilli()
	w := win.Milliseconds()
	if w <= 0 {
		w = 1
	}
	startMs := (ms / w) * w
	start = time.UnixMilli(startMs)
	return start, start.Add(time.Duration(w) * time.Millisecond)
}
