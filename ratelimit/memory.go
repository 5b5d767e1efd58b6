package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Limiter = (*MemoryLimiter)(nil)

type window struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter is an in-process fixed-window limiter for tests and
// single-node deployments without Redis.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter constructs an in-memory limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// CheckAndConsume increments the window counter, starting a new window if the
// previous one expired.
func (l *MemoryLimiter) CheckAndConsume(ctx context.Context, op Operation, subjectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(op, subjectID)
	now := l.now()
	w, ok := l.windows[k]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(l.cfg.Window)}
		l.windows[k] = w
	}
	w.count++
	if w.count > l.cfg.limitFor(op) {
		return &RateLimitError{Op: op}
	}
	return nil
}

// Remaining reports the unused count in the current window.
func (l *MemoryLimiter) Remaining(ctx context.Context, op Operation, subjectID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit := l.cfg.limitFor(op)
	w, ok := l.windows[key(op, subjectID)]
	if !ok || l.now().After(w.expiresAt) {
		return limit, nil
	}
	if w.count >= limit {
		return 0, nil
	}
	return limit - w.count, nil
}

// Reset clears all counters for the subject.
func (l *MemoryLimiter) Reset(ctx context.Context, subjectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for op := range l.cfg.Limits {
		delete(l.windows, key(op, subjectID))
	}
	return nil
}
