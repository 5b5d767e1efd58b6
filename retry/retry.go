package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy controls how many attempts are made and how long to wait between
// them. Backoff is linear: the wait before attempt n+1 is BaseDelay * n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the upstream platform guidance: three attempts with a
// one second base delay.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Do runs op up to p.MaxAttempts times. An error for which retryable returns
// false is surfaced immediately; exhausting attempts surfaces the last error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if !retryable(last) {
			return last
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.BaseDelay * time.Duration(attempt)
		slog.Debug("retrying after failure", "attempt", attempt, "delay", delay, "err", last)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return last
}
