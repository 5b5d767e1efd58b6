package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Operation identifies the rate-limited action.
type Operation string

const (
	OpUpload Operation = "upload"
	OpPost   Operation = "post"
)

// DefaultWindow is the fixed counting window.
const DefaultWindow = 15 * time.Minute

// DefaultLimits are the per-window caps observed from the platform tier.
var DefaultLimits = map[Operation]int{
	OpUpload: 30,
	OpPost:   50,
}

// RateLimitError reports a rejected operation. The triggering increment is
// kept, repeated attempts inside the same window stay rejected.
type RateLimitError struct {
	Op Operation
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", e.Op)
}

// Limiter counts operations per (operation, subject) in fixed windows.
type Limiter interface {
	// CheckAndConsume increments the counter and returns *RateLimitError if
	// the post-increment count exceeds the operation's limit.
	CheckAndConsume(ctx context.Context, op Operation, subjectID string) error
	// Remaining reports how many operations are left in the current window.
	Remaining(ctx context.Context, op Operation, subjectID string) (int, error)
	// Reset clears all operation counters for the subject.
	Reset(ctx context.Context, subjectID string) error
}

// Config carries per-operation limits and the window length. Zero values fall
// back to the defaults above.
type Config struct {
	Window time.Duration
	Limits map[Operation]int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Limits == nil {
		c.Limits = DefaultLimits
	}
	return c
}

func (c Config) limitFor(op Operation) int {
	if l, ok := c.Limits[op]; ok {
		return l
	}
	if l, ok := DefaultLimits[op]; ok {
		return l
	}
	return 0
}

func key(op Operation, subjectID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", op, subjectID)
}
