package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter is a fixed-window limiter backed by Redis INCR with a window
// TTL set on the first increment. Counters auto-expire with the window.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedisLimiter constructs a limiter on an existing Redis client.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg.withDefaults()}
}

// CheckAndConsume atomically increments the window counter.
func (l *RedisLimiter) CheckAndConsume(ctx context.Context, op Operation, subjectID string) error {
	k := key(op, subjectID)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: incr %s: %w", k, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return fmt.Errorf("ratelimit: expire %s: %w", k, err)
		}
	}
	if int(count) > l.cfg.limitFor(op) {
		return &RateLimitError{Op: op}
	}
	return nil
}

// Remaining returns the unused count in the current window, never negative.
func (l *RedisLimiter) Remaining(ctx context.Context, op Operation, subjectID string) (int, error) {
	limit := l.cfg.limitFor(op)
	count, err := l.client.Get(ctx, key(op, subjectID)).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: get %s: %w", key(op, subjectID), err)
	}
	if count >= limit {
		return 0, nil
	}
	return limit - count, nil
}

// Reset deletes every operation counter for the subject.
func (l *RedisLimiter) Reset(ctx context.Context, subjectID string) error {
	keys := make([]string, 0, len(l.cfg.Limits))
	for op := range l.cfg.Limits {
		keys = append(keys, key(op, subjectID))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("ratelimit: reset %s: %w", subjectID, err)
	}
	return nil
}
