package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ StateStore = (*RedisStateStore)(nil)

// RedisStateStore keeps pending challenges under pkce:{state} with the
// ChallengeTTL, so abandoned attempts expire server-side.
type RedisStateStore struct {
	client redis.UniversalClient
}

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save stores the encoded challenge with the ChallengeTTL.
func (s *RedisStateStore) Save(ctx context.Context, ch Challenge) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("oauth: marshal challenge: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(ch.State), payload, ChallengeTTL).Err(); err != nil {
		return fmt.Errorf("oauth: persist challenge: %w", err)
	}
	return nil
}

// Take atomically loads and deletes the challenge.
func (s *RedisStateStore) Take(ctx context.Context, state string) (*Challenge, error) {
	payload, err := s.client.GetDel(ctx, stateKey(state)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oauth: load challenge: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal(payload, &ch); err != nil {
		return nil, fmt.Errorf("oauth: decode challenge: %w", err)
	}
	return &ch, nil
}

// Sweep is a no-op, Redis TTLs reap expired challenges.
func (s *RedisStateStore) Sweep(ctx context.Context) error {
	return nil
}

func stateKey(state string) string {
	return "pkce:" + state
}
