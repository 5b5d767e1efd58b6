package oauth

import (
	"context"
	"sync"
	"time"
)

// ChallengeTTL is how long an issued authorization request stays valid.
const ChallengeTTL = 10 * time.Minute

// Challenge is an in-flight PKCE authorization attempt, keyed by its CSRF
// state. Consumed exactly once on callback or swept after ChallengeTTL.
type Challenge struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the challenge is past its window.
func (c *Challenge) Expired(now time.Time) bool {
	return now.Sub(c.CreatedAt) > ChallengeTTL
}

// StateStore persists pending challenges under pkce:{state}.
type StateStore interface {
	// Save stores the challenge with the ChallengeTTL.
	Save(ctx context.Context, ch Challenge) error
	// Take returns the challenge and deletes it, or nil when absent. The
	// delete happens even when the challenge has expired (single use).
	Take(ctx context.Context, state string) (*Challenge, error)
	// Sweep removes expired challenges. Backends with native TTLs may no-op.
	Sweep(ctx context.Context) error
}

var _ StateStore = (*MemoryStateStore)(nil)

// MemoryStateStore is an in-process StateStore for tests and single-node
// deployments without Redis.
type MemoryStateStore struct {
	now func() time.Time

	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryStateStore constructs an in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		now:        time.Now,
		challenges: make(map[string]Challenge),
	}
}

// Save stores the challenge keyed by state.
func (s *MemoryStateStore) Save(ctx context.Context, ch Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.State] = ch
	return nil
}

// Take returns and deletes the challenge.
func (s *MemoryStateStore) Take(ctx context.Context, state string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[state]
	if !ok {
		return nil, nil
	}
	delete(s.challenges, state)
	return &ch, nil
}

// Sweep drops challenges past the window.
func (s *MemoryStateStore) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for state, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, state)
		}
	}
	return nil
}
