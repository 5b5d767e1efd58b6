package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/tokenstore"
)

// DefaultRefreshThreshold is how close to expiry a session may get before a
// refresh is triggered on access.
const DefaultRefreshThreshold = 5 * time.Minute

// Manager caches live sessions per user on top of the token store. The cache
// is read-through/write-through: the store stays the source of truth.
type Manager struct {
	tokens    tokenstore.Store
	refresher Refresher
	clients   platform.Factory
	threshold time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	// de-duplicates concurrent refreshes for the same user; correctness does
	// not depend on it, last write to the store wins either way
	refreshes singleflight.Group
}

// NewManager constructs a session manager.
func NewManager(tokens tokenstore.Store, refresher Refresher, clients platform.Factory) *Manager {
	return &Manager{
		tokens:    tokens,
		refresher: refresher,
		clients:   clients,
		threshold: DefaultRefreshThreshold,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// CreateSession upserts the record into the token store, builds an
// authenticated handle, and caches the session.
func (m *Manager) CreateSession(ctx context.Context, record *tokenstore.CredentialRecord) (*Session, error) {
	if err := m.tokens.Store(ctx, record); err != nil {
		return nil, err
	}
	sess := &Session{
		UserID:    record.UserID,
		Username:  record.Username,
		Client:    m.clients(record.AccessToken),
		ExpiresAt: record.ExpiresAt,
	}
	m.mu.Lock()
	m.sessions[record.UserID] = sess
	m.mu.Unlock()
	return sess, nil
}

// GetSession returns the cached session, restoring it from the token store
// when absent. Returns nil when no stored record exists. A session within the
// refresh threshold of expiry is refreshed before being returned; a failed
// refresh removes the session and its stored record.
func (m *Manager) GetSession(ctx context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	sess := m.sessions[userID]
	m.mu.RUnlock()

	if sess == nil {
		record, err := m.tokens.Retrieve(ctx, userID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, nil
		}
		if sess, err = m.CreateSession(ctx, record); err != nil {
			return nil, err
		}
	}

	if !sess.nearExpiry(m.now(), m.threshold) {
		return sess, nil
	}
	refreshed, err, _ := m.refreshes.Do(userID, func() (any, error) {
		record, err := m.refresher.Refresh(ctx, userID)
		if err != nil {
			return nil, err
		}
		return m.CreateSession(ctx, record)
	})
	if err != nil {
		if removeErr := m.RemoveSession(ctx, userID); removeErr != nil {
			slog.Warn("failed removing session after refresh failure", "user_id", userID, "err", removeErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return refreshed.(*Session), nil
}

// RemoveSession evicts the cached session and deletes the stored tokens.
func (m *Manager) RemoveSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return m.tokens.Remove(ctx, userID)
}

// ValidateSession performs a live identity check. A credential rejection is
// reported as false, transport errors propagate.
func (m *Manager) ValidateSession(ctx context.Context, userID string) (bool, error) {
	sess, err := m.GetSession(ctx, userID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	if _, err := sess.Client.Me(ctx); err != nil {
		if platform.IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListActiveSessions materializes a session for every valid stored record.
// One user's restore failure is logged and skipped, never aborts the rest.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*Session, error) {
	records, err := m.tokens.ListValid(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(records))
	for _, record := range records {
		sess, err := m.GetSession(ctx, record.UserID)
		if err != nil {
			slog.Warn("skipping session restore", "user_id", record.UserID, "err", err)
			continue
		}
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}
