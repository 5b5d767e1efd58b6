package session

import (
	"context"
	"errors"
	"time"

	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/tokenstore"
)

// ErrRefreshFailed is returned when a near-expiry session could not be
// refreshed. The session and its stored credentials are already removed when
// this is returned.
var ErrRefreshFailed = errors.New("session: token refresh failed")

// Session is a live authenticated handle for one user. Derived from a
// credential record, in-memory only.
type Session struct {
	UserID    string
	Username  string
	Client    platform.Client
	ExpiresAt *time.Time
}

// nearExpiry reports whether the session expires within threshold of now.
func (s *Session) nearExpiry(now time.Time, threshold time.Duration) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Sub(now) < threshold
}

// Refresher exchanges a user's stored refresh token for new credentials.
// Satisfied by oauth.Flow.
type Refresher interface {
	Refresh(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error)
}
