package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/socialshare/envelope"
	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/tokenstore"
)

type fakeRefresher struct {
	fn    func(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error)
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(ctx, userID)
	}
	return nil, errors.New("no refresher configured")
}

func memoryStore(t *testing.T) tokenstore.Store {
	t.Helper()
	store, err := tokenstore.NewMemoryStore(bytes.Repeat([]byte{0x44}, envelope.KeySize))
	require.NoError(t, err)
	return store
}

func mockFactory(client *platform.MockClient) platform.Factory {
	return func(accessToken string) platform.Client {
		return client
	}
}

func record(userID string, expiresIn time.Duration) *tokenstore.CredentialRecord {
	now := time.Now().UTC()
	r := &tokenstore.CredentialRecord{
		UserID:       userID,
		Username:     "handle_" + userID,
		AccessToken:  "at-" + userID,
		RefreshToken: "rt-" + userID,
		CreatedAt:    now,
	}
	if expiresIn > 0 {
		expiresAt := now.Add(expiresIn)
		r.ExpiresAt = &expiresAt
	}
	return r
}

func TestGetSessionRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	tokens := memoryStore(t)
	m := NewManager(tokens, &fakeRefresher{}, mockFactory(&platform.MockClient{}))

	require.NoError(t, tokens.Store(ctx, record("u1", time.Hour)))

	sess, err := m.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "u1", sess.UserID)
	require.Equal(t, "handle_u1", sess.Username)

	// the second call hits the cache
	again, err := m.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.Same(t, sess, again)
}

func TestGetSessionAbsent(t *testing.T) {
	m := NewManager(memoryStore(t), &fakeRefresher{}, mockFactory(&platform.MockClient{}))
	sess, err := m.GetSession(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestGetSessionRefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	tokens := memoryStore(t)
	newExpiry := time.Now().UTC().Add(2 * time.Hour)
	refresher := &fakeRefresher{
		fn: func(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error) {
			r := record(userID, 0)
			r.AccessToken = "refreshed-at"
			r.ExpiresAt = &newExpiry
			return r, nil
		},
	}
	m := NewManager(tokens, refresher, mockFactory(&platform.MockClient{}))

	// stored record expires in 60 seconds, inside the 5 minute threshold
	require.NoError(t, tokens.Store(ctx, record("u1", time.Minute)))

	sess, err := m.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, 1, refresher.calls)
	require.NotNil(t, sess.ExpiresAt)
	require.True(t, sess.ExpiresAt.Equal(newExpiry))

	stored, err := tokens.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "refreshed-at", stored.AccessToken)
}

func TestGetSessionRefreshFailureEvicts(t *testing.T) {
	ctx := context.Background()
	tokens := memoryStore(t)
	refresher := &fakeRefresher{
		fn: func(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error) {
			return nil, errors.New("provider rejected refresh")
		},
	}
	m := NewManager(tokens, refresher, mockFactory(&platform.MockClient{}))

	require.NoError(t, tokens.Store(ctx, record("u1", time.Minute)))

	_, err := m.GetSession(ctx, "u1")
	require.ErrorIs(t, err, ErrRefreshFailed)

	// both the cache and the stored record are gone
	stored, err := tokens.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, stored)
	m.mu.RLock()
	_, cached := m.sessions["u1"]
	m.mu.RUnlock()
	require.False(t, cached)
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()
	tokens := memoryStore(t)
	client := &platform.MockClient{
		MeFunc: func(ctx context.Context) (*platform.Identity, error) {
			return &platform.Identity{ID: "u1", Username: "alice"}, nil
		},
	}
	m := NewManager(tokens, &fakeRefresher{}, mockFactory(client))
	require.NoError(t, tokens.Store(ctx, record("u1", 0)))

	ok, err := m.ValidateSession(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	// a credential rejection is reported as false, not an error
	client.MeFunc = func(ctx context.Context) (*platform.Identity, error) {
		return nil, &platform.APIError{StatusCode: 401, Message: "unauthorized"}
	}
	ok, err = m.ValidateSession(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	// transport errors propagate
	client.MeFunc = func(ctx context.Context) (*platform.Identity, error) {
		return nil, errors.New("connection reset")
	}
	_, err = m.ValidateSession(ctx, "u1")
	require.Error(t, err)
}

func TestValidateSessionMissing(t *testing.T) {
	m := NewManager(memoryStore(t), &fakeRefresher{}, mockFactory(&platform.MockClient{}))
	ok, err := m.ValidateSession(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListActiveSessionsSkipsFailures(t *testing.T) {
	ctx := context.Background()
	good := record("u1", time.Hour)
	bad := record("u2", time.Hour)
	tokens := &tokenstore.MockStore{
		ListValidFunc: func(ctx context.Context) ([]*tokenstore.CredentialRecord, error) {
			return []*tokenstore.CredentialRecord{good, bad}, nil
		},
		RetrieveFunc: func(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error) {
			if userID == "u2" {
				return nil, errors.New("corrupt record")
			}
			return good, nil
		},
	}
	m := NewManager(tokens, &fakeRefresher{}, mockFactory(&platform.MockClient{}))

	sessions, err := m.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "u1", sessions[0].UserID)
}

func TestRemoveSession(t *testing.T) {
	ctx := context.Background()
	tokens := memoryStore(t)
	m := NewManager(tokens, &fakeRefresher{}, mockFactory(&platform.MockClient{}))

	_, err := m.CreateSession(ctx, record("u1", time.Hour))
	require.NoError(t, err)
	require.NoError(t, m.RemoveSession(ctx, "u1"))

	stored, err := tokens.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, stored)
	sess, err := m.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, sess)
}
