package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Seann-Moser/socialshare/events"
	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/retry"
	"github.com/Seann-Moser/socialshare/tokenstore"
)

var (
	// ErrInvalidState is returned when a callback's state is unknown or past
	// the ChallengeTTL window. States are single use either way.
	ErrInvalidState = errors.New("oauth: invalid or expired state")
	// ErrNoRefreshToken is returned when a refresh is requested for a user
	// without a stored refresh token.
	ErrNoRefreshToken = errors.New("oauth: no refresh token stored")
)

// Config holds the client registration with the platform.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = "https://x.com/i/oauth2/authorize"
	}
	if c.TokenURL == "" {
		c.TokenURL = "https://api.x.com/2/oauth2/token"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}
	}
	return c
}

// Authorization is a pending authorization request: send the user to URL and
// match the callback by State.
type Authorization struct {
	URL   string
	State string
}

// Flow drives the authorization-code-with-PKCE login against the platform.
type Flow struct {
	cfg      Config
	oauthCfg *oauth2.Config
	states   StateStore
	tokens   tokenstore.Store
	provider Provider
	clients  platform.Factory
	bus      *events.Bus
	policy   retry.Policy
	now      func() time.Time
}

// NewFlow wires a flow manager. All collaborators are required.
func NewFlow(cfg Config, states StateStore, tokens tokenstore.Store, provider Provider, clients platform.Factory, bus *events.Bus) *Flow {
	cfg = cfg.withDefaults()
	return &Flow{
		cfg: cfg,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		states:   states,
		tokens:   tokens,
		provider: provider,
		clients:  clients,
		bus:      bus,
		policy:   retry.DefaultPolicy,
		now:      time.Now,
	}
}

// BeginAuthorization generates a state and PKCE pair, stores the challenge,
// and returns the authorization URL to send the user to.
func (f *Flow) BeginAuthorization(ctx context.Context) (*Authorization, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	if err := f.states.Save(ctx, Challenge{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    f.now(),
	}); err != nil {
		return nil, err
	}
	authURL := f.oauthCfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", GenerateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return &Authorization{URL: authURL, State: state}, nil
}

// CompleteAuthorization redeems the callback code, validates the account
// identity, and persists the credential record. The state is consumed whether
// or not the exchange succeeds.
func (f *Flow) CompleteAuthorization(ctx context.Context, code, state string) (*tokenstore.CredentialRecord, error) {
	record, err := f.completeAuthorization(ctx, code, state)
	if err != nil {
		f.bus.AuthFailed.Publish(events.AuthFailedEvent{State: state, Message: err.Error(), At: f.now()})
		return nil, err
	}
	f.bus.AuthCompleted.Publish(events.AuthCompletedEvent{UserID: record.UserID, Username: record.Username, At: f.now()})
	return record, nil
}

func (f *Flow) completeAuthorization(ctx context.Context, code, state string) (*tokenstore.CredentialRecord, error) {
	ch, err := f.states.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.Expired(f.now()) {
		return nil, ErrInvalidState
	}
	tok, err := f.provider.ExchangeCode(ctx, code, ch.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	identity, err := f.clients(tok.AccessToken).Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity fetch: %w", err)
	}
	record := f.buildRecord(identity.ID, identity.Username, tok)
	if err := f.tokens.Store(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Refresh exchanges the stored refresh token for new credentials and persists
// them. Callers must drop any live session when this fails.
func (f *Flow) Refresh(ctx context.Context, userID string) (*tokenstore.CredentialRecord, error) {
	current, err := f.tokens.Retrieve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	var tok *TokenResponse
	err = retry.Do(ctx, f.policy, providerRetryable, func(ctx context.Context) error {
		var opErr error
		tok, opErr = f.provider.RefreshToken(ctx, current.RefreshToken)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	record := f.buildRecord(current.UserID, current.Username, tok)
	if record.RefreshToken == "" {
		// providers may omit the refresh token when it is still valid
		record.RefreshToken = current.RefreshToken
	}
	if err := f.tokens.Store(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Revoke deletes the stored credentials for the user.
func (f *Flow) Revoke(ctx context.Context, userID string) error {
	if err := f.tokens.Remove(ctx, userID); err != nil {
		return err
	}
	f.bus.AuthRevoked.Publish(events.AuthRevokedEvent{UserID: userID, At: f.now()})
	return nil
}

// StartSweeper periodically removes expired challenges until ctx is done.
func (f *Flow) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.states.Sweep(ctx); err != nil {
					slog.Warn("pkce sweep failed", "err", err)
				}
			}
		}
	}()
}

func (f *Flow) buildRecord(userID, username string, tok *TokenResponse) *tokenstore.CredentialRecord {
	now := f.now()
	record := &tokenstore.CredentialRecord{
		UserID:       userID,
		Username:     username,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		CreatedAt:    now,
	}
	if tok.Scope != "" {
		record.Scope = strings.Fields(tok.Scope)
	}
	if tok.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(tok.ExpiresIn) * time.Second)
		record.ExpiresAt = &expiresAt
	}
	return record
}

func providerRetryable(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr) && provErr.Retryable()
}
