package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidResponse is returned when the token endpoint's response does not
// match the documented shape. The payload is never partially trusted.
var ErrInvalidResponse = errors.New("oauth: invalid token response format")

// TokenResponse is the validated token endpoint response.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}

// ProviderError is a non-2xx rejection from the token endpoint.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("oauth: token endpoint status %d", e.StatusCode)
}

// Retryable reports whether the failure is transient (429 or 5xx).
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Provider performs the outbound calls to the platform's token endpoint.
type Provider interface {
	// ExchangeCode redeems an authorization code with its PKCE verifier.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error)
	// RefreshToken redeems a refresh token for a new token pair.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

var _ Provider = (*HTTPProvider)(nil)

// HTTPProvider is the default Provider: basic-auth'd form posts against the
// configured token URL.
type HTTPProvider struct {
	httpClient *http.Client
	cfg        Config
}

// NewHTTPProvider constructs the default Provider.
func NewHTTPProvider(cfg Config, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{httpClient: httpClient, cfg: cfg}
}

// ExchangeCode performs the authorization_code grant.
func (p *HTTPProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURL)
	form.Set("code_verifier", codeVerifier)
	return p.post(ctx, form)
}

// RefreshToken performs the refresh_token grant.
func (p *HTTPProvider) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.post(ctx, form)
}

func (p *HTTPProvider) post(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("oauth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: token request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oauth: read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return parseTokenResponse(body)
}

// parseTokenResponse validates the response against the documented shape:
// access_token and token_type required strings; refresh_token, expires_in and
// scope optional. Any other shape fails, no field is read from a payload that
// does not validate.
func parseTokenResponse(body []byte) (*TokenResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidResponse)
	}
	out := &TokenResponse{}
	if err := requireString(raw, "access_token", &out.AccessToken); err != nil {
		return nil, err
	}
	if err := requireString(raw, "token_type", &out.TokenType); err != nil {
		return nil, err
	}
	if err := optionalString(raw, "refresh_token", &out.RefreshToken); err != nil {
		return nil, err
	}
	if err := optionalString(raw, "scope", &out.Scope); err != nil {
		return nil, err
	}
	if v, ok := raw["expires_in"]; ok {
		if err := json.Unmarshal(v, &out.ExpiresIn); err != nil || out.ExpiresIn < 0 {
			return nil, fmt.Errorf("%w: expires_in", ErrInvalidResponse)
		}
	}
	return out, nil
}

func requireString(raw map[string]json.RawMessage, field string, dst *string) error {
	v, ok := raw[field]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrInvalidResponse, field)
	}
	if err := json.Unmarshal(v, dst); err != nil || *dst == "" {
		return fmt.Errorf("%w: %s", ErrInvalidResponse, field)
	}
	return nil
}

func optionalString(raw map[string]json.RawMessage, field string, dst *string) error {
	v, ok := raw[field]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidResponse, field)
	}
	return nil
}
