package oauth

import "context"

// MockProvider provides customizable hooks for testing Provider behavior.
type MockProvider struct {
	ExchangeCodeFunc func(ctx context.Context, code, codeVerifier string) (*TokenResponse, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Ensure MockProvider implements Provider
var _ Provider = (*MockProvider)(nil)

// ExchangeCode calls ExchangeCodeFunc if set, otherwise returns nil, nil
func (m *MockProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code, codeVerifier)
	}
	return nil, nil
}

// RefreshToken calls RefreshTokenFunc if set, otherwise returns nil, nil
func (m *MockProvider) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, nil
}
