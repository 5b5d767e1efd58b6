package tokenstore

import "context"

// MockStore provides customizable hooks for testing Store behavior.
type MockStore struct {
	StoreFunc     func(ctx context.Context, record *CredentialRecord) error
	RetrieveFunc  func(ctx context.Context, userID string) (*CredentialRecord, error)
	RemoveFunc    func(ctx context.Context, userID string) error
	ListValidFunc func(ctx context.Context) ([]*CredentialRecord, error)
	RotateKeyFunc func(ctx context.Context, newKey []byte) error
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)

// Store calls StoreFunc if set, otherwise returns nil
func (m *MockStore) Store(ctx context.Context, record *CredentialRecord) error {
	if m.StoreFunc != nil {
		return m.StoreFunc(ctx, record)
	}
	return nil
}

// Retrieve calls RetrieveFunc if set, otherwise returns nil, nil
func (m *MockStore) Retrieve(ctx context.Context, userID string) (*CredentialRecord, error) {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, userID)
	}
	return nil, nil
}

// Remove calls RemoveFunc if set, otherwise returns nil
func (m *MockStore) Remove(ctx context.Context, userID string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, userID)
	}
	return nil
}

// ListValid calls ListValidFunc if set, otherwise returns nil, nil
func (m *MockStore) ListValid(ctx context.Context) ([]*CredentialRecord, error) {
	if m.ListValidFunc != nil {
		return m.ListValidFunc(ctx)
	}
	return nil, nil
}

// RotateKey calls RotateKeyFunc if set, otherwise returns nil
func (m *MockStore) RotateKey(ctx context.Context, newKey []byte) error {
	if m.RotateKeyFunc != nil {
		return m.RotateKeyFunc(ctx, newKey)
	}
	return nil
}
