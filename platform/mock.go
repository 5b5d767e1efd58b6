package platform

import "context"

// MockClient provides customizable hooks for testing Client behavior.
type MockClient struct {
	MeFunc                func(ctx context.Context) (*Identity, error)
	UploadMediaFunc       func(ctx context.Context, media []byte, mimeType string) (string, error)
	InitChunkedUploadFunc func(ctx context.Context, totalBytes int, mimeType string) (string, error)
	AppendChunkFunc       func(ctx context.Context, mediaID string, segmentIndex int, chunk []byte) error
	FinalizeUploadFunc    func(ctx context.Context, mediaID string) (*ProcessingInfo, error)
	MediaStatusFunc       func(ctx context.Context, mediaID string) (*ProcessingInfo, error)
	CreatePostFunc        func(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)

// Me calls MeFunc if set, otherwise returns nil, nil
func (m *MockClient) Me(ctx context.Context) (*Identity, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx)
	}
	return nil, nil
}

// UploadMedia calls UploadMediaFunc if set, otherwise returns "", nil
func (m *MockClient) UploadMedia(ctx context.Context, media []byte, mimeType string) (string, error) {
	if m.UploadMediaFunc != nil {
		return m.UploadMediaFunc(ctx, media, mimeType)
	}
	return "", nil
}

// InitChunkedUpload calls InitChunkedUploadFunc if set, otherwise returns "", nil
func (m *MockClient) InitChunkedUpload(ctx context.Context, totalBytes int, mimeType string) (string, error) {
	if m.InitChunkedUploadFunc != nil {
		return m.InitChunkedUploadFunc(ctx, totalBytes, mimeType)
	}
	return "", nil
}

// AppendChunk calls AppendChunkFunc if set, otherwise returns nil
func (m *MockClient) AppendChunk(ctx context.Context, mediaID string, segmentIndex int, chunk []byte) error {
	if m.AppendChunkFunc != nil {
		return m.AppendChunkFunc(ctx, mediaID, segmentIndex, chunk)
	}
	return nil
}

// FinalizeUpload calls FinalizeUploadFunc if set, otherwise returns nil, nil
func (m *MockClient) FinalizeUpload(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	if m.FinalizeUploadFunc != nil {
		return m.FinalizeUploadFunc(ctx, mediaID)
	}
	return nil, nil
}

// MediaStatus calls MediaStatusFunc if set, otherwise returns nil, nil
func (m *MockClient) MediaStatus(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	if m.MediaStatusFunc != nil {
		return m.MediaStatusFunc(ctx, mediaID)
	}
	return nil, nil
}

// CreatePost calls CreatePostFunc if set, otherwise returns "", nil
func (m *MockClient) CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error) {
	if m.CreatePostFunc != nil {
		return m.CreatePostFunc(ctx, text, mediaIDs)
	}
	return "", nil
}
