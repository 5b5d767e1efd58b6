package platform

import "context"

// Client is an authenticated handle to the platform API for one user.
type Client interface {
	// Me fetches the authenticated account identity.
	Me(ctx context.Context) (*Identity, error)

	// UploadMedia uploads media in one shot and returns the media ID.
	UploadMedia(ctx context.Context, media []byte, mimeType string) (string, error)

	// InitChunkedUpload starts a chunked upload and returns the media ID.
	InitChunkedUpload(ctx context.Context, totalBytes int, mimeType string) (string, error)

	// AppendChunk uploads one segment. Segment indexes must be contiguous and
	// strictly increasing from zero.
	AppendChunk(ctx context.Context, mediaID string, segmentIndex int, chunk []byte) error

	// FinalizeUpload completes a chunked upload. A nil ProcessingInfo means
	// the media is immediately usable.
	FinalizeUpload(ctx context.Context, mediaID string) (*ProcessingInfo, error)

	// MediaStatus polls the processing state of an uploaded media item.
	MediaStatus(ctx context.Context, mediaID string) (*ProcessingInfo, error)

	// CreatePost publishes a post with the given text and media, returning
	// the post ID.
	CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// Factory builds an authenticated Client from a bearer access token.
type Factory func(accessToken string) Client
