package share

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/socialshare/events"
	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/ratelimit"
	"github.com/Seann-Moser/socialshare/retry"
	"github.com/Seann-Moser/socialshare/session"
)

type fakeSessions struct {
	fn func(ctx context.Context, userID string) (*session.Session, error)
}

func (f *fakeSessions) GetSession(ctx context.Context, userID string) (*session.Session, error) {
	return f.fn(ctx, userID)
}

func sessionsFor(client platform.Client) *fakeSessions {
	return &fakeSessions{fn: func(ctx context.Context, userID string) (*session.Session, error) {
		return &session.Session{UserID: userID, Username: "alice", Client: client}, nil
	}}
}

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		Retry:        retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
}

func newTestPipeline(client platform.Client, cfg Config) (*Pipeline, *events.Bus) {
	bus := events.NewBus()
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{})
	return NewPipeline(sessionsFor(client), limiter, bus, cfg), bus
}

func TestSubmitChunkedUpload(t *testing.T) {
	media := bytes.Repeat([]byte{0xAB}, 2<<20)
	var segments []int
	var appended int
	var postText string
	client := &platform.MockClient{
		InitChunkedUploadFunc: func(ctx context.Context, totalBytes int, mimeType string) (string, error) {
			require.Equal(t, len(media), totalBytes)
			require.Equal(t, "image/jpeg", mimeType)
			return "media-1", nil
		},
		AppendChunkFunc: func(ctx context.Context, mediaID string, segmentIndex int, chunk []byte) error {
			require.Equal(t, "media-1", mediaID)
			segments = append(segments, segmentIndex)
			appended += len(chunk)
			return nil
		},
		FinalizeUploadFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return nil, nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return nil, nil
		},
		CreatePostFunc: func(ctx context.Context, text string, mediaIDs []string) (string, error) {
			postText = text
			require.Equal(t, []string{"media-1"}, mediaIDs)
			return "12345", nil
		},
	}
	p, bus := newTestPipeline(client, testConfig())
	completed := bus.ShareCompleted.Subscribe(1)

	url, err := p.Submit(context.Background(), media, "image/jpeg", "hello world", "u1")
	require.NoError(t, err)
	require.Equal(t, "https://x.com/i/web/status/12345", url)
	require.Equal(t, []int{0, 1}, segments)
	require.Equal(t, len(media), appended)
	require.Equal(t, "hello world", postText)
	require.Equal(t, JobSucceeded, p.Status().JobState)

	select {
	case ev := <-completed:
		require.Equal(t, "u1", ev.SubjectID)
		require.Equal(t, url, ev.PostURL)
	default:
		t.Fatal("expected ShareCompleted event")
	}
}

func TestSubmitSingleShotUnderThreshold(t *testing.T) {
	var singleShot bool
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			singleShot = true
			return "media-1", nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return nil, nil
		},
		CreatePostFunc: func(ctx context.Context, text string, mediaIDs []string) (string, error) {
			return "1", nil
		},
	}
	p, _ := newTestPipeline(client, testConfig())

	_, err := p.Submit(context.Background(), bytes.Repeat([]byte{1}, 512), "image/png", "c", "u1")
	require.NoError(t, err)
	require.True(t, singleShot)
}

func TestSubmitRetriesTransientUploadFailures(t *testing.T) {
	var uploads int
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			uploads++
			if uploads < 3 {
				return "", &platform.APIError{StatusCode: 429, Message: "rate limited"}
			}
			return "media-1", nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return nil, nil
		},
		CreatePostFunc: func(ctx context.Context, text string, mediaIDs []string) (string, error) {
			return "1", nil
		},
	}
	p, _ := newTestPipeline(client, testConfig())

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	require.NoError(t, err)
	require.Equal(t, 3, uploads)
	require.Equal(t, 2, p.Status().RetryCount)
}

func TestSubmitAuthFailureIsFatal(t *testing.T) {
	var uploads int
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			uploads++
			return "", &platform.APIError{StatusCode: 401, Message: "unauthorized"}
		},
	}
	p, bus := newTestPipeline(client, testConfig())
	failed := bus.ShareFailed.Subscribe(1)

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	require.True(t, platform.IsAuthError(err))
	require.Equal(t, 1, uploads)
	require.Equal(t, JobFailed, p.Status().JobState)

	select {
	case <-failed:
	default:
		t.Fatal("expected ShareFailed event")
	}
}

func TestSubmitValidation(t *testing.T) {
	var called bool
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			called = true
			return "media-1", nil
		},
	}
	p, _ := newTestPipeline(client, testConfig())
	ctx := context.Background()

	var valErr *ValidationError
	_, err := p.Submit(ctx, nil, "image/jpeg", "c", "u1")
	require.ErrorAs(t, err, &valErr)

	_, err = p.Submit(ctx, bytes.Repeat([]byte{1}, (5<<20)+1), "image/jpeg", "c", "u1")
	require.ErrorAs(t, err, &valErr)

	_, err = p.Submit(ctx, []byte("data"), "application/pdf", "c", "u1")
	require.ErrorAs(t, err, &valErr)

	require.False(t, called)
}

func TestSubmitRateLimited(t *testing.T) {
	client := &platform.MockClient{}
	bus := events.NewBus()
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{
		Limits: map[ratelimit.Operation]int{ratelimit.OpUpload: 0, ratelimit.OpPost: 0},
	})
	p := NewPipeline(sessionsFor(client), limiter, bus, testConfig())

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	var rlErr *ratelimit.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	require.Equal(t, ratelimit.OpUpload, rlErr.Op)
}

func TestSubmitNoSession(t *testing.T) {
	bus := events.NewBus()
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{})
	sessions := &fakeSessions{fn: func(ctx context.Context, userID string) (*session.Session, error) {
		return nil, nil
	}}
	p := NewPipeline(sessions, limiter, bus, testConfig())

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSubmitCaptionTruncatedAfterSuffix(t *testing.T) {
	var postText string
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			return "media-1", nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return nil, nil
		},
		CreatePostFunc: func(ctx context.Context, text string, mediaIDs []string) (string, error) {
			postText = text
			return "1", nil
		},
	}
	cfg := testConfig()
	cfg.CaptionSuffix = " #tag"
	p, _ := newTestPipeline(client, cfg)

	caption := string(bytes.Repeat([]byte{'x'}, 300))
	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", caption, "u1")
	require.NoError(t, err)
	require.Equal(t, 280, len([]rune(postText)))
	require.Equal(t, string([]rune(caption+" #tag")[:280]), postText)
}

func TestSubmitProcessingTimeout(t *testing.T) {
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			return "media-1", nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return &platform.ProcessingInfo{State: platform.ProcessingInProgress}, nil
		},
	}
	cfg := testConfig()
	cfg.MaxPollAttempts = 2
	p, _ := newTestPipeline(client, cfg)

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	require.ErrorIs(t, err, ErrProcessingTimeout)
}

func TestSubmitProcessingFailureStopsPolling(t *testing.T) {
	var polls int
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			return "media-1", nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			polls++
			return &platform.ProcessingInfo{State: platform.ProcessingFailed}, nil
		},
	}
	p, _ := newTestPipeline(client, testConfig())

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	require.Error(t, err)
	require.Equal(t, 1, polls)
}

func TestSubmitEmitsStartedBeforeUpload(t *testing.T) {
	bus := events.NewBus()
	started := bus.ShareStarted.Subscribe(1)
	var sawStarted bool
	client := &platform.MockClient{
		UploadMediaFunc: func(ctx context.Context, media []byte, mimeType string) (string, error) {
			select {
			case <-started:
				sawStarted = true
			default:
			}
			return "media-1", nil
		},
		MediaStatusFunc: func(ctx context.Context, mediaID string) (*platform.ProcessingInfo, error) {
			return nil, nil
		},
		CreatePostFunc: func(ctx context.Context, text string, mediaIDs []string) (string, error) {
			return "1", nil
		},
	}
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{})
	p := NewPipeline(sessionsFor(client), limiter, bus, testConfig())

	_, err := p.Submit(context.Background(), []byte("img"), "image/jpeg", "c", "u1")
	require.NoError(t, err)
	require.True(t, sawStarted)
}
