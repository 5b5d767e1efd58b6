package share

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Seann-Moser/socialshare/events"
	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/ratelimit"
	"github.com/Seann-Moser/socialshare/retry"
	"github.com/Seann-Moser/socialshare/session"
)

// Sessions resolves an authenticated handle per subject. Satisfied by
// session.Manager.
type Sessions interface {
	GetSession(ctx context.Context, userID string) (*session.Session, error)
}

// Pipeline validates, uploads, and posts media for one platform. Once a
// submit starts it runs to success, fatal failure, or retry exhaustion;
// callers cannot abort it mid-flight.
type Pipeline struct {
	sessions Sessions
	limiter  ratelimit.Limiter
	bus      *events.Bus
	cfg      Config

	mu     sync.Mutex
	status Status
}

// NewPipeline wires a posting pipeline.
func NewPipeline(sessions Sessions, limiter ratelimit.Limiter, bus *events.Bus, cfg Config) *Pipeline {
	return &Pipeline{
		sessions: sessions,
		limiter:  limiter,
		bus:      bus,
		cfg:      cfg.withDefaults(),
	}
}

// Status reports the most recent submit's retry count, last error, and
// whether another retry would be permitted.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Submit validates and uploads the media, waits for processing, and posts it
// with the caption. Returns the canonical post URL. Exactly one ShareStarted
// event is emitted at entry and exactly one of ShareCompleted/ShareFailed
// before return.
func (p *Pipeline) Submit(ctx context.Context, media []byte, mimeType, caption, subjectID string) (postURL string, err error) {
	job := &UploadJob{ID: uuid.NewString(), MimeType: mimeType, SizeBytes: len(media), State: JobPending}
	p.setStatus(Status{JobID: job.ID, JobState: job.State})
	p.bus.ShareStarted.Publish(events.ShareStartedEvent{SubjectID: subjectID, At: time.Now()})
	defer func() {
		if err != nil {
			p.setJobState(job, JobFailed)
			p.bus.ShareFailed.Publish(events.ShareFailedEvent{SubjectID: subjectID, Message: err.Error(), At: time.Now()})
			return
		}
		p.setJobState(job, JobSucceeded)
		p.bus.ShareCompleted.Publish(events.ShareCompletedEvent{SubjectID: subjectID, PostURL: postURL, At: time.Now()})
	}()

	if err = p.validate(media, mimeType); err != nil {
		return "", err
	}
	if err = p.limiter.CheckAndConsume(ctx, ratelimit.OpUpload, subjectID); err != nil {
		return "", err
	}
	sess, err := p.sessions.GetSession(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", ErrNoSession
	}

	p.setJobState(job, JobUploading)
	var mediaID string
	err = p.withRetry(ctx, func(ctx context.Context) error {
		var opErr error
		mediaID, opErr = p.upload(ctx, sess.Client, media, mimeType)
		return opErr
	})
	if err != nil {
		return "", err
	}

	p.setJobState(job, JobProcessing)
	if err = p.awaitProcessing(ctx, sess.Client, mediaID); err != nil {
		return "", err
	}

	if err = p.limiter.CheckAndConsume(ctx, ratelimit.OpPost, subjectID); err != nil {
		return "", err
	}
	text := truncateRunes(caption+p.cfg.CaptionSuffix, p.cfg.CaptionLimit)
	var postID string
	err = p.withRetry(ctx, func(ctx context.Context) error {
		var opErr error
		postID, opErr = sess.Client.CreatePost(ctx, text, []string{mediaID})
		return opErr
	})
	if err != nil {
		return "", err
	}
	return p.cfg.postURL(postID), nil
}

func (p *Pipeline) validate(media []byte, mimeType string) error {
	if len(media) == 0 {
		return &ValidationError{Reason: "empty media payload"}
	}
	if len(media) > p.cfg.MaxMediaBytes {
		return &ValidationError{Reason: fmt.Sprintf("media size %d exceeds limit %d", len(media), p.cfg.MaxMediaBytes)}
	}
	if !p.cfg.mimeAllowed(mimeType) {
		return &ValidationError{Reason: "unsupported media type " + mimeType}
	}
	return nil
}

// upload runs the single-shot call for small media and the INIT/APPEND/
// FINALIZE protocol above the chunk threshold. Segment indexes are contiguous
// and strictly increasing.
func (p *Pipeline) upload(ctx context.Context, client platform.Client, media []byte, mimeType string) (string, error) {
	if len(media) <= p.cfg.ChunkSize {
		return client.UploadMedia(ctx, media, mimeType)
	}
	mediaID, err := client.InitChunkedUpload(ctx, len(media), mimeType)
	if err != nil {
		return "", err
	}
	for segment, offset := 0, 0; offset < len(media); segment, offset = segment+1, offset+p.cfg.ChunkSize {
		end := offset + p.cfg.ChunkSize
		if end > len(media) {
			end = len(media)
		}
		if err := client.AppendChunk(ctx, mediaID, segment, media[offset:end]); err != nil {
			return "", err
		}
	}
	info, err := client.FinalizeUpload(ctx, mediaID)
	if err != nil {
		return "", err
	}
	if info != nil && info.State == platform.ProcessingFailed {
		return "", fmt.Errorf("share: media processing failed after finalize")
	}
	return mediaID, nil
}

// awaitProcessing polls the media status until a terminal state or the poll
// bound is hit.
func (p *Pipeline) awaitProcessing(ctx context.Context, client platform.Client, mediaID string) error {
	for attempt := 0; attempt < p.cfg.MaxPollAttempts; attempt++ {
		info, err := client.MediaStatus(ctx, mediaID)
		if err != nil {
			return err
		}
		if info == nil || info.State == platform.ProcessingSucceeded {
			return nil
		}
		if info.State == platform.ProcessingFailed {
			return fmt.Errorf("share: media processing failed")
		}
		slog.Debug("media still processing", "media_id", mediaID, "state", info.State, "attempt", attempt)
		select {
		case <-time.After(p.cfg.PollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ErrProcessingTimeout
}

// withRetry applies the linear-backoff policy with platform classification
// and keeps the pipeline status current.
func (p *Pipeline) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := 0
	return retry.Do(ctx, p.cfg.Retry, func(err error) bool {
		retryable := platform.IsRetryable(err)
		p.mu.Lock()
		p.status.LastError = err.Error()
		p.status.CanRetry = retryable && attempts < p.cfg.Retry.MaxAttempts
		p.mu.Unlock()
		return retryable
	}, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			p.mu.Lock()
			p.status.RetryCount++
			p.mu.Unlock()
		}
		return op(ctx)
	})
}

func (p *Pipeline) setStatus(st Status) {
	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
}

func (p *Pipeline) setJobState(job *UploadJob, state JobState) {
	job.State = state
	p.mu.Lock()
	p.status.JobState = state
	p.mu.Unlock()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
