package share

import (
	"errors"
	"fmt"
	"time"

	"github.com/Seann-Moser/socialshare/retry"
)

var (
	// ErrProcessingTimeout is returned when media processing does not reach a
	// terminal state within the poll bound.
	ErrProcessingTimeout = errors.New("share: media processing timed out")
	// ErrNoSession is returned when the subject has no authenticated session.
	ErrNoSession = errors.New("share: no authenticated session for subject")
)

// ValidationError rejects media before any network call. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "share: " + e.Reason
}

// JobState tracks an upload job through one submit call.
type JobState string

const (
	JobPending    JobState = "pending"
	JobUploading  JobState = "uploading"
	JobProcessing JobState = "processing"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
)

// UploadJob is the transient per-submit upload record.
type UploadJob struct {
	ID        string
	MimeType  string
	SizeBytes int
	State     JobState
}

// Status is a point-in-time view of the pipeline's most recent submit.
type Status struct {
	JobID      string
	JobState   JobState
	RetryCount int
	LastError  string
	CanRetry   bool
}

// Config tunes the pipeline. Zero values fall back to platform defaults.
type Config struct {
	// MaxMediaBytes is the hard media size cap (default 5 MB).
	MaxMediaBytes int
	// ChunkSize is both the single-shot threshold and the APPEND segment
	// size (default 1 MB).
	ChunkSize int
	// AllowedMimeTypes is the upload allow-list.
	AllowedMimeTypes []string
	// CaptionLimit is the platform's hard post length in runes (default 280).
	CaptionLimit int
	// CaptionSuffix is appended to every caption before truncation.
	CaptionSuffix string
	// PostURLBase is the host used to build canonical post URLs.
	PostURLBase string
	// PollInterval and MaxPollAttempts bound the processing-status loop.
	PollInterval    time.Duration
	MaxPollAttempts int
	// Retry is the linear-backoff policy for upload and post calls.
	Retry retry.Policy
}

func (c Config) withDefaults() Config {
	if c.MaxMediaBytes <= 0 {
		c.MaxMediaBytes = 5 << 20
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1 << 20
	}
	if len(c.AllowedMimeTypes) == 0 {
		c.AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "video/mp4"}
	}
	if c.CaptionLimit <= 0 {
		c.CaptionLimit = 280
	}
	if c.PostURLBase == "" {
		c.PostURLBase = "https://x.com"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 10
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultPolicy
	}
	return c
}

func (c Config) mimeAllowed(mimeType string) bool {
	for _, allowed := range c.AllowedMimeTypes {
		if allowed == mimeType {
			return true
		}
	}
	return false
}

// postURL builds the canonical post URL.
func (c Config) postURL(postID string) string {
	return fmt.Sprintf("%s/i/web/status/%s", c.PostURLBase, postID)
}
