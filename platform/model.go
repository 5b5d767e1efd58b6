package platform

import (
	"errors"
	"fmt"
)

// Identity is the authenticated account as reported by the platform.
type Identity struct {
	ID       string
	Username string
	Name     string
}

// Media processing states returned by the STATUS poll.
const (
	ProcessingPending    = "pending"
	ProcessingInProgress = "in_progress"
	ProcessingSucceeded  = "succeeded"
	ProcessingFailed     = "failed"
)

// ProcessingInfo reports the state of an uploaded media item.
type ProcessingInfo struct {
	State           string
	CheckAfterSecs  int
	ProgressPercent int
}

// Terminal reports whether processing has reached a final state.
func (p *ProcessingInfo) Terminal() bool {
	return p == nil || p.State == ProcessingSucceeded || p.State == ProcessingFailed
}

// tierRestrictionCode is the platform sub-code for requests rejected because
// the app's API access tier does not include the endpoint.
const tierRestrictionCode = 453

// ErrInvalidResponse is returned when a platform response does not match the
// documented shape. The payload is never partially trusted.
var ErrInvalidResponse = errors.New("platform: invalid response format")

// APIError is an upstream rejection with enough detail to classify it.
type APIError struct {
	StatusCode  int
	Code        int
	Message     string
	Remediation string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform: status %d", e.StatusCode)
}

// Retryable reports whether the failure is transient (429 or 5xx).
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsAuthError reports whether err is a fatal credential rejection (401).
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}

// IsPermissionError reports whether err is a fatal permission rejection (403,
// including the access-tier sub-code).
func IsPermissionError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == 403 || apiErr.Code == tierRestrictionCode)
}

// IsRetryable reports whether err should be retried (429/5xx).
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
