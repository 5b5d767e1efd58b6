package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Endpoints are the platform API hosts. Zero values fall back to the
// production hosts.
type Endpoints struct {
	APIBase    string
	UploadBase string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.APIBase == "" {
		e.APIBase = "https://api.x.com"
	}
	if e.UploadBase == "" {
		e.UploadBase = "https://upload.x.com"
	}
	return e
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient is the default bearer-authenticated Client.
type HTTPClient struct {
	httpClient  *http.Client
	endpoints   Endpoints
	accessToken string
}

// NewHTTPClient constructs a Client for one access token.
func NewHTTPClient(accessToken string, endpoints Endpoints, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		httpClient:  httpClient,
		endpoints:   endpoints.withDefaults(),
		accessToken: accessToken,
	}
}

// NewFactory returns a Factory that builds HTTP clients against the given
// endpoints.
func NewFactory(endpoints Endpoints, httpClient *http.Client) Factory {
	return func(accessToken string) Client {
		return NewHTTPClient(accessToken, endpoints, httpClient)
	}
}

// Me fetches /2/users/me and validates the identity shape.
func (c *HTTPClient) Me(ctx context.Context) (*Identity, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoints.APIBase+"/2/users/me", "", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data *struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data == nil || resp.Data.ID == "" || resp.Data.Username == "" {
		return nil, fmt.Errorf("%w: users/me", ErrInvalidResponse)
	}
	return &Identity{ID: resp.Data.ID, Username: resp.Data.Username, Name: resp.Data.Name}, nil
}

// UploadMedia performs a single-shot upload.
func (c *HTTPClient) UploadMedia(ctx context.Context, media []byte, mimeType string) (string, error) {
	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(media))
	form.Set("media_type", mimeType)
	body, err := c.do(ctx, http.MethodPost, c.uploadURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	return parseMediaID(body)
}

// InitChunkedUpload declares the total size and type of a chunked upload.
func (c *HTTPClient) InitChunkedUpload(ctx context.Context, totalBytes int, mimeType string) (string, error) {
	form := url.Values{}
	form.Set("command", "INIT")
	form.Set("total_bytes", strconv.Itoa(totalBytes))
	form.Set("media_type", mimeType)
	body, err := c.do(ctx, http.MethodPost, c.uploadURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	return parseMediaID(body)
}

// AppendChunk uploads one segment of a chunked upload.
func (c *HTTPClient) AppendChunk(ctx context.Context, mediaID string, segmentIndex int, chunk []byte) error {
	form := url.Values{}
	form.Set("command", "APPEND")
	form.Set("media_id", mediaID)
	form.Set("segment_index", strconv.Itoa(segmentIndex))
	form.Set("media_data", base64.StdEncoding.EncodeToString(chunk))
	_, err := c.do(ctx, http.MethodPost, c.uploadURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	return err
}

// FinalizeUpload completes a chunked upload.
func (c *HTTPClient) FinalizeUpload(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	form := url.Values{}
	form.Set("command", "FINALIZE")
	form.Set("media_id", mediaID)
	body, err := c.do(ctx, http.MethodPost, c.uploadURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	return parseProcessingInfo(body)
}

// MediaStatus polls the processing state of an uploaded media item.
func (c *HTTPClient) MediaStatus(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	u := fmt.Sprintf("%s?command=STATUS&media_id=%s", c.uploadURL(), url.QueryEscape(mediaID))
	body, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return nil, err
	}
	// media without async processing has no processing_info; nil means done
	return parseProcessingInfo(body)
}

// CreatePost publishes a post and returns its ID.
func (c *HTTPClient) CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error) {
	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("platform: marshal post: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, c.endpoints.APIBase+"/2/tweets", "application/json", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	var resp struct {
		Data *struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data == nil || resp.Data.ID == "" {
		return "", fmt.Errorf("%w: create post", ErrInvalidResponse)
	}
	return resp.Data.ID, nil
}

func (c *HTTPClient) uploadURL() string {
	return c.endpoints.UploadBase + "/1.1/media/upload.json"
}

// do executes one authenticated request and returns the response body, or a
// classified *APIError for non-2xx statuses.
func (c *HTTPClient) do(ctx context.Context, method, rawURL, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("platform: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, payload)
	}
	return payload, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var parsed struct {
		Detail string `json:"detail"`
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.Errors) > 0 {
			apiErr.Code = parsed.Errors[0].Code
			apiErr.Message = parsed.Errors[0].Message
		} else if parsed.Detail != "" {
			apiErr.Message = parsed.Detail
		}
	}
	if status == 403 || apiErr.Code == tierRestrictionCode {
		apiErr.Remediation = "the app's API access tier does not allow this operation; upgrade the project's access level in the developer portal"
	}
	return apiErr
}

func parseMediaID(body []byte) (string, error) {
	var resp struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.MediaIDString == "" {
		return "", fmt.Errorf("%w: media upload", ErrInvalidResponse)
	}
	return resp.MediaIDString, nil
}

func parseProcessingInfo(body []byte) (*ProcessingInfo, error) {
	var resp struct {
		ProcessingInfo *struct {
			State           string `json:"state"`
			CheckAfterSecs  int    `json:"check_after_secs"`
			ProgressPercent int    `json:"progress_percent"`
		} `json:"processing_info"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: processing info", ErrInvalidResponse)
	}
	if resp.ProcessingInfo == nil {
		return nil, nil
	}
	if resp.ProcessingInfo.State == "" {
		return nil, fmt.Errorf("%w: missing processing state", ErrInvalidResponse)
	}
	return &ProcessingInfo{
		State:           resp.ProcessingInfo.State,
		CheckAfterSecs:  resp.ProcessingInfo.CheckAfterSecs,
		ProgressPercent: resp.ProcessingInfo.ProgressPercent,
	}, nil
}
