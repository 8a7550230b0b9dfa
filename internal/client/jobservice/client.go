package jobservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"syncpanel/internal/models"
)

const maxBodyBytes = 4 << 20

var ErrMalformedResponse = errors.New("malformed job service response")

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("job service error (%d): %s", e.Status, e.Body)
}

// Detail extracts the human readable message the service put in an error body.
func (e *APIError) Detail() string {
	if e == nil {
		return ""
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if s, ok := body[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// ErrorDetail returns the service supplied message carried by err, if any.
func ErrorDetail(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if d := apiErr.Detail(); d != "" {
			return d, true
		}
	}
	return "", false
}

func NewClient(httpClient *http.Client, host, apiKey string) *Client {
	if host == "" {
		host = "http://localhost:8000"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

func startPath(syncType models.SyncType) (string, error) {
	switch syncType {
	case models.SyncTypeAll:
		return "/api/v1/sync/all", nil
	case models.SyncTypeGA4:
		return "/api/v1/sync/ga4", nil
	case models.SyncTypeAgencyAnalytics:
		return "/api/v1/sync/agency-analytics", nil
	default:
		return "", fmt.Errorf("unsupported sync type: %s", syncType)
	}
}

// StartJob asks the service to start a sync job. An empty JobID in the
// response is returned as-is; callers decide what that means.
func (c *Client) StartJob(ctx context.Context, syncType models.SyncType, mode models.SyncMode) (*StartJobResponse, error) {
	path, err := startPath(syncType)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("sync_mode", string(mode))
	body, err := c.doRequest(ctx, http.MethodPost, path, query)
	if err != nil {
		return nil, err
	}
	var out StartJobResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out.JobID = strings.TrimSpace(out.JobID)
	return &out, nil
}

func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/sync/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	var out JobStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, out.Status)
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return &out, nil
}

func (c *Client) ListActiveJobs(ctx context.Context) ([]JobStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/sync/jobs/active", nil)
	if err != nil {
		return nil, err
	}
	var out activeJobsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out.Jobs, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
