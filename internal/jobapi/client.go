// Package jobapi is the client for the remote transcription job server.
package jobapi

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
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

const maxBodyBytes = 64 << 20

// NewHTTPClient creates an HTTP client with connection pooling
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableCompression:  false,
		},
	}
}

// HTTPError is a non-2xx reply the client does not map to a domain error
type HTTPError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: job server returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: job server returned %d", e.Op, e.StatusCode)
}

// Temporary reports whether the server may accept the same request later
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// SubmitResult is the reply to a transcribe request. Either JobID is set or
// Cached is true and Transcript carries the result.
type SubmitResult struct {
	JobID      string
	Cached     bool
	Transcript string
}

// StatusResult is one status poll reply
type StatusResult struct {
	Status     model.JobStatus
	Transcript string
	Error      string
}

// Client talks to the job server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the job server rooted at baseURL (e.g. http://localhost:5010/api)
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type submitResponse struct {
	JobID      string `json:"jobId"`
	Cached     bool   `json:"cached"`
	Transcript string `json:"transcript"`
	Error      string `json:"error"`
}

// Submit starts a transcription job or returns the server's cached transcript
func (c *Client) Submit(ctx context.Context, resourceURL string) (*SubmitResult, error) {
	var resp submitResponse
	status, err := c.do(ctx, "submit", http.MethodPost, "/transcribe", nil, map[string]string{"url": resourceURL}, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, httpError("submit", status, resp.Error)
	}
	if resp.Cached {
		return &SubmitResult{Cached: true, Transcript: resp.Transcript}, nil
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("submit: reply carries neither job id nor transcript")
	}
	return &SubmitResult{JobID: resp.JobID}, nil
}

type statusResponse struct {
	Status     string  `json:"status"`
	Transcript *string `json:"transcript"`
	Error      *string `json:"error"`
}

// Status polls a job. A job the server no longer knows yields model.ErrJobNotFound.
func (c *Client) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	var resp statusResponse
	query := url.Values{"jobId": {jobID}}
	status, err := c.do(ctx, "status", http.MethodGet, "/status", query, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, model.ErrJobNotFound
	}
	if status >= 300 {
		return nil, httpError("status", status, deref(resp.Error))
	}

	jobStatus, err := model.ParseRemoteStatus(resp.Status)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &StatusResult{
		Status:     jobStatus,
		Transcript: deref(resp.Transcript),
		Error:      deref(resp.Error),
	}, nil
}

// Kill asks the server to drop this client's interest in a job
func (c *Client) Kill(ctx context.Context, jobID string) error {
	query := url.Values{"jobId": {jobID}}
	var resp struct {
		Error string `json:"error"`
	}
	status, err := c.do(ctx, "kill", http.MethodPost, "/kill", query, nil, &resp)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return model.ErrJobNotFound
	}
	if status >= 300 {
		return httpError("kill", status, resp.Error)
	}
	return nil
}

// Load checks the server's own cache for a finished transcript
func (c *Client) Load(ctx context.Context, videoID string) (string, bool, error) {
	query := url.Values{"videoId": {videoID}}
	var resp submitResponse
	status, err := c.do(ctx, "load", http.MethodGet, "/load", query, nil, &resp)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status >= 300 {
		return "", false, httpError("load", status, resp.Error)
	}
	if !resp.Cached && resp.Transcript == "" {
		return "", false, nil
	}
	return resp.Transcript, true, nil
}

// SaveQA mirrors an answered turn to the server's log
func (c *Client) SaveQA(ctx context.Context, videoID, question, answer string) error {
	body := map[string]string{
		"videoId":  videoID,
		"question": question,
		"answer":   answer,
	}
	var resp struct {
		Error string `json:"error"`
	}
	status, err := c.do(ctx, "save_qa", http.MethodPost, "/save_qa", nil, body, &resp)
	if err != nil {
		return err
	}
	if status >= 300 {
		return httpError("save_qa", status, resp.Error)
	}
	return nil
}

// do sends one request and decodes a JSON reply into out. Network failures
// come back as *model.TransportError; any HTTP status is returned to the caller.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (int, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, &model.TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if len(bytes.TrimSpace(data)) > 0 && out != nil {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}

	return resp.StatusCode, nil
}

func httpError(op string, status int, message string) error {
	return &HTTPError{Op: op, StatusCode: status, Message: message}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IsTemporary reports whether err is worth retrying on a later tick
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
