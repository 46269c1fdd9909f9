// Package postprocess hands finished transcripts to an optional downstream service.
package postprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/detached"
	"github.com/cnrosu/yt-ai-summariser/internal/evaluator"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// Config configures the downstream upload. An empty URL disables it.
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retry   model.RetryConfig
	Ack     model.AckRule
}

// Payload is the body posted downstream
type Payload struct {
	VideoID    string    `json:"video_id"`
	ContextID  string    `json:"context_id"`
	Transcript string    `json:"transcript"`
	Completed  time.Time `json:"completed_at"`
}

// StatusError is a non-2xx downstream reply
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("post-processor returned status %d", e.StatusCode)
}

// Temporary reports whether the downstream may accept a retry
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// AckError means the downstream replied but did not acknowledge the transcript
type AckError struct {
	Result evaluator.Result
}

func (e *AckError) Error() string {
	if e.Result.Error != "" {
		return "post-processor reply not acknowledged: " + e.Result.Error
	}
	return fmt.Sprintf("post-processor reply not acknowledged: %s %s %v",
		e.Result.Expression, e.Result.Operator, e.Result.ExpectedValue)
}

// Temporary is false: the downstream answered and said no
func (e *AckError) Temporary() bool { return false }

// Uploader posts transcripts downstream
type Uploader struct {
	cfg        Config
	httpClient *http.Client
	evaluator  *evaluator.Evaluator
}

// NewUploader creates an uploader
func NewUploader(cfg Config) *Uploader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Uploader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		evaluator: evaluator.NewEvaluator(),
	}
}

// Enabled reports whether a downstream is configured
func (u *Uploader) Enabled() bool {
	return u != nil && u.cfg.URL != ""
}

// Process uploads the transcript, retrying transient failures
func (u *Uploader) Process(ctx context.Context, contextID, videoID, transcript string) error {
	if !u.Enabled() {
		return nil
	}

	payload, err := json.Marshal(Payload{
		VideoID:    videoID,
		ContextID:  contextID,
		Transcript: transcript,
		Completed:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	strategy := detached.NewRetryStrategy(u.cfg.Retry)
	attempts, err := strategy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := u.deliver(ctx, payload)
		if err != nil {
			slog.Warn("Post-processing attempt failed",
				"context_id", contextID,
				"video_id", videoID,
				"attempt", attempt,
				"max_attempts", strategy.GetMaxAttempts(),
				"error", err,
			)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("post-processing failed after %d attempts: %w", attempts, err)
	}

	slog.Info("Transcript post-processed",
		"context_id", contextID,
		"video_id", videoID,
		"attempts", attempts,
	)
	return nil
}

func (u *Uploader) deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range u.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if res := u.evaluator.Evaluate(u.cfg.Ack, body); !res.Matched {
		return &AckError{Result: res}
	}
	return nil
}
