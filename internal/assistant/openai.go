package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	openai "github.com/sashabaranov/go-openai"
)

const (
	suggestPrompt = "Suggest three brief questions a viewer might ask about this transcript. " +
		"Respond with each question on a new line and no numbering."
	suggestInputLimit = 4000
	maxSuggestions    = 3
	messagePageSize   = 10
)

// Config configures the OpenAI-backed assistant
type Config struct {
	APIKey  string
	BaseURL string // empty for the public API
	Model   string // used for suggestions
	Timeout time.Duration
}

// OpenAI implements Backend on the OpenAI assistants API
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI backend
func NewOpenAI(cfg Config) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	m := cfg.Model
	if m == "" {
		m = openai.GPT4o
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  m,
	}
}

// CreateThread creates an empty thread
func (o *OpenAI) CreateThread(ctx context.Context) (string, error) {
	thread, err := o.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", classify("create_thread", err)
	}
	return thread.ID, nil
}

// PostMessage appends a user message to the thread
func (o *OpenAI) PostMessage(ctx context.Context, threadID, content string) error {
	_, err := o.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return classify("post_message", err)
	}
	return nil
}

// CreateRun starts the assistant on the thread
func (o *OpenAI) CreateRun(ctx context.Context, threadID, assistantID string) (model.Run, error) {
	run, err := o.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return model.Run{}, classify("create_run", err)
	}
	return toRun(run), nil
}

// GetRun fetches the run's current status
func (o *OpenAI) GetRun(ctx context.Context, threadID, runID string) (model.Run, error) {
	run, err := o.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return model.Run{}, classify("get_run", err)
	}
	return toRun(run), nil
}

// CancelRun asks the API to stop a run
func (o *OpenAI) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := o.client.CancelRun(ctx, threadID, runID); err != nil {
		return classify("cancel_run", err)
	}
	return nil
}

// LatestAssistantMessage returns the newest assistant message's text
func (o *OpenAI) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	limit := messagePageSize
	order := "desc"
	list, err := o.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", classify("list_messages", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var b strings.Builder
		for _, part := range msg.Content {
			if part.Text != nil {
				b.WriteString(part.Text.Value)
			}
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("list_messages: thread %s has no assistant reply", threadID)
}

// Suggest asks for three short questions about the start of the transcript
func (o *OpenAI) Suggest(ctx context.Context, transcript string) ([]string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: suggestPrompt},
			{Role: openai.ChatMessageRoleUser, Content: truncateRunes(transcript, suggestInputLimit)},
		},
	})
	if err != nil {
		return nil, classify("suggest", err)
	}
	if len(resp.Choices) == 0 {
		return []string{}, nil
	}
	return SplitSuggestions(resp.Choices[0].Message.Content), nil
}

// SplitSuggestions turns a newline-separated reply into at most three questions
func SplitSuggestions(reply string) []string {
	lines := strings.FieldsFunc(reply, func(r rune) bool { return r == '\n' || r == '\r' })
	out := make([]string, 0, maxSuggestions)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func toRun(run openai.Run) model.Run {
	out := model.Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   mapRunStatus(run.Status),
	}
	if run.LastError != nil {
		out.LastError = run.LastError.Message
	}
	return out
}

// mapRunStatus folds the API's extra states into the closed run status set
func mapRunStatus(s openai.RunStatus) model.RunStatus {
	switch s {
	case openai.RunStatusQueued:
		return model.RunStatusQueued
	case openai.RunStatusInProgress, openai.RunStatusCancelling:
		return model.RunStatusInProgress
	case openai.RunStatusCompleted:
		return model.RunStatusCompleted
	case openai.RunStatusCancelled:
		return model.RunStatusCancelled
	case openai.RunStatusExpired:
		return model.RunStatusExpired
	default:
		// failed, requires_action (no tools are registered) and incomplete
		return model.RunStatusFailed
	}
}

// classify wraps network faults and retryable API replies as TransportError
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return &model.TransportError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return &model.TransportError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return &model.TransportError{Op: op, Err: err}
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
