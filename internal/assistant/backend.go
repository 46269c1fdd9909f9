// Package assistant is the client side of the remote conversational model:
// threads, messages and runs, plus a one-shot completion for suggested questions.
package assistant

import (
	"context"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// Backend is the remote assistant/thread API
type Backend interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (model.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (model.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// LatestAssistantMessage returns the text of the newest assistant message in the thread
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
	// Suggest returns up to three short questions about the transcript
	Suggest(ctx context.Context, transcript string) ([]string, error)
}
