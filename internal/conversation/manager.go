// Package conversation drives question/answer turns over a cached transcript
// against a remote assistant thread.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/assistant"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"golang.org/x/sync/singleflight"
)

// ThreadStore persists the resource -> remote thread mapping
type ThreadStore interface {
	GetThread(ctx context.Context, videoID string) (*model.Thread, error)
	SaveThread(ctx context.Context, thread *model.Thread) error
	MarkFirstTurnSent(ctx context.Context, videoID string) error
}

// TurnStore persists the ordered turn log per resource
type TurnStore interface {
	AppendTurn(ctx context.Context, turn *model.Turn) error
	ListTurns(ctx context.Context, videoID string) ([]model.Turn, error)
	RemoveTurn(ctx context.Context, videoID, question string) (int64, error)
}

// TranscriptSource reads cached transcripts
type TranscriptSource interface {
	Get(ctx context.Context, key string) (string, bool)
}

// QAMirror receives a copy of every answered turn
type QAMirror interface {
	SaveQA(ctx context.Context, videoID, question, answer string) error
}

// Detacher runs best-effort calls off the caller's path
type Detacher interface {
	Go(name string, fn func(ctx context.Context) error, attrs ...any)
}

// Config holds the conversation settings
type Config struct {
	AssistantID          string
	PollInterval         time.Duration
	MaxTransportFailures int
}

type activeTurn struct {
	videoID string
	cancel  context.CancelFunc
}

// Manager owns the in-flight turn of every context
type Manager struct {
	backend     assistant.Backend
	threads     ThreadStore
	turns       TurnStore
	transcripts TranscriptSource
	mirror      QAMirror
	mirrorCalls Detacher
	runCalls    Detacher
	cfg         Config

	threadGroup singleflight.Group

	mu     sync.Mutex
	active map[string]*activeTurn // by context id
	busy   map[string]string      // video id -> context id holding the thread
}

// NewManager creates a conversation manager. mirror may be nil. mirrorCalls
// carries save_qa to the job server and runCalls carries run cancellations
// to the assistant.
func NewManager(
	backend assistant.Backend,
	threads ThreadStore,
	turns TurnStore,
	transcripts TranscriptSource,
	mirror QAMirror,
	mirrorCalls Detacher,
	runCalls Detacher,
	cfg Config,
) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.MaxTransportFailures <= 0 {
		cfg.MaxTransportFailures = 5
	}
	return &Manager{
		backend:     backend,
		threads:     threads,
		turns:       turns,
		transcripts: transcripts,
		mirror:      mirror,
		mirrorCalls: mirrorCalls,
		runCalls:    runCalls,
		cfg:         cfg,
		active:      make(map[string]*activeTurn),
		busy:        make(map[string]string),
	}
}

// EnsureThread returns the resource's thread id, creating and persisting a
// remote thread the first time. Concurrent callers share one creation.
func (m *Manager) EnsureThread(ctx context.Context, contextID, videoID string) (string, error) {
	thread, err := m.ensureThread(ctx, contextID, videoID)
	if err != nil {
		return "", err
	}
	return thread.ThreadID, nil
}

func (m *Manager) ensureThread(ctx context.Context, contextID, videoID string) (*model.Thread, error) {
	v, err, _ := m.threadGroup.Do(videoID, func() (interface{}, error) {
		thread, err := m.threads.GetThread(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("failed to load thread: %w", err)
		}
		if thread != nil {
			return thread, nil
		}

		threadID, err := m.backend.CreateThread(ctx)
		if err != nil {
			return nil, err
		}
		thread = &model.Thread{
			VideoID:   videoID,
			ThreadID:  threadID,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.threads.SaveThread(ctx, thread); err != nil {
			return nil, err
		}

		slog.Info("Created conversation thread",
			"context_id", contextID,
			"video_id", videoID,
			"thread_id", threadID,
		)
		return thread, nil
	})
	if err != nil {
		return nil, err
	}

	thread := *v.(*model.Thread)
	return &thread, nil
}

// AppendTurn asks question on the resource's thread and waits for the answer.
// The first turn on a thread carries the whole transcript. A context with an
// unfinished turn, or a thread another context is using, gets ErrTurnInProgress.
func (m *Manager) AppendTurn(ctx context.Context, contextID, videoID, question string) (model.Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Turn{}, model.ErrEmptyQuestion
	}

	turnCtx, release, err := m.acquire(ctx, contextID, videoID)
	if err != nil {
		return model.Turn{}, err
	}
	defer release()

	thread, err := m.ensureThread(turnCtx, contextID, videoID)
	if err != nil {
		return model.Turn{}, err
	}

	content := question
	first := !thread.FirstTurnSent
	if first {
		transcript, ok := m.transcripts.Get(turnCtx, videoID)
		if !ok {
			return model.Turn{}, model.ErrNoTranscript
		}
		content = FirstTurnContent(transcript, question)
	}

	if err := m.backend.PostMessage(turnCtx, thread.ThreadID, content); err != nil {
		return model.Turn{}, err
	}
	if first {
		if err := m.threads.MarkFirstTurnSent(turnCtx, videoID); err != nil {
			slog.Warn("Failed to record first turn",
				"context_id", contextID,
				"video_id", videoID,
				"thread_id", thread.ThreadID,
				"error", err,
			)
		}
	}

	run, err := m.backend.CreateRun(turnCtx, thread.ThreadID, m.cfg.AssistantID)
	if err != nil {
		return model.Turn{}, err
	}
	slog.Debug("Run created",
		"context_id", contextID,
		"thread_id", thread.ThreadID,
		"run_id", run.ID,
	)

	answer, err := m.waitForRun(turnCtx, thread.ThreadID, run)
	if err != nil {
		slog.Warn("Turn failed",
			"context_id", contextID,
			"video_id", videoID,
			"thread_id", thread.ThreadID,
			"run_id", run.ID,
			"error", err,
		)
		return model.Turn{}, err
	}

	turn := model.Turn{
		VideoID:  videoID,
		Question: question,
		Answer:   CleanReply(answer),
		AskedAt:  time.Now().UTC(),
	}
	// the answer is already paid for, so a log failure does not fail the turn
	if err := m.turns.AppendTurn(context.WithoutCancel(ctx), &turn); err != nil {
		slog.Error("Failed to persist turn",
			"context_id", contextID,
			"video_id", videoID,
			"error", err,
		)
	}

	if m.mirror != nil {
		m.mirrorCalls.Go("save_qa", func(ctx context.Context) error {
			return m.mirror.SaveQA(ctx, turn.VideoID, turn.Question, turn.Answer)
		}, "context_id", contextID, "video_id", videoID)
	}

	return turn, nil
}

// Abandon cancels the context's unfinished turn. It reports whether one existed.
func (m *Manager) Abandon(contextID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	turn, ok := m.active[contextID]
	if !ok {
		return false
	}
	turn.cancel()
	return true
}

// inProgress reports whether the context has an unfinished turn
func (m *Manager) inProgress(contextID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[contextID]
	return ok
}

// RemoveTurn deletes matching turns from the persisted log. The remote thread keeps its history.
func (m *Manager) RemoveTurn(ctx context.Context, contextID, videoID, question string) (int64, error) {
	removed, err := m.turns.RemoveTurn(ctx, videoID, question)
	if err != nil {
		return 0, err
	}
	slog.Info("Removed turn",
		"context_id", contextID,
		"video_id", videoID,
		"removed", removed,
	)
	return removed, nil
}

// Turns lists the resource's persisted turns in order
func (m *Manager) Turns(ctx context.Context, videoID string) ([]model.Turn, error) {
	return m.turns.ListTurns(ctx, videoID)
}

// acquire marks the context and its thread busy for one turn
func (m *Manager) acquire(ctx context.Context, contextID, videoID string) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[contextID]; ok {
		return nil, nil, model.ErrTurnInProgress
	}
	if _, ok := m.busy[videoID]; ok {
		return nil, nil, model.ErrTurnInProgress
	}

	turnCtx, cancel := context.WithCancel(ctx)
	turn := &activeTurn{videoID: videoID, cancel: cancel}
	m.active[contextID] = turn
	m.busy[videoID] = contextID

	release := func() {
		cancel()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.active[contextID] == turn {
			delete(m.active, contextID)
		}
		if m.busy[videoID] == contextID {
			delete(m.busy, videoID)
		}
	}
	return turnCtx, release, nil
}

// FirstTurnContent builds the message that opens a thread
func FirstTurnContent(transcript, question string) string {
	return "Transcript:\n" + transcript + "\n\nQuestion:\n" + question
}

var fenceRe = regexp.MustCompile("```(?:html)?")

// CleanReply strips markdown code fences around an HTML answer
func CleanReply(text string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
}
