package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// waitForRun polls the run until it leaves queued/in_progress and returns
// the latest assistant message. Cancelling ctx stops polling and sends a
// detached remote cancel. Transport failures are retried until
// MaxTransportFailures happen in a row.
func (m *Manager) waitForRun(ctx context.Context, threadID string, run model.Run) (string, error) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for !run.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			m.cancelRun(threadID, run.ID)
			return "", ctx.Err()
		case <-ticker.C:
		}

		next, err := m.backend.GetRun(ctx, threadID, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				m.cancelRun(threadID, run.ID)
				return "", ctx.Err()
			}

			var transportErr *model.TransportError
			if !errors.As(err, &transportErr) {
				return "", err
			}
			failures++
			slog.Warn("Run status query failed",
				"thread_id", threadID,
				"run_id", run.ID,
				"consecutive_failures", failures,
				"error", err,
			)
			if failures >= m.cfg.MaxTransportFailures {
				m.cancelRun(threadID, run.ID)
				return "", err
			}
			continue
		}

		failures = 0
		run = next
	}

	if run.Status != model.RunStatusCompleted {
		return "", &model.RunError{Status: run.Status, Message: run.LastError}
	}

	return m.backend.LatestAssistantMessage(ctx, threadID)
}

// cancelRun asks the remote side to stop a run nobody is waiting for
func (m *Manager) cancelRun(threadID, runID string) {
	m.runCalls.Go("cancel_run", func(ctx context.Context) error {
		return m.backend.CancelRun(ctx, threadID, runID)
	}, "thread_id", threadID, "run_id", runID)
}
