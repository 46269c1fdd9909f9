package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/jobapi"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

const (
	offlineMessage  = "job server offline, retrying"
	notFoundMessage = "job not found"
)

// poll queries the job's status every interval until a terminal reply, a
// cancel, or registry shutdown. Queries never overlap.
func (r *Registry) poll(ctx context.Context, e *entry) {
	defer r.wg.Done()
	defer close(e.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Status poller stopped",
				"context_id", e.job.ContextID,
				"job_id", e.job.ID,
			)
			return
		case <-ticker.C:
			if r.tick(ctx, e) {
				return
			}
		}
	}
}

// tick runs one status query and reports whether polling is over
func (r *Registry) tick(ctx context.Context, e *entry) bool {
	contextID, jobID, videoID := e.job.ContextID, e.job.ID, e.job.VideoID

	result, err := r.api.Status(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}

	if err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			slog.Warn("Job no longer known to server",
				"context_id", contextID,
				"job_id", jobID,
			)
			r.finish(e, model.JobStatusError, nil, notFoundMessage)
			return true

		case jobapi.IsTemporary(err):
			r.markOffline(e, err)
			return false

		default:
			slog.Error("Status query failed",
				"context_id", contextID,
				"job_id", jobID,
				"error", err,
			)
			r.finish(e, model.JobStatusError, nil, err.Error())
			return true
		}
	}

	switch result.Status {
	case model.JobStatusDone:
		transcript := result.Transcript
		r.storeResult(ctx, contextID, jobID, videoID, transcript)
		r.finish(e, model.JobStatusDone, &transcript, "")
		return true

	case model.JobStatusError:
		message := (&model.RemoteJobError{Message: result.Error}).Error()
		r.finish(e, model.JobStatusError, nil, message)
		return true

	case model.JobStatusCancelled:
		// another listener killed the job server-side
		r.finish(e, model.JobStatusCancelled, nil, "cancelled by job server")
		return true

	default:
		r.advance(e, result.Status)
		return false
	}
}

// advance applies a non-terminal status and publishes it when it changed or
// when the server just came back from an outage
func (r *Registry) advance(e *entry, status model.JobStatus) {
	r.mu.Lock()
	if r.entries[e.job.ContextID] != e {
		r.mu.Unlock()
		return
	}
	current := e.job.Status
	changed := status != current
	if changed && !model.CanTransition(current, status) {
		r.mu.Unlock()
		slog.Warn("Ignoring invalid job transition",
			"context_id", e.job.ContextID,
			"job_id", e.job.ID,
			"from", current,
			"to", status,
		)
		return
	}
	if changed {
		e.job.Status = status
		e.job.UpdatedAt = time.Now().UTC()
	}
	recovered := e.offline
	e.offline = false
	ev := model.JobEvent{
		ContextID: e.job.ContextID,
		JobID:     e.job.ID,
		VideoID:   e.job.VideoID,
		State:     model.StateForJob(e.job.Status),
	}
	r.mu.Unlock()

	if changed || recovered {
		slog.Info("Job status changed",
			"context_id", ev.ContextID,
			"job_id", ev.JobID,
			"status", status,
		)
		r.emit(e, ev)
	}
}

// markOffline publishes a single soft offline event per outage
func (r *Registry) markOffline(e *entry, err error) {
	r.mu.Lock()
	if r.entries[e.job.ContextID] != e || e.offline {
		r.mu.Unlock()
		return
	}
	e.offline = true
	ev := model.JobEvent{
		ContextID: e.job.ContextID,
		JobID:     e.job.ID,
		VideoID:   e.job.VideoID,
		State:     model.StateOffline,
		Message:   offlineMessage,
	}
	r.mu.Unlock()

	slog.Warn("Job server unreachable, will retry",
		"context_id", ev.ContextID,
		"job_id", ev.JobID,
		"error", err,
	)
	r.emit(e, ev)
}

// finish removes the entry and publishes its terminal event
func (r *Registry) finish(e *entry, status model.JobStatus, transcript *string, message string) {
	r.mu.Lock()
	if r.entries[e.job.ContextID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.entries, e.job.ContextID)
	e.job.Status = status
	e.job.Result = transcript
	e.job.ErrorMessage = message
	e.job.UpdatedAt = time.Now().UTC()
	ev := model.JobEvent{
		ContextID: e.job.ContextID,
		JobID:     e.job.ID,
		VideoID:   e.job.VideoID,
		State:     model.StateForJob(status),
		Message:   message,
	}
	if transcript != nil {
		ev.Transcript = *transcript
	}
	e.stop()
	r.mu.Unlock()

	slog.Info("Transcription job finished",
		"context_id", ev.ContextID,
		"job_id", ev.JobID,
		"status", status,
	)
	r.emitFinal(e, ev)
}
