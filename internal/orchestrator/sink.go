package orchestrator

import (
	"context"
	"log/slog"

	"github.com/cnrosu/yt-ai-summariser/internal/jobs"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// sink forwards registry events to the context, diverting done through post-processing
func (o *Orchestrator) sink(contextID string) jobs.Sink {
	return func(ev model.JobEvent) {
		if ev.State == model.StateDone && o.deps.PostProcessor != nil && o.deps.PostProcessor.Enabled() {
			o.startPostProcess(ev)
			return
		}
		o.publish(model.Event{
			ContextID: contextID,
			JobID:     ev.JobID,
			VideoID:   ev.VideoID,
			State:     ev.State,
			Message:   ev.Message,
			Cached:    ev.Cached,
		})
	}
}

// startPostProcess runs the post-processor in the background. The context
// sees postprocessing, then done or postprocess_failed.
func (o *Orchestrator) startPostProcess(ev model.JobEvent) {
	ctx, cancel := context.WithCancel(o.baseCtx)

	o.mu.Lock()
	st, ok := o.contexts[ev.ContextID]
	if !ok {
		o.mu.Unlock()
		cancel()
		return
	}
	if st.postCancel != nil {
		st.postCancel()
	}
	st.postCancel = cancel
	st.postGen++
	gen := st.postGen
	o.wg.Add(1)
	o.mu.Unlock()

	o.publish(model.Event{
		ContextID: ev.ContextID,
		JobID:     ev.JobID,
		VideoID:   ev.VideoID,
		State:     model.StatePostProcessing,
	})

	go func() {
		defer o.wg.Done()
		defer cancel()

		err := o.deps.PostProcessor.Process(ctx, ev.ContextID, ev.VideoID, ev.Transcript)

		o.mu.Lock()
		if st.postGen == gen {
			st.postCancel = nil
		}
		o.mu.Unlock()

		// cancel and teardown announce themselves
		if ctx.Err() != nil {
			return
		}

		done := model.Event{
			ContextID: ev.ContextID,
			JobID:     ev.JobID,
			VideoID:   ev.VideoID,
			State:     model.StateDone,
		}
		if err != nil {
			slog.Error("Post-processing failed",
				"context_id", ev.ContextID,
				"job_id", ev.JobID,
				"video_id", ev.VideoID,
				"error", err,
			)
			done.State = model.StatePostProcessFailed
			done.Message = err.Error()
		}
		o.publish(done)
	}()
}
