// Package jobs tracks the transcription job owned by each UI context and polls
// the job server until the job reaches a terminal state.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/jobapi"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// JobAPI is the part of the job server the registry drives
type JobAPI interface {
	Submit(ctx context.Context, resourceURL string) (*jobapi.SubmitResult, error)
	Status(ctx context.Context, jobID string) (*jobapi.StatusResult, error)
	Kill(ctx context.Context, jobID string) error
}

// ResultCache receives finished transcripts
type ResultCache interface {
	Put(ctx context.Context, key, text string) error
}

// Detacher runs best-effort calls off the caller's path
type Detacher interface {
	Go(name string, fn func(ctx context.Context) error, attrs ...any)
}

// Sink receives a context's job events in the order they happen. It is called
// from the poller goroutine and must not block.
type Sink func(model.JobEvent)

// JobHandle describes the outcome of Start
type JobHandle struct {
	JobID      string
	ContextID  string
	VideoID    string
	Status     model.JobStatus
	Cached     bool
	Transcript string
}

type entry struct {
	job  model.Job
	sink Sink

	// set while Submit is in flight; cancelled records a cancel that raced it
	submitting bool
	cancelled  bool

	stop context.CancelFunc
	done chan struct{}

	emitMu  sync.Mutex
	closed  bool
	offline bool
}

// Registry maps context ids to at most one active job each
type Registry struct {
	api      JobAPI
	cache    ResultCache
	detached Detacher
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	baseCtx  context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

// NewRegistry creates a registry polling every interval
func NewRegistry(api JobAPI, cache ResultCache, detached Detacher, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		api:      api,
		cache:    cache,
		detached: detached,
		interval: interval,
		entries:  make(map[string]*entry),
		baseCtx:  ctx,
		shutdown: cancel,
	}
}

// Start submits a job for the resource on behalf of contextID. The context's
// slot is reserved before the network call, so concurrent starts for one
// context cannot both submit.
func (r *Registry) Start(ctx context.Context, contextID string, res model.Resource, sink Sink) (JobHandle, error) {
	if sink == nil {
		sink = func(model.JobEvent) {}
	}

	now := time.Now().UTC()
	e := &entry{
		job: model.Job{
			ContextID: contextID,
			VideoID:   res.VideoID,
			Status:    model.JobStatusPending,
			StartedAt: now,
			UpdatedAt: now,
		},
		sink:       sink,
		submitting: true,
	}

	r.mu.Lock()
	if r.baseCtx.Err() != nil {
		r.mu.Unlock()
		return JobHandle{}, model.ErrShuttingDown
	}
	if _, exists := r.entries[contextID]; exists {
		r.mu.Unlock()
		return JobHandle{}, model.ErrAlreadyActive
	}
	r.entries[contextID] = e
	r.mu.Unlock()

	handle := JobHandle{ContextID: contextID, VideoID: res.VideoID}

	result, err := r.api.Submit(ctx, res.URL)
	if err != nil {
		r.mu.Lock()
		if r.entries[contextID] == e {
			delete(r.entries, contextID)
		}
		r.mu.Unlock()
		return JobHandle{}, err
	}

	if result.Cached {
		r.mu.Lock()
		if r.entries[contextID] == e {
			delete(r.entries, contextID)
		}
		r.mu.Unlock()

		r.storeResult(ctx, contextID, "", res.VideoID, result.Transcript)

		handle.Status = model.JobStatusDone
		handle.Cached = true
		handle.Transcript = result.Transcript
		return handle, nil
	}

	handle.JobID = result.JobID

	r.mu.Lock()
	if e.cancelled || r.entries[contextID] != e {
		r.mu.Unlock()
		slog.Info("Job cancelled while submitting, killing",
			"context_id", contextID,
			"job_id", result.JobID,
			"video_id", res.VideoID,
		)
		r.kill(contextID, result.JobID)
		handle.Status = model.JobStatusCancelled
		return handle, nil
	}

	if r.baseCtx.Err() != nil {
		delete(r.entries, contextID)
		r.mu.Unlock()
		slog.Warn("Registry closed while submitting, killing job",
			"context_id", contextID,
			"job_id", result.JobID,
		)
		r.kill(contextID, result.JobID)
		return JobHandle{}, model.ErrShuttingDown
	}

	pollCtx, stop := context.WithCancel(r.baseCtx)
	e.submitting = false
	e.job.ID = result.JobID
	e.stop = stop
	e.done = make(chan struct{})
	r.wg.Add(1)
	r.mu.Unlock()

	slog.Info("Transcription job started",
		"context_id", contextID,
		"job_id", result.JobID,
		"video_id", res.VideoID,
	)

	r.emit(e, model.JobEvent{
		ContextID: contextID,
		JobID:     result.JobID,
		VideoID:   res.VideoID,
		State:     model.StatePending,
	})

	go r.poll(pollCtx, e)

	handle.Status = model.JobStatusPending
	return handle, nil
}

// Cancel stops the context's poller, removes its job and publishes cancelled.
// The remote kill is detached; its outcome never affects local state.
func (r *Registry) Cancel(contextID string) error {
	r.mu.Lock()
	e, ok := r.entries[contextID]
	if !ok {
		r.mu.Unlock()
		return model.ErrNoActiveJob
	}
	delete(r.entries, contextID)
	e.cancelled = true
	jobID := e.job.ID
	videoID := e.job.VideoID
	if e.stop != nil {
		e.stop()
	}
	r.mu.Unlock()

	slog.Info("Cancelling transcription job",
		"context_id", contextID,
		"job_id", jobID,
		"video_id", videoID,
	)

	e.emitMu.Lock()
	e.closed = true
	e.sink(model.JobEvent{
		ContextID: contextID,
		JobID:     jobID,
		VideoID:   videoID,
		State:     model.StateCancelled,
	})
	e.emitMu.Unlock()

	// an in-flight submit kills the job id once it arrives
	if jobID != "" {
		r.kill(contextID, jobID)
	}
	return nil
}

// Lookup returns a snapshot of the context's active job
func (r *Registry) Lookup(contextID string) (model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[contextID]
	if !ok {
		return model.Job{}, false
	}
	job := e.job
	if job.Result != nil {
		result := *job.Result
		job.Result = &result
	}
	return job, true
}

// Active returns the number of contexts with a job
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every poller without killing remote jobs and waits for them to exit
func (r *Registry) Close() {
	r.mu.Lock()
	r.shutdown()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) kill(contextID, jobID string) {
	r.detached.Go("kill", func(ctx context.Context) error {
		return r.api.Kill(ctx, jobID)
	}, "context_id", contextID, "job_id", jobID)
}

// emit delivers ev unless the entry has been closed by a cancel
func (r *Registry) emit(e *entry, ev model.JobEvent) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if e.closed {
		return
	}
	e.sink(ev)
}

// emitFinal delivers the entry's last event and closes it
func (r *Registry) emitFinal(e *entry, ev model.JobEvent) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.sink(ev)
}

// storeResult caches a finished transcript. A failed write is logged and
// the result is still reported.
func (r *Registry) storeResult(ctx context.Context, contextID, jobID, videoID, transcript string) {
	if err := r.cache.Put(ctx, videoID, transcript); err != nil {
		slog.Error("Failed to cache transcript",
			"context_id", contextID,
			"job_id", jobID,
			"video_id", videoID,
			"error", err,
		)
	}
}
