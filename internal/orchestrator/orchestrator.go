// Package orchestrator wires a UI context's lifecycle: cache lookup, job
// start and polling, post-processing, and conversation turns.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/jobs"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"golang.org/x/sync/singleflight"
)

// TranscriptCache is the completed transcript store
type TranscriptCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, text string) error
}

// JobRegistry owns the job of each context
type JobRegistry interface {
	Start(ctx context.Context, contextID string, res model.Resource, sink jobs.Sink) (jobs.JobHandle, error)
	Cancel(contextID string) error
	Lookup(contextID string) (model.Job, bool)
}

// Conversations runs question/answer turns
type Conversations interface {
	AppendTurn(ctx context.Context, contextID, videoID, question string) (model.Turn, error)
	Abandon(contextID string) bool
	RemoveTurn(ctx context.Context, contextID, videoID, question string) (int64, error)
	Turns(ctx context.Context, videoID string) ([]model.Turn, error)
}

// Loader checks the job server's own cache
type Loader interface {
	Load(ctx context.Context, videoID string) (string, bool, error)
}

// Suggester proposes questions about a transcript
type Suggester interface {
	Suggest(ctx context.Context, transcript string) ([]string, error)
}

// PostProcessor runs after a job completes and before done is announced
type PostProcessor interface {
	Enabled() bool
	Process(ctx context.Context, contextID, videoID, transcript string) error
}

// EventHub delivers sequenced events to UI contexts
type EventHub interface {
	Publish(ev model.Event) model.Event
	Since(contextID string, seq int64) []model.Event
	Wait(ctx context.Context, contextID string, seq int64) []model.Event
	Drop(contextID string)
}

// Deps groups the orchestrator's collaborators
type Deps struct {
	Cache         TranscriptCache
	Jobs          JobRegistry
	Conversations Conversations
	Loader        Loader
	Suggester     Suggester
	PostProcessor PostProcessor // optional
	Events        EventHub
}

// Result describes what a transcribe or prefetch request led to
type Result struct {
	ContextID string        `json:"context_id"`
	VideoID   string        `json:"video_id"`
	JobID     string        `json:"job_id,omitempty"`
	State     model.UIState `json:"state"`
	Cached    bool          `json:"cached"`
}

type contextState struct {
	resource   *model.Resource
	lastSeen   time.Time
	postCancel context.CancelFunc
	postGen    uint64
}

// Orchestrator is the per-context composition root
type Orchestrator struct {
	deps        Deps
	turnTimeout time.Duration

	prefetch singleflight.Group

	mu       sync.Mutex
	contexts map[string]*contextState

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator. turnTimeout bounds each conversation turn; zero disables it.
func New(deps Deps, turnTimeout time.Duration) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:        deps,
		turnTimeout: turnTimeout,
		contexts:    make(map[string]*contextState),
		baseCtx:     ctx,
		stop:        cancel,
	}
}

// Transcribe binds the context to the resource and produces its transcript:
// from the cache when possible, otherwise through a remote job whose progress
// is published to the context's events.
func (o *Orchestrator) Transcribe(ctx context.Context, contextID, rawURL string) (Result, error) {
	res, err := model.ParseResource(rawURL)
	if err != nil {
		return Result{}, err
	}
	// a rejected request leaves the binding alone
	o.touch(contextID)

	result := Result{ContextID: contextID, VideoID: res.VideoID}

	if _, ok := o.deps.Cache.Get(ctx, res.VideoID); ok {
		o.bind(contextID, res)
		slog.Info("Transcript served from cache",
			"context_id", contextID,
			"video_id", res.VideoID,
		)
		o.publish(model.Event{ContextID: contextID, VideoID: res.VideoID, State: model.StateDone, Cached: true})
		result.State = model.StateDone
		result.Cached = true
		return result, nil
	}

	handle, err := o.deps.Jobs.Start(ctx, contextID, res, o.sink(contextID))
	if err != nil {
		return Result{}, err
	}
	o.bind(contextID, res)
	result.JobID = handle.JobID

	switch {
	case handle.Cached:
		o.publish(model.Event{ContextID: contextID, VideoID: res.VideoID, State: model.StateDone, Cached: true})
		result.State = model.StateDone
		result.Cached = true
	case handle.Status == model.JobStatusCancelled:
		result.State = model.StateCancelled
	default:
		result.State = model.StatePending
	}
	return result, nil
}

// Prefetch asks the job server whether it already holds the transcript and
// caches it locally when it does. Concurrent prefetches of one video share a request.
func (o *Orchestrator) Prefetch(ctx context.Context, contextID, rawURL string) (Result, error) {
	res, err := model.ParseResource(rawURL)
	if err != nil {
		return Result{}, err
	}
	o.touch(contextID)

	result := Result{ContextID: contextID, VideoID: res.VideoID}
	if _, ok := o.deps.Cache.Get(ctx, res.VideoID); ok {
		result.Cached = true
	} else {
		v, err, shared := o.prefetch.Do(res.VideoID, func() (interface{}, error) {
			text, ok, err := o.deps.Loader.Load(ctx, res.VideoID)
			if err != nil || !ok {
				return false, err
			}
			if err := o.deps.Cache.Put(ctx, res.VideoID, text); err != nil {
				slog.Error("Failed to cache prefetched transcript",
					"video_id", res.VideoID,
					"error", err,
				)
			}
			return true, nil
		})
		if err != nil {
			return Result{}, err
		}
		result.Cached = v.(bool)
		slog.Debug("Prefetch finished",
			"context_id", contextID,
			"video_id", res.VideoID,
			"found", result.Cached,
			"shared", shared,
		)
	}

	if !result.Cached {
		return result, nil
	}
	o.bind(contextID, res)
	o.publish(model.Event{ContextID: contextID, VideoID: res.VideoID, State: model.StateDone, Cached: true})
	result.State = model.StateDone
	return result, nil
}

// Cancel stops the context's job, or its post-processing step. It reports
// false when there was nothing to cancel.
func (o *Orchestrator) Cancel(contextID string) (bool, error) {
	o.touch(contextID)

	err := o.deps.Jobs.Cancel(contextID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, model.ErrNoActiveJob) {
		return false, err
	}

	o.mu.Lock()
	st, ok := o.contexts[contextID]
	var cancel context.CancelFunc
	if ok && st.postCancel != nil {
		cancel = st.postCancel
		st.postCancel = nil
	}
	var videoID string
	if ok && st.resource != nil {
		videoID = st.resource.VideoID
	}
	o.mu.Unlock()

	if cancel == nil {
		return false, nil
	}
	cancel()
	o.publish(model.Event{ContextID: contextID, VideoID: videoID, State: model.StateCancelled})
	return true, nil
}

// Job returns the context's active job
func (o *Orchestrator) Job(contextID string) (model.Job, bool) {
	return o.deps.Jobs.Lookup(contextID)
}

// Transcript returns a cached transcript by video id
func (o *Orchestrator) Transcript(ctx context.Context, videoID string) (string, error) {
	if !model.ValidVideoID(videoID) {
		return "", model.ErrInvalidResource
	}
	text, ok := o.deps.Cache.Get(ctx, videoID)
	if !ok {
		return "", model.ErrNoTranscript
	}
	return text, nil
}

// Events returns the context's events after since, waiting up to wait for new ones
func (o *Orchestrator) Events(ctx context.Context, contextID string, since int64, wait time.Duration) []model.Event {
	o.touch(contextID)
	if wait <= 0 {
		return o.deps.Events.Since(contextID, since)
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return o.deps.Events.Wait(waitCtx, contextID, since)
}

// Ask runs one conversation turn about the context's resource, bounded by the turn timeout
func (o *Orchestrator) Ask(ctx context.Context, contextID, question string) (model.Turn, error) {
	res, err := o.resource(contextID)
	if err != nil {
		return model.Turn{}, err
	}

	if o.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.turnTimeout)
		defer cancel()
	}
	return o.deps.Conversations.AppendTurn(ctx, contextID, res.VideoID, question)
}

// AbandonTurn cancels the context's unfinished turn
func (o *Orchestrator) AbandonTurn(contextID string) bool {
	o.touch(contextID)
	return o.deps.Conversations.Abandon(contextID)
}

// RemoveTurn deletes turns asked with question from the context's resource log
func (o *Orchestrator) RemoveTurn(ctx context.Context, contextID, question string) (int64, error) {
	res, err := o.resource(contextID)
	if err != nil {
		return 0, err
	}
	return o.deps.Conversations.RemoveTurn(ctx, contextID, res.VideoID, question)
}

// Turns lists the context's resource turn log
func (o *Orchestrator) Turns(ctx context.Context, contextID string) ([]model.Turn, error) {
	res, err := o.resource(contextID)
	if err != nil {
		return nil, err
	}
	return o.deps.Conversations.Turns(ctx, res.VideoID)
}

// Suggest proposes questions about the context's cached transcript
func (o *Orchestrator) Suggest(ctx context.Context, contextID string) ([]string, error) {
	res, err := o.resource(contextID)
	if err != nil {
		return nil, err
	}
	text, ok := o.deps.Cache.Get(ctx, res.VideoID)
	if !ok {
		return nil, model.ErrNoTranscript
	}
	return o.deps.Suggester.Suggest(ctx, text)
}

// Touch records that the context is still alive
func (o *Orchestrator) Touch(contextID string) {
	o.touch(contextID)
}

// Teardown releases everything the context owns: its job goes through the
// cancel path, its turn and post-processing are stopped, and its events dropped.
func (o *Orchestrator) Teardown(contextID string) {
	if err := o.deps.Jobs.Cancel(contextID); err != nil && !errors.Is(err, model.ErrNoActiveJob) {
		slog.Warn("Failed to cancel job on teardown", "context_id", contextID, "error", err)
	}
	o.deps.Conversations.Abandon(contextID)

	o.mu.Lock()
	var cancel context.CancelFunc
	if st, ok := o.contexts[contextID]; ok {
		cancel = st.postCancel
		st.postCancel = nil
	}
	delete(o.contexts, contextID)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.deps.Events.Drop(contextID)

	slog.Info("Context torn down", "context_id", contextID)
}

// ReapIdle tears down contexts not seen for longer than ttl and returns how many
func (o *Orchestrator) ReapIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	o.mu.Lock()
	idle := make([]string, 0)
	for id, st := range o.contexts {
		if st.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	o.mu.Unlock()

	for _, id := range idle {
		slog.Info("Reaping idle context", "context_id", id)
		o.Teardown(id)
	}
	return len(idle)
}

// Contexts returns the number of live contexts
func (o *Orchestrator) Contexts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.contexts)
}

// Shutdown tears down every context and waits for post-processing to stop
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.contexts))
	for id := range o.contexts {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.Teardown(id)
	}
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) bind(contextID string, res model.Resource) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.stateLocked(contextID)
	st.resource = &res
}

func (o *Orchestrator) touch(contextID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateLocked(contextID)
}

func (o *Orchestrator) stateLocked(contextID string) *contextState {
	st, ok := o.contexts[contextID]
	if !ok {
		st = &contextState{}
		o.contexts[contextID] = st
	}
	st.lastSeen = time.Now()
	return st
}

func (o *Orchestrator) resource(contextID string) (model.Resource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.stateLocked(contextID)
	if st.resource == nil {
		return model.Resource{}, model.ErrNoResource
	}
	return *st.resource, nil
}

// publish forwards an event unless the context has been torn down
func (o *Orchestrator) publish(ev model.Event) {
	o.mu.Lock()
	_, live := o.contexts[ev.ContextID]
	o.mu.Unlock()
	if !live {
		return
	}
	o.deps.Events.Publish(ev)
}
