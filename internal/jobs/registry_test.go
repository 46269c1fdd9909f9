package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/jobapi"
	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

type statusReply struct {
	result *jobapi.StatusResult
	err    error
}

type fakeAPI struct {
	mu          sync.Mutex
	submit      func(ctx context.Context, url string) (*jobapi.SubmitResult, error)
	replies     []statusReply
	statusCalls int
	kills       []string
	killErr     error
}

func (f *fakeAPI) Submit(ctx context.Context, url string) (*jobapi.SubmitResult, error) {
	if f.submit != nil {
		return f.submit(ctx, url)
	}
	return &jobapi.SubmitResult{JobID: "j1"}, nil
}

func (f *fakeAPI) Status(ctx context.Context, jobID string) (*jobapi.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.replies) == 0 {
		return &jobapi.StatusResult{Status: model.JobStatusPending}, nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply.result, reply.err
}

func (f *fakeAPI) Kill(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, jobID)
	return f.killErr
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeAPI) killed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kills...)
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (c *fakeCache) Put(ctx context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.values[key] = text
	return nil
}

func (c *fakeCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// syncDetacher runs detached calls inline
type syncDetacher struct{}

func (syncDetacher) Go(name string, fn func(ctx context.Context) error, attrs ...any) {
	_ = fn(context.Background())
}

func status(s model.JobStatus) statusReply {
	return statusReply{result: &jobapi.StatusResult{Status: s}}
}

func transportFailure() statusReply {
	return statusReply{err: &model.TransportError{Op: "status", Err: errors.New("connection refused")}}
}

func collect() (Sink, <-chan model.JobEvent) {
	ch := make(chan model.JobEvent, 64)
	return func(ev model.JobEvent) { ch <- ev }, ch
}

func waitForState(t *testing.T, ch <-chan model.JobEvent, state model.UIState) []model.JobEvent {
	t.Helper()
	var seen []model.JobEvent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			seen = append(seen, ev)
			if ev.State == state {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, saw %+v", state, seen)
		}
	}
}

func states(events []model.JobEvent) []model.UIState {
	out := make([]model.UIState, len(events))
	for i, ev := range events {
		out[i] = ev.State
	}
	return out
}

func equalStates(a, b []model.UIState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var videoA = model.Resource{URL: "https://www.youtube.com/watch?v=videoA", VideoID: "videoA"}

func newTestRegistry(api *fakeAPI, cache *fakeCache) *Registry {
	return NewRegistry(api, cache, syncDetacher{}, 5*time.Millisecond)
}

func TestDoneSequenceCachesAndClears(t *testing.T) {
	api := &fakeAPI{replies: []statusReply{
		status(model.JobStatusDownloading),
		status(model.JobStatusTranscribing),
		{result: &jobapi.StatusResult{Status: model.JobStatusDone, Transcript: "hello"}},
	}}
	cache := newFakeCache()
	r := newTestRegistry(api, cache)
	defer r.Close()

	sink, ch := collect()
	handle, err := r.Start(context.Background(), "tab1", videoA, sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if handle.JobID != "j1" || handle.Cached || handle.Status != model.JobStatusPending {
		t.Fatalf("unexpected handle %+v", handle)
	}

	events := waitForState(t, ch, model.StateDone)
	want := []model.UIState{model.StatePending, model.StateDownloading, model.StateTranscribing, model.StateDone}
	if !equalStates(states(events), want) {
		t.Fatalf("expected %v, got %v", want, states(events))
	}
	if events[len(events)-1].Transcript != "hello" {
		t.Fatalf("expected transcript on done event, got %+v", events[len(events)-1])
	}

	if text, ok := cache.get("videoA"); !ok || text != "hello" {
		t.Fatalf("cache = %q, %v", text, ok)
	}
	if _, ok := r.Lookup("tab1"); ok {
		t.Fatal("registry still has an entry for tab1")
	}
}

func TestCachedSubmitSkipsPolling(t *testing.T) {
	api := &fakeAPI{submit: func(ctx context.Context, url string) (*jobapi.SubmitResult, error) {
		return &jobapi.SubmitResult{Cached: true, Transcript: "from server"}, nil
	}}
	cache := newFakeCache()
	r := newTestRegistry(api, cache)
	defer r.Close()

	handle, err := r.Start(context.Background(), "tab1", videoA, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !handle.Cached || handle.Transcript != "from server" || handle.Status != model.JobStatusDone {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if text, _ := cache.get("videoA"); text != "from server" {
		t.Fatalf("cache = %q", text)
	}

	time.Sleep(30 * time.Millisecond)
	if api.calls() != 0 {
		t.Fatalf("expected no status polls, got %d", api.calls())
	}
	if r.Active() != 0 {
		t.Fatal("cached start left an entry")
	}
}

func TestAlreadyActive(t *testing.T) {
	api := &fakeAPI{replies: []statusReply{status(model.JobStatusDownloading)}}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	if _, err := r.Start(context.Background(), "tab1", videoA, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Start(context.Background(), "tab1", videoA, nil); !errors.Is(err, model.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if _, err := r.Start(context.Background(), "tab2", videoA, nil); err != nil {
		t.Fatalf("other context should start: %v", err)
	}
	if r.Active() != 2 {
		t.Fatalf("expected 2 active jobs, got %d", r.Active())
	}
}

func TestConcurrentStartsSubmitOnce(t *testing.T) {
	release := make(chan struct{})
	var submits int
	var mu sync.Mutex
	api := &fakeAPI{submit: func(ctx context.Context, url string) (*jobapi.SubmitResult, error) {
		mu.Lock()
		submits++
		mu.Unlock()
		<-release
		return &jobapi.SubmitResult{JobID: "j1"}, nil
	}}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := r.Start(context.Background(), "tab1", videoA, nil)
			errs <- err
		}()
	}

	// one of them must fail fast while the other is still submitting
	first := <-errs
	if !errors.Is(first, model.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", first)
	}
	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if submits != 1 {
		t.Fatalf("expected 1 submit, got %d", submits)
	}
}

func TestNotFoundStopsPolling(t *testing.T) {
	api := &fakeAPI{replies: []statusReply{
		status(model.JobStatusDownloading),
		{err: model.ErrJobNotFound},
	}}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	sink, ch := collect()
	if _, err := r.Start(context.Background(), "tab1", videoA, sink); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := waitForState(t, ch, model.StateError)
	last := events[len(events)-1]
	if last.Message != "job not found" {
		t.Fatalf("expected job not found message, got %q", last.Message)
	}

	calls := api.calls()
	time.Sleep(30 * time.Millisecond)
	if api.calls() != calls {
		t.Fatalf("polling continued after 404: %d -> %d", calls, api.calls())
	}
	if _, ok := r.Lookup("tab1"); ok {
		t.Fatal("registry still has an entry after 404")
	}
}

func TestRemoteErrorPassesMessage(t *testing.T) {
	api := &fakeAPI{replies: []statusReply{
		{result: &jobapi.StatusResult{Status: model.JobStatusError, Error: "Failed to download"}},
	}}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	sink, ch := collect()
	r.Start(context.Background(), "tab1", videoA, sink)

	events := waitForState(t, ch, model.StateError)
	if got := events[len(events)-1].Message; got != "remote job failed: Failed to download" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestOfflineOncePerOutageThenRecovers(t *testing.T) {
	api := &fakeAPI{replies: []statusReply{
		transportFailure(),
		transportFailure(),
		transportFailure(),
		status(model.JobStatusPending),
		status(model.JobStatusTranscribing),
		{result: &jobapi.StatusResult{Status: model.JobStatusDone, Transcript: "ok"}},
	}}
	cache := newFakeCache()
	r := newTestRegistry(api, cache)
	defer r.Close()

	sink, ch := collect()
	r.Start(context.Background(), "tab1", videoA, sink)

	events := waitForState(t, ch, model.StateDone)
	want := []model.UIState{
		model.StatePending,
		model.StateOffline,
		model.StatePending, // re-published after the outage
		model.StateTranscribing,
		model.StateDone,
	}
	if !equalStates(states(events), want) {
		t.Fatalf("expected %v, got %v", want, states(events))
	}
	if text, _ := cache.get("videoA"); text != "ok" {
		t.Fatalf("cache = %q", text)
	}
}

func TestCancelClearsEntryEvenWhenKillFails(t *testing.T) {
	api := &fakeAPI{
		replies: []statusReply{status(model.JobStatusDownloading)},
		killErr: &model.TransportError{Op: "kill", Err: errors.New("connection refused")},
	}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	sink, ch := collect()
	r.Start(context.Background(), "tab1", videoA, sink)
	waitForState(t, ch, model.StateDownloading)

	if err := r.Cancel("tab1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, ok := r.Lookup("tab1"); ok {
		t.Fatal("registry still has an entry after cancel")
	}
	waitForState(t, ch, model.StateCancelled)

	if kills := api.killed(); len(kills) != 1 || kills[0] != "j1" {
		t.Fatalf("expected kill of j1, got %v", kills)
	}

	calls := api.calls()
	time.Sleep(30 * time.Millisecond)
	if api.calls() > calls+1 {
		t.Fatalf("polling continued after cancel: %d -> %d", calls, api.calls())
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event after cancel: %+v", ev)
	default:
	}

	if err := r.Cancel("tab1"); !errors.Is(err, model.ErrNoActiveJob) {
		t.Fatalf("expected ErrNoActiveJob, got %v", err)
	}
}

func TestCancelDuringSubmitKillsReturnedJob(t *testing.T) {
	submitted := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{submit: func(ctx context.Context, url string) (*jobapi.SubmitResult, error) {
		close(submitted)
		<-release
		return &jobapi.SubmitResult{JobID: "late"}, nil
	}}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	sink, ch := collect()
	result := make(chan JobHandle, 1)
	go func() {
		handle, _ := r.Start(context.Background(), "tab1", videoA, sink)
		result <- handle
	}()

	<-submitted
	if err := r.Cancel("tab1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForState(t, ch, model.StateCancelled)
	close(release)

	handle := <-result
	if handle.Status != model.JobStatusCancelled {
		t.Fatalf("expected cancelled handle, got %+v", handle)
	}
	if kills := api.killed(); len(kills) != 1 || kills[0] != "late" {
		t.Fatalf("expected kill of late job, got %v", kills)
	}
	if r.Active() != 0 {
		t.Fatal("entry left behind")
	}
}

func TestCacheFailureStillReportsDone(t *testing.T) {
	api := &fakeAPI{replies: []statusReply{
		{result: &jobapi.StatusResult{Status: model.JobStatusDone, Transcript: "hello"}},
	}}
	cache := newFakeCache()
	cache.err = &model.StorageError{Key: "videoA", Err: model.ErrStorageFull}
	r := newTestRegistry(api, cache)
	defer r.Close()

	sink, ch := collect()
	r.Start(context.Background(), "tab1", videoA, sink)

	events := waitForState(t, ch, model.StateDone)
	if events[len(events)-1].Transcript != "hello" {
		t.Fatal("done event lost its transcript")
	}
}

func TestSubmitErrorReleasesSlot(t *testing.T) {
	api := &fakeAPI{submit: func(ctx context.Context, url string) (*jobapi.SubmitResult, error) {
		return nil, &model.TransportError{Op: "submit", Err: errors.New("refused")}
	}}
	r := newTestRegistry(api, newFakeCache())
	defer r.Close()

	_, err := r.Start(context.Background(), "tab1", videoA, nil)
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if r.Active() != 0 {
		t.Fatal("failed submit kept the slot")
	}
}

func TestStartAfterCloseIsRefused(t *testing.T) {
	api := &fakeAPI{}
	r := newTestRegistry(api, newFakeCache())
	r.Close()

	if _, err := r.Start(context.Background(), "tab1", videoA, nil); !errors.Is(err, model.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
	if _, ok := r.Lookup("tab1"); ok {
		t.Fatal("refused start left an entry")
	}
	if api.calls() != 0 {
		t.Fatalf("expected no status polls, got %d", api.calls())
	}
}

func TestCloseDuringSubmitKillsJob(t *testing.T) {
	submitted := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{submit: func(ctx context.Context, url string) (*jobapi.SubmitResult, error) {
		close(submitted)
		<-release
		return &jobapi.SubmitResult{JobID: "late"}, nil
	}}
	r := newTestRegistry(api, newFakeCache())

	errc := make(chan error, 1)
	go func() {
		_, err := r.Start(context.Background(), "tab1", videoA, nil)
		errc <- err
	}()

	<-submitted
	r.Close()
	close(release)

	if err := <-errc; !errors.Is(err, model.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
	if kills := api.killed(); len(kills) != 1 || kills[0] != "late" {
		t.Fatalf("expected kill of late job, got %v", kills)
	}
	if r.Active() != 0 {
		t.Fatal("entry left behind")
	}
}
