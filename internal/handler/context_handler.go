package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"github.com/cnrosu/yt-ai-summariser/internal/orchestrator"
	"github.com/go-chi/chi/v5"
)

const maxContextIDLen = 128

// Orchestrator is the per-context service behind the HTTP API
type Orchestrator interface {
	Transcribe(ctx context.Context, contextID, rawURL string) (orchestrator.Result, error)
	Prefetch(ctx context.Context, contextID, rawURL string) (orchestrator.Result, error)
	Cancel(contextID string) (bool, error)
	Job(contextID string) (model.Job, bool)
	Events(ctx context.Context, contextID string, since int64, wait time.Duration) []model.Event
	Ask(ctx context.Context, contextID, question string) (model.Turn, error)
	Turns(ctx context.Context, contextID string) ([]model.Turn, error)
	RemoveTurn(ctx context.Context, contextID, question string) (int64, error)
	AbandonTurn(contextID string) bool
	Suggest(ctx context.Context, contextID string) ([]string, error)
	Touch(contextID string)
	Teardown(contextID string)
	Transcript(ctx context.Context, videoID string) (string, error)
}

// ContextHandler serves the per-context API
type ContextHandler struct {
	orch    Orchestrator
	maxWait time.Duration
}

// NewContextHandler creates a handler. maxWait caps event long-polls.
func NewContextHandler(orch Orchestrator, maxWait time.Duration) *ContextHandler {
	if maxWait <= 0 {
		maxWait = 25 * time.Second
	}
	return &ContextHandler{orch: orch, maxWait: maxWait}
}

// ResourceRequest carries the URL of the media to work on
type ResourceRequest struct {
	URL string `json:"url"`
}

// AskRequest carries one question
type AskRequest struct {
	Question string `json:"question"`
}

// EventsResponse is one page of context events
type EventsResponse struct {
	Events  []model.Event `json:"events"`
	LastSeq int64         `json:"last_seq"`
}

// contextID extracts and validates the {contextID} URL parameter
func contextID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "contextID"))
	if id == "" || len(id) > maxContextIDLen {
		writeError(w, http.StatusBadRequest, "invalid context id")
		return "", false
	}
	return id, true
}

// Transcribe handles POST /api/v1/contexts/{contextID}/transcribe
func (h *ContextHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	h.resource(w, r, h.orch.Transcribe)
}

// Prefetch handles POST /api/v1/contexts/{contextID}/prefetch
func (h *ContextHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	h.resource(w, r, h.orch.Prefetch)
}

func (h *ContextHandler) resource(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, contextID, rawURL string) (orchestrator.Result, error)) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	var req ResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := fn(r.Context(), id, req.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if result.State == model.StatePending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// Cancel handles POST /api/v1/contexts/{contextID}/cancel
func (h *ContextHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.orch.Cancel(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// Job handles GET /api/v1/contexts/{contextID}/job
func (h *ContextHandler) Job(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	job, ok := h.orch.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrNoActiveJob.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Events handles GET /api/v1/contexts/{contextID}/events?since=&wait_ms=
func (h *ContextHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	since := parseQueryInt64(r, "since", 0)
	wait := time.Duration(parseQueryInt64(r, "wait_ms", 0)) * time.Millisecond
	if wait > h.maxWait {
		wait = h.maxWait
	}

	events := h.orch.Events(r.Context(), id, since, wait)
	if events == nil {
		events = []model.Event{}
	}

	lastSeq := since
	if n := len(events); n > 0 {
		lastSeq = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, LastSeq: lastSeq})
}

// Ask handles POST /api/v1/contexts/{contextID}/turns
func (h *ContextHandler) Ask(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.orch.Ask(r.Context(), id, req.Question)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// Turns handles GET /api/v1/contexts/{contextID}/turns
func (h *ContextHandler) Turns(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	turns, err := h.orch.Turns(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

// RemoveTurn handles DELETE /api/v1/contexts/{contextID}/turns?question=
func (h *ContextHandler) RemoveTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	question := r.URL.Query().Get("question")
	if strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	removed, err := h.orch.RemoveTurn(r.Context(), id, question)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// AbandonTurn handles POST /api/v1/contexts/{contextID}/turns/abandon
func (h *ContextHandler) AbandonTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"abandoned": h.orch.AbandonTurn(id)})
}

// Suggest handles POST /api/v1/contexts/{contextID}/suggestions
func (h *ContextHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}

	suggestions, err := h.orch.Suggest(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

// Heartbeat handles POST /api/v1/contexts/{contextID}/heartbeat
func (h *ContextHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}
	h.orch.Touch(id)
	w.WriteHeader(http.StatusNoContent)
}

// Teardown handles DELETE /api/v1/contexts/{contextID}
func (h *ContextHandler) Teardown(w http.ResponseWriter, r *http.Request) {
	id, ok := contextID(w, r)
	if !ok {
		return
	}
	h.orch.Teardown(id)
	w.WriteHeader(http.StatusNoContent)
}

// Transcript handles GET /api/v1/transcripts/{videoID}
func (h *ContextHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	text, err := h.orch.Transcript(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"video_id":   chi.URLParam(r, "videoID"),
		"transcript": text,
	})
}
