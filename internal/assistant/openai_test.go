package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	openai "github.com/sashabaranov/go-openai"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini", Timeout: 5 * time.Second})
}

func TestThreadMessageRunFlow(t *testing.T) {
	var posted string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads":
			w.Write([]byte(`{"id":"thread_1","object":"thread"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/messages":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			posted, _ = body["content"].(string)
			if body["role"] != "user" {
				t.Errorf("unexpected role %v", body["role"])
			}
			w.Write([]byte(`{"id":"msg_1","object":"thread.message","role":"user","content":[]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/runs":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["assistant_id"] != "asst_1" {
				t.Errorf("unexpected assistant %v", body["assistant_id"])
			}
			w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"queued"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/thread_1/runs/run_1":
			w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"completed"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/thread_1/messages":
			if r.URL.Query().Get("order") != "desc" {
				t.Errorf("expected desc order, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"object":"list","data":[
				{"id":"msg_3","role":"assistant","content":[{"type":"text","text":{"value":"<p>It is about Go.</p>","annotations":[]}}]},
				{"id":"msg_2","role":"user","content":[{"type":"text","text":{"value":"question","annotations":[]}}]}
			]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	threadID, err := b.CreateThread(ctx)
	if err != nil || threadID != "thread_1" {
		t.Fatalf("CreateThread = %q, %v", threadID, err)
	}
	if err := b.PostMessage(ctx, threadID, "hello"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if posted != "hello" {
		t.Fatalf("posted %q", posted)
	}

	run, err := b.CreateRun(ctx, threadID, "asst_1")
	if err != nil || run.ID != "run_1" || run.Status != model.RunStatusQueued {
		t.Fatalf("CreateRun = %+v, %v", run, err)
	}
	run, err = b.GetRun(ctx, threadID, run.ID)
	if err != nil || run.Status != model.RunStatusCompleted {
		t.Fatalf("GetRun = %+v, %v", run, err)
	}

	answer, err := b.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		t.Fatalf("LatestAssistantMessage: %v", err)
	}
	if answer != "<p>It is about Go.</p>" {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestRetryableAPIErrorsAreTransport(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/runs/busy") {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No run found","type":"invalid_request_error"}}`))
	})
	ctx := context.Background()

	_, err := b.GetRun(ctx, "thread_1", "busy")
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError for 503, got %v", err)
	}

	_, err = b.GetRun(ctx, "thread_1", "missing")
	if err == nil || errors.As(err, &transportErr) {
		t.Fatalf("expected permanent error for 404, got %v", err)
	}
}

func TestNetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	b := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Timeout: time.Second})
	srv.Close()

	_, err := b.CreateThread(context.Background())
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestSuggest(t *testing.T) {
	var userContent string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		var req openai.ChatCompletionRequest
		json.Unmarshal(data, &req)
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		userContent = req.Messages[1].Content
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"What is Go?\n\nWhy channels?\r\nWho wrote it?\nExtra one?"}}]}`))
	})

	long := strings.Repeat("a", 5000)
	questions, err := b.Suggest(context.Background(), long)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	want := []string{"What is Go?", "Why channels?", "Who wrote it?"}
	if len(questions) != len(want) {
		t.Fatalf("expected %v, got %v", want, questions)
	}
	for i := range want {
		if questions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, questions)
		}
	}
	if len(userContent) != 4000 {
		t.Fatalf("expected transcript truncated to 4000, got %d", len(userContent))
	}
}

func TestMapRunStatus(t *testing.T) {
	cases := map[openai.RunStatus]model.RunStatus{
		openai.RunStatusQueued:         model.RunStatusQueued,
		openai.RunStatusInProgress:     model.RunStatusInProgress,
		openai.RunStatusCancelling:     model.RunStatusInProgress,
		openai.RunStatusCompleted:      model.RunStatusCompleted,
		openai.RunStatusFailed:         model.RunStatusFailed,
		openai.RunStatusRequiresAction: model.RunStatusFailed,
		openai.RunStatusCancelled:      model.RunStatusCancelled,
		openai.RunStatusExpired:        model.RunStatusExpired,
	}
	for in, want := range cases {
		if got := mapRunStatus(in); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}
