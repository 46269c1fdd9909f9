package jobapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", NewHTTPClient(5*time.Second))
}

func TestSubmitJobID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/transcribe" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["url"] != "https://www.youtube.com/watch?v=abc" {
			t.Errorf("unexpected url %q", body["url"])
		}
		w.Write([]byte(`{"jobId":"j1"}`))
	})

	res, err := c.Submit(context.Background(), "https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.JobID != "j1" || res.Cached {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitCached(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cached":true,"transcript":"hello"}`))
	})

	res, err := c.Submit(context.Background(), "https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Cached || res.Transcript != "hello" || res.JobID != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"URL is required"}`))
	})

	_, err := c.Submit(context.Background(), "")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest || httpErr.Message != "URL is required" {
		t.Fatalf("unexpected error %+v", httpErr)
	}
	if IsTemporary(err) {
		t.Fatal("400 must not be temporary")
	}
}

func TestStatusMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("jobId") {
		case "queued":
			w.Write([]byte(`{"job_id":"queued","status":"queued","transcript":null,"error":null}`))
		case "done":
			w.Write([]byte(`{"job_id":"done","status":"done","transcript":"hello","error":null}`))
		case "failed":
			w.Write([]byte(`{"job_id":"failed","status":"error","error":"Failed to download"}`))
		case "weird":
			w.Write([]byte(`{"status":"exploded"}`))
		case "busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Job not found"}`))
		}
	})
	ctx := context.Background()

	res, err := c.Status(ctx, "queued")
	if err != nil || res.Status != model.JobStatusPending {
		t.Fatalf("queued: got %+v, %v", res, err)
	}

	res, err = c.Status(ctx, "done")
	if err != nil || res.Status != model.JobStatusDone || res.Transcript != "hello" {
		t.Fatalf("done: got %+v, %v", res, err)
	}

	res, err = c.Status(ctx, "failed")
	if err != nil || res.Status != model.JobStatusError || res.Error != "Failed to download" {
		t.Fatalf("failed: got %+v, %v", res, err)
	}

	if _, err := c.Status(ctx, "weird"); err == nil {
		t.Fatal("expected error for unknown status")
	}

	_, err = c.Status(ctx, "busy")
	if !IsTemporary(err) {
		t.Fatalf("expected temporary error for 503, got %v", err)
	}

	_, err = c.Status(ctx, "gone")
	if !errors.Is(err, model.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewClient(srv.URL, NewHTTPClient(time.Second))
	srv.Close()

	_, err := c.Status(context.Background(), "j1")
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Op != "status" || !IsTemporary(err) {
		t.Fatalf("unexpected transport error %+v", transportErr)
	}
}

func TestCancelledContextIsNotTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Status(ctx, "j1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestKill(t *testing.T) {
	var gotJob string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/kill" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotJob = r.URL.Query().Get("jobId")
		w.Write([]byte(`{"success":true,"status":"cancelled","listeners":0}`))
	})

	if err := c.Kill(context.Background(), "j1"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if gotJob != "j1" {
		t.Fatalf("expected jobId j1, got %q", gotJob)
	}
}

func TestLoad(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("videoId") == "known" {
			w.Write([]byte(`{"transcript":"cached text","cached":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Transcript not found"}`))
	})
	ctx := context.Background()

	text, ok, err := c.Load(ctx, "known")
	if err != nil || !ok || text != "cached text" {
		t.Fatalf("known: got %q, %v, %v", text, ok, err)
	}

	text, ok, err = c.Load(ctx, "unknown")
	if err != nil || ok || text != "" {
		t.Fatalf("unknown: got %q, %v, %v", text, ok, err)
	}
}

func TestSaveQA(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/save_qa" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"success":true}`))
	})

	if err := c.SaveQA(context.Background(), "vid", "why?", "because"); err != nil {
		t.Fatalf("SaveQA: %v", err)
	}
	if body["videoId"] != "vid" || body["question"] != "why?" || body["answer"] != "because" {
		t.Fatalf("unexpected body %v", body)
	}
}
