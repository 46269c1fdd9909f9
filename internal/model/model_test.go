package model

import (
	"errors"
	"testing"
)

// TestJobStatusTransitions checks the job state machine edges.
func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusDownloading, true},
		{JobStatusPending, JobStatusTranscribing, true},
		{JobStatusDownloading, JobStatusTranscribing, true},
		{JobStatusTranscribing, JobStatusDownloading, true},
		{JobStatusTranscribing, JobStatusDone, true},
		{JobStatusDownloading, JobStatusError, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusDownloading, JobStatusPending, false},
		{JobStatusDone, JobStatusTranscribing, false},
		{JobStatusError, JobStatusDone, false},
		{JobStatusCancelled, JobStatusDownloading, false},
		{JobStatusDone, JobStatusCancelled, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// TestParseRemoteStatus checks server status strings map onto the closed set.
func TestParseRemoteStatus(t *testing.T) {
	got, err := ParseRemoteStatus("queued")
	if err != nil || got != JobStatusPending {
		t.Fatalf("queued = %q, %v", got, err)
	}
	if _, err := ParseRemoteStatus("exploded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

// TestRunStatusTerminal checks which run statuses stop polling.
func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusQueued, RunStatusInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

// TestParseResource covers the accepted URL shapes and rejections.
func TestParseResource(t *testing.T) {
	valid := map[string]string{
		"https://www.youtube.com/watch?v=abc123":          "abc123",
		"https://youtube.com/watch?v=a-b_C&t=10":          "a-b_C",
		"https://youtu.be/xyz789":                         "xyz789",
		"https://www.youtube.com/shorts/short1?feature=x": "short1",
	}
	for raw, want := range valid {
		res, err := ParseResource(raw)
		if err != nil {
			t.Fatalf("ParseResource(%q) error = %v", raw, err)
		}
		if res.VideoID != want {
			t.Errorf("ParseResource(%q) = %q, want %q", raw, res.VideoID, want)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://youtube.com/watch?v=abc",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/watch?v=../etc",
	}
	for _, raw := range invalid {
		if _, err := ParseResource(raw); !errors.Is(err, ErrInvalidResource) {
			t.Errorf("ParseResource(%q) error = %v, want ErrInvalidResource", raw, err)
		}
	}
}

// TestAckRuleValidate checks operator normalisation and defaults.
func TestAckRuleValidate(t *testing.T) {
	r := AckRule{Expression: "$.ok"}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if r.Operator != "exists" {
		t.Fatalf("operator = %q, want exists", r.Operator)
	}

	bad := AckRule{Expression: "$.ok", Operator: "gt"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected invalid operator error")
	}
}
