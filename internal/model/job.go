package model

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a transcription job
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusDownloading  JobStatus = "downloading"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusDone         JobStatus = "done"
	JobStatusError        JobStatus = "error"
	JobStatusCancelled    JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is valid out of the status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusError, JobStatusCancelled:
		return true
	case JobStatusPending, JobStatusDownloading, JobStatusTranscribing:
		return false
	default:
		// Unknown values never transition anywhere
		return true
	}
}

// CanTransition enforces pending -> {downloading, transcribing}* -> {done | error},
// with cancelled reachable from any non-terminal state.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case JobStatusDownloading, JobStatusTranscribing, JobStatusDone, JobStatusError, JobStatusCancelled:
		return true
	case JobStatusPending:
		return false
	default:
		return false
	}
}

// ParseRemoteStatus maps a status string reported by the job server.
// "queued" is the server's name for a job that has not started downloading.
func ParseRemoteStatus(s string) (JobStatus, error) {
	switch s {
	case "queued", "pending":
		return JobStatusPending, nil
	case "downloading":
		return JobStatusDownloading, nil
	case "transcribing":
		return JobStatusTranscribing, nil
	case "done":
		return JobStatusDone, nil
	case "error":
		return JobStatusError, nil
	case "cancelled":
		return JobStatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown remote job status %q", s)
	}
}

// Job is a server-tracked transcription task owned by one context
type Job struct {
	ID           string    `json:"id"`
	ContextID    string    `json:"context_id"`
	VideoID      string    `json:"video_id"`
	Status       JobStatus `json:"status"`
	Result       *string   `json:"result,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobStatusUpdate is one reply from the remote status endpoint
type JobStatusUpdate struct {
	Status     JobStatus
	Transcript string
	Error      string
}
