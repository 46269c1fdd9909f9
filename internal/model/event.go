package model

import "time"

// UIState is what a context's UI surface should display
type UIState string

const (
	StatePending           UIState = "pending"
	StateDownloading       UIState = "downloading"
	StateTranscribing      UIState = "transcribing"
	StatePostProcessing    UIState = "postprocessing"
	StateDone              UIState = "done"
	StateError             UIState = "error"
	StatePostProcessFailed UIState = "postprocess_failed"
	StateCancelled         UIState = "cancelled"
	StateOffline           UIState = "offline" // retry pending, not a failure
)

// StateForJob maps a job status onto the UI state that announces it
func StateForJob(status JobStatus) UIState {
	switch status {
	case JobStatusPending:
		return StatePending
	case JobStatusDownloading:
		return StateDownloading
	case JobStatusTranscribing:
		return StateTranscribing
	case JobStatusDone:
		return StateDone
	case JobStatusError:
		return StateError
	case JobStatusCancelled:
		return StateCancelled
	default:
		return StateError
	}
}

// Event is a sequenced state change delivered to one context
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	ContextID string    `json:"context_id"`
	JobID     string    `json:"job_id,omitempty"`
	VideoID   string    `json:"video_id,omitempty"`
	State     UIState   `json:"state"`
	Message   string    `json:"message,omitempty"`
	Cached    bool      `json:"cached,omitempty"`
}

// JobEvent is a job state change published by the registry
type JobEvent struct {
	ContextID  string
	JobID      string
	VideoID    string
	State      UIState
	Message    string
	Transcript string
	Cached     bool
}
