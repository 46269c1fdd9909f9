package model

import "time"

// RunStatus is the lifecycle state of one assistant run
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusExpired    RunStatus = "expired"
)

// IsTerminal reports whether polling for the run can stop
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress:
		return false
	default:
		return true
	}
}

// Run is one execution of the assistant against a thread
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	LastError string
}

// Thread maps a resource to its remote conversation thread
type Thread struct {
	VideoID       string    `json:"video_id" bson:"_id"`
	ThreadID      string    `json:"thread_id" bson:"thread_id"`
	FirstTurnSent bool      `json:"first_turn_sent" bson:"first_turn_sent"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// Turn is one answered question in a thread's log
type Turn struct {
	VideoID  string    `json:"video_id" bson:"video_id"`
	Seq      int64     `json:"seq" bson:"seq"`
	Question string    `json:"question" bson:"question"`
	Answer   string    `json:"answer" bson:"answer"`
	AskedAt  time.Time `json:"asked_at" bson:"asked_at"`
}
