package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidResource is returned for a resource reference without a usable video id
	ErrInvalidResource = errors.New("invalid resource")
	// ErrAlreadyActive is returned when a context already owns a non-terminal job
	ErrAlreadyActive = errors.New("job already in progress")
	// ErrNoActiveJob is returned when cancel finds nothing to cancel
	ErrNoActiveJob = errors.New("no active job")
	// ErrJobNotFound is returned when the job server no longer knows the job
	ErrJobNotFound = errors.New("job not found")
	// ErrTurnInProgress is returned when a context asks while a previous turn is unfinished
	ErrTurnInProgress = errors.New("turn already in progress")
	// ErrNoTranscript is returned when a conversation needs a transcript that is not cached
	ErrNoTranscript = errors.New("transcript not available")
	// ErrEmptyQuestion is returned for a blank conversation turn
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoResource is returned when a context has not been bound to a resource yet
	ErrNoResource = errors.New("context has no resource")
	// ErrStorageFull is reported by storage backends that ran out of quota
	ErrStorageFull = errors.New("storage full")
	// ErrShuttingDown rejects new work once the service is stopping
	ErrShuttingDown = errors.New("service is shutting down")
)

// TransportError is a network failure talking to a remote collaborator
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary marks transport failures as retryable
func (e *TransportError) Temporary() bool { return true }

// RemoteJobError is an explicit failure reported by the job server
type RemoteJobError struct {
	Message string
}

func (e *RemoteJobError) Error() string {
	if e.Message == "" {
		return "remote job failed"
	}
	return "remote job failed: " + e.Message
}

// RunError is returned when an assistant run ends without completing
type RunError struct {
	Status  RunStatus
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("run ended with status %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("run ended with status %s", e.Status)
}

// StorageError wraps a persistence failure for a key
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error for %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
