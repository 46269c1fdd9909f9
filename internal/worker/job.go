package worker

import (
	"context"
	"errors"
)

// ErrPoolStopped is returned when submitting to a pool that is shutting down
var ErrPoolStopped = errors.New("worker pool stopped")

// ErrQueueFull is returned by TrySubmit when no queue slot is free
var ErrQueueFull = errors.New("worker queue full")

// Task is a unit of background work
type Task struct {
	Name string
	// Run receives the pool's context, which is cancelled when Stop gives up waiting
	Run func(ctx context.Context) error
	// Attrs are logged with the task's outcome
	Attrs []any
}
