package worker

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool runs tasks on a fixed number of goroutines
type WorkerPool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	slog.Info("Starting worker pool", "workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue and waits for queued tasks to finish. When ctx expires
// first, running tasks see their context cancelled and Stop returns ctx.Err().
func (wp *WorkerPool) Stop(ctx context.Context) error {
	slog.Info("Stopping worker pool", "queued", len(wp.tasks))

	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.tasks)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		slog.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		slog.Warn("Worker pool stopped before queue drained")
		return ctx.Err()
	}
}

// TrySubmit queues a task without waiting
func (wp *WorkerPool) TrySubmit(task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.tasks <- task:
		slog.Debug("Task submitted to worker pool", append([]any{"task", task.Name}, task.Attrs...)...)
		return nil
	default:
		return ErrQueueFull
	}
}

// worker is the worker goroutine that processes tasks
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	slog.Debug("Worker started", "worker_id", id)

	for task := range wp.tasks {
		if err := wp.run(task); err != nil {
			slog.Warn("Task failed",
				append([]any{"worker_id", id, "task", task.Name, "error", err}, task.Attrs...)...,
			)
			continue
		}
		slog.Debug("Task completed",
			append([]any{"worker_id", id, "task", task.Name}, task.Attrs...)...,
		)
	}

	slog.Debug("Worker stopped", "worker_id", id)
}

func (wp *WorkerPool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Task panicked", "task", task.Name, "panic", r)
		}
	}()
	return task.Run(wp.ctx)
}

// QueueLength returns the current number of queued tasks
func (wp *WorkerPool) QueueLength() int {
	return len(wp.tasks)
}
