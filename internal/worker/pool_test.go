package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	wp := NewWorkerPool(3, 10)
	wp.Start()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		err := wp.TrySubmit(Task{
			Name: "count",
			Run: func(ctx context.Context) error {
				count.Add(1)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("TrySubmit: %v", err)
		}
	}

	if err := wp.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := count.Load(); got != 10 {
		t.Fatalf("expected 10 tasks run, got %d", got)
	}
}

func TestPoolSurvivesFailuresAndPanics(t *testing.T) {
	wp := NewWorkerPool(1, 4)
	wp.Start()

	var ran atomic.Bool
	wp.TrySubmit(Task{Name: "fail", Run: func(ctx context.Context) error { return errors.New("boom") }})
	wp.TrySubmit(Task{Name: "panic", Run: func(ctx context.Context) error { panic("oops") }})
	wp.TrySubmit(Task{Name: "ok", Run: func(ctx context.Context) error { ran.Store(true); return nil }})

	wp.Stop(context.Background())
	if !ran.Load() {
		t.Fatal("task after failures did not run")
	}
}

func TestTrySubmitQueueFull(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	// not started, so the single slot stays occupied
	if err := wp.TrySubmit(Task{Name: "a", Run: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("first TrySubmit: %v", err)
	}
	if err := wp.TrySubmit(Task{Name: "b", Run: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	wp.Start()
	wp.Stop(context.Background())
}

func TestSubmitAfterStop(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	wp.Start()
	wp.Stop(context.Background())

	if err := wp.TrySubmit(Task{Name: "late"}); !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestStopDeadlineCancelsRunningTasks(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	wp.Start()

	started := make(chan struct{})
	wp.TrySubmit(Task{
		Name: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := wp.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
