package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingReaper struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (r *countingReaper) ReapIdle(ttl time.Duration) int {
	r.calls.Add(1)
	r.ttl.Store(int64(ttl))
	return 1
}

func TestInvalidSchedule(t *testing.T) {
	if _, err := NewScheduler(&countingReaper{}, "every minute", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTickPassesTTL(t *testing.T) {
	reaper := &countingReaper{}
	s, err := NewScheduler(reaper, "*/5 * * * *", 10*time.Minute)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.tick()

	if reaper.calls.Load() != 1 {
		t.Fatalf("expected one sweep, got %d", reaper.calls.Load())
	}
	if time.Duration(reaper.ttl.Load()) != 10*time.Minute {
		t.Fatalf("unexpected ttl %s", time.Duration(reaper.ttl.Load()))
	}
}

func TestRunsOnSchedule(t *testing.T) {
	reaper := &countingReaper{}
	s, err := NewScheduler(reaper, "@every 1s", time.Minute)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.Start(context.Background())
	deadline := time.Now().Add(3 * time.Second)
	for reaper.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx) // idempotent

	if reaper.calls.Load() == 0 {
		t.Fatal("expected at least one scheduled sweep")
	}
}
