// Package scheduler runs periodic housekeeping for UI contexts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper tears down contexts that stopped sending heartbeats
type Reaper interface {
	ReapIdle(ttl time.Duration) int
}

// Scheduler reaps idle contexts on a cron schedule
type Scheduler struct {
	reaper   Reaper
	ttl      time.Duration
	spec     string
	schedule cron.Schedule
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler parses spec, a standard five-field cron expression or a
// descriptor such as "@every 1m".
func NewScheduler(reaper Reaper, spec string, ttl time.Duration) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", spec, err)
	}

	return &Scheduler{
		reaper:   reaper,
		ttl:      ttl,
		spec:     spec,
		schedule: schedule,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins the reaping loop
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting context reaper",
		"schedule", s.spec,
		"idle_ttl", s.ttl,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for an in-flight sweep, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stopChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Context reaper stopped")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for context reaper to stop")
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-timer.C:
			s.tick()
		case <-s.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// tick runs one sweep
func (s *Scheduler) tick() {
	start := time.Now()
	reaped := s.reaper.ReapIdle(s.ttl)

	if reaped > 0 {
		slog.Info("Reaped idle contexts",
			"count", reaped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("No idle contexts to reap")
}
