// Package detached runs best-effort remote calls off the caller's path.
//
// A detached call is queued on a worker pool and retried with exponential
// backoff. Its outcome is logged and never returned to whoever started it.
package detached

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"github.com/cnrosu/yt-ai-summariser/internal/worker"
)

// ErrCircuitOpen is logged when a call is skipped because the remote keeps failing
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Dispatcher queues detached calls
type Dispatcher struct {
	pool           *worker.WorkerPool
	breakers       *Breakers
	retry          model.RetryConfig
	attemptTimeout time.Duration
}

// NewDispatcher creates a dispatcher over a started pool
func NewDispatcher(pool *worker.WorkerPool, breakers *Breakers, retry model.RetryConfig, attemptTimeout time.Duration) *Dispatcher {
	if breakers == nil {
		breakers = NewBreakers(0, 0, 0)
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	return &Dispatcher{
		pool:           pool,
		breakers:       breakers,
		retry:          retry,
		attemptTimeout: attemptTimeout,
	}
}

// Remote returns a handle whose calls share name's circuit breaker
func (d *Dispatcher) Remote(name string) *Remote {
	return &Remote{d: d, name: name}
}

// Remote schedules detached calls to one remote collaborator
type Remote struct {
	d    *Dispatcher
	name string
}

// Go schedules fn and returns immediately. attrs are key/value pairs added to every log line.
func (r *Remote) Go(operation string, fn func(ctx context.Context) error, attrs ...any) {
	attrs = append([]any{"remote", r.name}, attrs...)
	task := worker.Task{
		Name:  operation,
		Attrs: attrs,
		Run: func(ctx context.Context) error {
			return r.d.run(ctx, r.name, operation, fn, attrs)
		},
	}

	if err := r.d.pool.TrySubmit(task); err != nil {
		slog.Warn("Dropping detached call",
			append([]any{"operation", operation, "error", err}, attrs...)...,
		)
	}
}

func (d *Dispatcher) run(ctx context.Context, remote, name string, fn func(ctx context.Context) error, attrs []any) error {
	if !d.breakers.Allow(remote) {
		slog.Warn("Circuit breaker is open, skipping detached call",
			append([]any{"operation", name, "circuit_state", d.breakers.State(remote)}, attrs...)...,
		)
		return ErrCircuitOpen
	}

	strategy := NewRetryStrategy(d.retry)
	attempts, err := strategy.Do(ctx, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()

		err := fn(attemptCtx)
		if err != nil && strategy.ShouldRetry(attempt, err) {
			slog.Warn("Detached call failed, retrying",
				append([]any{
					"operation", name,
					"attempt", attempt,
					"next_retry_ms", strategy.CalculateDelay(attempt).Milliseconds(),
					"error", err,
				}, attrs...)...,
			)
		}
		return err
	})
	d.breakers.Record(remote, err)

	if err != nil {
		slog.Warn("Detached call failed",
			append([]any{"operation", name, "attempts", attempts, "error", err}, attrs...)...,
		)
		return nil
	}

	slog.Debug("Detached call succeeded",
		append([]any{"operation", name, "attempts", attempts}, attrs...)...,
	)
	return nil
}

// Stop waits for queued calls to finish, up to ctx's deadline
func (d *Dispatcher) Stop(ctx context.Context) error {
	return d.pool.Stop(ctx)
}

// BreakerStates returns the circuit state of every remote called so far
func (d *Dispatcher) BreakerStates() map[string]string {
	return d.breakers.States()
}

// Queued returns the number of calls waiting for a worker
func (d *Dispatcher) Queued() int {
	return d.pool.QueueLength()
}
