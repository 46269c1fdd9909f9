package detached

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// RetryStrategy handles exponential backoff retry logic
type RetryStrategy struct {
	config model.RetryConfig
}

// NewRetryStrategy creates a new retry strategy
func NewRetryStrategy(config model.RetryConfig) *RetryStrategy {
	config.SetDefaults()
	return &RetryStrategy{
		config: config,
	}
}

// CalculateDelay calculates the delay for a given attempt using exponential backoff
// Formula: delay = min(initial_delay * (multiplier ^ (attempt-1)), max_delay)
func (rs *RetryStrategy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delayMs := float64(rs.config.InitialDelayMs) * math.Pow(rs.config.Multiplier, float64(attempt-1))

	if delayMs > float64(rs.config.MaxDelayMs) {
		delayMs = float64(rs.config.MaxDelayMs)
	}

	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry determines if another attempt is worthwhile after err
func (rs *RetryStrategy) ShouldRetry(attempt int, err error) bool {
	if err == nil {
		return false
	}
	if attempt >= rs.config.MaxAttempts {
		return false
	}

	// The remote side has forgotten the job; repeating cannot help
	if errors.Is(err, model.ErrJobNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Errors that classify themselves decide; anything else is treated as a network fault
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// GetMaxAttempts returns the maximum number of attempts
func (rs *RetryStrategy) GetMaxAttempts() int {
	return rs.config.MaxAttempts
}

// Do runs fn until it succeeds, ShouldRetry refuses, or ctx ends
func (rs *RetryStrategy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var err error
	for attempt := 1; attempt <= rs.GetMaxAttempts(); attempt++ {
		err = fn(ctx, attempt)
		if !rs.ShouldRetry(attempt, err) {
			return attempt, err
		}

		timer := time.NewTimer(rs.CalculateDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		}
	}
	return rs.GetMaxAttempts(), err
}
