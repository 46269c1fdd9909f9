package detached

import (
	"errors"
	"sync"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// remoteHealth is one remote's breaker
type remoteHealth struct {
	state     breakerState
	failures  int
	successes int // while half-open
	changed   time.Time
}

// Breakers keeps a circuit breaker per remote. A remote opens after
// failureThreshold consecutive failed calls, stays open for openFor, then
// lets calls through half-open until successThreshold of them succeed.
type Breakers struct {
	failureThreshold int
	successThreshold int
	openFor          time.Duration

	mu      sync.Mutex
	remotes map[string]*remoteHealth
}

// NewBreakers creates an empty breaker set. Zero values pick 5 failures,
// 2 successes and a 60s open period.
func NewBreakers(failureThreshold, successThreshold int, openFor time.Duration) *Breakers {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if openFor <= 0 {
		openFor = 60 * time.Second
	}
	return &Breakers{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openFor:          openFor,
		remotes:          make(map[string]*remoteHealth),
	}
}

func (b *Breakers) healthLocked(remote string) *remoteHealth {
	h, ok := b.remotes[remote]
	if !ok {
		h = &remoteHealth{state: breakerClosed, changed: time.Now()}
		b.remotes[remote] = h
	}
	return h
}

// Allow reports whether a call to remote may go out now
func (b *Breakers) Allow(remote string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.healthLocked(remote)
	if h.state == breakerOpen {
		if time.Since(h.changed) < b.openFor {
			return false
		}
		h.state = breakerHalfOpen
		h.failures = 0
		h.successes = 0
		h.changed = time.Now()
	}
	return true
}

// Record feeds a finished call's outcome into remote's breaker. A job the
// remote no longer knows is an answer from a healthy server.
func (b *Breakers) Record(remote string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.healthLocked(remote)
	if err == nil || errors.Is(err, model.ErrJobNotFound) {
		switch h.state {
		case breakerClosed:
			h.failures = 0
		case breakerHalfOpen:
			h.successes++
			if h.successes >= b.successThreshold {
				h.state = breakerClosed
				h.failures = 0
				h.successes = 0
				h.changed = time.Now()
			}
		}
		return
	}

	h.failures++
	if h.state == breakerHalfOpen || (h.state == breakerClosed && h.failures >= b.failureThreshold) {
		h.state = breakerOpen
		h.successes = 0
		h.changed = time.Now()
	}
}

// State returns remote's breaker state name
func (b *Breakers) State(remote string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.remotes[remote]; ok {
		return h.state.String()
	}
	return breakerClosed.String()
}

// States returns every known remote's breaker state name
func (b *Breakers) States() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]string, len(b.remotes))
	for remote, h := range b.remotes {
		out[remote] = h.state.String()
	}
	return out
}
