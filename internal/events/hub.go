// Package events buffers sequenced UI events per context.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

type buffer struct {
	events []model.Event
	// closed and replaced on every publish
	notify chan struct{}
}

// Hub holds a bounded event buffer for each context
type Hub struct {
	mu      sync.Mutex
	size    int
	seq     int64
	buffers map[string]*buffer
}

// NewHub creates a hub keeping at most size events per context
func NewHub(size int) *Hub {
	if size <= 0 {
		size = 200
	}
	return &Hub{
		size:    size,
		buffers: make(map[string]*buffer),
	}
}

// Publish appends an event to the context's buffer and wakes waiters.
// Sequence numbers increase across the whole hub, so they never repeat after Drop.
func (h *Hub) Publish(ev model.Event) model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev.Seq = h.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b := h.bufferLocked(ev.ContextID)
	b.events = append(b.events, ev)
	if over := len(b.events) - h.size; over > 0 {
		b.events = append(b.events[:0:0], b.events[over:]...)
	}

	close(b.notify)
	b.notify = make(chan struct{})
	return ev
}

// Since returns the context's buffered events with a sequence number above seq
func (h *Hub) Since(contextID string, seq int64) []model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.buffers[contextID]
	if !ok {
		return []model.Event{}
	}
	return since(b, seq)
}

// Wait blocks until the context has events above seq or ctx ends. It returns
// an empty slice, not an error, when ctx expires or the context is dropped.
func (h *Hub) Wait(ctx context.Context, contextID string, seq int64) []model.Event {
	h.mu.Lock()
	b := h.bufferLocked(contextID)
	h.mu.Unlock()

	for {
		h.mu.Lock()
		if h.buffers[contextID] != b {
			h.mu.Unlock()
			return []model.Event{}
		}
		if events := since(b, seq); len(events) > 0 {
			h.mu.Unlock()
			return events
		}
		notify := b.notify
		h.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return []model.Event{}
		}
	}
}

// Drop discards the context's buffer and releases its waiters
func (h *Hub) Drop(contextID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.buffers[contextID]; ok {
		close(b.notify)
		delete(h.buffers, contextID)
	}
}

func (h *Hub) bufferLocked(contextID string) *buffer {
	b, ok := h.buffers[contextID]
	if !ok {
		b = &buffer{notify: make(chan struct{})}
		h.buffers[contextID] = b
	}
	return b
}

func since(b *buffer, seq int64) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range b.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
