package server

import (
	"context"
	"sync"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
)

// Hub fans committed frames out to stream subscribers. Slow subscribers only ever see the
// newest frame.
type Hub struct {
	subs map[chan *atlas.Frame]struct{}
	mu   sync.Mutex
}

// NewHub creates a hub without subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan *atlas.Frame]struct{})}
}

// Render implements atlas.Renderer.
func (h *Hub) Render(_ context.Context, f *atlas.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- f:
		default:
			// Replace the undelivered frame with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- f
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned function unsubscribes.
func (h *Hub) Subscribe() (<-chan *atlas.Frame, func()) {
	ch := make(chan *atlas.Frame, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, ch)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
