package store

import (
	"context"
	"fmt"
	"sync"
)

// watchHub fans change events out to Watch subscribers. Slow subscribers
// drop events; an event only triggers a refresh, so a dropped one is
// recovered by the next event or the periodic reload.
type watchHub struct {
	mu       sync.Mutex
	watchers map[int]chan Event
	next     int
	closed   bool
}

func newWatchHub() *watchHub {
	return &watchHub{watchers: make(map[int]chan Event)}
}

func (h *watchHub) watch(ctx context.Context) (<-chan Event, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("store is closed")
	}
	id := h.next
	h.next++
	ch := make(chan Event, 16)
	h.watchers[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if existing, ok := h.watchers[id]; ok && existing == ch {
			delete(h.watchers, id)
			close(ch)
		}
		h.mu.Unlock()
	}()

	return ch, nil
}

func (h *watchHub) notify(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.watchers {
		delete(h.watchers, id)
		close(ch)
	}
}
