package notify

import (
	"context"
	"log/slog"
	"sync"
)

// recentIDs bounds the duplicate filter of a Hub.
const recentIDs = 256

// Hub fans notifications out to in-process subscribers such as websocket
// connections. Slow subscribers drop notifications instead of blocking.
// A notification id seen recently is delivered only once, so several
// instances relaying the same event through Redis do not duplicate it.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	seen   map[string]bool
	order  []string
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Notification), seen: make(map[string]bool)}
}

// Subscribe registers a subscriber. cancel unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Publish(_ context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.ID != "" {
		if h.seen[n.ID] {
			return nil
		}
		h.seen[n.ID] = true
		h.order = append(h.order, n.ID)
		if len(h.order) > recentIDs {
			delete(h.seen, h.order[0])
			h.order = h.order[1:]
		}
	}
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			slog.Warn("dropping notification for slow subscriber", "subscriber", id, "id", n.ID)
		}
	}
	return nil
}
