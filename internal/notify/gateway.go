// Package notify delivers "new announcement" notifications to the registered
// channels (Redis pub/sub, in-process websocket hub, log).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// KindAnnouncement marks a newly posted announcement.
const KindAnnouncement = "announcement"

// Notification is one event handed to the channels.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel is one delivery path.
type Channel interface {
	Publish(ctx context.Context, n Notification) error
}

// Gateway fans notifications out to registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notification channel registered", "channel", name)
}

// Publish sends n to every channel. A failing channel does not stop the
// others; all failures are joined into the returned error.
func (g *Gateway) Publish(ctx context.Context, n Notification) error {
	g.mu.RLock()
	names := make([]string, 0, len(g.channels))
	for name := range g.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	channels := make([]Channel, len(names))
	for i, name := range names {
		channels[i] = g.channels[name]
	}
	g.mu.RUnlock()

	var errs []error
	for i, name := range names {
		if err := channels[i].Publish(ctx, n); err != nil {
			slog.Warn("notification delivery failed", "channel", name, "id", n.ID, "error", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes notifications to the structured log.
type LogChannel struct{}

func (LogChannel) Publish(_ context.Context, n Notification) error {
	slog.Info("notification", "kind", n.Kind, "id", n.ID, "title", n.Title)
	return nil
}

// MockChannel is a test double for Channel.
type MockChannel struct {
	mu        sync.Mutex
	Published []Notification
	Err       error
}

func (m *MockChannel) Publish(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, n)
	return nil
}

// Sent returns a copy of the published notifications.
func (m *MockChannel) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.Published...)
}
