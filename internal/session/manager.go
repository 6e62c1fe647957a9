package session

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

// DefaultIdleTTL closes sessions nobody has touched for this long.
const DefaultIdleTTL = 2 * time.Hour

// Manager creates, finds and closes sessions.
type Manager struct {
	deps    Deps
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. A non-positive idleTTL uses DefaultIdleTTL.
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		deps:     deps,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session for deviceID, restoring the device's progress and
// class preference. An empty deviceID gets a fresh one.
func (m *Manager) Create(ctx context.Context, deviceID string) (*Session, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	s := newSession(uuid.NewString(), deviceID, m.deps, m.now())
	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	slog.Info("session opened", "session", s.id, "device", deviceID, "open", n)
	return s, nil
}

// Get returns an open session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	s.touch(m.now())
	return s, nil
}

// Close closes and forgets a session. It reports whether the session existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	slog.Info("session closed", "session", id)
	return true
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many it closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		slog.Info("idle sessions closed", "count", len(idle))
	}
	return len(idle)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := slices.Collect(maps.Values(m.sessions))
	clear(m.sessions)
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(max(m.idleTTL/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}
