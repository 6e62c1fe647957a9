package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const auditSchemaSQL = `
CREATE TABLE IF NOT EXISTS admin_events (
	id         BIGSERIAL PRIMARY KEY,
	actor_uid  TEXT NOT NULL,
	action     TEXT NOT NULL,
	target     TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS admin_events_created_at_idx ON admin_events (created_at DESC);
`

// Event is one applied admin mutation.
type Event struct {
	ActorUID  string
	Action    string
	Target    string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger records admin events.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the admin_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

// NewPostgresEventLogger creates the logger and ensures its table exists.
func NewPostgresEventLogger(ctx context.Context, pool *pgxpool.Pool) (*PostgresEventLogger, error) {
	if pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}
	if _, err := pool.Exec(ctx, auditSchemaSQL); err != nil {
		return nil, fmt.Errorf("create admin_events table: %w", err)
	}
	return &PostgresEventLogger{pool: pool}, nil
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.ActorUID == "" {
		return fmt.Errorf("actor_uid is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO admin_events (actor_uid, action, target, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.ActorUID,
		event.Action,
		event.Target,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert admin event: %w", err)
	}

	slog.Debug("admin event logged",
		"action", event.Action,
		"target", event.Target,
		"actor_uid", event.ActorUID,
	)
	return nil
}

// Recent returns the newest events first.
func (l *PostgresEventLogger) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT actor_uid, action, target, data, created_at
		 FROM admin_events
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query admin events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var raw []byte
		if err := rows.Scan(&e.ActorUID, &e.Action, &e.Target, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin event: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Data); err != nil {
			return nil, fmt.Errorf("decode admin event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recent returns the newest events first.
func (l *MemoryEventLogger) Recent(_ context.Context, limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, min(limit, len(l.events)))
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.events[i])
	}
	return out, nil
}
