package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the LISTEN/NOTIFY channel; the payload is the collection path.
const notifyChannel = "docstore_changes"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	id         TEXT NOT NULL,
	seq        BIGSERIAL NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS documents_parent_seq_idx ON documents (parent, seq);
`

// PostgresStore keeps every document in a single JSONB table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on pool and ensures its table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT path, id, data, updated_at
		 FROM documents
		 WHERE parent = $1
		 ORDER BY seq ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.Path, &d.ID, &raw, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if d.Data, err = decodeData(raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.Path, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Document, bool, error) {
	if _, _, err := splitDoc(path); err != nil {
		return Document{}, false, err
	}
	d := Document{Path: path}
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, data, updated_at FROM documents WHERE path = $1`,
		path,
	).Scan(&d.ID, &raw, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("get %s: %w", path, err)
	}
	if d.Data, err = decodeData(raw); err != nil {
		return Document{}, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return d, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error {
	collection, id, err := splitDoc(path)
	if err != nil {
		return err
	}
	o := applySetOptions(opts)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		next := data
		if o.merge {
			// Make sure the row exists so FOR UPDATE serializes concurrent merges.
			if _, err := tx.Exec(ctx,
				`INSERT INTO documents (path, parent, id) VALUES ($1, $2, $3)
				 ON CONFLICT (path) DO NOTHING`,
				path, collection, id,
			); err != nil {
				return fmt.Errorf("reserve %s: %w", path, err)
			}
			var raw []byte
			if err := tx.QueryRow(ctx,
				`SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path,
			).Scan(&raw); err != nil {
				return fmt.Errorf("lock %s: %w", path, err)
			}
			current, err := decodeData(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			next = DeepMerge(current, data)
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (path, parent, id, data, updated_at)
			 VALUES ($1, $2, $3, $4::jsonb, NOW())
			 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			path, collection, id, string(encoded),
		); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return notify(ctx, tx, collection)
	})
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	collection, _, err := splitDoc(path)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
		if err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		if cmd.RowsAffected() == 0 {
			return nil
		}
		return notify(ctx, tx, collection)
	})
}

func (s *PostgresStore) DeleteTree(ctx context.Context, path string) error {
	if _, _, err := splitDoc(path); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`DELETE FROM documents
			 WHERE path = $1 OR starts_with(path, $2)
			 RETURNING parent`,
			path, path+"/",
		)
		if err != nil {
			return fmt.Errorf("delete tree %s: %w", path, err)
		}
		parents, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("delete tree %s: %w", path, err)
		}
		seen := map[string]bool{}
		for _, p := range parents {
			if seen[p] {
				continue
			}
			seen[p] = true
			if err := notify(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Subscribe holds one pooled connection in LISTEN mode for the lifetime of ctx
// and re-reads the collection whenever it changes.
func (s *PostgresStore) Subscribe(ctx context.Context, collection string) (<-chan []Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	initial, err := s.List(ctx, collection)
	if err != nil {
		conn.Release()
		return nil, err
	}

	ch := make(chan []Document, 1)
	ch <- initial
	go func() {
		defer close(ch)
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = conn.Exec(cleanupCtx, "UNLISTEN "+notifyChannel)
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("document subscription stopped", "collection", collection, "error", err)
				}
				return
			}
			if n.Payload != collection {
				continue
			}
			docs, err := s.List(ctx, collection)
			if err != nil {
				slog.Warn("document subscription reload failed", "collection", collection, "error", err)
				continue
			}
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- docs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func notify(ctx context.Context, tx pgx.Tx, collection string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		return fmt.Errorf("notify %s: %w", collection, err)
	}
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
