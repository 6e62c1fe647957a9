package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/praxis/internal/docstore"
)

const reloadAttempts = 3

// Syncer keeps the live tree in step with catalog changes written by other
// instances sharing the same store.
type Syncer struct {
	mirror *Mirror
	tree   *Tree
	origin string
	last   string
}

// NewSyncer creates a syncer for tree. Markers written by origin are this
// instance's own and are ignored.
func NewSyncer(mirror *Mirror, tree *Tree, origin string) *Syncer {
	return &Syncer{mirror: mirror, tree: tree, origin: origin}
}

// Run reloads the tree whenever another origin moves the change marker, until
// ctx is done. The first snapshot only records the current marker.
func (s *Syncer) Run(ctx context.Context) error {
	snapshots, err := s.mirror.docs.Subscribe(ctx, stateCollection)
	if err != nil {
		return fmt.Errorf("subscribe catalog changes: %w", err)
	}
	slog.Info("catalog sync started", "origin", s.origin)
	primed := false
	for docs := range snapshots {
		remote := s.observe(docs)
		if !primed {
			primed = true
			continue
		}
		if !remote {
			continue
		}
		if err := s.Reload(ctx); err != nil {
			slog.Warn("catalog reload failed", "error", err)
		}
	}
	return nil
}

// observe records the latest marker and reports whether it moved because of
// another origin.
func (s *Syncer) observe(docs []docstore.Document) bool {
	for _, d := range docs {
		if d.ID != stateID {
			continue
		}
		origin := str(d.Data, "origin")
		stamp := origin + "@" + str(d.Data, "changedAt")
		if stamp == s.last {
			return false
		}
		s.last = stamp
		return origin != s.origin
	}
	return false
}

// Reload rebuilds the live tree from the store. A local change that lands
// while the store is read is newer than the load, so the load is retried.
func (s *Syncer) Reload(ctx context.Context) error {
	for range reloadAttempts {
		base := s.tree.Revision()
		fresh, err := s.mirror.LoadTree(ctx)
		if err != nil {
			return err
		}
		if s.tree.replaceIf(fresh.batches, base) {
			slog.Info("catalog reloaded", "batches", len(fresh.batches), "revision", s.tree.Revision())
			return nil
		}
	}
	return fmt.Errorf("catalog changed during %d reload attempts", reloadAttempts)
}
