package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/p-n-ai/praxis/internal/admin"
	"github.com/p-n-ai/praxis/internal/announce"
	"github.com/p-n-ai/praxis/internal/auth"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/docstore"
	"github.com/p-n-ai/praxis/internal/httpapi"
	"github.com/p-n-ai/praxis/internal/localstore"
	"github.com/p-n-ai/praxis/internal/notify"
	"github.com/p-n-ai/praxis/internal/platform/cache"
	"github.com/p-n-ai/praxis/internal/platform/config"
	"github.com/p-n-ai/praxis/internal/platform/database"
	"github.com/p-n-ai/praxis/internal/session"
)

type auditLog interface {
	admin.EventLogger
	httpapi.AuditReader
}

// app holds the long-running parts of the server and the handles to release.
type app struct {
	cfg      *config.Config
	server   *http.Server
	feed     *announce.Feed
	syncer   *catalog.Syncer
	sessions *session.Manager
	hub      *notify.Hub
	relay    *notify.RedisChannel
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, hub: notify.NewHub()}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()
	checks := map[string]httpapi.Checker{}

	var docs docstore.Store
	var audit auditLog
	if cfg.UsesPostgres() {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db

		pg, err := docstore.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			return nil, err
		}
		docs = pg
		if audit, err = admin.NewPostgresEventLogger(ctx, db.Pool); err != nil {
			return nil, err
		}
	} else {
		docs = docstore.NewMemoryStore()
		audit = admin.NewMemoryEventLogger()
	}

	var devices localstore.Devices = localstore.NewMemoryDevices()
	if cfg.UsesCache() {
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		checks["cache"] = c
		devices = localstore.NewRedisDevices(c.Client, cfg.Session.StorageTTL)
		a.relay = notify.NewRedisChannel(c.Client, cfg.Notify.Channel)
	}

	mirror := catalog.NewMirror(docs)
	if err := seedCatalog(ctx, mirror, cfg.Catalog); err != nil {
		return nil, err
	}
	tree, err := mirror.LoadTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("catalog loaded", "batches", len(tree.Batches()), "revision", tree.Revision())
	origin := uuid.NewString()
	a.syncer = catalog.NewSyncer(mirror, tree, origin)

	var provider auth.Provider
	if cfg.Auth.UsersFile != "" {
		users, err := auth.LoadUsers(cfg.Auth.UsersFile)
		if err != nil {
			return nil, err
		}
		if err := auth.SyncProfiles(ctx, docs, users); err != nil {
			return nil, fmt.Errorf("sync user profiles: %w", err)
		}
		provider = auth.NewStaticProvider(users, cfg.Auth.TokenTTL)
	} else {
		slog.Warn("no users file configured, sign-in disabled")
	}

	// The hub receives local notifications directly and, with Redis, the same
	// ones again through the relay; it drops the repeats by id.
	notifier := notify.NewGateway()
	notifier.Register("log", notify.LogChannel{})
	notifier.Register("hub", a.hub)
	if a.relay != nil {
		notifier.Register("redis", a.relay)
	}
	a.feed = announce.NewFeed(docs, notifier)

	a.sessions = session.NewManager(session.Deps{
		Tree:     tree,
		Chapters: mirror,
		Docs:     docs,
		Devices:  devices,
		Timeout:  cfg.Store.Timeout,
	}, cfg.Session.IdleTTL)

	gateway := admin.NewGateway(tree, mirror, docs, admin.Options{
		Origin:  origin,
		Timeout: cfg.Store.Timeout,
		Audit:   audit,
	})
	api := httpapi.NewServer(httpapi.Config{
		Sessions: a.sessions,
		Tree:     tree,
		Admin:    gateway,
		Auth:     provider,
		Roles:    auth.NewProfileRoles(docs),
		Audit:    audit,
		Feed:     a.feed,
		Hub:      a.hub,
		Checks:   checks,
		Timeout:  cfg.Store.Timeout,
	})

	a.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ready = true
	return a, nil
}

// seedCatalog writes the seed tree when the store holds no batches yet, or
// always when reseeding is requested.
func seedCatalog(ctx context.Context, mirror *catalog.Mirror, cfg config.CatalogConfig) error {
	empty, err := mirror.Empty(ctx)
	if err != nil {
		return fmt.Errorf("inspect catalog: %w", err)
	}
	if !empty && !cfg.Reseed {
		return nil
	}

	batches := catalog.DefaultBatches()
	source := "default"
	if cfg.SeedPath != "" {
		if batches, err = catalog.LoadSeed(cfg.SeedPath); err != nil {
			return err
		}
		source = cfg.SeedPath
	}
	if err := mirror.Seed(ctx, batches); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	slog.Info("catalog seeded", "source", source, "batches", len(batches))
	return nil
}

// run serves until ctx is done or a component fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	g.Go(func() error { return a.feed.Run(ctx) })
	g.Go(func() error { return a.syncer.Run(ctx) })
	g.Go(func() error { return a.sessions.Run(ctx) })
	if a.relay != nil {
		g.Go(func() error {
			if err := a.relay.Relay(ctx, a.hub); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// close releases store connections in reverse order of acquisition.
func (a *app) close() {
	for _, c := range slices.Backward(a.closers) {
		c()
	}
	a.closers = nil
}
