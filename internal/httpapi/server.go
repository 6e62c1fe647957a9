// Package httpapi exposes sessions, statistics, admin mutations and
// announcements as a JSON API over net/http.
package httpapi

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/p-n-ai/praxis/internal/admin"
	"github.com/p-n-ai/praxis/internal/announce"
	"github.com/p-n-ai/praxis/internal/auth"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/notify"
	"github.com/p-n-ai/praxis/internal/session"
)

// Checker is a dependency probed by /readyz.
type Checker interface {
	Ping(ctx context.Context) error
}

// AuditReader lists recent admin events.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]admin.Event, error)
}

// Config holds the server's collaborators. Auth, Audit, Feed and Hub are
// optional; the routes that need them answer 404 when they are missing.
type Config struct {
	Sessions *session.Manager
	Tree     *catalog.Tree
	Admin    *admin.Gateway
	Auth     auth.Provider
	Roles    auth.Roles
	Audit    AuditReader
	Feed     *announce.Feed
	Hub      *notify.Hub
	Checks   map[string]Checker
	// Timeout bounds each auth and role lookup. Zero means DefaultTimeout.
	Timeout  time.Duration
}

// DefaultTimeout bounds auth and role lookups when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Server routes API requests.
type Server struct {
	cfg Config
}

// NewServer creates a server over cfg.
func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return DefaultTimeout
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{sid}", s.handleCloseSession)
	mux.HandleFunc("GET /api/sessions/{sid}/view", s.withSession(s.handleView))
	mux.HandleFunc("POST /api/sessions/{sid}/commands", s.withSession(s.handleCommand))
	mux.HandleFunc("GET /api/sessions/{sid}/stats", s.withSession(s.handleStats))
	mux.HandleFunc("GET /api/sessions/{sid}/stats.xlsx", s.withSession(s.handleStatsXLSX))
	mux.HandleFunc("GET /api/sessions/{sid}/theme", s.withSession(s.handleGetTheme))
	mux.HandleFunc("PUT /api/sessions/{sid}/theme", s.withSession(s.handleSetTheme))
	mux.HandleFunc("POST /api/sessions/{sid}/sign-in", s.withSession(s.handleSignIn))
	mux.HandleFunc("POST /api/sessions/{sid}/sign-out", s.withSession(s.handleSignOut))

	mux.HandleFunc("POST /api/admin/batches", s.withActor(s.handleCreateBatch))
	mux.HandleFunc("DELETE /api/admin/batches/{bid}", s.withActor(s.handleDeleteBatch))
	mux.HandleFunc("POST /api/admin/batches/{bid}/subjects", s.withActor(s.handleCreateSubject))
	mux.HandleFunc("DELETE /api/admin/batches/{bid}/subjects/{sub}", s.withActor(s.handleDeleteSubject))
	mux.HandleFunc("POST /api/admin/batches/{bid}/subjects/{sub}/chapters", s.withActor(s.handleCreateChapter))
	mux.HandleFunc("DELETE /api/admin/batches/{bid}/subjects/{sub}/chapters/{cid}", s.withActor(s.handleDeleteChapter))
	mux.HandleFunc("POST /api/admin/batches/{bid}/subjects/{sub}/chapters/{cid}/lectures", s.withActor(s.handleAddLecture))
	mux.HandleFunc("DELETE /api/admin/batches/{bid}/subjects/{sub}/chapters/{cid}/lectures/{lid}", s.withActor(s.handleRemoveLecture))
	mux.HandleFunc("POST /api/admin/batches/{bid}/subjects/{sub}/chapters/{cid}/resources", s.withActor(s.handleAddResource))
	mux.HandleFunc("DELETE /api/admin/batches/{bid}/subjects/{sub}/chapters/{cid}/resources/{kind}/{rid}", s.withActor(s.handleRemoveResource))
	mux.HandleFunc("POST /api/admin/announcements", s.withActor(s.handlePostAnnouncement))
	mux.HandleFunc("GET /api/admin/events", s.withActor(s.handleAdminEvents))

	mux.HandleFunc("GET /api/announcements", s.handleAnnouncements)
	mux.HandleFunc("GET /api/announcements/stream", s.handleAnnouncementStream)
	return logRequests(mux)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, c := range s.cfg.Checks {
		if err := c.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"revision": s.cfg.Tree.Revision(),
		"classes":  catalog.ClassLevels,
		"batches":  s.cfg.Tree.Batches(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes the connection through for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
