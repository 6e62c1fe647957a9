// Package session owns the per-viewer application state: navigation,
// completion progress, identity and device preferences. All state changes of
// one session happen through Dispatch and the setters below, one at a time.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/praxis/internal/auth"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/docstore"
	"github.com/p-n-ai/praxis/internal/localstore"
	"github.com/p-n-ai/praxis/internal/navigation"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
	"github.com/p-n-ai/praxis/internal/progress"
	"github.com/p-n-ai/praxis/internal/stats"
)

// Command names accepted by Dispatch.
const (
	CmdSelectClass   = "select_class"
	CmdSelectBatch   = "select_batch"
	CmdSelectSubject = "select_subject"
	CmdSelectChapter = "select_chapter"
	CmdPlayLecture   = "play_lecture"
	CmdStopLecture   = "stop_lecture"
	CmdMarkComplete  = "mark_complete"
)

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

const (
	ReasonNeedLecture  = "play a lecture first"
	ReasonInvalidTheme = "theme must be dark or light"
	ReasonUnknownCmd   = "unknown command"
)

// DefaultStoreTimeout bounds store calls when Deps.Timeout is unset.
const DefaultStoreTimeout = 5 * time.Second

// Command is one user-triggered event. ID carries the class level or the id
// of the batch, subject, chapter or lecture being selected.
type Command struct {
	Name string `json:"command"`
	ID   string `json:"id,omitempty"`
}

// ChapterLoader re-reads one chapter from the document store.
type ChapterLoader interface {
	LoadChapter(ctx context.Context, ref catalog.ChapterRef) (catalog.Chapter, error)
}

// Deps are shared by every session of a Manager.
type Deps struct {
	Tree     *catalog.Tree
	Chapters ChapterLoader
	Docs     docstore.Store
	Devices  localstore.Devices
	Timeout  time.Duration
}

// Session is one viewer's state.
type Session struct {
	id       string
	deviceID string
	deps     Deps

	mu       sync.Mutex
	nav      *navigation.Machine
	tracker  *progress.Tracker
	identity *auth.Identity
	store    progress.Store
	local    localstore.Storage
	lastSeen time.Time
	closed   bool
}

func newSession(id, deviceID string, deps Deps, now time.Time) *Session {
	local := deps.Devices.Device(deviceID)
	return &Session{
		id:       id,
		deviceID: deviceID,
		deps:     deps,
		nav:      navigation.New(deps.Tree),
		tracker:  progress.NewTracker(),
		store:    progress.NewDeviceStore(local),
		local:    local,
		lastSeen: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// DeviceID returns the device the session was opened on.
func (s *Session) DeviceID() string { return s.deviceID }

// restore loads device progress and the remembered class level.
func (s *Session) restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadProgress(ctx); err != nil {
		return err
	}
	var level catalog.ClassLevel
	ok, err := localstore.GetJSON(ctx, s.local, localstore.KeyClass, &level)
	if err != nil {
		slog.Warn("ignoring stored class level", "session", s.id, "error", err)
		return nil
	}
	if ok && level.Valid() {
		_ = s.nav.SelectClass(level)
	}
	return nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.deps.Timeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Session) checkOpen() error {
	if s.closed {
		return apperr.NotFound("session", s.id)
	}
	return nil
}

// Dispatch applies cmd and returns the resulting view.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (navigation.View, error) {
	refresh, err := s.apply(ctx, cmd)
	if err != nil {
		return navigation.View{}, err
	}
	if refresh != nil {
		s.refreshChapter(ctx, *refresh)
	}
	return s.View()
}

// apply runs one transition. It returns the chapter to reload when a chapter
// was selected.
func (s *Session) apply(ctx context.Context, cmd Command) (*catalog.ChapterRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.nav.Reconcile()

	switch cmd.Name {
	case CmdSelectClass:
		level := catalog.ClassLevel(cmd.ID)
		if err := s.nav.SelectClass(level); err != nil {
			return nil, err
		}
		s.rememberClass(ctx, level)
	case CmdSelectBatch:
		return nil, s.nav.SelectBatch(cmd.ID)
	case CmdSelectSubject:
		return nil, s.nav.SelectSubject(cmd.ID)
	case CmdSelectChapter:
		if _, err := s.nav.SelectChapter(cmd.ID); err != nil {
			return nil, err
		}
		if s.deps.Chapters != nil {
			ref := s.nav.Selection().ChapterRef()
			return &ref, nil
		}
	case CmdPlayLecture:
		_, err := s.nav.PlayLecture(cmd.ID)
		return nil, err
	case CmdStopLecture:
		s.nav.StopLecture()
	case CmdMarkComplete:
		return nil, s.markComplete(ctx)
	default:
		return nil, apperr.Validation("command", ReasonUnknownCmd)
	}
	return nil, nil
}

// refreshChapter reloads ref from the store. The result is dropped when the
// viewer has moved to another chapter while the load was in flight, or when
// the live tree changed after the load started.
func (s *Session) refreshChapter(ctx context.Context, ref catalog.ChapterRef) {
	lctx, cancel := s.withTimeout(ctx)
	defer cancel()
	since := s.deps.Tree.Revision()
	fresh, err := s.deps.Chapters.LoadChapter(lctx, ref)
	if err != nil {
		slog.Warn("chapter refresh failed, serving cached content",
			"session", s.id, "chapter", ref.ChapterID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.nav.Selection().ChapterRef() != ref {
		slog.Debug("discarding stale chapter load", "session", s.id, "chapter", ref.ChapterID)
		return
	}
	if !s.deps.Tree.RefreshChapter(ref, fresh, since) {
		slog.Debug("chapter load superseded by a newer catalog", "session", s.id, "chapter", ref.ChapterID)
	}
}

// markComplete persists the playing lecture as completed and only then
// updates the tracker.
func (s *Session) markComplete(ctx context.Context) error {
	key := s.nav.Selection().PlayingKey
	if key == "" {
		return apperr.Precondition(ReasonNeedLecture)
	}
	if s.tracker.IsComplete(key) {
		return nil
	}

	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.Save(wctx, s.tracker.With(key)); err != nil {
		slog.Error("saving progress failed", "session", s.id, "key", key, "error", err)
		return apperr.External("mark_complete", err)
	}
	s.tracker.MarkComplete(key)
	return nil
}

func (s *Session) rememberClass(ctx context.Context, level catalog.ClassLevel) {
	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := localstore.SetJSON(wctx, s.local, localstore.KeyClass, level); err != nil {
		slog.Warn("saving class preference failed", "session", s.id, "error", err)
	}
}

// View returns the current display state without changing the selection
// beyond dropping parts that no longer exist.
func (s *Session) View() (navigation.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return navigation.View{}, err
	}
	s.nav.Reconcile()
	return s.viewLocked(), nil
}

func (s *Session) viewLocked() navigation.View {
	return s.nav.View(s.tracker)
}

// Stats aggregates progress over the whole catalog.
func (s *Session) Stats() (stats.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return stats.Stats{}, err
	}
	return stats.Compute(s.deps.Tree, s.tracker), nil
}

// Identity returns the signed-in user, if any.
func (s *Session) Identity() (auth.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return auth.Identity{}, false
	}
	return *s.identity, true
}

// SetIdentity switches progress persistence to the user's document, or back
// to device storage when id is nil, and reloads the tracker from it. On a
// failed load nothing changes.
func (s *Session) SetIdentity(ctx context.Context, id *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	prevID, prevStore := s.identity, s.store
	if id != nil {
		cp := *id
		s.identity = &cp
		s.store = progress.NewUserStore(s.deps.Docs, id.UID)
	} else {
		s.identity = nil
		s.store = progress.NewDeviceStore(s.local)
	}
	if err := s.reloadProgress(ctx); err != nil {
		s.identity, s.store = prevID, prevStore
		return err
	}
	return nil
}

func (s *Session) reloadProgress(ctx context.Context) error {
	lctx, cancel := s.withTimeout(ctx)
	defer cancel()
	st, err := s.store.Load(lctx)
	if err != nil {
		return apperr.External("load_progress", err)
	}
	s.tracker.Restore(st)
	return nil
}

// Theme returns the device's theme, dark unless set otherwise.
func (s *Session) Theme(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	lctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var theme string
	ok, err := localstore.GetJSON(lctx, s.local, localstore.KeyTheme, &theme)
	if err != nil {
		return "", apperr.External("load_theme", err)
	}
	if !ok || (theme != ThemeDark && theme != ThemeLight) {
		return ThemeDark, nil
	}
	return theme, nil
}

// SetTheme stores the device's theme.
func (s *Session) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeDark && theme != ThemeLight {
		return apperr.Validation("theme", ReasonInvalidTheme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := localstore.SetJSON(wctx, s.local, localstore.KeyTheme, theme); err != nil {
		return apperr.External("save_theme", err)
	}
	return nil
}

// Close releases the session's storage handles. Later calls fail with NotFound.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.identity = nil
	s.store = nil
	s.local = nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
