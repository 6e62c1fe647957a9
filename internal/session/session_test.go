package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/praxis/internal/admin"
	"github.com/p-n-ai/praxis/internal/auth"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/docstore"
	"github.com/p-n-ai/praxis/internal/localstore"
	"github.com/p-n-ai/praxis/internal/navigation"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
	"github.com/p-n-ai/praxis/internal/session"
)

var realRef = catalog.ChapterRef{BatchID: "b1", SubjectID: "math", ChapterID: "real"}

func newTree(t *testing.T) *catalog.Tree {
	t.Helper()
	tree, err := catalog.NewTree([]catalog.Batch{
		{
			ID: "b1", Name: "Board Booster", ClassLevel: "10",
			Subjects: []catalog.Subject{{
				ID: "math", Name: "Mathematics",
				Chapters: []catalog.Chapter{
					{ID: "real", Name: "Real Numbers", Lectures: []catalog.Lecture{
						{ID: "l1", Title: "Intro", VideoRef: "abc"},
						{ID: "l2", Title: "Lemma", VideoRef: "def"},
					}},
					{ID: "poly", Name: "Polynomials"},
				},
			}},
		},
		{ID: "b12", Name: "JEE", ClassLevel: "12"},
	})
	require.NoError(t, err)
	return tree
}

// flakyDocs fails writes while fail is set.
type flakyDocs struct {
	*docstore.MemoryStore
	fail bool
}

func (d *flakyDocs) Set(ctx context.Context, path string, data map[string]any, opts ...docstore.SetOption) error {
	if d.fail {
		return errors.New("store unavailable")
	}
	return d.MemoryStore.Set(ctx, path, data, opts...)
}

type fixture struct {
	tree    *catalog.Tree
	docs    *flakyDocs
	devices *localstore.MemoryDevices
	mgr     *session.Manager
}

func newFixture(t *testing.T, loader session.ChapterLoader) *fixture {
	t.Helper()
	f := &fixture{
		tree:    newTree(t),
		docs:    &flakyDocs{MemoryStore: docstore.NewMemoryStore()},
		devices: localstore.NewMemoryDevices(),
	}
	f.mgr = session.NewManager(session.Deps{
		Tree:     f.tree,
		Chapters: loader,
		Docs:     f.docs,
		Devices:  f.devices,
		Timeout:  time.Second,
	}, time.Hour)
	return f
}

func dispatch(t *testing.T, s *session.Session, cmds ...session.Command) navigation.View {
	t.Helper()
	var v navigation.View
	for _, c := range cmds {
		var err error
		v, err = s.Dispatch(t.Context(), c)
		require.NoError(t, err, c.Name)
	}
	return v
}

func playIntro(t *testing.T, s *session.Session) navigation.View {
	t.Helper()
	return dispatch(t, s,
		session.Command{Name: session.CmdSelectClass, ID: "10"},
		session.Command{Name: session.CmdSelectChapter, ID: "real"},
		session.Command{Name: session.CmdPlayLecture, ID: "l1"},
	)
}

func TestSession_WatchAndComplete(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(t.Context(), "dev-1")
	require.NoError(t, err)

	v := playIntro(t, s)
	assert.Equal(t, navigation.LecturePlaying, v.Phase)
	require.NotNil(t, v.Playing)
	assert.False(t, v.Playing.Completed)
	assert.Equal(t, "Watching: Intro (Real Numbers)", v.RecentActivity)

	v = dispatch(t, s, session.Command{Name: session.CmdMarkComplete})
	assert.True(t, v.Playing.Completed)
	assert.Equal(t, navigation.StatusCompleted, v.Playing.Status)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Overall.Total)
	assert.Equal(t, 1, st.Overall.Completed)
	assert.Equal(t, "50%", st.Overall.OverallLabel())

	v = dispatch(t, s, session.Command{Name: session.CmdStopLecture})
	assert.Equal(t, navigation.ChapterSelected, v.Phase)
	assert.Nil(t, v.Playing)
}

func TestSession_MarkCompleteNeedsPlayingLecture(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(t.Context(), "")
	require.NoError(t, err)

	_, err = s.Dispatch(t.Context(), session.Command{Name: session.CmdMarkComplete})
	assert.ErrorIs(t, err, apperr.ErrPrecondition)
}

func TestSession_OutOfOrderAndUnknownCommands(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(t.Context(), "")
	require.NoError(t, err)

	_, err = s.Dispatch(t.Context(), session.Command{Name: session.CmdSelectChapter, ID: "real"})
	assert.ErrorIs(t, err, apperr.ErrPrecondition)
	_, err = s.Dispatch(t.Context(), session.Command{Name: "dance"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSession_DeviceProgressSurvivesNewSession(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(t.Context(), "dev-1")
	require.NoError(t, err)
	playIntro(t, s)
	dispatch(t, s, session.Command{Name: session.CmdMarkComplete})

	again, err := f.mgr.Create(t.Context(), "dev-1")
	require.NoError(t, err)
	st, err := again.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Overall.Completed)

	other, err := f.mgr.Create(t.Context(), "dev-2")
	require.NoError(t, err)
	st, err = other.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Overall.Completed)
}

func TestSession_UnreadableDeviceProgressStartsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	require.NoError(t, f.devices.Device("dev-1").Set(ctx, localstore.KeyProgress, []byte("{not json")))

	s, err := f.mgr.Create(ctx, "dev-1")
	require.NoError(t, err)
	playIntro(t, s)
	dispatch(t, s, session.Command{Name: session.CmdMarkComplete})

	again, err := f.mgr.Create(ctx, "dev-1")
	require.NoError(t, err)
	st, err := again.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Overall.Completed)
}

func TestSession_UserProgressMergesIntoProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	require.NoError(t, f.docs.Set(ctx, "progress/u1", map[string]any{"quizzes": map[string]any{"q1": 4.0}}))

	s, err := f.mgr.Create(ctx, "dev-1")
	require.NoError(t, err)
	require.NoError(t, s.SetIdentity(ctx, &auth.Identity{UID: "u1", Email: "a@b.c"}))
	playIntro(t, s)
	dispatch(t, s, session.Command{Name: session.CmdMarkComplete})

	doc, ok, err := f.docs.Get(ctx, "progress/u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"b1|math|real|l1": true}, doc.Data["completedLectures"])
	assert.Equal(t, map[string]any{"q1": 4.0}, doc.Data["quizzes"])

	// Signing out falls back to the device, which has no completions.
	require.NoError(t, s.SetIdentity(ctx, nil))
	st, _ := s.Stats()
	assert.Equal(t, 0, st.Overall.Completed)
	_, signedIn := s.Identity()
	assert.False(t, signedIn)

	require.NoError(t, s.SetIdentity(ctx, &auth.Identity{UID: "u1"}))
	st, _ = s.Stats()
	assert.Equal(t, 1, st.Overall.Completed)
}

func TestSession_FailedSaveLeavesProgressUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	s, err := f.mgr.Create(ctx, "dev-1")
	require.NoError(t, err)
	require.NoError(t, s.SetIdentity(ctx, &auth.Identity{UID: "u1"}))
	playIntro(t, s)

	f.docs.fail = true
	_, err = s.Dispatch(ctx, session.Command{Name: session.CmdMarkComplete})
	assert.ErrorIs(t, err, apperr.ErrExternalIO)

	v, err := s.View()
	require.NoError(t, err)
	assert.False(t, v.Playing.Completed)
}

func TestSession_Theme(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	s, err := f.mgr.Create(ctx, "dev-1")
	require.NoError(t, err)

	theme, err := s.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ThemeDark, theme)

	require.NoError(t, s.SetTheme(ctx, session.ThemeLight))
	assert.ErrorIs(t, s.SetTheme(ctx, "neon"), apperr.ErrValidation)

	again, err := f.mgr.Create(ctx, "dev-1")
	require.NoError(t, err)
	theme, err = again.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ThemeLight, theme)
}

func TestSession_RemembersClass(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(t.Context(), "dev-1")
	require.NoError(t, err)
	dispatch(t, s, session.Command{Name: session.CmdSelectClass, ID: "12"})

	again, err := f.mgr.Create(t.Context(), "dev-1")
	require.NoError(t, err)
	v, err := again.View()
	require.NoError(t, err)
	assert.Equal(t, catalog.ClassLevel("12"), v.Selection.ClassLevel)
	assert.Equal(t, "b12", v.Selection.BatchID)
}

func TestSession_ReconcilesAfterCatalogChange(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(t.Context(), "")
	require.NoError(t, err)
	playIntro(t, s)

	require.NoError(t, f.tree.RemoveLecture(realRef, "l1"))
	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, navigation.ChapterSelected, v.Phase)
	assert.Nil(t, v.Playing)
}

type stubLoader struct {
	mu      sync.Mutex
	fresh   map[string]catalog.Chapter
	block   map[string]chan struct{}
	started chan string
}

func (l *stubLoader) LoadChapter(ctx context.Context, ref catalog.ChapterRef) (catalog.Chapter, error) {
	l.mu.Lock()
	gate := l.block[ref.ChapterID]
	ch, ok := l.fresh[ref.ChapterID]
	l.mu.Unlock()
	if l.started != nil {
		l.started <- ref.ChapterID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return catalog.Chapter{}, ctx.Err()
		}
	}
	if !ok {
		return catalog.Chapter{}, errors.New("not stored")
	}
	return ch, nil
}

func TestSession_SelectChapterRefreshesFromStore(t *testing.T) {
	loader := &stubLoader{fresh: map[string]catalog.Chapter{
		"real": {ID: "real", Lectures: []catalog.Lecture{
			{ID: "l1", Title: "Intro", VideoRef: "abc"},
			{ID: "l2", Title: "Lemma", VideoRef: "def"},
			{ID: "l3", Title: "Irrationals", VideoRef: "ghi"},
		}},
	}}
	f := newFixture(t, loader)
	s, err := f.mgr.Create(t.Context(), "")
	require.NoError(t, err)

	v := dispatch(t, s,
		session.Command{Name: session.CmdSelectClass, ID: "10"},
		session.Command{Name: session.CmdSelectChapter, ID: "real"},
	)
	require.NotNil(t, v.Chapter)
	assert.Len(t, v.Chapter.Lectures, 3)

	// A failed load keeps the cached chapter.
	v = dispatch(t, s, session.Command{Name: session.CmdSelectChapter, ID: "poly"})
	require.NotNil(t, v.Chapter)
	assert.Equal(t, navigation.NoticeNoLectures, v.Chapter.Notice)
}

func TestSession_StaleChapterLoadIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	loader := &stubLoader{
		fresh: map[string]catalog.Chapter{
			"real": {ID: "real", Lectures: []catalog.Lecture{{ID: "zz", Title: "Stale", VideoRef: "x"}}},
		},
		block:   map[string]chan struct{}{"real": gate},
		started: make(chan string, 4),
	}
	f := newFixture(t, loader)
	s, err := f.mgr.Create(t.Context(), "")
	require.NoError(t, err)
	dispatch(t, s, session.Command{Name: session.CmdSelectClass, ID: "10"})

	done := make(chan error, 1)
	go func() {
		_, err := s.Dispatch(context.Background(), session.Command{Name: session.CmdSelectChapter, ID: "real"})
		done <- err
	}()
	require.Equal(t, "real", <-loader.started)

	v := dispatch(t, s, session.Command{Name: session.CmdSelectChapter, ID: "poly"})
	assert.Equal(t, "poly", v.Selection.ChapterID)
	<-loader.started

	close(gate)
	require.NoError(t, <-done)

	ch, ok := f.tree.Chapter(realRef)
	require.True(t, ok)
	assert.Len(t, ch.Lectures, 2, "late result for a chapter no longer selected is dropped")
	v, err = s.View()
	require.NoError(t, err)
	assert.Equal(t, "poly", v.Selection.ChapterID)
}

// midLoadWriter reads the chapter, lets write land, then returns what it read.
type midLoadWriter struct {
	tree  *catalog.Tree
	write func()
}

func (l *midLoadWriter) LoadChapter(_ context.Context, ref catalog.ChapterRef) (catalog.Chapter, error) {
	ch, ok := l.tree.Chapter(ref)
	if !ok {
		return catalog.Chapter{}, errors.New("not stored")
	}
	l.write()
	return ch, nil
}

func TestSession_ChapterLoadKeepsConcurrentAdminWrite(t *testing.T) {
	ctx := t.Context()
	loader := &midLoadWriter{}
	f := newFixture(t, loader)

	docs := docstore.NewMemoryStore()
	mirror := catalog.NewMirror(docs)
	require.NoError(t, mirror.Seed(ctx, f.tree.Batches()))
	gw := admin.NewGateway(f.tree, mirror, docs, admin.Options{})
	loader.tree = f.tree
	loader.write = func() {
		_, err := gw.AddLecture(ctx, admin.Actor{UID: "root", IsAdmin: true}, realRef,
			catalog.Lecture{ID: "l3", Title: "Irrationals", VideoRef: "ghi"})
		assert.NoError(t, err)
	}

	s, err := f.mgr.Create(ctx, "")
	require.NoError(t, err)
	v := dispatch(t, s,
		session.Command{Name: session.CmdSelectClass, ID: "10"},
		session.Command{Name: session.CmdSelectChapter, ID: "real"},
	)

	stored, err := mirror.LoadChapter(ctx, realRef)
	require.NoError(t, err)
	assert.Len(t, stored.Lectures, 3)
	_, ok := f.tree.Lecture(realRef, "l3")
	assert.True(t, ok, "acknowledged lecture stays in the live tree")
	require.NotNil(t, v.Chapter)
	assert.Len(t, v.Chapter.Lectures, 3)
}
