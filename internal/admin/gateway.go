// Package admin applies authorized content mutations. Every change is
// validated on a draft of the tree, written to the document store, and only
// then made visible in the live tree.
package admin

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/praxis/internal/announce"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/docstore"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

// DefaultTimeout bounds each external write when none is configured.
const DefaultTimeout = 5 * time.Second

// Actor is the caller of a mutation. IsAdmin comes from the role lookup.
type Actor struct {
	UID     string
	IsAdmin bool
}

// Mirror is the store side of the content tree.
type Mirror interface {
	PutBatch(ctx context.Context, b catalog.Batch) error
	PutSubject(ctx context.Context, batchID string, s catalog.Subject) error
	PutChapter(ctx context.Context, ref catalog.SubjectRef, c catalog.Chapter) error
	PutLecture(ctx context.Context, ref catalog.ChapterRef, l catalog.Lecture) error
	PutResource(ctx context.Context, ref catalog.ChapterRef, r catalog.Resource) error
	DeleteBatch(ctx context.Context, batchID string) error
	DeleteSubject(ctx context.Context, ref catalog.SubjectRef) error
	DeleteChapter(ctx context.Context, ref catalog.ChapterRef) error
	DeleteLecture(ctx context.Context, ref catalog.ChapterRef, lectureID string) error
	DeleteResource(ctx context.Context, ref catalog.ChapterRef, kind catalog.ResourceKind, resourceID string) error
	MarkChanged(ctx context.Context, origin string, at time.Time) error
}

// Options configures a Gateway. Origin names this instance in the change
// marker other instances reload on.
type Options struct {
	Origin  string
	Timeout time.Duration
	Audit   EventLogger
	Now     func() time.Time
}

// Gateway serializes admin mutations.
type Gateway struct {
	tree    *catalog.Tree
	mirror  Mirror
	docs    docstore.Store
	origin  string
	audit   EventLogger
	timeout time.Duration
	now     func() time.Time

	mu sync.Mutex
}

// NewGateway creates a gateway over the live tree. docs receives announcements.
func NewGateway(tree *catalog.Tree, mirror Mirror, docs docstore.Store, opts Options) *Gateway {
	g := &Gateway{
		tree:    tree,
		mirror:  mirror,
		docs:    docs,
		origin:  opts.Origin,
		audit:   opts.Audit,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
	if g.audit == nil {
		g.audit = NopEventLogger{}
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// mutate runs one admin operation: authorize, apply to a draft, write
// through, then swap the draft in and record the event.
func (g *Gateway) mutate(ctx context.Context, actor Actor, action, target string, apply func(draft *catalog.Tree) error, write func(ctx context.Context) error) error {
	if !actor.IsAdmin {
		slog.Warn("admin mutation rejected", "action", action, "target", target, "uid", actor.UID)
		return apperr.Unauthorized(action)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	draft := g.tree.Clone()
	base := draft.Revision()
	if err := apply(draft); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := write(wctx); err != nil {
		slog.Error("admin write failed", "action", action, "target", target, "error", err)
		return apperr.External(action, err)
	}

	if !g.tree.Commit(draft, base, apply) {
		slog.Warn("admin change already superseded in the live tree", "action", action, "target", target)
	}
	g.markChanged(ctx, action)
	g.record(ctx, actor, action, target)
	return nil
}

func (g *Gateway) markChanged(ctx context.Context, action string) {
	mctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.mirror.MarkChanged(mctx, g.origin, g.now()); err != nil {
		slog.Warn("catalog change marker not written", "action", action, "error", err)
	}
}

func (g *Gateway) record(ctx context.Context, actor Actor, action, target string) {
	slog.Info("admin mutation applied", "action", action, "target", target, "uid", actor.UID)
	if err := g.audit.LogEvent(ctx, Event{ActorUID: actor.UID, Action: action, Target: target, CreatedAt: g.now()}); err != nil {
		slog.Warn("admin audit failed", "action", action, "error", err)
	}
}

func (g *Gateway) ensureID(id, name string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return catalog.NewID(name, g.now())
}

func (g *Gateway) CreateBatch(ctx context.Context, actor Actor, b catalog.Batch) (catalog.Batch, error) {
	b.ID = g.ensureID(b.ID, b.Name)
	var created catalog.Batch
	err := g.mutate(ctx, actor, "create_batch", catalog.BatchPath(b.ID),
		func(draft *catalog.Tree) (err error) {
			created, err = draft.CreateBatch(b)
			return err
		},
		func(ctx context.Context) error { return g.mirror.PutBatch(ctx, created) },
	)
	return created, err
}

func (g *Gateway) DeleteBatch(ctx context.Context, actor Actor, batchID string) error {
	return g.mutate(ctx, actor, "delete_batch", catalog.BatchPath(batchID),
		func(draft *catalog.Tree) error { return draft.DeleteBatch(batchID) },
		func(ctx context.Context) error { return g.mirror.DeleteBatch(ctx, batchID) },
	)
}

func (g *Gateway) CreateSubject(ctx context.Context, actor Actor, batchID string, s catalog.Subject) (catalog.Subject, error) {
	s.ID = g.ensureID(s.ID, s.Name)
	var created catalog.Subject
	err := g.mutate(ctx, actor, "create_subject", catalog.SubjectPath(catalog.SubjectRef{BatchID: batchID, SubjectID: s.ID}),
		func(draft *catalog.Tree) (err error) {
			created, err = draft.CreateSubject(batchID, s)
			return err
		},
		func(ctx context.Context) error { return g.mirror.PutSubject(ctx, batchID, created) },
	)
	return created, err
}

func (g *Gateway) DeleteSubject(ctx context.Context, actor Actor, ref catalog.SubjectRef) error {
	return g.mutate(ctx, actor, "delete_subject", catalog.SubjectPath(ref),
		func(draft *catalog.Tree) error { return draft.DeleteSubject(ref) },
		func(ctx context.Context) error { return g.mirror.DeleteSubject(ctx, ref) },
	)
}

func (g *Gateway) CreateChapter(ctx context.Context, actor Actor, ref catalog.SubjectRef, c catalog.Chapter) (catalog.Chapter, error) {
	c.ID = g.ensureID(c.ID, c.Name)
	var created catalog.Chapter
	err := g.mutate(ctx, actor, "create_chapter", catalog.ChapterPath(ref.Chapter(c.ID)),
		func(draft *catalog.Tree) (err error) {
			created, err = draft.CreateChapter(ref, c)
			return err
		},
		func(ctx context.Context) error { return g.mirror.PutChapter(ctx, ref, created) },
	)
	return created, err
}

func (g *Gateway) DeleteChapter(ctx context.Context, actor Actor, ref catalog.ChapterRef) error {
	return g.mutate(ctx, actor, "delete_chapter", catalog.ChapterPath(ref),
		func(draft *catalog.Tree) error { return draft.DeleteChapter(ref) },
		func(ctx context.Context) error { return g.mirror.DeleteChapter(ctx, ref) },
	)
}

func (g *Gateway) AddLecture(ctx context.Context, actor Actor, ref catalog.ChapterRef, l catalog.Lecture) (catalog.Lecture, error) {
	l.ID = g.ensureID(l.ID, l.Title)
	var created catalog.Lecture
	err := g.mutate(ctx, actor, "add_lecture", catalog.ChapterPath(ref)+"/lectures/"+l.ID,
		func(draft *catalog.Tree) (err error) {
			created, err = draft.AddLecture(ref, l)
			return err
		},
		func(ctx context.Context) error { return g.mirror.PutLecture(ctx, ref, created) },
	)
	return created, err
}

func (g *Gateway) RemoveLecture(ctx context.Context, actor Actor, ref catalog.ChapterRef, lectureID string) error {
	return g.mutate(ctx, actor, "remove_lecture", catalog.ChapterPath(ref)+"/lectures/"+lectureID,
		func(draft *catalog.Tree) error { return draft.RemoveLecture(ref, lectureID) },
		func(ctx context.Context) error { return g.mirror.DeleteLecture(ctx, ref, lectureID) },
	)
}

func (g *Gateway) AddResource(ctx context.Context, actor Actor, ref catalog.ChapterRef, r catalog.Resource) (catalog.Resource, error) {
	r.ID = g.ensureID(r.ID, r.Title)
	if kind, ok := catalog.ParseResourceKind(string(r.Kind)); ok {
		r.Kind = kind
	}
	var created catalog.Resource
	err := g.mutate(ctx, actor, "add_resource", catalog.ChapterPath(ref)+"/"+string(r.Kind)+"/"+r.ID,
		func(draft *catalog.Tree) (err error) {
			created, err = draft.AddResource(ref, r)
			return err
		},
		func(ctx context.Context) error { return g.mirror.PutResource(ctx, ref, created) },
	)
	return created, err
}

func (g *Gateway) RemoveResource(ctx context.Context, actor Actor, ref catalog.ChapterRef, kind catalog.ResourceKind, resourceID string) error {
	if k, ok := catalog.ParseResourceKind(string(kind)); ok {
		kind = k
	}
	return g.mutate(ctx, actor, "remove_resource", catalog.ChapterPath(ref)+"/"+string(kind)+"/"+resourceID,
		func(draft *catalog.Tree) error { return draft.RemoveResource(ref, kind, resourceID) },
		func(ctx context.Context) error { return g.mirror.DeleteResource(ctx, ref, kind, resourceID) },
	)
}

// PostAnnouncement stores a new announcement. Subscribers of the
// announcements collection pick it up from the store.
func (g *Gateway) PostAnnouncement(ctx context.Context, actor Actor, title, body string) (announce.Announcement, error) {
	a := announce.Announcement{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Body:      strings.TrimSpace(body),
		Author:    actor.UID,
		CreatedAt: g.now().UTC(),
	}
	if !actor.IsAdmin {
		return announce.Announcement{}, apperr.Unauthorized("post_announcement")
	}
	if a.Title == "" {
		return announce.Announcement{}, apperr.Validation("title", apperr.ReasonTitleRequired)
	}

	wctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.docs.Set(wctx, announce.Path(a.ID), a.Fields()); err != nil {
		return announce.Announcement{}, apperr.External("post_announcement", err)
	}
	g.record(ctx, actor, "post_announcement", announce.Path(a.ID))
	return a, nil
}
