package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/praxis/internal/docstore"
)

// Collection names used by the mirror. Resources live in one collection per kind.
const (
	batchesCollection  = "batches"
	subjectsCollection = "subjects"
	chaptersCollection = "chapters"
	lecturesCollection = "lectures"

	stateCollection = "catalog"
	stateID         = "state"
)

// Mirror keeps the content tree in a document store, one level per collection:
// batches/{b}/subjects/{s}/chapters/{c}/{lectures|<kind>}/{id}.
type Mirror struct {
	docs docstore.Store
}

// NewMirror creates a mirror over docs.
func NewMirror(docs docstore.Store) *Mirror {
	return &Mirror{docs: docs}
}

// BatchPath returns the document path of a batch.
func BatchPath(batchID string) string {
	return docstore.Join(batchesCollection, batchID)
}

// SubjectPath returns the document path of a subject.
func SubjectPath(ref SubjectRef) string {
	return docstore.Join(BatchPath(ref.BatchID), subjectsCollection, ref.SubjectID)
}

// ChapterPath returns the document path of a chapter.
func ChapterPath(ref ChapterRef) string {
	return docstore.Join(SubjectPath(ref.Subject()), chaptersCollection, ref.ChapterID)
}

func lecturePath(ref ChapterRef, lectureID string) string {
	return docstore.Join(ChapterPath(ref), lecturesCollection, lectureID)
}

func resourcePath(ref ChapterRef, kind ResourceKind, resourceID string) string {
	return docstore.Join(ChapterPath(ref), string(kind), resourceID)
}

// Empty reports whether no batch has been stored yet.
func (m *Mirror) Empty(ctx context.Context) (bool, error) {
	docs, err := m.docs.List(ctx, batchesCollection)
	if err != nil {
		return false, err
	}
	return len(docs) == 0, nil
}

// LoadTree rebuilds the whole tree from the store. Documents that fail tree
// validation are skipped with a warning so one bad record cannot take the
// catalog down.
func (m *Mirror) LoadTree(ctx context.Context) (*Tree, error) {
	batches, err := m.loadBatches(ctx)
	if err != nil {
		return nil, err
	}
	t := &Tree{}
	_ = t.build(batches, func(err error) error {
		slog.Warn("skipping stored catalog node", "error", err)
		return nil
	})
	return t, nil
}

// LoadChapter re-reads the lectures and resources of one chapter.
func (m *Mirror) LoadChapter(ctx context.Context, ref ChapterRef) (Chapter, error) {
	doc, ok, err := m.docs.Get(ctx, ChapterPath(ref))
	if err != nil {
		return Chapter{}, err
	}
	if !ok {
		return Chapter{}, fmt.Errorf("chapter %q not stored", ref.ChapterID)
	}
	c := chapterFromDoc(doc)
	if err := m.loadChapterContent(ctx, ref, &c); err != nil {
		return Chapter{}, err
	}
	return c, nil
}

func (m *Mirror) loadBatches(ctx context.Context) ([]Batch, error) {
	docs, err := m.docs.List(ctx, batchesCollection)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	batches := make([]Batch, 0, len(docs))
	for _, d := range docs {
		b := Batch{ID: d.ID, Name: str(d.Data, "name"), ClassLevel: ClassLevel(str(d.Data, "classLevel"))}
		subjects, err := m.docs.List(ctx, docstore.Join(d.Path, subjectsCollection))
		if err != nil {
			return nil, fmt.Errorf("list subjects of %s: %w", b.ID, err)
		}
		for _, sd := range subjects {
			s := Subject{ID: sd.ID, Name: str(sd.Data, "name")}
			chapters, err := m.docs.List(ctx, docstore.Join(sd.Path, chaptersCollection))
			if err != nil {
				return nil, fmt.Errorf("list chapters of %s: %w", s.ID, err)
			}
			for _, cd := range chapters {
				c := chapterFromDoc(cd)
				ref := ChapterRef{BatchID: b.ID, SubjectID: s.ID, ChapterID: c.ID}
				if err := m.loadChapterContent(ctx, ref, &c); err != nil {
					return nil, err
				}
				s.Chapters = append(s.Chapters, c)
			}
			b.Subjects = append(b.Subjects, s)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (m *Mirror) loadChapterContent(ctx context.Context, ref ChapterRef, c *Chapter) error {
	base := ChapterPath(ref)
	lectures, err := m.docs.List(ctx, docstore.Join(base, lecturesCollection))
	if err != nil {
		return fmt.Errorf("list lectures of %s: %w", ref.ChapterID, err)
	}
	for _, d := range lectures {
		c.Lectures = append(c.Lectures, Lecture{
			ID:         d.ID,
			Title:      str(d.Data, "title"),
			VideoRef:   str(d.Data, "video"),
			Duration:   str(d.Data, "duration"),
			Difficulty: str(d.Data, "difficulty"),
		})
	}
	c.Resources = map[ResourceKind][]Resource{}
	for _, info := range ResourceKinds {
		docs, err := m.docs.List(ctx, docstore.Join(base, string(info.Kind)))
		if err != nil {
			return fmt.Errorf("list %s of %s: %w", info.Kind, ref.ChapterID, err)
		}
		for _, d := range docs {
			c.Resources[info.Kind] = append(c.Resources[info.Kind], Resource{
				ID:          d.ID,
				Title:       str(d.Data, "title"),
				URL:         str(d.Data, "url"),
				SolutionURL: str(d.Data, "solutionUrl"),
				Kind:        info.Kind,
			})
		}
	}
	return nil
}

func chapterFromDoc(d docstore.Document) Chapter {
	return Chapter{ID: d.ID, Name: str(d.Data, "name"), Description: str(d.Data, "description")}
}

// Seed writes a whole tree into the store.
func (m *Mirror) Seed(ctx context.Context, batches []Batch) error {
	for _, b := range batches {
		if err := m.PutBatch(ctx, b); err != nil {
			return err
		}
		for _, s := range b.Subjects {
			if err := m.PutSubject(ctx, b.ID, s); err != nil {
				return err
			}
			sref := SubjectRef{BatchID: b.ID, SubjectID: s.ID}
			for _, c := range s.Chapters {
				if err := m.PutChapter(ctx, sref, c); err != nil {
					return err
				}
				cref := sref.Chapter(c.ID)
				for _, l := range c.Lectures {
					if err := m.PutLecture(ctx, cref, l); err != nil {
						return err
					}
				}
				for _, info := range ResourceKinds {
					for _, r := range c.Resources[info.Kind] {
						r.Kind = info.Kind
						if err := m.PutResource(ctx, cref, r); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

// PutBatch stores the batch document without its subjects.
func (m *Mirror) PutBatch(ctx context.Context, b Batch) error {
	return m.docs.Set(ctx, BatchPath(b.ID), map[string]any{
		"name":       b.Name,
		"classLevel": string(b.ClassLevel),
	})
}

// PutSubject stores the subject document without its chapters.
func (m *Mirror) PutSubject(ctx context.Context, batchID string, s Subject) error {
	return m.docs.Set(ctx, SubjectPath(SubjectRef{BatchID: batchID, SubjectID: s.ID}), map[string]any{
		"name": s.Name,
	})
}

// PutChapter stores the chapter document without lectures or resources.
func (m *Mirror) PutChapter(ctx context.Context, ref SubjectRef, c Chapter) error {
	data := map[string]any{"name": c.Name}
	if c.Description != "" {
		data["description"] = c.Description
	}
	return m.docs.Set(ctx, ChapterPath(ref.Chapter(c.ID)), data)
}

func (m *Mirror) PutLecture(ctx context.Context, ref ChapterRef, l Lecture) error {
	data := map[string]any{"title": l.Title, "video": l.VideoRef}
	if l.Duration != "" {
		data["duration"] = l.Duration
	}
	if l.Difficulty != "" {
		data["difficulty"] = l.Difficulty
	}
	return m.docs.Set(ctx, lecturePath(ref, l.ID), data)
}

func (m *Mirror) PutResource(ctx context.Context, ref ChapterRef, r Resource) error {
	data := map[string]any{"title": r.Title, "url": r.URL, "kind": string(r.Kind)}
	if r.SolutionURL != "" {
		data["solutionUrl"] = r.SolutionURL
	}
	return m.docs.Set(ctx, resourcePath(ref, r.Kind, r.ID), data)
}

// DeleteBatch removes the batch and everything stored below it.
func (m *Mirror) DeleteBatch(ctx context.Context, batchID string) error {
	return m.docs.DeleteTree(ctx, BatchPath(batchID))
}

func (m *Mirror) DeleteSubject(ctx context.Context, ref SubjectRef) error {
	return m.docs.DeleteTree(ctx, SubjectPath(ref))
}

func (m *Mirror) DeleteChapter(ctx context.Context, ref ChapterRef) error {
	return m.docs.DeleteTree(ctx, ChapterPath(ref))
}

func (m *Mirror) DeleteLecture(ctx context.Context, ref ChapterRef, lectureID string) error {
	return m.docs.Delete(ctx, lecturePath(ref, lectureID))
}

func (m *Mirror) DeleteResource(ctx context.Context, ref ChapterRef, kind ResourceKind, resourceID string) error {
	return m.docs.Delete(ctx, resourcePath(ref, kind, resourceID))
}

// MarkChanged records that origin changed the catalog at at. Other
// instances reload their tree when they see the marker move.
func (m *Mirror) MarkChanged(ctx context.Context, origin string, at time.Time) error {
	return m.docs.Set(ctx, docstore.Join(stateCollection, stateID), map[string]any{
		"origin":    origin,
		"changedAt": at.UTC().Format(time.RFC3339Nano),
	})
}

func str(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
