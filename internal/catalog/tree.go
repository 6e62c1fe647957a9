// Package catalog holds the batch → subject → chapter → {lectures, resources}
// content tree, its seed data and its mirror in the document store.
package catalog

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

// Tree is the in-memory content tree. Lookups return deep copies so callers
// never alias the live tree. Deleting a node purges its descendants.
type Tree struct {
	mu       sync.RWMutex
	batches  []Batch
	revision uint64
}

// NewTree builds a tree by replaying every node through the create operations,
// so seed data is held to the same rules as admin input.
func NewTree(batches []Batch) (*Tree, error) {
	t := &Tree{}
	if err := t.build(batches, func(err error) error { return err }); err != nil {
		return nil, err
	}
	return t, nil
}

// build adds every node of batches. onErr decides whether a rejected node
// aborts the build (non-nil return) or is skipped along with its children.
func (t *Tree) build(batches []Batch, onErr func(error) error) error {
	for _, b := range batches {
		if _, err := t.CreateBatch(b); err != nil {
			if err := onErr(fmt.Errorf("batch %q: %w", b.ID, err)); err != nil {
				return err
			}
			continue
		}
		for _, s := range b.Subjects {
			if _, err := t.CreateSubject(b.ID, s); err != nil {
				if err := onErr(fmt.Errorf("subject %q: %w", s.ID, err)); err != nil {
					return err
				}
				continue
			}
			ref := SubjectRef{BatchID: b.ID, SubjectID: s.ID}
			for _, c := range s.Chapters {
				if _, err := t.CreateChapter(ref, c); err != nil {
					if err := onErr(fmt.Errorf("chapter %q: %w", c.ID, err)); err != nil {
						return err
					}
					continue
				}
				cref := ref.Chapter(c.ID)
				for _, l := range c.Lectures {
					if _, err := t.AddLecture(cref, l); err != nil {
						if err := onErr(fmt.Errorf("lecture %q: %w", l.ID, err)); err != nil {
							return err
						}
					}
				}
				for _, info := range ResourceKinds {
					for _, r := range c.Resources[info.Kind] {
						r.Kind = info.Kind
						if _, err := t.AddResource(cref, r); err != nil {
							if err := onErr(fmt.Errorf("resource %q: %w", r.ID, err)); err != nil {
								return err
							}
						}
					}
				}
			}
		}
	}
	return nil
}

// Revision increases on every successful mutation.
func (t *Tree) Revision() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.revision
}

// Batches returns every batch in insertion order.
func (t *Tree) Batches() []Batch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneBatches(t.batches)
}

// BatchesByClass returns the batches of one class level in insertion order.
func (t *Tree) BatchesByClass(level ClassLevel) []Batch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Batch
	for _, b := range t.batches {
		if b.ClassLevel == level {
			out = append(out, cloneBatch(b))
		}
	}
	return out
}

// Batch looks up a batch by id.
func (t *Tree) Batch(id string) (Batch, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b := t.batch(id)
	if b == nil {
		return Batch{}, false
	}
	return cloneBatch(*b), true
}

// Subject looks up a subject. An empty subjectID selects the batch's first
// subject; an unknown subjectID is a miss and never falls back.
func (t *Tree) Subject(batchID, subjectID string) (Subject, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.defaultSubject(batchID, subjectID)
	if s == nil {
		return Subject{}, false
	}
	return cloneSubject(*s), true
}

// Chapter looks up a chapter. The subject follows the Subject lookup policy;
// the chapter id must match exactly.
func (t *Tree) Chapter(ref ChapterRef) (Chapter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.defaultSubject(ref.BatchID, ref.SubjectID)
	if s == nil {
		return Chapter{}, false
	}
	i := slices.IndexFunc(s.Chapters, func(c Chapter) bool { return c.ID == ref.ChapterID })
	if i < 0 {
		return Chapter{}, false
	}
	return cloneChapter(s.Chapters[i]), true
}

// Lecture looks up one lecture of a chapter.
func (t *Tree) Lecture(ref ChapterRef, lectureID string) (Lecture, bool) {
	ch, ok := t.Chapter(ref)
	if !ok {
		return Lecture{}, false
	}
	i := slices.IndexFunc(ch.Lectures, func(l Lecture) bool { return l.ID == lectureID })
	if i < 0 {
		return Lecture{}, false
	}
	return ch.Lectures[i], true
}

// Clone returns an independent copy, used as a draft by the admin gateway.
func (t *Tree) Clone() *Tree {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Tree{batches: cloneBatches(t.batches), revision: t.revision}
}

// Commit swaps draft in when the tree is still at revision base. When
// another writer moved the tree on in the meantime, reapply replays the
// change on a copy of the current content instead. It reports false when the
// change no longer applies; the tree is then left as it is. draft must not be
// used afterwards.
func (t *Tree) Commit(draft *Tree, base uint64, reapply func(*Tree) error) bool {
	draft.mu.RLock()
	batches := draft.batches
	draft.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.revision != base {
		fresh := &Tree{batches: cloneBatches(t.batches)}
		if err := reapply(fresh); err != nil {
			return false
		}
		batches = fresh.batches
	}
	t.batches = batches
	t.revision++
	return true
}

// replaceIf takes over batches when the tree is still at revision base.
func (t *Tree) replaceIf(batches []Batch, base uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.revision != base {
		return false
	}
	t.batches = batches
	t.revision++
	return true
}

// RefreshChapter swaps in freshly loaded lectures and resources for an
// existing chapter. since is the revision observed before the load started;
// a tree that changed after it is newer than the load and is kept. It
// reports whether the chapter was updated.
func (t *Tree) RefreshChapter(ref ChapterRef, fresh Chapter, since uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.revision != since {
		return false
	}
	c := t.chapter(ref)
	if c == nil {
		return false
	}
	c.Lectures = slices.Clone(fresh.Lectures)
	c.Resources = cloneResources(fresh.Resources)
	t.revision++
	return true
}

// CreateBatch appends a new empty batch.
func (t *Tree) CreateBatch(b Batch) (Batch, error) {
	b = Batch{ID: strings.TrimSpace(b.ID), Name: strings.TrimSpace(b.Name), ClassLevel: ClassLevel(strings.TrimSpace(string(b.ClassLevel)))}
	if err := checkID(b.ID); err != nil {
		return Batch{}, err
	}
	if b.Name == "" {
		return Batch{}, apperr.Validation("name", apperr.ReasonNameRequired)
	}
	if !b.ClassLevel.Valid() {
		return Batch{}, apperr.Validation("class_level", apperr.ReasonInvalidClass)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.batch(b.ID) != nil {
		return Batch{}, apperr.Validation("id", apperr.ReasonDuplicateID)
	}
	t.batches = append(t.batches, b)
	t.revision++
	return cloneBatch(b), nil
}

// DeleteBatch removes a batch together with everything under it.
func (t *Tree) DeleteBatch(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.batches, func(b Batch) bool { return b.ID == id })
	if i < 0 {
		return apperr.NotFound("batch", id)
	}
	t.batches = slices.Delete(t.batches, i, i+1)
	t.revision++
	return nil
}

// CreateSubject appends a new empty subject to a batch.
func (t *Tree) CreateSubject(batchID string, s Subject) (Subject, error) {
	s = Subject{ID: strings.TrimSpace(s.ID), Name: strings.TrimSpace(s.Name)}
	if err := checkID(s.ID); err != nil {
		return Subject{}, err
	}
	if s.Name == "" {
		return Subject{}, apperr.Validation("name", apperr.ReasonNameRequired)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.batch(batchID)
	if b == nil {
		return Subject{}, apperr.Validation("batch_id", apperr.ReasonParentNotFound)
	}
	if slices.ContainsFunc(b.Subjects, func(x Subject) bool { return x.ID == s.ID }) {
		return Subject{}, apperr.Validation("id", apperr.ReasonDuplicateID)
	}
	b.Subjects = append(b.Subjects, s)
	t.revision++
	return cloneSubject(s), nil
}

// DeleteSubject removes a subject together with its chapters.
func (t *Tree) DeleteSubject(ref SubjectRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.batch(ref.BatchID)
	if b == nil {
		return apperr.NotFound("batch", ref.BatchID)
	}
	i := slices.IndexFunc(b.Subjects, func(s Subject) bool { return s.ID == ref.SubjectID })
	if i < 0 {
		return apperr.NotFound("subject", ref.SubjectID)
	}
	b.Subjects = slices.Delete(b.Subjects, i, i+1)
	t.revision++
	return nil
}

// CreateChapter appends a new chapter without lectures or resources.
func (t *Tree) CreateChapter(ref SubjectRef, c Chapter) (Chapter, error) {
	c = Chapter{
		ID:          strings.TrimSpace(c.ID),
		Name:        strings.TrimSpace(c.Name),
		Description: strings.TrimSpace(c.Description),
		Resources:   map[ResourceKind][]Resource{},
	}
	if err := checkID(c.ID); err != nil {
		return Chapter{}, err
	}
	if c.Name == "" {
		return Chapter{}, apperr.Validation("name", apperr.ReasonNameRequired)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.subject(ref.BatchID, ref.SubjectID)
	if s == nil {
		return Chapter{}, apperr.Validation("subject_id", apperr.ReasonParentNotFound)
	}
	if slices.ContainsFunc(s.Chapters, func(x Chapter) bool { return x.ID == c.ID }) {
		return Chapter{}, apperr.Validation("id", apperr.ReasonDuplicateID)
	}
	s.Chapters = append(s.Chapters, c)
	t.revision++
	return cloneChapter(c), nil
}

// DeleteChapter removes a chapter with its lectures and resources.
func (t *Tree) DeleteChapter(ref ChapterRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.subject(ref.BatchID, ref.SubjectID)
	if s == nil {
		return apperr.NotFound("subject", ref.SubjectID)
	}
	i := slices.IndexFunc(s.Chapters, func(c Chapter) bool { return c.ID == ref.ChapterID })
	if i < 0 {
		return apperr.NotFound("chapter", ref.ChapterID)
	}
	s.Chapters = slices.Delete(s.Chapters, i, i+1)
	t.revision++
	return nil
}

// AddLecture appends a lecture to a chapter.
func (t *Tree) AddLecture(ref ChapterRef, l Lecture) (Lecture, error) {
	l = Lecture{
		ID:         strings.TrimSpace(l.ID),
		Title:      strings.TrimSpace(l.Title),
		VideoRef:   strings.TrimSpace(l.VideoRef),
		Duration:   strings.TrimSpace(l.Duration),
		Difficulty: strings.TrimSpace(l.Difficulty),
	}
	if err := checkID(l.ID); err != nil {
		return Lecture{}, err
	}
	if l.Title == "" {
		return Lecture{}, apperr.Validation("title", apperr.ReasonTitleRequired)
	}
	if l.VideoRef == "" {
		return Lecture{}, apperr.Validation("video", apperr.ReasonVideoRequired)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.chapter(ref)
	if c == nil {
		return Lecture{}, apperr.Validation("chapter_id", apperr.ReasonParentNotFound)
	}
	if slices.ContainsFunc(c.Lectures, func(x Lecture) bool { return x.ID == l.ID }) {
		return Lecture{}, apperr.Validation("id", apperr.ReasonDuplicateID)
	}
	c.Lectures = append(c.Lectures, l)
	t.revision++
	return l, nil
}

// RemoveLecture deletes one lecture. Completion records that point at it are left alone.
func (t *Tree) RemoveLecture(ref ChapterRef, lectureID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.chapter(ref)
	if c == nil {
		return apperr.NotFound("chapter", ref.ChapterID)
	}
	i := slices.IndexFunc(c.Lectures, func(l Lecture) bool { return l.ID == lectureID })
	if i < 0 {
		return apperr.NotFound("lecture", lectureID)
	}
	c.Lectures = slices.Delete(c.Lectures, i, i+1)
	t.revision++
	return nil
}

// AddResource appends a resource to the group named by r.Kind.
func (t *Tree) AddResource(ref ChapterRef, r Resource) (Resource, error) {
	r = Resource{
		ID:          strings.TrimSpace(r.ID),
		Title:       strings.TrimSpace(r.Title),
		URL:         strings.TrimSpace(r.URL),
		SolutionURL: strings.TrimSpace(r.SolutionURL),
		Kind:        r.Kind,
	}
	if err := checkID(r.ID); err != nil {
		return Resource{}, err
	}
	if _, ok := ParseResourceKind(string(r.Kind)); !ok {
		return Resource{}, apperr.Validation("kind", apperr.ReasonInvalidKind)
	}
	if r.Title == "" {
		return Resource{}, apperr.Validation("title", apperr.ReasonTitleRequired)
	}
	if r.URL == "" {
		return Resource{}, apperr.Validation("url", apperr.ReasonURLRequired)
	}
	if r.Kind != KindTests {
		r.SolutionURL = ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.chapter(ref)
	if c == nil {
		return Resource{}, apperr.Validation("chapter_id", apperr.ReasonParentNotFound)
	}
	if c.Resources == nil {
		c.Resources = map[ResourceKind][]Resource{}
	}
	if slices.ContainsFunc(c.Resources[r.Kind], func(x Resource) bool { return x.ID == r.ID }) {
		return Resource{}, apperr.Validation("id", apperr.ReasonDuplicateID)
	}
	c.Resources[r.Kind] = append(c.Resources[r.Kind], r)
	t.revision++
	return r, nil
}

// RemoveResource deletes one resource from a kind group.
func (t *Tree) RemoveResource(ref ChapterRef, kind ResourceKind, resourceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.chapter(ref)
	if c == nil {
		return apperr.NotFound("chapter", ref.ChapterID)
	}
	group := c.Resources[kind]
	i := slices.IndexFunc(group, func(r Resource) bool { return r.ID == resourceID })
	if i < 0 {
		return apperr.NotFound("resource", resourceID)
	}
	c.Resources[kind] = slices.Delete(group, i, i+1)
	t.revision++
	return nil
}

func (t *Tree) batch(id string) *Batch {
	for i := range t.batches {
		if t.batches[i].ID == id {
			return &t.batches[i]
		}
	}
	return nil
}

func (t *Tree) subject(batchID, subjectID string) *Subject {
	b := t.batch(batchID)
	if b == nil {
		return nil
	}
	for i := range b.Subjects {
		if b.Subjects[i].ID == subjectID {
			return &b.Subjects[i]
		}
	}
	return nil
}

func (t *Tree) defaultSubject(batchID, subjectID string) *Subject {
	if subjectID != "" {
		return t.subject(batchID, subjectID)
	}
	b := t.batch(batchID)
	if b == nil || len(b.Subjects) == 0 {
		return nil
	}
	return &b.Subjects[0]
}

func (t *Tree) chapter(ref ChapterRef) *Chapter {
	s := t.subject(ref.BatchID, ref.SubjectID)
	if s == nil {
		return nil
	}
	for i := range s.Chapters {
		if s.Chapters[i].ID == ref.ChapterID {
			return &s.Chapters[i]
		}
	}
	return nil
}

// checkID rejects ids that would break completion keys or document paths.
func checkID(id string) error {
	if id == "" {
		return apperr.Validation("id", apperr.ReasonIDRequired)
	}
	if strings.ContainsAny(id, "|/") {
		return apperr.Validation("id", apperr.ReasonInvalidID)
	}
	return nil
}
