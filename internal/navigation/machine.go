// Package navigation is the viewer's selection state machine:
// class → batch → subject → chapter → playing lecture.
package navigation

import (
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
	"github.com/p-n-ai/praxis/internal/progress"
)

// Phase is the deepest level that is currently selected.
type Phase string

const (
	NoClassSelected Phase = "no_class"
	ClassSelected   Phase = "class"
	BatchSelected   Phase = "batch"
	SubjectSelected Phase = "subject"
	ChapterSelected Phase = "chapter"
	LecturePlaying  Phase = "playing"
)

// Precondition reasons.
const (
	ReasonNeedClass   = "select a class first"
	ReasonNeedBatch   = "select a batch first"
	ReasonNeedSubject = "select a subject first"
	ReasonNeedChapter = "select a chapter first"
)

// Catalog is the read side of the content tree.
type Catalog interface {
	BatchesByClass(level catalog.ClassLevel) []catalog.Batch
	Batch(id string) (catalog.Batch, bool)
	Subject(batchID, subjectID string) (catalog.Subject, bool)
	Chapter(ref catalog.ChapterRef) (catalog.Chapter, bool)
	Lecture(ref catalog.ChapterRef, lectureID string) (catalog.Lecture, bool)
}

// Selection is what the viewer has focused.
type Selection struct {
	ClassLevel catalog.ClassLevel `json:"classLevel,omitempty"`
	BatchID    string             `json:"batchId,omitempty"`
	SubjectID  string             `json:"subjectId,omitempty"`
	ChapterID  string             `json:"chapterId,omitempty"`
	PlayingKey progress.Key       `json:"playingKey,omitempty"`
}

// ChapterRef returns the selected chapter.
func (s Selection) ChapterRef() catalog.ChapterRef {
	return catalog.ChapterRef{BatchID: s.BatchID, SubjectID: s.SubjectID, ChapterID: s.ChapterID}
}

// Machine is not safe for concurrent use; a session serializes access.
type Machine struct {
	cat    Catalog
	sel    Selection
	recent string
}

// New creates a machine with nothing selected.
func New(cat Catalog) *Machine {
	return &Machine{cat: cat}
}

// Selection returns the current selection.
func (m *Machine) Selection() Selection { return m.sel }

// RecentActivity is the last "Watching: ..." line, or "".
func (m *Machine) RecentActivity() string { return m.recent }

// Phase derives the state from the selection.
func (m *Machine) Phase() Phase {
	switch {
	case m.sel.PlayingKey != "":
		return LecturePlaying
	case m.sel.ChapterID != "":
		return ChapterSelected
	case m.sel.SubjectID != "":
		return SubjectSelected
	case m.sel.BatchID != "":
		return BatchSelected
	case m.sel.ClassLevel != "":
		return ClassSelected
	default:
		return NoClassSelected
	}
}

// SelectClass focuses level and defaults to its first batch and that batch's
// first subject. A class without batches stays in ClassSelected.
func (m *Machine) SelectClass(level catalog.ClassLevel) error {
	if !level.Valid() {
		return apperr.Validation("class_level", apperr.ReasonInvalidClass)
	}
	m.sel = Selection{ClassLevel: level}
	batches := m.cat.BatchesByClass(level)
	if len(batches) == 0 {
		return nil
	}
	m.sel.BatchID = batches[0].ID
	m.sel.SubjectID = firstSubject(batches[0])
	return nil
}

// SelectBatch focuses a batch of the current class, defaulting the subject and
// clearing chapter and lecture. Reselecting the current batch changes nothing.
func (m *Machine) SelectBatch(batchID string) error {
	if m.sel.ClassLevel == "" {
		return apperr.Precondition(ReasonNeedClass)
	}
	if batchID == m.sel.BatchID {
		return nil
	}
	b, ok := m.cat.Batch(batchID)
	if !ok || b.ClassLevel != m.sel.ClassLevel {
		return apperr.NotFound("batch", batchID)
	}
	m.sel = Selection{ClassLevel: m.sel.ClassLevel, BatchID: b.ID, SubjectID: firstSubject(b)}
	return nil
}

// SelectSubject focuses a subject of the current batch and clears chapter and lecture.
func (m *Machine) SelectSubject(subjectID string) error {
	if m.sel.BatchID == "" {
		return apperr.Precondition(ReasonNeedBatch)
	}
	if subjectID == m.sel.SubjectID {
		return nil
	}
	if subjectID == "" {
		return apperr.Validation("subject_id", apperr.ReasonIDRequired)
	}
	s, ok := m.cat.Subject(m.sel.BatchID, subjectID)
	if !ok {
		return apperr.NotFound("subject", subjectID)
	}
	m.sel.SubjectID = s.ID
	m.sel.ChapterID = ""
	m.sel.PlayingKey = ""
	return nil
}

// SelectChapter focuses a chapter of the current subject and returns its
// content. Switching chapters stops the playing lecture; reselecting the
// current chapter keeps it.
func (m *Machine) SelectChapter(chapterID string) (catalog.Chapter, error) {
	if m.sel.SubjectID == "" {
		return catalog.Chapter{}, apperr.Precondition(ReasonNeedSubject)
	}
	ref := catalog.ChapterRef{BatchID: m.sel.BatchID, SubjectID: m.sel.SubjectID, ChapterID: chapterID}
	ch, ok := m.cat.Chapter(ref)
	if !ok {
		return catalog.Chapter{}, apperr.NotFound("chapter", chapterID)
	}
	if ch.ID != m.sel.ChapterID {
		m.sel.ChapterID = ch.ID
		m.sel.PlayingKey = ""
	}
	return ch, nil
}

// PlayLecture starts a lecture of the current chapter and records it as
// recent activity.
func (m *Machine) PlayLecture(lectureID string) (catalog.Lecture, error) {
	if m.sel.ChapterID == "" {
		return catalog.Lecture{}, apperr.Precondition(ReasonNeedChapter)
	}
	ref := m.sel.ChapterRef()
	ch, ok := m.cat.Chapter(ref)
	if !ok {
		return catalog.Lecture{}, apperr.NotFound("chapter", ref.ChapterID)
	}
	l, ok := m.cat.Lecture(ref, lectureID)
	if !ok {
		return catalog.Lecture{}, apperr.NotFound("lecture", lectureID)
	}
	m.sel.PlayingKey = progress.NewKey(ref, l.ID)
	m.recent = "Watching: " + l.Title + " (" + ch.Name + ")"
	return l, nil
}

// StopLecture returns to ChapterSelected. Without a playing lecture it does nothing.
func (m *Machine) StopLecture() {
	m.sel.PlayingKey = ""
}

// Reconcile drops parts of the selection that no longer exist in the catalog,
// falling back the way the matching select call would. It reports whether
// anything changed.
func (m *Machine) Reconcile() bool {
	before := m.sel
	if m.sel.ClassLevel == "" {
		return false
	}
	if m.sel.BatchID == "" {
		// A class that had no batches may have gained one.
		_ = m.SelectClass(m.sel.ClassLevel)
		return m.sel != before
	}
	b, ok := m.cat.Batch(m.sel.BatchID)
	if !ok {
		_ = m.SelectClass(m.sel.ClassLevel)
		return m.sel != before
	}
	if m.sel.SubjectID == "" {
		m.sel.SubjectID = firstSubject(b)
		return m.sel != before
	}
	if _, ok := m.cat.Subject(b.ID, m.sel.SubjectID); !ok {
		m.sel = Selection{ClassLevel: m.sel.ClassLevel, BatchID: b.ID, SubjectID: firstSubject(b)}
		return true
	}
	if m.sel.ChapterID == "" {
		return false
	}
	ref := m.sel.ChapterRef()
	if _, ok := m.cat.Chapter(ref); !ok {
		m.sel.ChapterID = ""
		m.sel.PlayingKey = ""
		return true
	}
	if m.sel.PlayingKey != "" {
		_, lectureID, _ := m.sel.PlayingKey.Parts()
		if _, ok := m.cat.Lecture(ref, lectureID); !ok {
			m.sel.PlayingKey = ""
			return true
		}
	}
	return false
}

func firstSubject(b catalog.Batch) string {
	if len(b.Subjects) == 0 {
		return ""
	}
	return b.Subjects[0].ID
}
