package navigation

import (
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/progress"
	"github.com/p-n-ai/praxis/internal/stats"
)

// Notices shown when a level has nothing to list.
const (
	NoticeNoBatches  = "No batches created for this class yet."
	NoticeNoSubjects = "No subjects created for this batch yet."
	NoticeNoChapters = "No chapters. Create from Admin panel."
	NoticeNoLectures = "No lectures yet for this chapter."
)

// StatusCompleted is shown for a playing lecture that is already complete.
const StatusCompleted = "Marked as completed ✓"

// View is everything a renderer needs for the current selection.
type View struct {
	Phase          Phase        `json:"phase"`
	Selection      Selection    `json:"selection"`
	ClassLabel     string       `json:"classLabel,omitempty"`
	Batches        []Option     `json:"batches"`
	Subjects       []Option     `json:"subjects"`
	Chapters       []Option     `json:"chapters"`
	Chapter        *ChapterView `json:"chapter,omitempty"`
	Playing        *PlayingView `json:"playing,omitempty"`
	Notice         string       `json:"notice,omitempty"`
	RecentActivity string       `json:"recentActivity,omitempty"`
}

// Option is one entry of a selection list.
type Option struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active,omitempty"`
}

// ChapterView is the content of the selected chapter.
type ChapterView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Lectures      []LectureItem   `json:"lectures"`
	Resources     []ResourceGroup `json:"resources"`
	Progress      stats.Progress  `json:"progress"`
	ProgressLabel string          `json:"progressLabel"`
	Notice        string          `json:"notice,omitempty"`
}

// LectureItem is one row of the lecture list.
type LectureItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Duration   string `json:"duration,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Completed  bool   `json:"completed"`
}

// ResourceGroup is one resource tab. Every kind is listed, empty or not.
type ResourceGroup struct {
	Kind  catalog.ResourceKind `json:"kind"`
	Label string               `json:"label"`
	Items []catalog.Resource   `json:"items"`
}

// PlayingView describes the playing lecture.
type PlayingView struct {
	Key       progress.Key `json:"key"`
	Title     string       `json:"title"`
	EmbedURL  string       `json:"embedUrl"`
	Completed bool         `json:"completed"`
	Status    string       `json:"status,omitempty"`
}

// View derives the display state. It reads the catalog but never changes the selection.
func (m *Machine) View(done stats.Completions) View {
	v := View{
		Phase:          m.Phase(),
		Selection:      m.sel,
		Batches:        []Option{},
		Subjects:       []Option{},
		Chapters:       []Option{},
		RecentActivity: m.recent,
	}
	if m.sel.ClassLevel == "" {
		return v
	}
	v.ClassLabel = m.sel.ClassLevel.Label()

	for _, b := range m.cat.BatchesByClass(m.sel.ClassLevel) {
		v.Batches = append(v.Batches, Option{ID: b.ID, Name: b.Name, Active: b.ID == m.sel.BatchID})
	}
	if len(v.Batches) == 0 {
		v.Notice = NoticeNoBatches
		return v
	}

	b, ok := m.cat.Batch(m.sel.BatchID)
	if !ok {
		return v
	}
	for _, s := range b.Subjects {
		v.Subjects = append(v.Subjects, Option{ID: s.ID, Name: s.Name, Active: s.ID == m.sel.SubjectID})
	}
	if len(v.Subjects) == 0 {
		v.Notice = NoticeNoSubjects
		return v
	}

	s, ok := m.cat.Subject(b.ID, m.sel.SubjectID)
	if !ok {
		return v
	}
	for _, c := range s.Chapters {
		v.Chapters = append(v.Chapters, Option{ID: c.ID, Name: c.Name, Active: c.ID == m.sel.ChapterID})
	}
	if len(v.Chapters) == 0 {
		v.Notice = NoticeNoChapters
		return v
	}

	if m.sel.ChapterID == "" {
		return v
	}
	ref := m.sel.ChapterRef()
	ch, ok := m.cat.Chapter(ref)
	if !ok {
		return v
	}
	v.Chapter = chapterView(ch, ref, done)

	if m.sel.PlayingKey != "" {
		_, lectureID, _ := m.sel.PlayingKey.Parts()
		if l, ok := m.cat.Lecture(ref, lectureID); ok {
			p := &PlayingView{
				Key:       m.sel.PlayingKey,
				Title:     l.Title,
				EmbedURL:  catalog.EmbedURL(l.VideoRef),
				Completed: done.IsComplete(m.sel.PlayingKey),
			}
			if p.Completed {
				p.Status = StatusCompleted
			}
			v.Playing = p
		}
	}
	return v
}

func chapterView(ch catalog.Chapter, ref catalog.ChapterRef, done stats.Completions) *ChapterView {
	cv := &ChapterView{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		Lectures:    []LectureItem{},
		Progress:    stats.ChapterProgress(ch, ref.BatchID, ref.SubjectID, done),
	}
	cv.ProgressLabel = cv.Progress.ChapterLabel()
	for _, l := range ch.Lectures {
		cv.Lectures = append(cv.Lectures, LectureItem{
			ID:         l.ID,
			Title:      l.Title,
			Duration:   l.Duration,
			Difficulty: l.Difficulty,
			Completed:  done.IsComplete(progress.NewKey(ref, l.ID)),
		})
	}
	if len(cv.Lectures) == 0 {
		cv.Notice = NoticeNoLectures
	}
	for _, info := range catalog.ResourceKinds {
		items := ch.ResourcesOf(info.Kind)
		if items == nil {
			items = []catalog.Resource{}
		}
		cv.Resources = append(cv.Resources, ResourceGroup{Kind: info.Kind, Label: info.Label, Items: items})
	}
	return cv
}
