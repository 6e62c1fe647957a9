// Package stats reduces the content tree and a viewer's completions into
// per-chapter and overall progress.
package stats

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/progress"
)

// Completions answers whether a lecture key is complete.
type Completions interface {
	IsComplete(progress.Key) bool
}

// BatchSource lists the batches to traverse.
type BatchSource interface {
	Batches() []catalog.Batch
}

// Progress counts lectures. Completed never exceeds Total.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Percent is completed/total rounded half away from zero. ok is false when
// there is nothing to complete, which callers must show differently from 0%.
func (p Progress) Percent() (pct int, ok bool) {
	if p.Total <= 0 {
		return 0, false
	}
	return (p.Completed*200 + p.Total) / (2 * p.Total), true
}

// ChapterLabel renders chapter progress: "No lectures" or "N% complete".
func (p Progress) ChapterLabel() string {
	pct, ok := p.Percent()
	if !ok {
		return "No lectures"
	}
	return fmt.Sprintf("%d%% complete", pct)
}

// OverallLabel renders overall progress: "No lectures configured yet" or "N%".
func (p Progress) OverallLabel() string {
	pct, ok := p.Percent()
	if !ok {
		return "No lectures configured yet"
	}
	return fmt.Sprintf("%d%%", pct)
}

// Chapter is the progress of one chapter.
type Chapter struct {
	Ref         catalog.ChapterRef `json:"ref"`
	Name        string             `json:"name"`
	BatchName   string             `json:"batchName"`
	SubjectName string             `json:"subjectName"`
	Progress
}

// Path is the display name "Batch / Subject / Chapter".
func (c Chapter) Path() string {
	return strings.Join([]string{c.BatchName, c.SubjectName, c.Name}, " / ")
}

// Stats is the result of Compute.
type Stats struct {
	Overall  Progress                       `json:"overall"`
	Chapters map[catalog.ChapterRef]Chapter `json:"-"`
	// Order lists Chapters in tree order.
	Order []catalog.ChapterRef `json:"-"`
}

// Ordered returns the chapters in tree order.
func (s Stats) Ordered() []Chapter {
	out := make([]Chapter, 0, len(s.Order))
	for _, ref := range s.Order {
		out = append(out, s.Chapters[ref])
	}
	return out
}

// Compute traverses every lecture once. Completion keys that point at
// lectures no longer in the tree are never visited and so never counted.
func Compute(tree BatchSource, done Completions) Stats {
	s := Stats{Chapters: make(map[catalog.ChapterRef]Chapter)}
	for _, b := range tree.Batches() {
		for _, sub := range b.Subjects {
			for _, ch := range sub.Chapters {
				c := Chapter{
					Ref:         catalog.ChapterRef{BatchID: b.ID, SubjectID: sub.ID, ChapterID: ch.ID},
					Name:        ch.Name,
					BatchName:   b.Name,
					SubjectName: sub.Name,
				}
				c.Progress = ChapterProgress(ch, b.ID, sub.ID, done)
				s.Overall.Total += c.Total
				s.Overall.Completed += c.Completed
				s.Chapters[c.Ref] = c
				s.Order = append(s.Order, c.Ref)
			}
		}
	}
	return s
}

// ChapterProgress counts one chapter.
func ChapterProgress(ch catalog.Chapter, batchID, subjectID string, done Completions) Progress {
	var p Progress
	for k := range progress.KeysForChapter(ch, batchID, subjectID) {
		p.Total++
		if done.IsComplete(k) {
			p.Completed++
		}
	}
	return p
}
