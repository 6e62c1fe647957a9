// Package progress tracks which lectures a viewer has completed. It refers to
// lectures only through completion keys and never holds tree nodes, so keys
// for deleted lectures are harmless.
package progress

import (
	"iter"
	"maps"
	"strings"
	"sync"

	"github.com/p-n-ai/praxis/internal/catalog"
)

const keySep = "|"

// Key addresses one lecture's completion: "batch|subject|chapter|lecture".
// Ids never contain the separator, so keys are unique per tuple.
type Key string

// NewKey builds the key of a lecture in ref.
func NewKey(ref catalog.ChapterRef, lectureID string) Key {
	return Key(strings.Join([]string{ref.BatchID, ref.SubjectID, ref.ChapterID, lectureID}, keySep))
}

// Parts splits k back into its chapter and lecture id.
func (k Key) Parts() (catalog.ChapterRef, string, bool) {
	parts := strings.Split(string(k), keySep)
	if len(parts) != 4 {
		return catalog.ChapterRef{}, "", false
	}
	return catalog.ChapterRef{BatchID: parts[0], SubjectID: parts[1], ChapterID: parts[2]}, parts[3], true
}

// KeysForChapter yields the key of every lecture in ch, in lecture order.
// The sequence can be ranged over any number of times.
func KeysForChapter(ch catalog.Chapter, batchID, subjectID string) iter.Seq[Key] {
	ref := catalog.ChapterRef{BatchID: batchID, SubjectID: subjectID, ChapterID: ch.ID}
	return func(yield func(Key) bool) {
		for _, l := range ch.Lectures {
			if !yield(NewKey(ref, l.ID)) {
				return
			}
		}
	}
}

// State is the persisted form of a tracker.
type State struct {
	CompletedLectures map[Key]bool `json:"completedLectures"`
}

// Tracker is a set of completed keys. It is safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	done map[Key]bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{done: make(map[Key]bool)}
}

// MarkComplete records k as completed. It reports whether k was new.
func (t *Tracker) MarkComplete(k Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done[k] {
		return false
	}
	t.done[k] = true
	return true
}

// IsComplete reports whether k was marked. Unknown keys are not complete.
func (t *Tracker) IsComplete(k Key) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done[k]
}

// Len returns the number of completed keys, dangling ones included.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.done)
}

// Snapshot returns a copy of the state for persistence.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return State{CompletedLectures: maps.Clone(t.done)}
}

// With returns the state that marking k would produce, without changing t.
func (t *Tracker) With(k Key) State {
	s := t.Snapshot()
	if s.CompletedLectures == nil {
		s.CompletedLectures = make(map[Key]bool)
	}
	s.CompletedLectures[k] = true
	return s
}

// Restore replaces the tracker content with s. Entries stored as false are dropped.
func (t *Tracker) Restore(s State) {
	done := make(map[Key]bool, len(s.CompletedLectures))
	for k, v := range s.CompletedLectures {
		if v {
			done[k] = true
		}
	}
	t.mu.Lock()
	t.done = done
	t.mu.Unlock()
}
