// Package announce keeps the live list of announcements and raises a
// notification for each one that appears.
package announce

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/p-n-ai/praxis/internal/docstore"
	"github.com/p-n-ai/praxis/internal/notify"
)

// Collection holds one document per announcement.
const Collection = "announcements"

// Announcement is a notice posted by an admin.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Path returns the document path of announcement id.
func Path(id string) string {
	return docstore.Join(Collection, id)
}

// Fields is the stored form of a.
func (a Announcement) Fields() map[string]any {
	m := map[string]any{
		"title":     a.Title,
		"createdAt": a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.Body != "" {
		m["body"] = a.Body
	}
	if a.Author != "" {
		m["author"] = a.Author
	}
	return m
}

// FromDocument decodes a stored announcement. An unparsable timestamp falls
// back to the document's update time.
func FromDocument(d docstore.Document) Announcement {
	a := Announcement{ID: d.ID, CreatedAt: d.UpdatedAt}
	a.Title, _ = d.Data["title"].(string)
	a.Body, _ = d.Data["body"].(string)
	a.Author, _ = d.Data["author"].(string)
	if s, ok := d.Data["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			a.CreatedAt = t
		}
	}
	return a
}

// Feed follows the announcements collection. Each snapshot replaces the
// previous one in a single pointer swap, so readers never see a partial update.
type Feed struct {
	docs   docstore.Store
	notify notify.Channel

	current atomic.Pointer[[]Announcement]
	primed  bool
	known   map[string]bool
}

// NewFeed creates a feed. n receives one notification per new announcement.
func NewFeed(docs docstore.Store, n notify.Channel) *Feed {
	f := &Feed{docs: docs, notify: n, known: make(map[string]bool)}
	empty := []Announcement{}
	f.current.Store(&empty)
	return f
}

// Latest returns the announcements newest first. The slice must not be modified.
func (f *Feed) Latest() []Announcement {
	return *f.current.Load()
}

// Run applies snapshots until ctx is done. The first snapshot only primes the
// feed; announcements already present at startup are not re-notified.
func (f *Feed) Run(ctx context.Context) error {
	snapshots, err := f.docs.Subscribe(ctx, Collection)
	if err != nil {
		return err
	}
	slog.Info("announcement feed started")
	for docs := range snapshots {
		f.apply(ctx, docs)
	}
	return nil
}

func (f *Feed) apply(ctx context.Context, docs []docstore.Document) {
	list := make([]Announcement, 0, len(docs))
	for _, d := range docs {
		list = append(list, FromDocument(d))
	}
	slices.SortStableFunc(list, func(a, b Announcement) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	f.current.Store(&list)

	seen := make(map[string]bool, len(list))
	var fresh []Announcement
	for _, a := range list {
		seen[a.ID] = true
		if !f.known[a.ID] {
			fresh = append(fresh, a)
		}
	}
	f.known = seen
	if !f.primed {
		f.primed = true
		return
	}
	// Oldest first, so subscribers see them in posting order.
	for _, a := range slices.Backward(fresh) {
		n := notify.Notification{
			ID:        a.ID,
			Kind:      notify.KindAnnouncement,
			Title:     a.Title,
			Body:      a.Body,
			CreatedAt: a.CreatedAt,
		}
		if err := f.notify.Publish(ctx, n); err != nil {
			slog.Warn("announcement notification failed", "id", a.ID, "error", err)
		}
	}
}
