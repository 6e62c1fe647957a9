package docstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	collection string
	id         string
	seq        int64
	data       map[string]any
	updatedAt  time.Time
}

// MemoryStore is an in-process Store for tests and offline development.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]*memEntry
	seq      int64
	watchers map[string][]chan []Document
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*memEntry),
		watchers: make(map[string][]chan []Document),
		now:      time.Now,
	}
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(collection), nil
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Document, bool, error) {
	if _, _, err := splitDoc(path); err != nil {
		return Document{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[path]
	if !ok {
		return Document{}, false, nil
	}
	return e.document(path), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error {
	collection, id, err := splitDoc(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o := applySetOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[path]
	if !ok {
		s.seq++
		e = &memEntry{collection: collection, id: id, seq: s.seq, data: map[string]any{}}
		s.docs[path] = e
	}
	if o.merge {
		e.data = DeepMerge(e.data, data)
	} else {
		e.data = cloneData(data)
	}
	e.updatedAt = s.now()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	collection, _, err := splitDoc(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notify(collection)
	return nil
}

func (s *MemoryStore) DeleteTree(ctx context.Context, path string) error {
	if _, _, err := splitDoc(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := map[string]bool{}
	for p, e := range s.docs {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(s.docs, p)
			touched[e.collection] = true
		}
	}
	for c := range touched {
		s.notify(c)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (<-chan []Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	ch := make(chan []Document, 1)

	s.mu.Lock()
	ch <- s.snapshot(collection)
	s.watchers[collection] = append(s.watchers[collection], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.watchers[collection] = slices.DeleteFunc(s.watchers[collection], func(w chan []Document) bool { return w == ch })
		close(ch)
	}()
	return ch, nil
}

// notify pushes the latest snapshot to watchers, replacing any snapshot they
// have not consumed yet. Callers hold s.mu.
func (s *MemoryStore) notify(collection string) {
	watchers := s.watchers[collection]
	if len(watchers) == 0 {
		return
	}
	snap := s.snapshot(collection)
	for _, w := range watchers {
		select {
		case <-w:
		default:
		}
		w <- snap
	}
}

func (s *MemoryStore) snapshot(collection string) []Document {
	var entries []*memEntry
	paths := map[*memEntry]string{}
	for p, e := range s.docs {
		if e.collection == collection {
			entries = append(entries, e)
			paths[e] = p
		}
	}
	slices.SortFunc(entries, func(a, b *memEntry) int { return int(a.seq - b.seq) })
	out := make([]Document, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.document(paths[e]))
	}
	return out
}

func (e *memEntry) document(path string) Document {
	return Document{Path: path, ID: e.id, Data: cloneData(e.data), UpdatedAt: e.updatedAt}
}
