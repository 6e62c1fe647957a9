// Package docstore is a hierarchical JSON document store addressed by
// slash-separated paths that alternate collection and document segments,
// e.g. "batches/b1/subjects/s1".
package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Document is one stored record.
type Document struct {
	Path      string
	ID        string
	Data      map[string]any
	UpdatedAt time.Time
}

// Store is the document store contract.
type Store interface {
	// List returns the documents directly inside collection, in first-insertion order.
	List(ctx context.Context, collection string) ([]Document, error)
	// Get returns the document at path; the bool is false when it does not exist.
	Get(ctx context.Context, path string) (Document, bool, error)
	// Set creates or replaces the document at path. With Merge it deep-merges instead.
	Set(ctx context.Context, path string, data map[string]any, opts ...SetOption) error
	// Delete removes exactly the document at path. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// DeleteTree removes the document at path and every document below it.
	DeleteTree(ctx context.Context, path string) error
	// Subscribe streams full snapshots of collection, starting with the current one.
	// The channel closes when ctx is done.
	Subscribe(ctx context.Context, collection string) (<-chan []Document, error)
}

// SetOption configures Set.
type SetOption func(*setOptions)

type setOptions struct {
	merge bool
}

// Merge makes Set deep-merge nested maps into the existing document.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// splitDoc returns the parent collection and id of a document path.
func splitDoc(path string) (collection, id string, err error) {
	segs := strings.Split(path, "/")
	if len(segs)%2 != 0 || slicesContainsEmpty(segs) {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

func checkCollection(path string) error {
	segs := strings.Split(path, "/")
	if len(segs)%2 != 1 || slicesContainsEmpty(segs) {
		return fmt.Errorf("invalid collection path %q", path)
	}
	return nil
}

func slicesContainsEmpty(segs []string) bool {
	for _, s := range segs {
		if s == "" {
			return true
		}
	}
	return false
}

// DeepMerge merges src into dst. Nested maps merge key by key; any other
// value in src overwrites the one in dst. dst is modified and returned.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		sm, sok := v.(map[string]any)
		dm, dok := dst[k].(map[string]any)
		if sok && dok {
			dst[k] = DeepMerge(dm, sm)
			continue
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneData(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneData(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
