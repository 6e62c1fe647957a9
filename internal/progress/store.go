package progress

import (
	"context"
	"errors"
	"log/slog"

	"github.com/p-n-ai/praxis/internal/docstore"
	"github.com/p-n-ai/praxis/internal/localstore"
)

const progressCollection = "progress"

// Store persists tracker state for one owner.
type Store interface {
	Load(ctx context.Context) (State, error)
	// Save writes s. Fields of the stored record other than completion are kept.
	Save(ctx context.Context, s State) error
}

// UserStore keeps progress in the "progress/{uid}" document.
type UserStore struct {
	docs docstore.Store
	path string
}

// NewUserStore creates the store of user uid.
func NewUserStore(docs docstore.Store, uid string) *UserStore {
	return &UserStore{docs: docs, path: docstore.Join(progressCollection, uid)}
}

func (s *UserStore) Load(ctx context.Context) (State, error) {
	doc, ok, err := s.docs.Get(ctx, s.path)
	if err != nil || !ok {
		return State{}, err
	}
	st := State{CompletedLectures: map[Key]bool{}}
	completed, _ := doc.Data["completedLectures"].(map[string]any)
	for k, v := range completed {
		if b, _ := v.(bool); b {
			st.CompletedLectures[Key(k)] = true
		}
	}
	return st, nil
}

// Save merge-writes only the completedLectures field.
func (s *UserStore) Save(ctx context.Context, st State) error {
	completed := make(map[string]any, len(st.CompletedLectures))
	for k, v := range st.CompletedLectures {
		completed[string(k)] = v
	}
	return s.docs.Set(ctx, s.path, map[string]any{"completedLectures": completed}, docstore.Merge())
}

// DeviceStore keeps progress in device-local storage, for viewers without an identity.
type DeviceStore struct {
	local localstore.Storage
}

// NewDeviceStore creates a store on one device's storage.
func NewDeviceStore(local localstore.Storage) *DeviceStore {
	return &DeviceStore{local: local}
}

// Load treats a blob that no longer decodes as no progress, so a damaged
// device record never locks the viewer out.
func (s *DeviceStore) Load(ctx context.Context) (State, error) {
	var st State
	if _, err := localstore.GetJSON(ctx, s.local, localstore.KeyProgress, &st); err != nil {
		if errors.Is(err, localstore.ErrCorrupt) {
			slog.Warn("discarding unreadable device progress", "error", err)
			return State{}, nil
		}
		return State{}, err
	}
	return st, nil
}

// Save rewrites completedLectures and keeps any other field of the stored
// blob. An unreadable blob is replaced.
func (s *DeviceStore) Save(ctx context.Context, st State) error {
	blob := map[string]any{}
	if _, err := localstore.GetJSON(ctx, s.local, localstore.KeyProgress, &blob); err != nil {
		if !errors.Is(err, localstore.ErrCorrupt) {
			return err
		}
		blob = map[string]any{}
	}
	if blob == nil {
		blob = map[string]any{}
	}
	blob["completedLectures"] = st.CompletedLectures
	return localstore.SetJSON(ctx, s.local, localstore.KeyProgress, blob)
}
