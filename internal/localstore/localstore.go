// Package localstore is device-scoped key/value storage for small JSON blobs:
// display preferences and the progress fallback used without a signed-in user.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrCorrupt marks a stored blob that no longer decodes.
var ErrCorrupt = errors.New("corrupt local storage value")

// Keys accepted by every Storage.
const (
	KeyTheme    = "praxis-theme"
	KeyClass    = "praxis-class"
	KeyProgress = "praxis-progress"
)

var knownKeys = []string{KeyTheme, KeyClass, KeyProgress}

// Storage holds the blobs of one device.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Devices hands out the Storage of a device id.
type Devices interface {
	Device(id string) Storage
}

func checkKey(key string) error {
	if !slices.Contains(knownKeys, key) {
		return fmt.Errorf("unknown local storage key %q", key)
	}
	return nil
}

// GetJSON decodes the blob under key into v. It reports false when nothing is stored.
func GetJSON(ctx context.Context, s Storage, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w: %w", key, ErrCorrupt, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
