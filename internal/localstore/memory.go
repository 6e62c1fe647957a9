package localstore

import (
	"context"
	"slices"
	"sync"
)

// MemoryDevices keeps every device in process. Data is lost on restart.
type MemoryDevices struct {
	mu      sync.Mutex
	devices map[string]*Memory
}

// NewMemoryDevices creates an empty device registry.
func NewMemoryDevices() *MemoryDevices {
	return &MemoryDevices{devices: make(map[string]*Memory)}
}

// Device returns the storage of id, creating it on first use.
func (d *MemoryDevices) Device(id string) Storage {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.devices[id]
	if !ok {
		m = NewMemory()
		d.devices[id] = m
	}
	return m
}

// Memory is a single device's storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates empty storage.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return slices.Clone(v), ok, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(value)
	return nil
}
