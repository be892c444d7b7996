package storage

import (
	"context"
	"sync"
)

// Compile-time check: Mem implements Store.
var _ Store = (*Mem)(nil)

// Mem is an in-memory store for tests and plan previews.
type Mem struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{blobs: make(map[string][]byte)}
}

func memKey(u URI) string { return u.Bucket + "/" + u.Key }

// Get returns a copy of the artifact at u.
func (m *Mem) Get(_ context.Context, u URI) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[memKey(u)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of data at u.
func (m *Mem) Put(_ context.Context, u URI, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[memKey(u)] = cp
	return nil
}

// Exists reports whether an artifact is present at u.
func (m *Mem) Exists(_ context.Context, u URI) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[memKey(u)]
	return ok, nil
}

// Len returns the number of stored artifacts (test helper).
func (m *Mem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
