// File: internal/store/store.go
// ============================================
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Store is the key/value port for durable bot state.
type Store interface {
	// Read returns ok=false when key was never written.
	Read(ctx context.Context, key string) (data []byte, ok bool, err error)
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// Open builds a store for driver "file", "sqlite" or "memory".
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// MemoryStore keeps everything in process; used for dry runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
