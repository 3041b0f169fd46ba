package storage

import (
	"context"
	"sync"
)

// MemoryEngine implements KVEngine in process memory.
type MemoryEngine struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

// NewMemoryEngine creates an empty engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{items: make(map[string][]byte)}
}

// Get retrieves a copy of the value stored under key.
func (e *MemoryEngine) Get(_ context.Context, key string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	v, ok := e.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (e *MemoryEngine) Set(_ context.Context, key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.items[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes keys.
func (e *MemoryEngine) Delete(_ context.Context, keys ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(e.items, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (e *MemoryEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.items)
}

// Close marks the engine closed. Further calls fail with ErrClosed.
func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
