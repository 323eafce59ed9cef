package cache

import (
	"context"
	"sync"
)

type memEntry struct {
	value   []byte
	version int
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), e.value...), e.version, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, version int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memEntry{value: append([]byte(nil), value...), version: version}
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

// NoneBackend stores nothing; every Get misses.
type NoneBackend struct{}

func (NoneBackend) Get(context.Context, string) ([]byte, int, error) { return nil, 0, ErrNotFound }
func (NoneBackend) Set(context.Context, string, []byte, int) error { return nil }
func (NoneBackend) Close() error { return nil }
