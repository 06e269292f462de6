package storage

import (
	"context"
	"sync"
)

// MemoryBackend 进程内缓存，主要给测试和 CACHE_BACKEND=memory 使用
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (m *MemoryBackend) Load(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return &e, nil
}

func (m *MemoryBackend) Save(_ context.Context, e *Entry) error {
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	m.mu.Lock()
	m.entries[e.Key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
