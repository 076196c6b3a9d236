package persist

import (
	"context"
	"sync"
)

// Memory is a process-local Adapter backed by a map. Useful for tests and for
// hosts that only want the cache to survive service restarts, not app restarts.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ Adapter = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{docs: make(map[string][]byte)} }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	b, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.docs[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.docs, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close(context.Context) error { return nil }

// Keys lists stored document keys; order is unspecified.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for k := range m.docs {
		out = append(out, k)
	}
	return out
}
