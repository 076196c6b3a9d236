// Package netmon provides offcache.NetworkMonitor implementations.
package netmon

import "sync"

// Manual is a monitor whose state is set by the host, e.g. from the
// platform's connectivity callback. The zero value is offline.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	next   int
}

func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the state and notifies subscribers on a transition.
// Subscribers run on the caller's goroutine, outside the monitor's lock.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (m *Manual) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func(bool))
	}
	id := m.next
	m.next++
	m.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
