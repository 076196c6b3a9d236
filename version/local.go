package version

import (
	"context"
	"sync"
	"time"
)

// DefaultRetention is how long Local remembers a key nobody writes.
const DefaultRetention = 30 * 24 * time.Hour

type localEntry struct {
	V         uint64
	UpdatedAt time.Time
}

// Local keeps versions in-process with an optional cleanup loop that
// prunes keys inactive for longer than the retention.
type Local struct {
	mu     sync.RWMutex
	vers   map[string]localEntry
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	retention time.Duration
	now       func() time.Time
}

var _ Store = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{
		vers:      make(map[string]localEntry),
		retention: retention,
		now:       time.Now,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// WithClock replaces the clock used for retention bookkeeping.
func (s *Local) WithClock(now func() time.Time) *Local {
	if now != nil {
		s.mu.Lock()
		s.now = now
		s.mu.Unlock()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e := s.vers[k]
	s.mu.RUnlock()
	return e.V, nil
}

func (s *Local) Observe(_ context.Context, k string, v uint64) error {
	s.mu.Lock()
	e := s.vers[k]
	if v > e.V {
		e.V = v
	}
	e.UpdatedAt = s.now()
	s.vers[k] = e
	s.mu.Unlock()
	return nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	s.mu.Lock()
	cutoff := s.now().Add(-retention)
	for k, e := range s.vers {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.vers, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vers)
}

func (s *Local) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
