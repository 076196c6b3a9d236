// Package store is the in-memory entry map behind the cache. It performs no
// locking and no I/O except through the version store; the façade serializes
// access and persists the map as a document.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/unkn0wn-root/offcache/internal/model"
	"github.com/unkn0wn-root/offcache/version"
)

type Store struct {
	entries  map[string]*model.Entry
	size     int64
	versions version.Store
}

func New(vs version.Store) *Store {
	return &Store{entries: make(map[string]*model.Entry), versions: vs}
}

// Peek returns the live entry for key without copying. Callers must not
// retain or mutate it.
func (s *Store) Peek(key string) (*model.Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *Store) Get(key string) (model.Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return model.Entry{}, false
	}
	return e.Clone(), true
}

// Put stores e and returns the entry it replaced, if any.
func (s *Store) Put(e model.Entry) (prev model.Entry, had bool) {
	if old, ok := s.entries[e.Key]; ok {
		prev, had = *old, true
		s.size -= old.Size()
	}
	cp := e.Clone()
	s.entries[e.Key] = &cp
	s.size += cp.Size()
	return prev, had
}

func (s *Store) Remove(key string) (model.Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return model.Entry{}, false
	}
	delete(s.entries, key)
	s.size -= e.Size()
	return *e, true
}

// Update applies fn to the live entry in place and keeps the size in step.
func (s *Store) Update(key string, fn func(*model.Entry)) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.size -= e.Size()
	fn(e)
	s.size += e.Size()
	return true
}

// NextVersion is one past the higher of the live version and the version
// store's record, so deleted-then-recreated keys keep counting upward.
func (s *Store) NextVersion(ctx context.Context, key string) (uint64, error) {
	var live uint64
	if e, ok := s.entries[key]; ok {
		live = e.Version
	}
	seen, err := s.versions.Snapshot(ctx, key)
	if err != nil {
		return 0, err
	}
	return max(live, seen) + 1, nil
}

// Commit records a version whose write is durable.
func (s *Store) Commit(ctx context.Context, key string, v uint64) error {
	return s.versions.Observe(ctx, key, v)
}

// ByTags returns copies of live entries carrying every tag, ordered by key.
// No tags matches every live entry.
func (s *Store) ByTags(tags []string, now time.Time) []model.Entry {
	var out []model.Entry
	for _, e := range s.entries {
		if e.Expired(now) || !e.HasTags(tags) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) Len() int    { return len(s.entries) }
func (s *Store) Size() int64 { return s.size }

// Each visits every entry. fn must not mutate the store.
func (s *Store) Each(fn func(*model.Entry)) {
	for _, e := range s.entries {
		fn(e)
	}
}

// Snapshot copies all entries ordered by key, ready to persist.
func (s *Store) Snapshot() []model.Entry {
	out := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Restore replaces the map with entries. Later duplicates of a key win.
func (s *Store) Restore(entries []model.Entry) {
	s.entries = make(map[string]*model.Entry, len(entries))
	s.size = 0
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		s.Put(e)
	}
}

// Seed raises the version store to every loaded entry's version.
func (s *Store) Seed(ctx context.Context) error {
	for k, e := range s.entries {
		if err := s.versions.Observe(ctx, k, e.Version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Clear() {
	s.entries = make(map[string]*model.Entry)
	s.size = 0
}
