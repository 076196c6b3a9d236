package offcache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/persist"
)

type workOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// ==============================
// Fakes
// ==============================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyAdapter is an in-memory adapter whose writes can be made to fail per
// document suffix ("entries", "sync_queue", "config").
type flakyAdapter struct {
	*persist.Memory
	mu      sync.Mutex
	failSet map[string]error
	sets    map[string]int
	closed  bool
}

func newFlaky() *flakyAdapter {
	return &flakyAdapter{Memory: persist.NewMemory(), failSet: map[string]error{}, sets: map[string]int{}}
}

func (a *flakyAdapter) Set(ctx context.Context, key string, value []byte) error {
	a.mu.Lock()
	for suffix, err := range a.failSet {
		if strings.HasSuffix(key, suffix) {
			a.mu.Unlock()
			return err
		}
	}
	a.sets[key]++
	a.mu.Unlock()
	return a.Memory.Set(ctx, key, value)
}

func (a *flakyAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.Memory.Close(ctx)
}

func (a *flakyAdapter) failOn(suffix string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failSet, suffix)
		return
	}
	a.failSet[suffix] = err
}

func (a *flakyAdapter) writes(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sets[key]
}

// reopenable wraps an adapter so Close does not discard it between opens.
type reopenable struct{ PersistenceAdapter }

func (reopenable) Close(context.Context) error { return nil }

type evictedKey struct {
	key      string
	priority Priority
	reason   string
}

type recordingHooks struct {
	NopHooks
	mu        sync.Mutex
	expired   []string
	evicted   []evictedKey
	retrying  []Operation
	failed    []Operation
	conflicts []Resolution
	storage   []string
	fallbacks []string
	network   []bool
}

func (h *recordingHooks) EntryExpired(key string) {
	h.mu.Lock()
	h.expired = append(h.expired, key)
	h.mu.Unlock()
}

func (h *recordingHooks) EntryEvicted(key string, p Priority, reason string) {
	h.mu.Lock()
	h.evicted = append(h.evicted, evictedKey{key, p, reason})
	h.mu.Unlock()
}

func (h *recordingHooks) OperationRetrying(op Operation, _ error) {
	h.mu.Lock()
	h.retrying = append(h.retrying, op)
	h.mu.Unlock()
}

func (h *recordingHooks) OperationFailed(op Operation) {
	h.mu.Lock()
	h.failed = append(h.failed, op)
	h.mu.Unlock()
}

func (h *recordingHooks) OperationConflict(_ Operation, r Resolution) {
	h.mu.Lock()
	h.conflicts = append(h.conflicts, r)
	h.mu.Unlock()
}

func (h *recordingHooks) StorageFailure(doc string, _ error) {
	h.mu.Lock()
	h.storage = append(h.storage, doc)
	h.mu.Unlock()
}

func (h *recordingHooks) CodecFallback(_, stage string, _ error) {
	h.mu.Lock()
	h.fallbacks = append(h.fallbacks, stage)
	h.mu.Unlock()
}

func (h *recordingHooks) NetworkChanged(online bool) {
	h.mu.Lock()
	h.network = append(h.network, online)
	h.mu.Unlock()
}

func (h *recordingHooks) fallbackStages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fallbacks...)
}

// ==============================
// Constructors
// ==============================

type harness struct {
	c       *cache[workOrder]
	clock   *fakeClock
	adapter *flakyAdapter
	hooks   *recordingHooks
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Namespace = "test"
	cfg.RetryPolicy = RetryPolicy{MaxRetries: 3, BackoffMultiplier: 2, InitialDelay: time.Second, MaxDelay: 8 * time.Second}
	cfg.SyncConcurrency = 1
	return cfg
}

func newHarness(t *testing.T, mutate func(*Options[workOrder])) *harness {
	t.Helper()
	h := &harness{clock: newClock(), adapter: newFlaky(), hooks: &recordingHooks{}}
	cfg := testConfig()
	opts := Options[workOrder]{
		Codec:         codec.JSON[workOrder]{},
		Persistence:   h.adapter,
		Config:        &cfg,
		Hooks:         h.hooks,
		Now:           h.clock.Now,
		DisableTimers: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := open[workOrder](context.Background(), opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h.c = c
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return h
}

func mustSet(t *testing.T, c Cache[workOrder], key string, v workOrder, opts ...SetOption) {
	t.Helper()
	if err := c.Set(context.Background(), key, v, opts...); err != nil {
		t.Fatalf("Set(%s): %v", key, err)
	}
}

func mustGet(t *testing.T, c Cache[workOrder], key string) workOrder {
	t.Helper()
	v, ok, err := c.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("Get(%s): ok=%v err=%v", key, ok, err)
	}
	return v
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}
