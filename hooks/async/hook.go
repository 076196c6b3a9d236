// Package asynchook moves offcache hook delivery off the caller's goroutine.
// Several hooks fire while the cache lock is held, so slow sinks (network
// loggers, metrics pushers) should be wrapped:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{EvictedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := offcache.Open[Order](ctx, offcache.Options[Order]{
//	    Codec: codec.JSON[Order]{},
//	    Hooks: hooks,
//	})
//
// Events are dropped when the queue is full; Dropped reports how many.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/offcache"
)

type Hooks struct {
	inner   offcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends racing Close
	closed  bool
	dropped atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(inner offcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events sent after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) EntryExpired(key string) { h.try(func() { h.inner.EntryExpired(key) }) }
func (h *Hooks) EntryEvicted(key string, p offcache.Priority, reason string) {
	h.try(func() { h.inner.EntryEvicted(key, p, reason) })
}
func (h *Hooks) OperationRetrying(op offcache.Operation, err error) {
	h.try(func() { h.inner.OperationRetrying(op, err) })
}
func (h *Hooks) OperationFailed(op offcache.Operation) { h.try(func() { h.inner.OperationFailed(op) }) }
func (h *Hooks) OperationConflict(op offcache.Operation, res offcache.Resolution) {
	h.try(func() { h.inner.OperationConflict(op, res) })
}
func (h *Hooks) StorageFailure(doc string, err error) {
	h.try(func() { h.inner.StorageFailure(doc, err) })
}
func (h *Hooks) CodecFallback(key, stage string, err error) {
	h.try(func() { h.inner.CodecFallback(key, stage, err) })
}
func (h *Hooks) NetworkChanged(online bool) { h.try(func() { h.inner.NetworkChanged(online) }) }
