package offcache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// loop runs fn every interval until halted.
type loop struct {
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func startLoop(interval time.Duration, fn func()) *loop {
	l := &loop{
		interval: interval,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.ticker.C:
				fn()
			case <-l.stopCh:
				return
			}
		}
	}()
	return l
}

// halt stops the ticker and waits for a running tick to return.
// Must not be called with the cache lock held.
func (l *loop) halt() {
	if l == nil {
		return
	}
	close(l.stopCh)
	l.ticker.Stop() // stop ticker before waiting
	l.wg.Wait()
}

// startLoops starts the timers cfg asks for. Caller holds loopMu.
func (c *cache[V]) startLoops(cfg Config) {
	if c.disableTimers {
		return
	}
	c.cleanupLoop = startLoop(cfg.CleanupInterval, c.sweepTick)
	if cfg.SyncEnabled {
		c.syncLoop = startLoop(cfg.SyncInterval, c.syncTick)
	}
}

// restartLoops restarts only the timers whose settings changed.
// Caller holds loopMu.
func (c *cache[V]) restartLoops(old, next Config) {
	if c.disableTimers {
		return
	}
	if old.CleanupInterval != next.CleanupInterval {
		c.cleanupLoop.halt()
		c.cleanupLoop = startLoop(next.CleanupInterval, c.sweepTick)
		c.log.Debug("cleanup timer restarted", Fields{"interval": next.CleanupInterval})
	}
	if old.SyncEnabled != next.SyncEnabled || old.SyncInterval != next.SyncInterval {
		c.syncLoop.halt()
		c.syncLoop = nil
		if next.SyncEnabled {
			c.syncLoop = startLoop(next.SyncInterval, c.syncTick)
		}
		c.log.Debug("sync timer restarted", Fields{"interval": next.SyncInterval, "enabled": next.SyncEnabled})
	}
}

func (c *cache[V]) stopLoops() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	c.cleanupLoop.halt()
	c.syncLoop.halt()
	c.cleanupLoop, c.syncLoop = nil, nil
}

func (c *cache[V]) sweepTick() {
	removed, err := c.Sweep(c.bgCtx)
	if err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn("sweep failed", Fields{"err": err})
		return
	}
	if removed > 0 {
		c.log.Debug("sweep removed entries", Fields{"removed": removed})
	}
}

func (c *cache[V]) syncTick() {
	if _, err := c.ProcessQueue(c.bgCtx); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn("background sync failed", Fields{"err": err})
	}
}

// onNetwork reacts to monitor transitions; coming online drains the queue
// out of band.
func (c *cache[V]) onNetwork(online bool) {
	c.log.Info("network changed", Fields{"online": online})
	c.hooks.NetworkChanged(online)
	if !online {
		return
	}
	c.mu.Lock()
	if c.closed || !c.cfg.SyncEnabled {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.inflight.Done()
		if _, err := c.drain(c.bgCtx); err != nil {
			c.log.Warn("sync on reconnect failed", Fields{"err": err})
		}
	}()
}

// Close stops both timers and the network subscription, waits for running
// drains, flushes entries and queue once, then closes the version store and
// the persistence adapter. Further calls return ErrClosed; Close itself is
// idempotent.
func (c *cache[V]) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.stopLoops()
		c.inflight.Wait()

		var errs []error
		c.mu.Lock()
		if e := c.entriesDoc.Save(ctx, c.store.Snapshot()); e != nil {
			errs = append(errs, c.storageFailed("flush", docEntries, e, nil))
		} else {
			c.commitAdopted(ctx)
		}
		if e := c.queueDoc.Save(ctx, c.queue.Snapshot()); e != nil {
			errs = append(errs, c.storageFailed("flush", docQueue, e, nil))
		}
		c.mu.Unlock()

		if e := c.versions.Close(ctx); e != nil {
			errs = append(errs, e)
		}
		if e := c.adapter.Close(ctx); e != nil {
			errs = append(errs, e)
		}
		c.bgCancel()
		err = errors.Join(errs...)
		c.log.Info("offcache closed", Fields{"err": err})
	})
	return err
}
