// Package stats accumulates the cache's counters and timing averages.
// It is not safe for concurrent use on its own; the façade guards it.
package stats

import (
	"sync/atomic"
	"time"
)

// Timing is a running mean.
type Timing struct {
	n   int64
	sum time.Duration
}

func (t *Timing) Observe(d time.Duration) {
	t.n++
	t.sum += d
}

func (t Timing) Mean() time.Duration {
	if t.n == 0 {
		return 0
	}
	return t.sum / time.Duration(t.n)
}

func (t Timing) Count() int64 { return t.n }

// Collector holds cumulative counters. Hits and misses are atomic because
// reads only hold the façade's read lock.
type Collector struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   int64
	expirations int64
	completed   int64
	lastSync    time.Time

	reads  atomic.Pointer[Timing]
	writes Timing
	syncs  Timing
}

func New() *Collector {
	c := &Collector{}
	c.reads.Store(&Timing{})
	return c
}

func (c *Collector) Hit()  { c.hits.Add(1) }
func (c *Collector) Miss() { c.misses.Add(1) }

func (c *Collector) Evicted(n int) { c.evictions += int64(n) }
func (c *Collector) Expired(n int) { c.expirations += int64(n) }

// Completed records a successful sync; ts is the op's timestamp and only
// moves LastSync forward.
func (c *Collector) Completed(ts time.Time) {
	c.completed++
	if ts.After(c.lastSync) {
		c.lastSync = ts
	}
}

// ObserveRead is safe under a shared lock.
func (c *Collector) ObserveRead(d time.Duration) {
	for {
		old := c.reads.Load()
		next := *old
		next.Observe(d)
		if c.reads.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (c *Collector) ObserveWrite(d time.Duration) { c.writes.Observe(d) }
func (c *Collector) ObserveSync(d time.Duration)  { c.syncs.Observe(d) }

type Snapshot struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Completed   int64
	LastSync    time.Time
	AvgRead     time.Duration
	AvgWrite    time.Duration
	AvgSync     time.Duration
}

// HitRate is hits/(hits+misses), 0 when nothing was read.
func (s Snapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Snapshot) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total)
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Completed:   c.completed,
		LastSync:    c.lastSync,
		AvgRead:     c.reads.Load().Mean(),
		AvgWrite:    c.writes.Mean(),
		AvgSync:     c.syncs.Mean(),
	}
}
