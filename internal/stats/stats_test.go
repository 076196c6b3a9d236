package stats

import (
	"sync"
	"testing"
	"time"
)

func TestRates(t *testing.T) {
	c := New()
	if s := c.Snapshot(); s.HitRate() != 0 || s.MissRate() != 0 {
		t.Fatalf("empty rates: %v %v", s.HitRate(), s.MissRate())
	}
	c.Hit()
	c.Hit()
	c.Hit()
	c.Miss()
	s := c.Snapshot()
	if s.HitRate() != 0.75 || s.MissRate() != 0.25 {
		t.Fatalf("rates: %v %v", s.HitRate(), s.MissRate())
	}
}

func TestLastSyncOnlyMovesForward(t *testing.T) {
	c := New()
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.Completed(t1)
	c.Completed(t1.Add(-time.Hour))
	s := c.Snapshot()
	if !s.LastSync.Equal(t1) || s.Completed != 2 {
		t.Fatalf("last=%v completed=%d", s.LastSync, s.Completed)
	}
}

func TestTimings(t *testing.T) {
	c := New()
	c.ObserveWrite(10 * time.Millisecond)
	c.ObserveWrite(30 * time.Millisecond)
	c.ObserveSync(5 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ObserveRead(2 * time.Millisecond)
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.AvgWrite != 20*time.Millisecond || s.AvgSync != 5*time.Millisecond || s.AvgRead != 2*time.Millisecond {
		t.Fatalf("avg write=%v sync=%v read=%v", s.AvgWrite, s.AvgSync, s.AvgRead)
	}
}
