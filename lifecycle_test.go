package offcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/persist"
)

func openOn(t *testing.T, ad PersistenceAdapter, mutate func(*Options[workOrder])) *cache[workOrder] {
	t.Helper()
	cfg := testConfig()
	opts := Options[workOrder]{
		Codec:         codec.JSON[workOrder]{},
		Persistence:   reopenable{ad},
		Config:        &cfg,
		DisableTimers: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := open[workOrder](context.Background(), opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c
}

// ==============================
// Reload
// ==============================

func TestReloadRestoresEntriesQueueAndVersions(t *testing.T) {
	ad := newFlaky()
	ctx := context.Background()

	c1 := openOn(t, ad, nil)
	mustSet(t, c1, "a", workOrder{ID: "a"}, WithTags("x"), WithTTL(0))
	mustSet(t, c1, "a", workOrder{ID: "a", Status: "edited"}, WithTags("x"), WithTTL(0))
	mustSet(t, c1, "b", workOrder{ID: "b"}, WithTTL(0))
	if err := c1.Close(ctx); err != nil {
		t.Fatal(err)
	}

	c2 := openOn(t, ad, nil)
	defer c2.Close(ctx)
	if got := mustGet(t, c2, "a"); got.Status != "edited" {
		t.Fatalf("a=%+v", got)
	}
	if got := c2.GetByTags("x"); len(got) != 1 || got[0].Key != "a" {
		t.Fatalf("tags=%+v", got)
	}
	ops := c2.Operations()
	if len(ops) != 3 || ops[0].EntityID != "a" || ops[2].EntityID != "b" {
		t.Fatalf("ops=%+v", ops)
	}
	mustSet(t, c2, "a", workOrder{})
	if e, _ := c2.Entry("a"); e.Version != 3 {
		t.Fatalf("version after reload=%d want 3", e.Version)
	}
}

func TestReloadDropsEntriesExpiredWhileClosed(t *testing.T) {
	ad := newFlaky()
	clock := newClock()
	withClock := func(o *Options[workOrder]) { o.Now = clock.Now }

	c1 := openOn(t, ad, withClock)
	mustSet(t, c1, "short", workOrder{}, WithTTL(time.Minute))
	mustSet(t, c1, "long", workOrder{}, WithTTL(time.Hour))
	_ = c1.Close(context.Background())

	clock.Advance(10 * time.Minute)
	c2 := openOn(t, ad, withClock)
	defer c2.Close(context.Background())
	if st := c2.Stats(); st.TotalEntries != 1 || st.Expirations != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestCorruptDocumentStartsEmpty(t *testing.T) {
	ad := newFlaky()
	_ = ad.Memory.Set(context.Background(), "test:entries", []byte("not a document"))
	hooks := &recordingHooks{}

	c := openOn(t, ad, func(o *Options[workOrder]) { o.Hooks = hooks })
	defer c.Close(context.Background())
	if c.Stats().TotalEntries != 0 {
		t.Fatal("corrupt document produced entries")
	}
	if st := hooks.fallbackStages(); len(st) != 1 || st[0] != "load" {
		t.Fatalf("fallback stages=%v", st)
	}
	mustSet(t, c, "k", workOrder{})
}

type brokenGet struct{ *persist.Memory }

func (brokenGet) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("device not ready")
}

func TestAdapterErrorFailsOpen(t *testing.T) {
	_, err := open[workOrder](context.Background(), Options[workOrder]{
		Codec:       codec.JSON[workOrder]{},
		Persistence: brokenGet{persist.NewMemory()},
	})
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "load" {
		t.Fatalf("err=%v", err)
	}
}

func TestOpenRequiresCodec(t *testing.T) {
	if _, err := Open[workOrder](context.Background(), Options[workOrder]{}); err == nil {
		t.Fatal("expected error without codec")
	}
}

func TestDocumentFormatsRoundTrip(t *testing.T) {
	for _, f := range []DocFormat{DocJSON, DocMsgpack, DocCBOR} {
		t.Run(string(f), func(t *testing.T) {
			ad := newFlaky()
			format := func(o *Options[workOrder]) { o.Documents = f }

			c1 := openOn(t, ad, format)
			mustSet(t, c1, "k", workOrder{ID: "k", Status: "open"},
				WithTags("a", "b"), WithPriority(PriorityHigh), WithMetadata(map[string]any{"site": "north"}))
			want, _ := c1.Entry("k")
			_ = c1.Close(context.Background())

			c2 := openOn(t, ad, format)
			defer c2.Close(context.Background())
			got, ok := c2.Entry("k")
			if !ok {
				t.Fatal("entry lost")
			}
			if got.ID != want.ID || got.Version != want.Version || got.Checksum != want.Checksum ||
				got.Priority != PriorityHigh || len(got.Tags) != 2 || got.Metadata["site"] != "north" ||
				!got.ExpiresAt.Equal(want.ExpiresAt) {
				t.Fatalf("got %+v want %+v", got, want)
			}
			if v := mustGet(t, c2, "k"); v.Status != "open" {
				t.Fatalf("value=%+v", v)
			}
			if ops := c2.Operations(); len(ops) != 1 || ops[0].Priority != PriorityHigh {
				t.Fatalf("ops=%+v", ops)
			}
		})
	}
}

// ==============================
// Close
// ==============================

func TestCloseFlushesAndRejectsCalls(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	mustSet(t, h.c, "k", workOrder{}, WithTTL(time.Second))
	h.clock.Advance(2 * time.Second)
	_, _, _ = h.c.Get(ctx, "k") // lazily expired, document not yet rewritten

	before := h.adapter.writes("test:entries")
	if err := h.c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if h.adapter.writes("test:entries") != before+1 || h.adapter.writes("test:sync_queue") == 0 {
		t.Fatal("Close did not flush documents")
	}
	if !h.adapter.closed {
		t.Fatal("adapter not closed")
	}

	if _, _, err := h.c.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get: %v", err)
	}
	if err := h.c.Set(ctx, "k", workOrder{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set: %v", err)
	}
	if _, err := h.c.ProcessQueue(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("ProcessQueue: %v", err)
	}
	if _, err := h.c.AddOperation(ctx, NewOperation{EntityID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("AddOperation: %v", err)
	}
	if err := h.c.UpdateConfig(ctx, func(*Config) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if _, err := h.c.Sweep(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Sweep: %v", err)
	}
	if err := h.c.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCloseStopsTimers(t *testing.T) {
	h := newHarness(t, func(o *Options[workOrder]) { o.DisableTimers = false })
	if h.c.cleanupLoop == nil || h.c.syncLoop == nil {
		t.Fatal("timers not started")
	}
	if err := h.c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.c.cleanupLoop != nil || h.c.syncLoop != nil {
		t.Fatal("timers still referenced after Close")
	}
}

func TestBackgroundSweepRuns(t *testing.T) {
	h := newHarness(t, func(o *Options[workOrder]) {
		o.DisableTimers = false
		o.Config.CleanupInterval = 10 * time.Millisecond
	})
	mustSet(t, h.c, "k", workOrder{}, WithTTL(time.Second))
	h.clock.Advance(2 * time.Second)
	eventually(t, func() bool { return h.c.Stats().TotalEntries == 0 }, "sweep removed expired entry")
}

func TestBackgroundSyncRuns(t *testing.T) {
	remote := &fakeRemote{}
	h := newHarness(t, func(o *Options[workOrder]) {
		o.Remote = remote
		o.DisableTimers = false
		o.Config.SyncInterval = 10 * time.Millisecond
	})
	mustSet(t, h.c, "k", workOrder{})
	eventually(t, func() bool { return len(h.c.Operations()) == 0 }, "sync timer drained the queue")
}
