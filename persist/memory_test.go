package persist

import (
	"context"
	"testing"
)

func TestMemoryRoundTripAndCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	in := []byte("doc")
	if err := m.Set(ctx, "k", in); err != nil {
		t.Fatalf("Set: %v", err)
	}
	in[0] = 'X' // caller mutation must not leak into the store

	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "doc" {
		t.Fatalf("Get: ok=%v err=%v got=%q", ok, err, got)
	}
	got[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "doc" {
		t.Fatalf("returned slice aliases stored doc")
	}

	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if len(m.Keys()) != 0 {
		t.Fatalf("expected empty store, got %v", m.Keys())
	}
}
