package ristretto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	require.NoError(t, a.Set(ctx, "ns:sync_queue", []byte("queue")))
	got, ok, err := a.Get(ctx, "ns:sync_queue")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "queue", string(got))

	require.NoError(t, a.Remove(ctx, "ns:sync_queue"))
	_, ok, err = a.Get(ctx, "ns:sync_queue")
	require.NoError(t, err)
	require.False(t, ok)
}
