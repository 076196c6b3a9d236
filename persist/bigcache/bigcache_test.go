package bigcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := New(Config{Shards: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	_, ok, err := a.Get(ctx, "offcache:entries")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, a.Set(ctx, "offcache:entries", []byte("doc-v1")))
	require.NoError(t, a.Set(ctx, "offcache:entries", []byte("doc-v2")))

	got, ok, err := a.Get(ctx, "offcache:entries")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("doc-v2"), got)

	require.NoError(t, a.Remove(ctx, "offcache:entries"))
	require.NoError(t, a.Remove(ctx, "offcache:entries"), "removing an absent key is not an error")

	_, ok, err = a.Get(ctx, "offcache:entries")
	require.NoError(t, err)
	require.False(t, ok)
}
