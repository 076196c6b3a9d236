// Package persist defines the durable document store the cache writes through.
//
// The cache keeps three documents per namespace: the entry map, the sync
// queue and the configuration. Each Set is a durability boundary: once it
// returns nil, the caller may assume the bytes survive a restart (for the
// durable adapters; the in-memory ones only survive for the process lifetime).
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes last passed to Set for that key.
package persist

import (
	"context"
	"errors"
)

// ErrRejected is returned by adapters that may refuse a write under memory
// pressure (ristretto admission, bigcache shard limits).
var ErrRejected = errors.New("persist: write rejected")

// Adapter is a durable async key -> document store.
type Adapter interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous document.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
