// Package version tracks the highest version ever committed per cache key so
// a key that is deleted and recreated keeps counting upward.
package version

import (
	"context"
	"time"
)

// Store abstracts where per-key versions live.
// Use Local (default) for in-process versions, or Redis to share them
// between processes and across restarts.
type Store interface {
	// Snapshot returns the highest observed version; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Observe raises the stored version for key to v if v is larger.
	// It never lowers a version.
	Observe(ctx context.Context, key string, v uint64) error
	// Cleanup prunes stale records if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
