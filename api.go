package offcache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/offcache/cipher"
	"github.com/unkn0wn-root/offcache/version"
)

// Cache is the offline-first cache API. V is the caller's value type;
// serialization is handled by a pluggable Codec[V].
// All methods are safe for concurrent use.
type Cache[V any] interface {
	// Entries
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	Set(ctx context.Context, key string, value V, opts ...SetOption) error
	Delete(ctx context.Context, key string) (existed bool, err error)
	Entry(key string) (Entry, bool)
	GetByTags(tags ...string) []Entry
	InvalidateByTags(ctx context.Context, tags ...string) (removed int, err error)
	GetMultiple(ctx context.Context, keys []string) (values map[string]V, missing []string, err error)
	SetMultiple(ctx context.Context, items map[string]V, opts ...SetOption) error
	Clear(ctx context.Context) error

	// Sync queue
	AddOperation(ctx context.Context, op NewOperation) (id string, err error)
	ProcessQueue(ctx context.Context) (SyncReport, error)
	Operations() []Operation
	NeedsAttention() []Operation
	RetryOperation(ctx context.Context, id string) error
	DiscardOperation(ctx context.Context, id string) error

	// Admin
	Stats() Stats
	Config() Config
	UpdateConfig(ctx context.Context, fn func(*Config)) error
	Sweep(ctx context.Context) (removed int, err error)
	Close(ctx context.Context) error
}

// DocFormat selects the serialization of the persisted documents.
type DocFormat string

const (
	DocJSON    DocFormat = "json"
	DocMsgpack DocFormat = "msgpack"
	DocCBOR    DocFormat = "cbor"
)

// Options wire the cache to its collaborators.
// Only Codec is required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Codec Codec[V]

	Persistence PersistenceAdapter // nil => in-memory (persist.NewMemory)
	Remote      RemoteSyncClient   // nil => operations queue up and are never drained
	Network     NetworkMonitor     // nil => always online
	Cipher      cipher.Cipher      // used when Config.EncryptionEnabled
	Resolver    ConflictResolver   // nil => LastWriterWins
	Versions    version.Store      // nil => version.Local with 30d retention

	// Config is the initial configuration; nil => DefaultConfig().
	// A configuration persisted by UpdateConfig wins unless ResetConfig is set.
	Config      *Config
	ResetConfig bool

	Documents DocFormat    // "" => DocJSON
	Logger    Logger       // if nil, NopLogger is used
	Hooks     Hooks        // if nil, NopHooks is used
	Tracer    trace.Tracer // nil => global otel tracer provider

	Now           func() time.Time // nil => time.Now
	DisableTimers bool             // no background sweep or sync; call Sweep/ProcessQueue yourself
}

// Open builds a cache, loading its documents from Options.Persistence.
// Corrupt documents are logged and replaced by empty state; adapter errors
// fail Open.
func Open[V any](ctx context.Context, opts Options[V]) (Cache[V], error) {
	return open[V](ctx, opts)
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	TotalEntries int
	TotalSize    int64 // estimated bytes
	Hits         int64
	Misses       int64
	HitRate      float64 // 0..1
	MissRate     float64 // 0..1
	Evictions    int64
	Expirations  int64

	Sync        SyncStats
	Performance Performance
}

type SyncStats struct {
	Online               bool
	PendingOperations    int
	ProcessingOperations int
	FailedOperations     int // permanently failed
	ConflictCount        int
	CompletedOperations  int64
	LastSyncTime         time.Time // max timestamp among completed operations
}

type Performance struct {
	AvgReadTime  time.Duration
	AvgWriteTime time.Duration
	AvgSyncTime  time.Duration
}

// SyncReport summarizes one ProcessQueue call.
type SyncReport struct {
	Skipped   string // non-empty when nothing was attempted: "offline", "offline_mode", "no_remote", "in_progress", "empty"
	Attempted int
	Completed int
	Retrying  int
	Failed    int // became permanently failed in this drain
	Conflicts int
	Released  int // returned to pending untouched because the context ended
	// Superseded counts conflicted ops dropped because their entry was
	// rewritten or deleted after they were queued.
	Superseded int
}
