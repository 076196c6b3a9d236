package offcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; several are called while
// the cache lock is held. Wrap slow sinks with hooks/async.
type Hooks interface {
	// An entry passed its deadline and was removed (on read or by the sweep).
	EntryExpired(key string)

	// Capacity pressure removed an entry.
	// reason ∈ {"max_entries", "max_size"}
	EntryEvicted(key string, priority Priority, reason string)

	// A sync attempt failed and the operation will be retried at op.NextAttemptAt.
	OperationRetrying(op Operation, err error)

	// An operation exhausted its retries (or needs manual resolution) and now
	// waits in NeedsAttention.
	OperationFailed(op Operation)

	// The remote reported a conflict; res is the strategy that was applied.
	OperationConflict(op Operation, res Resolution)

	// The persistence adapter failed; doc ∈ {"entries", "sync_queue", "config"}.
	StorageFailure(doc string, err error)

	// A codec stage failed and the cache fell back to raw bytes.
	// stage ∈ {"encrypt", "decrypt", "decompress", "load"}
	CodecFallback(key, stage string, err error)

	// The network monitor reported a transition.
	NetworkChanged(online bool)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntryExpired(string)                     {}
func (NopHooks) EntryEvicted(string, Priority, string)   {}
func (NopHooks) OperationRetrying(Operation, error)      {}
func (NopHooks) OperationFailed(Operation)               {}
func (NopHooks) OperationConflict(Operation, Resolution) {}
func (NopHooks) StorageFailure(string, error)            {}
func (NopHooks) CodecFallback(string, string, error)     {}
func (NopHooks) NetworkChanged(bool)                     {}
