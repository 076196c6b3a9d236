// Package offcache implements an offline-first local cache with background
// synchronization. Foreground reads and writes hit an in-process entry map
// that is persisted through a pluggable document store; every sync-enabled
// mutation is also recorded in a durable queue that is drained against a
// remote system once the device is online.
//
// Components:
//   - PersistenceAdapter: durable byte store for three documents
//     (<ns>:entries, <ns>:sync_queue, <ns>:config). See persist/.
//   - Codec[V]: (de)serializes V <-> []byte. See codec/.
//   - RemoteSyncClient: replicates one queued operation; reports success,
//     failure or conflict.
//   - NetworkMonitor: online/offline signal. See netmon/.
//   - ConflictResolver: decides what happens on a conflict outcome.
//     LastWriterWins by default.
//   - version.Store: highest committed version per key, so versions keep
//     increasing across delete and recreate.
//
// Writes:
//
//	err := c.Set(ctx, "job:42", job, offcache.WithTags("jobs", "today"), offcache.WithPriority(offcache.PriorityHigh))
//
// persist the entries document before returning and, unless WithoutSync is
// given, enqueue an update operation. A failed persist rolls the change back
// and returns a *StorageError.
//
// Two timers run in the background: an expiry sweep every CleanupInterval and
// a queue drain every SyncInterval (plus one on every offline→online
// transition). Both share the cache's single lock with foreground calls;
// remote calls run outside it.
package offcache
