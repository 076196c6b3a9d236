package offcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/offcache/cipher"
	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/internal/docstore"
	"github.com/unkn0wn-root/offcache/internal/evict"
	"github.com/unkn0wn-root/offcache/internal/model"
	"github.com/unkn0wn-root/offcache/internal/stats"
	"github.com/unkn0wn-root/offcache/internal/store"
	"github.com/unkn0wn-root/offcache/internal/syncq"
	"github.com/unkn0wn-root/offcache/internal/util"
	"github.com/unkn0wn-root/offcache/internal/wire"
	"github.com/unkn0wn-root/offcache/persist"
	"github.com/unkn0wn-root/offcache/version"
)

const (
	docEntries = "entries"
	docQueue   = "sync_queue"
	docConfig  = "config"

	defaultVersionRetention = version.DefaultRetention
	tracerName              = "github.com/unkn0wn-root/offcache"
)

type cache[V any] struct {
	// mu guards everything below it, including every persistence call of a
	// read-modify-persist sequence.
	mu sync.RWMutex

	cfg      Config
	codec    Codec[V]
	adapter  PersistenceAdapter
	remote   RemoteSyncClient
	net      NetworkMonitor
	cipher   cipher.Cipher
	resolver ConflictResolver
	versions version.Store
	log      Logger
	hooks    Hooks
	tracer   trace.Tracer
	now      func() time.Time

	store *store.Store
	queue *syncq.Queue
	stats *stats.Collector

	entriesDoc docstore.Doc[[]Entry]
	queueDoc   docstore.Doc[[]Operation]
	configDoc  docstore.Doc[Config]

	// dirty is set when entries left memory without a persist (lazy expiry,
	// failed sweep flush); the next sweep or Close writes them out.
	dirty   bool
	closed  bool
	adopted map[string]uint64 // versions awaiting a durable entries write

	drainMu  sync.Mutex // held for the duration of a drain; TryLock suppresses overlap
	inflight sync.WaitGroup

	loopMu        sync.Mutex
	cleanupLoop   *loop
	syncLoop      *loop
	disableTimers bool
	unsubscribe   func()
	bgCtx         context.Context
	bgCancel      context.CancelFunc
	closeOnce     sync.Once
}

func open[V any](ctx context.Context, opts Options[V]) (*cache[V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("offcache: codec is required")
	}

	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	cfg = cfg.sanitize()

	c := &cache[V]{
		codec:         opts.Codec,
		remote:        opts.Remote,
		cipher:        opts.Cipher,
		disableTimers: opts.DisableTimers,
		adopted:       make(map[string]uint64),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.adapter = coalesce[PersistenceAdapter](opts.Persistence, persist.NewMemory())
	c.net = coalesce[NetworkMonitor](opts.Network, alwaysOnline{})
	c.resolver = coalesce[ConflictResolver](opts.Resolver, LastWriterWins{})
	if opts.Tracer != nil {
		c.tracer = opts.Tracer
	} else {
		c.tracer = otel.Tracer(tracerName)
	}
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}
	c.configDoc = docstore.Doc[Config]{
		Adapter: c.adapter,
		Key:     util.DocKey(cfg.Namespace, docConfig),
		Kind:    wire.KindConfig,
		Codec:   docCodec[Config](opts.Documents),
	}
	if !opts.ResetConfig {
		stored, found, err := c.configDoc.Load(ctx)
		switch {
		case err != nil && found:
			c.loadFailed(docConfig, err)
		case err != nil:
			return nil, &StorageError{Op: "load", Doc: docConfig, Err: err}
		case found:
			stored.Namespace = cfg.Namespace
			cfg = stored.sanitize()
		}
	}
	c.cfg = c.checkEncryption(cfg)

	c.entriesDoc = docstore.Doc[[]Entry]{
		Adapter: c.adapter,
		Key:     util.DocKey(cfg.Namespace, docEntries),
		Kind:    wire.KindEntries,
		Codec:   docCodec[[]Entry](opts.Documents),
	}
	c.queueDoc = docstore.Doc[[]Operation]{
		Adapter: c.adapter,
		Key:     util.DocKey(cfg.Namespace, docQueue),
		Kind:    wire.KindQueue,
		Codec:   docCodec[[]Operation](opts.Documents),
		Cipher:  c.queueCipher(),
	}

	if opts.Versions != nil {
		c.versions = opts.Versions
	} else {
		// default to in-process versions with periodic cleanup
		c.versions = version.NewLocal(c.cfg.CleanupInterval, defaultVersionRetention).WithClock(c.now)
	}
	c.store = store.New(c.versions)
	c.queue = syncq.New(c.cfg.MaxFailedOperations)
	c.stats = stats.New()

	if err := c.load(ctx); err != nil {
		_ = c.versionsCloseIfOwned(ctx, opts.Versions == nil)
		return nil, err
	}

	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	c.unsubscribe = c.net.Subscribe(c.onNetwork)
	c.loopMu.Lock()
	c.startLoops(c.cfg)
	c.loopMu.Unlock()

	c.log.Info("offcache opened", Fields{
		"namespace": c.cfg.Namespace,
		"entries":   c.store.Len(),
		"queued":    c.queue.Len(),
	})
	return c, nil
}

func docCodec[T any](f DocFormat) Codec[T] {
	switch f {
	case DocMsgpack:
		return codec.Msgpack[T]{}
	case DocCBOR:
		return codec.MustCBOR[T](false)
	default:
		return codec.JSON[T]{}
	}
}

func (c *cache[V]) versionsCloseIfOwned(ctx context.Context, owned bool) error {
	if owned {
		return c.versions.Close(ctx)
	}
	return nil
}

// checkEncryption turns encryption off when no cipher is configured.
func (c *cache[V]) checkEncryption(cfg Config) Config {
	if cfg.EncryptionEnabled && c.cipher == nil {
		c.log.Warn("encryption enabled without a cipher; storing plaintext", nil)
		cfg.EncryptionEnabled = false
	}
	return cfg
}

func (c *cache[V]) queueCipher() cipher.Cipher {
	if c.cfg.EncryptionEnabled {
		return c.cipher
	}
	return nil
}

// load restores the entry map and the queue. Undecodable documents start
// empty; adapter errors fail the open.
func (c *cache[V]) load(ctx context.Context) error {
	entries, found, err := c.entriesDoc.Load(ctx)
	switch {
	case err != nil && found:
		c.loadFailed(docEntries, err)
	case err != nil:
		return &StorageError{Op: "load", Doc: docEntries, Err: err}
	default:
		c.store.Restore(entries)
		if err := c.store.Seed(ctx); err != nil {
			c.log.Warn("seeding versions failed", Fields{"err": err})
		}
	}

	ops, found, err := c.queueDoc.Load(ctx)
	switch {
	case err != nil && found:
		c.loadFailed(docQueue, err)
	case err != nil:
		return &StorageError{Op: "load", Doc: docQueue, Err: err}
	default:
		c.queue.Restore(ops)
	}

	if removed := c.trimLocked(c.now()); len(removed) > 0 {
		c.commitTrim(removed)
		c.dirty = true
	}
	return nil
}

func (c *cache[V]) loadFailed(doc string, err error) {
	c.log.Error("persisted document unreadable; starting empty", Fields{"doc": doc, "err": err})
	c.hooks.CodecFallback(doc, "load", err)
}

// ====================================================================
// Entries
// ====================================================================

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	start := time.Now()
	defer func() { c.stats.ObserveRead(time.Since(start)) }()

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return zero, false, ErrClosed
	}
	e, ok := c.store.Peek(key)
	if !ok {
		c.mu.RUnlock()
		c.stats.Miss()
		return zero, false, nil
	}
	now := c.now()
	if e.Expired(now) {
		c.mu.RUnlock()
		c.expireOnRead(key)
		c.stats.Miss()
		return zero, false, nil
	}
	data := append([]byte(nil), e.Data...)
	compressed, encrypted, sum := e.Compressed, e.Encrypted, e.Checksum
	c.mu.RUnlock()

	plain, degraded := c.unseal(key, data, compressed, encrypted)
	if !degraded && sum != "" && util.Checksum(plain) != sum {
		c.log.Warn("checksum mismatch", Fields{"key": key})
		c.hooks.CodecFallback(key, "checksum", errChecksum)
		c.stats.Miss()
		return zero, false, nil
	}
	v, err := c.codec.Decode(plain)
	if err != nil {
		c.log.Debug("value decode failed; reporting miss", Fields{"key": key, "err": err})
		c.stats.Miss()
		return zero, false, nil
	}
	c.stats.Hit()
	return v, true, nil
}

// expireOnRead upgrades to the write lock and removes key if it is still
// expired. The entries document is flushed by the next sweep.
func (c *cache[V]) expireOnRead(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	e, ok := c.store.Peek(key)
	if !ok || !e.Expired(c.now()) {
		return
	}
	c.store.Remove(key)
	c.stats.Expired(1)
	c.dirty = true
	c.hooks.EntryExpired(key)
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, opts ...SetOption) error {
	if key == "" {
		return ErrEmptyKey
	}
	plain, err := c.codec.Encode(value)
	if err != nil {
		return &CodecError{Stage: "encode", Key: key, Err: err}
	}
	so := buildSetOptions(opts)

	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	err = c.setLocked(ctx, key, plain, so)
	c.stats.ObserveWrite(time.Since(start))
	return err
}

func (c *cache[V]) setLocked(ctx context.Context, key string, plain []byte, so setOptions) error {
	now := c.now()
	ver, err := c.store.NextVersion(ctx, key)
	if err != nil {
		c.log.Error("version snapshot failed", Fields{"key": key, "err": err})
		return &StorageError{Op: "set", Doc: "versions", Err: err}
	}

	data, compressed, encrypted := c.seal(key, plain)
	syncing := c.cfg.SyncEnabled && !so.noSync

	e := Entry{
		ID:         uuid.NewString(),
		Key:        key,
		Data:       data,
		Timestamp:  now,
		Version:    ver,
		Checksum:   util.Checksum(plain),
		Tags:       so.tags,
		Priority:   so.priority,
		SyncStatus: SyncSynced,
		Metadata:   so.metadata,
		Compressed: compressed,
		Encrypted:  encrypted,
	}
	switch {
	case !so.ttlSet:
		e.ExpiresAt = now.Add(c.cfg.DefaultTTL)
	case so.ttl > 0:
		e.ExpiresAt = now.Add(so.ttl)
	}
	if syncing {
		e.SyncStatus = SyncPending
	}

	var u undo
	if prev, had := c.store.Peek(key); had {
		e.ID = prev.ID
	}
	u.prev, u.had = c.store.Put(e)
	u.key = key
	if syncing {
		op := c.queue.Add(c.buildOp(NewOperation{
			Type:       OpUpdate,
			EntityType: coalesce(so.entityType, EntryEntityType),
			EntityID:   key,
			Payload:    plain,
			Priority:   e.Priority,
		}, now, ver))
		u.opID = op.ID
	}
	u.removed = c.trimLocked(now)

	if err := c.persistLocked(ctx, "set", &u, syncing); err != nil {
		return err
	}
	c.commitTrim(u.removed)
	if err := c.store.Commit(ctx, key, ver); err != nil {
		c.log.Warn("version commit failed", Fields{"key": key, "version": ver, "err": err})
	}
	return nil
}

func (c *cache[V]) Delete(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	defer func() { c.stats.ObserveWrite(time.Since(start)) }()

	prev, had := c.store.Remove(key)
	if !had {
		return false, nil
	}
	u := undo{key: key, prev: prev, had: true}
	syncing := c.cfg.SyncEnabled
	if syncing {
		op := c.queue.Add(c.buildOp(NewOperation{
			Type:       OpDelete,
			EntityType: EntryEntityType,
			EntityID:   key,
			Priority:   prev.Priority,
		}, c.now(), prev.Version))
		u.opID = op.ID
	}
	if err := c.persistLocked(ctx, "delete", &u, syncing); err != nil {
		return false, err
	}
	return true, nil
}

func (c *cache[V]) Entry(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return Entry{}, false
	}
	e, ok := c.store.Get(key)
	if !ok || e.Expired(c.now()) {
		return Entry{}, false
	}
	return e, true
}

func (c *cache[V]) GetByTags(tags ...string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.store.ByTags(tags, c.now())
}

// InvalidateByTags removes every live entry carrying all tags. It is local:
// no operations are enqueued.
func (c *cache[V]) InvalidateByTags(ctx context.Context, tags ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	matched := c.store.ByTags(tags, c.now())
	if len(matched) == 0 {
		return 0, nil
	}
	for _, e := range matched {
		c.store.Remove(e.Key)
	}
	if err := c.entriesDoc.Save(ctx, c.store.Snapshot()); err != nil {
		for _, e := range matched {
			c.store.Put(e)
		}
		return 0, c.storageFailed("invalidate", docEntries, err, nil)
	}
	c.dirty = false
	c.log.Debug("invalidated by tags", Fields{"tags": tags, "removed": len(matched)})
	return len(matched), nil
}

func (c *cache[V]) GetMultiple(ctx context.Context, keys []string) (map[string]V, []string, error) {
	out := make(map[string]V, len(keys))
	var missing []string
	for _, k := range keys {
		v, ok, err := c.Get(ctx, k)
		if err != nil {
			return out, missing, err
		}
		if ok {
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	return out, missing, nil
}

// SetMultiple sets each item independently in key order. Errors are joined;
// items that succeeded stay written.
func (c *cache[V]) SetMultiple(ctx context.Context, items map[string]V, opts ...SetOption) error {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := c.Set(ctx, k, items[k], opts...); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Clear drops every entry and every queued operation.
func (c *cache[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	entries := c.store.Snapshot()
	ops := c.queue.Snapshot()
	c.store.Clear()
	c.queue.Clear()

	if err := c.entriesDoc.Save(ctx, nil); err != nil {
		c.store.Restore(entries)
		c.queue.Restore(ops)
		return c.storageFailed("clear", docEntries, err, nil)
	}
	if err := c.queueDoc.Save(ctx, nil); err != nil {
		c.store.Restore(entries)
		c.queue.Restore(ops)
		rbErr := c.entriesDoc.Save(ctx, entries)
		return c.storageFailed("clear", docQueue, err, rbErr)
	}
	c.dirty = false
	c.log.Info("cache cleared", Fields{"entries": len(entries), "operations": len(ops)})
	return nil
}

// ====================================================================
// Persistence + rollback
// ====================================================================

// undo is what a single-key mutation needs to put memory back.
type undo struct {
	key     string
	prev    Entry
	had     bool
	opID    string
	removed []evicted
}

func (c *cache[V]) rollback(u *undo) {
	for i := len(u.removed) - 1; i >= 0; i-- {
		c.store.Put(u.removed[i].entry)
	}
	if u.had {
		c.store.Put(u.prev)
	} else {
		c.store.Remove(u.key)
	}
	if u.opID != "" {
		c.queue.Remove(u.opID)
	}
}

// persistLocked writes the entries document and, when queued is set, the
// queue document. On failure memory is rolled back; if the entries document
// was already written it is rewritten from the restored state.
func (c *cache[V]) persistLocked(ctx context.Context, op string, u *undo, queued bool) error {
	if err := c.entriesDoc.Save(ctx, c.store.Snapshot()); err != nil {
		c.rollback(u)
		return c.storageFailed(op, docEntries, err, nil)
	}
	if queued {
		if err := c.queueDoc.Save(ctx, c.queue.Snapshot()); err != nil {
			c.rollback(u)
			rbErr := c.entriesDoc.Save(ctx, c.store.Snapshot())
			return c.storageFailed(op, docQueue, err, rbErr)
		}
	}
	c.dirty = false
	return nil
}

func (c *cache[V]) storageFailed(op, doc string, err, rbErr error) error {
	f := Fields{"op": op, "doc": doc, "err": err}
	if rbErr != nil {
		f["rollback_err"] = rbErr
	}
	c.log.Error("persistence failed", f)
	c.hooks.StorageFailure(doc, err)
	return &StorageError{Op: op, Doc: doc, Err: err, RollbackErr: rbErr}
}

func (c *cache[V]) buildOp(n NewOperation, now time.Time, entryVersion uint64) model.Operation {
	typ := n.Type
	if typ == "" {
		typ = OpUpdate
	}
	prio := n.Priority
	if !prio.Valid() {
		prio = PriorityNormal
	}
	res := n.ConflictResolution
	if !res.Valid() {
		res = c.cfg.ConflictResolutionStrategy
	}
	return model.Operation{
		ID:                 uuid.NewString(),
		Type:               typ,
		EntityType:         n.EntityType,
		EntityID:           n.EntityID,
		Payload:            append([]byte(nil), n.Payload...),
		EntryVersion:       entryVersion,
		Timestamp:          now,
		Status:             OpPending,
		MaxRetries:         c.cfg.RetryPolicy.MaxRetries,
		Priority:           prio,
		Dependencies:       append([]string(nil), n.Dependencies...),
		ConflictResolution: res,
	}
}

// ====================================================================
// Eviction
// ====================================================================

type evicted struct {
	entry  Entry
	reason string // "expired", "max_entries", "max_size"
}

// trimLocked removes expired entries, then capacity victims. Stats and hooks
// are applied by commitTrim once the removal is durable.
func (c *cache[V]) trimLocked(now time.Time) []evicted {
	var out []evicted
	for _, k := range evict.Expired(c.store, now) {
		if e, ok := c.store.Remove(k); ok {
			out = append(out, evicted{entry: e, reason: "expired"})
		}
	}
	lim := evict.Limits{MaxEntries: c.cfg.MaxEntries, MaxSize: c.cfg.MaxSize}
	overCount := lim.MaxEntries > 0 && c.store.Len() > lim.MaxEntries
	for _, k := range evict.Victims(c.store, lim) {
		if e, ok := c.store.Remove(k); ok {
			reason := "max_size"
			if overCount {
				reason = "max_entries"
			}
			out = append(out, evicted{entry: e, reason: reason})
			overCount = lim.MaxEntries > 0 && c.store.Len() > lim.MaxEntries
		}
	}
	return out
}

func (c *cache[V]) commitTrim(removed []evicted) {
	var exp, ev int
	for _, r := range removed {
		if r.reason == "expired" {
			exp++
			c.hooks.EntryExpired(r.entry.Key)
			continue
		}
		ev++
		c.hooks.EntryEvicted(r.entry.Key, r.entry.Priority, r.reason)
	}
	c.stats.Expired(exp)
	c.stats.Evicted(ev)
	if ev > 0 {
		c.log.Debug("evicted entries", Fields{"count": ev, "entries": c.store.Len(), "size": c.store.Size()})
	}
}

// Sweep removes expired entries and enforces capacity, then flushes the
// entries document if anything changed since the last write.
func (c *cache[V]) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	removed := c.trimLocked(c.now())
	c.commitTrim(removed)
	if len(removed) == 0 && !c.dirty {
		return 0, nil
	}
	if err := c.entriesDoc.Save(ctx, c.store.Snapshot()); err != nil {
		c.dirty = true
		return len(removed), c.storageFailed("sweep", docEntries, err, nil)
	}
	c.dirty = false
	return len(removed), nil
}

// ====================================================================
// Admin
// ====================================================================

func (c *cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats.Snapshot()
	q := c.queue.Summary()
	return Stats{
		TotalEntries: c.store.Len(),
		TotalSize:    c.store.Size(),
		Hits:         s.Hits,
		Misses:       s.Misses,
		HitRate:      s.HitRate(),
		MissRate:     s.MissRate(),
		Evictions:    s.Evictions,
		Expirations:  s.Expirations,
		Sync: SyncStats{
			Online:               c.net.Online() && !c.cfg.OfflineMode,
			PendingOperations:    q.Pending,
			ProcessingOperations: q.Processing,
			FailedOperations:     q.Failed,
			ConflictCount:        q.Conflicts,
			CompletedOperations:  s.Completed,
			LastSyncTime:         s.LastSync,
		},
		Performance: Performance{
			AvgReadTime:  s.AvgRead,
			AvgWriteTime: s.AvgWrite,
			AvgSyncTime:  s.AvgSync,
		},
	}
}

func (c *cache[V]) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// UpdateConfig applies fn to a copy of the configuration, sanitizes it,
// persists it and restarts only the timers whose settings changed.
// Namespace is fixed at Open.
func (c *cache[V]) UpdateConfig(ctx context.Context, fn func(*Config)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.cfg
	next := old
	fn(&next)
	next = next.sanitize()
	next.Namespace = old.Namespace
	next = c.checkEncryption(next)

	if err := c.configDoc.Save(ctx, next); err != nil {
		c.mu.Unlock()
		return c.storageFailed("config", docConfig, err, nil)
	}
	c.cfg = next
	c.queue.SetMaxFailed(next.MaxFailedOperations)

	if next.EncryptionEnabled != old.EncryptionEnabled {
		c.queueDoc.Cipher = c.queueCipher()
		if err := c.queueDoc.Save(ctx, c.queue.Snapshot()); err != nil {
			_ = c.storageFailed("config", docQueue, err, nil)
		}
	}
	if next.MaxEntries < old.MaxEntries || (next.MaxSize > 0 && (old.MaxSize == 0 || next.MaxSize < old.MaxSize)) {
		removed := c.trimLocked(c.now())
		c.commitTrim(removed)
		if len(removed) > 0 {
			if err := c.entriesDoc.Save(ctx, c.store.Snapshot()); err != nil {
				c.dirty = true
				_ = c.storageFailed("config", docEntries, err, nil)
			}
		}
	}
	c.mu.Unlock()

	c.loopMu.Lock()
	c.restartLoops(old, next)
	c.loopMu.Unlock()
	c.log.Info("config updated", Fields{"namespace": next.Namespace})
	return nil
}
