package offcache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/offcache/internal/model"
	"github.com/unkn0wn-root/offcache/internal/syncq"
	"github.com/unkn0wn-root/offcache/internal/util"
)

// AddOperation enqueues an operation and persists the queue. It never
// touches the network.
func (c *cache[V]) AddOperation(ctx context.Context, n NewOperation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	op := c.queue.Add(c.buildOp(n, c.now(), 0))
	if err := c.queueDoc.Save(ctx, c.queue.Snapshot()); err != nil {
		c.queue.Remove(op.ID)
		return "", c.storageFailed("enqueue", docQueue, err, nil)
	}
	return op.ID, nil
}

func (c *cache[V]) Operations() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.All()
}

// NeedsAttention lists operations that exhausted their retries or need
// manual conflict resolution.
func (c *cache[V]) NeedsAttention() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.NeedsAttention()
}

// RetryOperation gives a failed operation a fresh retry budget.
func (c *cache[V]) RetryOperation(ctx context.Context, id string) error {
	return c.mutateQueue(ctx, "retry", id, func() error {
		if _, ok := c.queue.Get(id); !ok {
			return ErrNotFound
		}
		if !c.queue.Retry(id) {
			return ErrNotFailed
		}
		return nil
	})
}

func (c *cache[V]) DiscardOperation(ctx context.Context, id string) error {
	return c.mutateQueue(ctx, "discard", id, func() error {
		if _, ok := c.queue.Remove(id); !ok {
			return ErrNotFound
		}
		return nil
	})
}

func (c *cache[V]) mutateQueue(ctx context.Context, name, id string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	before, _ := c.queue.Get(id)
	if err := fn(); err != nil {
		return err
	}
	if err := c.queueDoc.Save(ctx, c.queue.Snapshot()); err != nil {
		c.queue.Put(before)
		return c.storageFailed(name, docQueue, err, nil)
	}
	c.log.Info("operation "+name, Fields{"id": id})
	return nil
}

// attempt is the outcome of one remote call, gathered outside the lock.
type attempt struct {
	op       model.Operation
	res      SyncResult
	err      error
	timedOut bool
	canceled bool
	decision *Decision
	dur      time.Duration
}

// ProcessQueue drains one batch. It is a no-op while offline, in offline
// mode, without a remote, or while another drain is running.
func (c *cache[V]) ProcessQueue(ctx context.Context) (SyncReport, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SyncReport{}, ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()
	return c.drain(ctx)
}

func (c *cache[V]) drain(ctx context.Context) (SyncReport, error) {
	if !c.drainMu.TryLock() {
		return SyncReport{Skipped: "in_progress"}, nil
	}
	defer c.drainMu.Unlock()

	c.mu.Lock()
	switch {
	case c.remote == nil:
		c.mu.Unlock()
		return SyncReport{Skipped: "no_remote"}, nil
	case c.cfg.OfflineMode:
		c.mu.Unlock()
		return SyncReport{Skipped: "offline_mode"}, nil
	case !c.net.Online():
		c.mu.Unlock()
		return SyncReport{Skipped: "offline"}, nil
	}
	now := c.now()
	batch := c.queue.Ready(now, c.cfg.BatchSize)
	if len(batch) == 0 {
		c.mu.Unlock()
		return SyncReport{Skipped: "empty"}, nil
	}
	ids := make([]string, len(batch))
	for i, op := range batch {
		ids[i] = op.ID
	}
	c.queue.MarkProcessing(ids, now)
	for i := range batch {
		batch[i].Status = OpProcessing
		batch[i].LastAttempt = now
	}
	cfg := c.cfg
	c.mu.Unlock()

	results := make([]attempt, len(batch))
	var g errgroup.Group
	g.SetLimit(cfg.SyncConcurrency)
	for i, op := range batch {
		g.Go(func() error {
			results[i] = c.attempt(ctx, op, cfg.SyncTimeout)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	rep, entriesChanged := c.applyLocked(ctx, results)

	var errs []error
	if err := c.queueDoc.Save(ctx, c.queue.Snapshot()); err != nil {
		errs = append(errs, c.storageFailed("sync", docQueue, err, nil))
	}
	if entriesChanged || c.dirty {
		if err := c.entriesDoc.Save(ctx, c.store.Snapshot()); err != nil {
			c.dirty = true
			errs = append(errs, c.storageFailed("sync", docEntries, err, nil))
		} else {
			c.dirty = false
			c.commitAdopted(ctx)
		}
	}
	if rep.Released > 0 && ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	c.log.Debug("sync batch processed", Fields{
		"attempted": rep.Attempted,
		"completed": rep.Completed,
		"retrying":  rep.Retrying,
		"failed":    rep.Failed,
		"conflicts":  rep.Conflicts,
		"superseded": rep.Superseded,
	})
	return rep, errors.Join(errs...)
}

// attempt calls the remote for one operation with a per-call timeout and,
// on a conflict, asks the resolver. It runs without the cache lock.
func (c *cache[V]) attempt(ctx context.Context, op model.Operation, timeout time.Duration) attempt {
	ctx, span := c.tracer.Start(ctx, "offcache.sync",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("offcache.op.id", op.ID),
			attribute.String("offcache.op.type", string(op.Type)),
			attribute.String("offcache.op.entity_type", op.EntityType),
			attribute.String("offcache.op.entity_id", op.EntityID),
			attribute.Int("offcache.op.retry_count", op.RetryCount),
		))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := c.call(callCtx, op.Clone())
	a := attempt{op: op, res: res, err: err, dur: time.Since(start)}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			a.canceled = true
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			a.timedOut = true
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return a
	}
	span.SetAttributes(attribute.String("offcache.sync.outcome", res.Outcome.String()))
	switch res.Outcome {
	case OutcomeSuccess:
		span.SetStatus(codes.Ok, "")
	case OutcomeConflict:
		d, rerr := c.resolver.Resolve(ctx, Conflict{
			Op:            op.Clone(),
			Local:         op.Payload,
			LocalVersion:  op.EntryVersion,
			Remote:        res.Remote,
			RemoteVersion: res.RemoteVersion,
		})
		if rerr != nil {
			c.log.Warn("conflict resolver failed; escalating to manual", Fields{"id": op.ID, "err": rerr})
			d = Decision{Strategy: ResolveManual}
		}
		if !d.Strategy.Valid() {
			d.Strategy = op.ConflictResolution
		}
		a.decision = &d
		span.SetAttributes(attribute.String("offcache.sync.resolution", string(d.Strategy)))
	default:
		span.SetStatus(codes.Error, res.Error)
	}
	return a
}

type callResult struct {
	res SyncResult
	err error
}

// call runs the remote in its own goroutine so a client that ignores ctx
// cannot hold the drain past its deadline. A late result is discarded.
func (c *cache[V]) call(ctx context.Context, op model.Operation) (SyncResult, error) {
	done := make(chan callResult, 1)
	go func() {
		res, err := c.remote.Sync(ctx, op)
		done <- callResult{res: res, err: err}
	}()
	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	}
}

func (c *cache[V]) policy() syncq.Policy {
	rp := c.cfg.RetryPolicy
	return syncq.Policy{
		MaxRetries: rp.MaxRetries,
		Multiplier: rp.BackoffMultiplier,
		Initial:    rp.InitialDelay,
		Max:        rp.MaxDelay,
	}
}

// applyLocked folds attempt outcomes into the queue and the entry map.
func (c *cache[V]) applyLocked(ctx context.Context, results []attempt) (rep SyncReport, entriesChanged bool) {
	now := c.now()
	for _, a := range results {
		op := a.op
		if a.canceled {
			c.queue.Release(op.ID)
			rep.Released++
			continue
		}
		rep.Attempted++
		c.stats.ObserveSync(a.dur)

		switch {
		case a.err != nil || a.res.Outcome == OutcomeFailure:
			code, msg := model.CodeSyncError, a.res.Error
			if a.err != nil {
				msg = a.err.Error()
			}
			if a.timedOut {
				code = model.CodeTimeout
			}
			if msg == "" {
				msg = "sync failed"
			}
			cause := a.err
			if cause == nil {
				cause = errors.New(msg)
			}
			if c.failLocked(op, model.ErrorDetails{Code: code, Message: msg, Timestamp: now}, nil, cause, &rep) {
				entriesChanged = true
			}

		case a.res.Outcome == OutcomeSuccess:
			done, ok := c.queue.Complete(op.ID)
			if !ok {
				continue
			}
			rep.Completed++
			c.stats.Completed(done.Timestamp)
			if c.markEntry(op, now, SyncSynced, 0) {
				entriesChanged = true
			}

		case a.res.Outcome == OutcomeConflict:
			rep.Conflicts++
			if c.conflictLocked(ctx, op, *a.decision, now, &rep) {
				entriesChanged = true
			}
		}
	}
	return rep, entriesChanged
}

// failLocked records a failed attempt. It returns whether an entry changed.
func (c *cache[V]) failLocked(op model.Operation, d model.ErrorDetails, payload []byte, cause error, rep *SyncReport) bool {
	updated, permanent, ok := c.queue.Fail(op.ID, d, payload, c.policy())
	if !ok {
		return false
	}
	status := SyncFailed
	if d.Code == model.CodeConflict {
		status = SyncConflict
	}
	if permanent {
		rep.Failed++
		c.log.Warn("sync operation failed permanently", Fields{
			"id": op.ID, "entity_id": op.EntityID, "retry_count": updated.RetryCount, "code": d.Code, "err": d.Message,
		})
		c.hooks.OperationFailed(updated)
	} else {
		rep.Retrying++
		c.log.Debug("sync operation failed, will retry", Fields{
			"id": op.ID, "retry_count": updated.RetryCount, "next_attempt": updated.NextAttemptAt,
		})
		c.hooks.OperationRetrying(updated, cause)
	}
	return c.markEntry(op, d.Timestamp, status, updated.RetryCount)
}

func (c *cache[V]) conflictLocked(ctx context.Context, op model.Operation, d Decision, now time.Time, rep *SyncReport) bool {
	if c.superseded(op) {
		if _, ok := c.queue.Remove(op.ID); ok {
			rep.Superseded++
			c.log.Debug("conflict on superseded operation; dropped", Fields{
				"id": op.ID, "entity_id": op.EntityID, "entry_version": op.EntryVersion,
			})
		}
		return false
	}
	c.hooks.OperationConflict(op, d.Strategy)
	switch d.Strategy {
	case ResolveRemote:
		done, ok := c.queue.Complete(op.ID)
		if !ok {
			return false
		}
		rep.Completed++
		c.stats.Completed(done.Timestamp)
		return c.adoptLocked(ctx, op, d.Payload, now, SyncSynced)

	case ResolveManual:
		updated, ok := c.queue.Abandon(op.ID, model.ErrorDetails{
			Code: model.CodeConflict, Message: "conflict requires manual resolution", Timestamp: now,
		})
		if !ok {
			return false
		}
		rep.Failed++
		c.log.Warn("sync conflict needs manual resolution", Fields{"id": op.ID, "entity_id": op.EntityID})
		c.hooks.OperationFailed(updated)
		return c.markEntry(op, now, SyncConflict, updated.RetryCount)

	case ResolveMerge:
		changed := false
		if d.Payload != nil && op.Type != OpDelete && !bytes.Equal(d.Payload, op.Payload) {
			changed = c.adoptLocked(ctx, op, d.Payload, now, SyncConflict)
			if e, ok := c.store.Peek(op.EntityID); ok && changed {
				v := e.Version
				c.queue.Update(op.ID, func(o *model.Operation) { o.EntryVersion = v })
				op.EntryVersion = v
			}
		}
		details := model.ErrorDetails{Code: model.CodeConflict, Message: "conflict: resending merged payload", Timestamp: now}
		return c.failLocked(op, details, d.Payload, errors.New(details.Message), rep) || changed

	default: // local
		details := model.ErrorDetails{Code: model.CodeConflict, Message: "conflict: resending local payload", Timestamp: now}
		return c.failLocked(op, details, nil, errors.New(details.Message), rep)
	}
}

// superseded reports whether the entry an operation was enqueued for has
// since been rewritten or deleted locally. Only the newest local state may
// be resent or overwritten by a resolution.
func (c *cache[V]) superseded(op model.Operation) bool {
	if op.EntityType != EntryEntityType {
		return false
	}
	e, ok := c.store.Peek(op.EntityID)
	if op.Type == OpDelete {
		return ok
	}
	return !ok || e.Version != op.EntryVersion
}

// markEntry updates sync bookkeeping on the cache entry an operation was
// enqueued for, provided the entry still holds that version.
func (c *cache[V]) markEntry(op model.Operation, at time.Time, status SyncStatus, retries int) bool {
	if op.EntityType != EntryEntityType || op.Type == OpDelete {
		return false
	}
	return c.store.Update(op.EntityID, func(e *model.Entry) {
		if e.Version != op.EntryVersion {
			return
		}
		e.SyncStatus = status
		e.RetryCount = retries
		e.LastSyncAttempt = at
	})
}

// adoptLocked writes a payload received from the resolver into the entry
// for op. It is a regular write: the version advances by one. A nil payload
// on a remote resolution means the remote copy is gone.
func (c *cache[V]) adoptLocked(ctx context.Context, op model.Operation, payload []byte, now time.Time, status SyncStatus) bool {
	if op.EntityType != EntryEntityType {
		return false
	}
	key := op.EntityID
	if payload == nil {
		if status == SyncSynced {
			if _, ok := c.store.Remove(key); ok {
				return true
			}
		}
		return false
	}

	ver, err := c.store.NextVersion(ctx, key)
	if err != nil {
		c.log.Warn("version snapshot failed; conflict payload not adopted", Fields{"key": key, "err": err})
		return false
	}
	data, compressed, encrypted := c.seal(key, payload)
	e := Entry{
		ID:        uuid.NewString(),
		Key:       key,
		Timestamp: now,
		Priority:  op.Priority,
		ExpiresAt: now.Add(c.cfg.DefaultTTL),
	}
	if prev, ok := c.store.Peek(key); ok {
		e = prev.Clone()
		e.Timestamp = now
	}
	e.Data, e.Compressed, e.Encrypted = data, compressed, encrypted
	e.Checksum = util.Checksum(payload)
	e.Version = ver
	e.SyncStatus = status
	e.LastSyncAttempt = now
	c.store.Put(e)
	c.adopted[key] = ver
	return true
}

// commitAdopted records versions of adopted payloads once the entries
// document holding them is durable.
func (c *cache[V]) commitAdopted(ctx context.Context) {
	for key, ver := range c.adopted {
		if err := c.store.Commit(ctx, key, ver); err != nil {
			c.log.Warn("version commit failed", Fields{"key": key, "version": ver, "err": err})
		}
	}
	clear(c.adopted)
}
