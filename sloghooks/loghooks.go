// Package sloghooks logs offcache hook events with log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/offcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredEvery  uint64
	EvictedEvery  uint64
	RetryingEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredCtr  atomic.Uint64
	evictedCtr  atomic.Uint64
	retryingCtr atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntryExpired(key string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("offcache.entry_expired", "key", h.redact(key))
}

func (h *Hooks) EntryEvicted(key string, p offcache.Priority, reason string) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Info("offcache.entry_evicted",
		"key", h.redact(key),
		"priority", string(p),
		"reason", reason)
}

func (h *Hooks) OperationRetrying(op offcache.Operation, err error) {
	if h.l == nil || !sample(h.opts.RetryingEvery, &h.retryingCtr) {
		return
	}
	h.l.Info("offcache.operation_retrying",
		"id", op.ID,
		"entity_type", op.EntityType,
		"retry_count", op.RetryCount,
		"next_attempt", op.NextAttemptAt,
		"err", err)
}

// EntityID may be a cache key, so it is redacted.
func (h *Hooks) OperationFailed(op offcache.Operation) {
	if h.l == nil {
		return
	}
	attrs := []any{
		"id", op.ID,
		"entity_type", op.EntityType,
		"entity_id", h.redact(op.EntityID),
		"retry_count", op.RetryCount,
	}
	if op.ErrorDetails != nil {
		attrs = append(attrs, "code", op.ErrorDetails.Code, "err", op.ErrorDetails.Message)
	}
	h.l.Warn("offcache.operation_failed", attrs...)
}

func (h *Hooks) OperationConflict(op offcache.Operation, res offcache.Resolution) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.operation_conflict",
		"id", op.ID,
		"entity_id", h.redact(op.EntityID),
		"resolution", string(res))
}

func (h *Hooks) StorageFailure(doc string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("offcache.storage_failure",
		"doc", doc,
		"err", err)
}

func (h *Hooks) CodecFallback(key, stage string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.codec_fallback",
		"key", h.redact(key),
		"stage", stage,
		"err", err)
}

func (h *Hooks) NetworkChanged(online bool) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.network_changed", "online", online)
}
