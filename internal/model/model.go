// Package model holds the records shared by the cache store, the sync queue
// and the public API. The root package re-exports them as aliases.
package model

import "time"

// Priority orders entries for eviction and operations for draining.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight maps a priority onto 1..4. Unknown values weigh as normal.
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 2
	}
}

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncFailed   SyncStatus = "failed"
	SyncConflict SyncStatus = "conflict"
)

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
	OpBulk   OpType = "bulk"
)

type OpStatus string

const (
	OpPending    OpStatus = "pending"
	OpProcessing OpStatus = "processing"
	OpCompleted  OpStatus = "completed"
	OpFailed     OpStatus = "failed"
)

// Resolution is the conflict strategy tag carried by every operation.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
	ResolveMerge  Resolution = "merge"
	ResolveManual Resolution = "manual"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolveLocal, ResolveRemote, ResolveMerge, ResolveManual:
		return true
	}
	return false
}

// Error codes recorded in ErrorDetails.
const (
	CodeSyncError = "SYNC_ERROR"
	CodeConflict  = "CONFLICT"
	CodeTimeout   = "TIMEOUT"
)

// EntryEntityType is the entity type of operations enqueued by cache writes.
const EntryEntityType = "cache_entry"

// Entry is one cached value. Data holds the encoded (and optionally
// compressed/encrypted) payload; Checksum fingerprints the encoded plaintext.
type Entry struct {
	ID              string         `json:"id"`
	Key             string         `json:"key"`
	Data            []byte         `json:"data"`
	Timestamp       time.Time      `json:"timestamp"`
	ExpiresAt       time.Time      `json:"expiresAt"` // zero => never expires
	Version         uint64         `json:"version"`
	Checksum        string         `json:"checksum"`
	Tags            []string       `json:"tags,omitempty"`
	Priority        Priority       `json:"priority"`
	SyncStatus      SyncStatus     `json:"syncStatus"`
	RetryCount      int            `json:"retryCount"`
	LastSyncAttempt time.Time      `json:"lastSyncAttempt"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Compressed      bool           `json:"compressed,omitempty"`
	Encrypted       bool           `json:"encrypted,omitempty"`
}

// Expired reports whether the entry's deadline has passed at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// HasTags reports whether the entry carries every tag in tags.
func (e *Entry) HasTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range e.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Size is a rough in-memory footprint used for the byte budget.
func (e *Entry) Size() int64 {
	n := len(e.ID) + len(e.Key) + len(e.Data) + len(e.Checksum) + 96
	for _, t := range e.Tags {
		n += len(t) + 16
	}
	n += len(e.Metadata) * 32
	return int64(n)
}

// Clone returns a copy that shares no slices or maps with e.
func (e Entry) Clone() Entry {
	e.Data = append([]byte(nil), e.Data...)
	e.Tags = append([]string(nil), e.Tags...)
	if e.Metadata != nil {
		m := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

type ErrorDetails struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Operation is a queued intent to replicate a local mutation.
type Operation struct {
	ID                 string        `json:"id"`
	Seq                uint64        `json:"seq"`
	Type               OpType        `json:"type"`
	EntityType         string        `json:"entityType"`
	EntityID           string        `json:"entityId"`
	Payload            []byte        `json:"payload,omitempty"`
	EntryVersion       uint64        `json:"entryVersion,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
	Status             OpStatus      `json:"status"`
	RetryCount         int           `json:"retryCount"`
	MaxRetries         int           `json:"maxRetries"`
	Priority           Priority      `json:"priority"`
	Dependencies       []string      `json:"dependencies,omitempty"`
	ConflictResolution Resolution    `json:"conflictResolution"`
	ErrorDetails       *ErrorDetails `json:"errorDetails,omitempty"`
	NextAttemptAt      time.Time     `json:"nextAttemptAt"`
	LastAttempt        time.Time     `json:"lastAttempt"`
}

// PermanentlyFailed reports whether the retry budget is exhausted.
func (o *Operation) PermanentlyFailed() bool {
	return o.Status == OpFailed && o.RetryCount >= o.MaxRetries
}

func (o Operation) Clone() Operation {
	o.Payload = append([]byte(nil), o.Payload...)
	o.Dependencies = append([]string(nil), o.Dependencies...)
	if o.ErrorDetails != nil {
		d := *o.ErrorDetails
		o.ErrorDetails = &d
	}
	return o
}
