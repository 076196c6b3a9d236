package offcache

import (
	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/internal/model"
	"github.com/unkn0wn-root/offcache/persist"
)

type (
	Entry        = model.Entry
	Operation    = model.Operation
	ErrorDetails = model.ErrorDetails
	Priority     = model.Priority
	SyncStatus   = model.SyncStatus
	OpType       = model.OpType
	OpStatus     = model.OpStatus
	Resolution   = model.Resolution
)

// PersistenceAdapter is the durable byte store. See persist/ for adapters.
type PersistenceAdapter = persist.Adapter

// Codec (de)serializes cached values. See codec/ for implementations.
type Codec[V any] = codec.Codec[V]

const (
	PriorityLow      = model.PriorityLow
	PriorityNormal   = model.PriorityNormal
	PriorityHigh     = model.PriorityHigh
	PriorityCritical = model.PriorityCritical

	SyncPending  = model.SyncPending
	SyncSynced   = model.SyncSynced
	SyncFailed   = model.SyncFailed
	SyncConflict = model.SyncConflict

	OpCreate = model.OpCreate
	OpUpdate = model.OpUpdate
	OpDelete = model.OpDelete
	OpBulk   = model.OpBulk

	OpPending    = model.OpPending
	OpProcessing = model.OpProcessing
	OpCompleted  = model.OpCompleted
	OpFailed     = model.OpFailed

	ResolveLocal  = model.ResolveLocal
	ResolveRemote = model.ResolveRemote
	ResolveMerge  = model.ResolveMerge
	ResolveManual = model.ResolveManual

	CodeSyncError = model.CodeSyncError
	CodeConflict  = model.CodeConflict
	CodeTimeout   = model.CodeTimeout

	EntryEntityType = model.EntryEntityType
)

// NewOperation describes an operation for AddOperation. Zero Priority means
// normal; zero ConflictResolution means Config.ConflictResolutionStrategy.
type NewOperation struct {
	Type               OpType
	EntityType         string
	EntityID           string
	Payload            []byte
	Priority           Priority
	Dependencies       []string
	ConflictResolution Resolution
}
