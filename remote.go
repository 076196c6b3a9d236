package offcache

import "context"

// Outcome is the result class of one remote sync attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// SyncResult is what the remote reported for one operation.
// Remote and RemoteVersion describe the server's copy on a conflict.
type SyncResult struct {
	Outcome       Outcome
	Error         string
	Remote        []byte
	RemoteVersion uint64
}

// RemoteSyncClient replicates one operation. A returned error is treated as
// a failure outcome; the engine never inspects transport details.
type RemoteSyncClient interface {
	Sync(ctx context.Context, op Operation) (SyncResult, error)
}

// SyncFunc adapts a function to RemoteSyncClient.
type SyncFunc func(ctx context.Context, op Operation) (SyncResult, error)

func (f SyncFunc) Sync(ctx context.Context, op Operation) (SyncResult, error) { return f(ctx, op) }

// Succeeded, Failed and Conflicted build results for RemoteSyncClient
// implementations.
func Succeeded() SyncResult { return SyncResult{Outcome: OutcomeSuccess} }

func Failed(msg string) SyncResult { return SyncResult{Outcome: OutcomeFailure, Error: msg} }

func Conflicted(remote []byte, remoteVersion uint64) SyncResult {
	return SyncResult{Outcome: OutcomeConflict, Remote: remote, RemoteVersion: remoteVersion}
}
