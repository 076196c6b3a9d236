package offcache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("offcache: closed")
	// ErrNotFound is returned by operation management calls for unknown ids.
	ErrNotFound = errors.New("offcache: operation not found")
	// ErrNotFailed is returned by RetryOperation for ops that have not failed.
	ErrNotFailed = errors.New("offcache: operation is not failed")
	// ErrEmptyKey is returned by Set for an empty key.
	ErrEmptyKey = errors.New("offcache: empty key")
)

// StorageError reports a persistence adapter failure. The mutation that
// triggered it was rolled back; RollbackErr is set when restoring the
// previous document failed too.
type StorageError struct {
	Op          string // "set", "delete", "invalidate", "clear", "enqueue", "sync", "config", "load", "flush"
	Doc         string // "entries", "sync_queue", "config"
	Err         error
	RollbackErr error
}

func (e *StorageError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("offcache: %s: persist %s failed: %v; rollback failed: %v", e.Op, e.Doc, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("offcache: %s: persist %s failed: %v", e.Op, e.Doc, e.Err)
}

func (e *StorageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

// CodecError reports a value pipeline failure. It is mostly surfaced through
// Hooks.CodecFallback since the cache degrades instead of failing; Set
// returns it only when the value itself cannot be encoded.
type CodecError struct {
	Stage string // "encode", "decode", "compress", "decompress", "encrypt", "decrypt"
	Key   string
	Err   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("offcache: %s %q: %v", e.Stage, e.Key, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

var (
	errNoCipher = errors.New("offcache: entry is encrypted but no cipher is configured")
	errChecksum = errors.New("offcache: checksum mismatch")
)
