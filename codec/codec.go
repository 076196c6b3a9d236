// Package codec converts cached values and persisted documents to bytes.
//
// The cache stores every payload as opaque bytes: a Codec[V] turns the
// caller's value into those bytes on Set and back on Get. The same interface
// serializes the entry map and the sync queue before they reach the
// persistence adapter, so any codec here can be used for either role.
package codec

import (
	"encoding/json"
	"fmt"
)

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSON is the default codec. The zero value is ready to use.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// Limit rejects payloads larger than MaxDecode on Decode.
// Persisted documents come back from storage the app does not fully control;
// a cap keeps a damaged store from ballooning memory on startup.
// MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int // bytes
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, errTooLarge(len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}

func errTooLarge(n, limit int) error {
	return fmt.Errorf("codec: payload too large: %d > %d", n, limit)
}
