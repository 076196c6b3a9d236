// Package docstore reads and writes one persisted document: value codec,
// optional cipher, then the wire frame, stored under a single adapter key.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/offcache/cipher"
	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/internal/wire"
	"github.com/unkn0wn-root/offcache/persist"
)

// ErrNoCipher is returned when a document was sealed but no cipher is set.
var ErrNoCipher = errors.New("docstore: encrypted document without cipher")

type Doc[T any] struct {
	Adapter persist.Adapter
	Key     string
	Kind    byte
	Codec   codec.Codec[T]
	Cipher  cipher.Cipher // nil => stored in the clear
}

// Load returns the stored value. found is false when the key is absent.
// A present but undecodable document is an error; callers decide whether
// to start empty.
func (d Doc[T]) Load(ctx context.Context) (v T, found bool, err error) {
	raw, ok, err := d.Adapter.Get(ctx, d.Key)
	if err != nil || !ok {
		return v, false, err
	}
	flags, body, err := wire.Decode(raw, d.Kind)
	if err != nil {
		return v, true, err
	}
	if flags&wire.FlagEncrypted != 0 {
		if d.Cipher == nil {
			return v, true, ErrNoCipher
		}
		if body, err = d.Cipher.Decrypt(body); err != nil {
			return v, true, fmt.Errorf("decrypt %s: %w", d.Key, err)
		}
	}
	v, err = d.Codec.Decode(body)
	if err != nil {
		return v, true, fmt.Errorf("decode %s: %w", d.Key, err)
	}
	return v, true, nil
}

// Encode produces the framed bytes Save would write.
func (d Doc[T]) Encode(v T) ([]byte, error) {
	body, err := d.Codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.Key, err)
	}
	var flags byte
	if d.Cipher != nil {
		if body, err = d.Cipher.Encrypt(body); err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", d.Key, err)
		}
		flags |= wire.FlagEncrypted
	}
	return wire.Encode(d.Kind, flags, body), nil
}

func (d Doc[T]) Save(ctx context.Context, v T) error {
	b, err := d.Encode(v)
	if err != nil {
		return err
	}
	return d.Adapter.Set(ctx, d.Key, b)
}

func (d Doc[T]) Remove(ctx context.Context) error {
	return d.Adapter.Remove(ctx, d.Key)
}
