// Package wire frames persisted documents so a foreign or truncated value in
// the persistence adapter is detected instead of being decoded as garbage.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1

	KindEntries byte = 1
	KindQueue   byte = 2
	KindConfig  byte = 3

	// FlagEncrypted marks a body sealed by the configured cipher.
	FlagEncrypted byte = 1 << 0
)

var (
	ErrCorrupt = errors.New("offcache: corrupt document")
	magic4     = [...]byte{'O', 'F', 'F', 'C'}
)

const headerLen = 4 + 1 + 1 + 1 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode: magic(4) | ver(1) | kind(1) | flags(1) | blen(u32 be) | body(blen)
func Encode(kind, flags byte, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(body))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)
	buf.WriteByte(flags)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(body)))
	buf.Write(u4[:])

	buf.Write(body)
	return buf.Bytes()
}

// Decode validates the frame against the expected kind and returns its flags
// and body. The body aliases b. Trailing bytes are rejected.
func Decode(b []byte, kind byte) (flags byte, body []byte, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kind {
		return 0, nil, ErrCorrupt
	}
	flags = b[6]
	blen := int(binary.BigEndian.Uint32(b[7:11]))
	if blen < 0 || blen != len(b)-headerLen {
		return 0, nil, ErrCorrupt
	}
	return flags, b[headerLen:], nil
}
