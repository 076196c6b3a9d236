package codec

import (
	"errors"
	"unicode/utf8"
)

// Bytes passes []byte payloads through for callers that already hold
// serialized blobs (photos, pre-encoded forms). Both directions copy: the
// store keeps its own buffer and callers may reuse theirs.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return clone(b), nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return clone(b), nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

var errInvalidUTF8 = errors.New("codec: string is not valid UTF-8")

// String stores text. Invalid UTF-8 is refused on Encode so a bad value
// never reaches the sync queue, where JSON would silently mangle it.
type String struct{}

func (String) Encode(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, errInvalidUTF8
	}
	return []byte(s), nil
}

func (String) Decode(b []byte) (string, error) { return string(b), nil }
