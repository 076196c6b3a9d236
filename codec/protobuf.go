package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var errNilMessage = errors.New("codec: nil protobuf message")

// Protobuf stores generated messages, e.g. work orders defined in .proto.
// Unknown fields survive a round trip so a device running an older schema
// does not strip fields a newer backend added.
type Protobuf[T proto.Message] struct {
	alloc func() T
	// MaxDecode bounds accepted payloads; zero disables the check.
	MaxDecode int
}

// NewProtobuf panics on a nil allocator since every Decode depends on it.
func NewProtobuf[T proto.Message](alloc func() T) Protobuf[T] {
	if alloc == nil {
		panic("codec: NewProtobuf requires an allocator")
	}
	return Protobuf[T]{alloc: alloc}
}

func (c Protobuf[T]) Encode(m T) ([]byte, error) {
	if !m.ProtoReflect().IsValid() {
		return nil, errNilMessage
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(m)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.alloc()
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return m, errTooLarge(len(b), c.MaxDecode)
	}
	if err := (proto.UnmarshalOptions{DiscardUnknown: false}).Unmarshal(b, m); err != nil {
		return m, err
	}
	return m, nil
}
