package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type workOrder struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	Assignee string    `json:"assignee,omitempty"`
	Due      time.Time `json:"due"`
}

func sample() workOrder {
	return workOrder{
		ID:     "wo_1",
		Status: "open",
		Due:    time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC),
	}
}

func TestStructCodecs(t *testing.T) {
	cases := []struct {
		name  string
		codec Codec[workOrder]
	}{
		{"json", JSON[workOrder]{}},
		{"cbor", MustCBOR[workOrder](false)},
		{"cbor_deterministic", MustCBOR[workOrder](true)},
		{"msgpack", Msgpack[workOrder]{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := sample()
			b, err := tc.codec.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := tc.codec.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.ID != in.ID || out.Status != in.Status || !out.Due.Equal(in.Due) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := c.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := c.Encode(m)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic CBOR produced different bytes")
		}
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	b, err := Msgpack[workOrder]{}.Encode(sample())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Contains(b, []byte("status")) || bytes.Contains(b, []byte("Status")) {
		t.Fatalf("expected json tag names in msgpack output: %q", b)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	in := wrapperspb.String("photo:42")
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("got %v want %v", out, in)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("boundary decode: v=%q err=%v", v, err)
	}
	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode=0 should disable the check: %v", err)
	}
}

func TestBytesDecodeCopies(t *testing.T) {
	src := []byte("blob")
	out, _ := Bytes{}.Decode(src)
	out[0] = 'X'
	if src[0] != 'b' {
		t.Fatalf("Decode must not alias the stored buffer")
	}
}

func TestBytesEncodeCopies(t *testing.T) {
	src := []byte("blob")
	out, _ := Bytes{}.Encode(src)
	src[0] = 'X'
	if out[0] != 'b' {
		t.Fatalf("Encode must not alias the caller's buffer")
	}
	if out, _ := (Bytes{}).Encode(nil); out != nil {
		t.Fatalf("nil should stay nil, got %v", out)
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	if _, err := (String{}).Encode("ok é"); err != nil {
		t.Fatalf("valid text: %v", err)
	}
	if _, err := (String{}).Encode(string([]byte{0xff, 0xfe})); err == nil {
		t.Fatalf("expected invalid UTF-8 error")
	}
}

func TestProtobufLimitAndNil(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	c.MaxDecode = 4
	b, err := c.Encode(wrapperspb.String("photo:42"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := c.Decode(b); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	var nilMsg *wrapperspb.StringValue
	if _, err := c.Encode(nilMsg); err == nil {
		t.Fatalf("expected nil message error")
	}
}
