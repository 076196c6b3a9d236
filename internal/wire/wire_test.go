package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func mustDecode(t *testing.T, b []byte, kind byte) (byte, []byte) {
	t.Helper()
	flags, body, err := Decode(b, kind)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return flags, body
}

func TestRoundTripEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		kind  byte
		flags byte
		body  []byte
	}{
		{KindEntries, 0, nil},
		{KindQueue, FlagEncrypted, []byte(`[{"id":"a"}]`)},
		{KindConfig, 0, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := Encode(tc.kind, tc.flags, tc.body)
		flags, body := mustDecode(t, enc, tc.kind)
		if flags != tc.flags {
			t.Fatalf("flags mismatch: got %d want %d", flags, tc.flags)
		}
		if !bytes.Equal(body, tc.body) {
			t.Fatalf("body mismatch: got %x want %x", body, tc.body)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(KindEntries, 0, []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, _, err := Decode(enc, KindEntries); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(KindQueue, 0, []byte("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := Decode(badMagic, KindQueue); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := Decode(badVer, KindQueue); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// a queue document must never be read back as the entry map
	if _, _, err := Decode(enc, KindEntries); err == nil {
		t.Fatalf("expected error on kind mismatch")
	}

	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[7:11], uint32(len("abc")+1))
	if _, _, err := Decode(tooLong, KindQueue); err == nil {
		t.Fatalf("expected error on blen beyond buffer")
	}

	if _, _, err := Decode(enc[:len(enc)-1], KindQueue); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	if _, _, err := Decode([]byte("not-a-frame"), KindQueue); err == nil {
		t.Fatalf("expected error on foreign value")
	}
}

func TestZeroCopyBody(t *testing.T) {
	enc := Encode(KindConfig, 0, []byte("Z"))
	_, body := mustDecode(t, enc, KindConfig)
	body[0] = 'Q'
	_, again := mustDecode(t, enc, KindConfig)
	if again[0] != 'Q' {
		t.Fatalf("expected body to alias the frame buffer")
	}
}
