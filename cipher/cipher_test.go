package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestXChaCha20RoundTrip(t *testing.T) {
	c, err := NewXChaCha20(testKey())
	require.NoError(t, err)

	plain := []byte(`{"status":"open"}`)
	sealed, err := c.Encrypt(plain)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "open")

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, plain, opened)
}

func TestXChaCha20NoncesDiffer(t *testing.T) {
	c, err := NewXChaCha20(testKey())
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestXChaCha20RejectsTamperingAndShortInput(t *testing.T) {
	c, err := NewXChaCha20(testKey())
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF
	_, err = c.Decrypt(sealed)
	require.Error(t, err)

	_, err = c.Decrypt([]byte("short"))
	require.ErrorIs(t, err, ErrShortCiphertext)
}

func TestNewXChaCha20KeySize(t *testing.T) {
	_, err := NewXChaCha20([]byte("too-short"))
	require.Error(t, err)
}
