// Package cipher defines the encryption capability the cache depends on and a
// reference implementation. The cache never picks an algorithm itself; it only
// calls Encrypt before persisting and Decrypt after loading.
package cipher

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens byte payloads. Implementations must be safe for
// concurrent use.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

var ErrShortCiphertext = errors.New("cipher: ciphertext shorter than nonce")

// XChaCha20 is an AEAD cipher with random 24-byte nonces prepended to the
// ciphertext: nonce | sealed.
type XChaCha20 struct {
	aead cipher.AEAD
}

var _ Cipher = (*XChaCha20)(nil)

// NewXChaCha20 expects a 32-byte key.
func NewXChaCha20(key []byte) (*XChaCha20, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("cipher: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &XChaCha20{aead: aead}, nil
}

func (c *XChaCha20) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *XChaCha20) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, ErrShortCiphertext
	}
	return c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
}
