package offcache

import (
	"bytes"
	"compress/gzip"
	"io"
)

// seal turns encoded plaintext into stored bytes: gzip above the threshold
// (kept only when smaller), then the cipher. Failures degrade to the
// previous stage's bytes.
func (c *cache[V]) seal(key string, plain []byte) (data []byte, compressed, encrypted bool) {
	data = plain
	if c.cfg.CompressionEnabled && len(plain) > c.cfg.CompressionThreshold {
		z, err := gzipBytes(plain)
		switch {
		case err != nil:
			c.codecFallback(key, "compress", err)
		case len(z) < len(plain):
			data, compressed = z, true
		}
	}
	if c.cfg.EncryptionEnabled && c.cipher != nil {
		sealed, err := c.cipher.Encrypt(data)
		if err != nil {
			c.codecFallback(key, "encrypt", err)
		} else {
			data, encrypted = sealed, true
		}
	}
	return data, compressed, encrypted
}

// unseal reverses seal. degraded reports that a stage failed and the raw
// bytes were passed through.
func (c *cache[V]) unseal(key string, data []byte, compressed, encrypted bool) (plain []byte, degraded bool) {
	plain = data
	if encrypted {
		if c.cipher == nil {
			c.codecFallback(key, "decrypt", errNoCipher)
			return plain, true
		}
		b, err := c.cipher.Decrypt(plain)
		if err != nil {
			c.codecFallback(key, "decrypt", err)
			return plain, true
		}
		plain = b
	}
	if compressed {
		b, err := gunzipBytes(plain)
		if err != nil {
			c.codecFallback(key, "decompress", err)
			return plain, true
		}
		plain = b
	}
	return plain, false
}

func (c *cache[V]) codecFallback(key, stage string, err error) {
	c.log.Warn("codec fallback", Fields{"key": key, "stage": stage, "err": err})
	c.hooks.CodecFallback(key, stage, err)
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
