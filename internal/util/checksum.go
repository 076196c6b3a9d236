package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Checksum returns the first 16 hex chars of the SHA-256 of b.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// DocKey namespaces a persisted document name, e.g. "offcache:entries".
func DocKey(namespace, doc string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return doc
	}
	return ns + ":" + doc
}
