// Package checksum fingerprints card files. The digest doubles as the
// If-Match token for optimistic concurrency and as the freshness probe
// that decides whether an externally changed file needs a reload.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
