// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashStrings hashes parts joined by a NUL separator so ("ab","c") and ("a","bc") differ.
func (h *Hasher) HashStrings(parts ...string) string {
	digest := sha256.New()
	for i, part := range parts {
		if i > 0 {
			digest.Write([]byte{0})
		}
		digest.Write([]byte(part))
	}
	return hex.EncodeToString(digest.Sum(nil))
}
