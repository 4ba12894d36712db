// Package sha256 provides the content hasher used to name export archives.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher hex-encodes SHA-256 digests, optionally truncated to a prefix.
type Hasher struct {
	length int
}

// New returns a hasher producing full 64-character digests.
func New() *Hasher {
	return &Hasher{}
}

// NewTruncated returns a hasher that keeps the first n hex characters.
func NewTruncated(n int) (*Hasher, error) {
	if n <= 0 || n > sha256.Size*2 {
		return nil, fmt.Errorf("digest length %d out of range (1-%d)", n, sha256.Size*2)
	}
	return &Hasher{length: n}, nil
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.length > 0 {
		digest = digest[:h.length]
	}
	return digest, nil
}
