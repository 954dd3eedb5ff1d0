// Package sha256 provides SHA-256 content fingerprinting.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher fingerprints page content with SHA-256. The archive uses digests
// to recognize repeated captures of the same page, such as a bot-detection
// interstitial served to every failed task.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
