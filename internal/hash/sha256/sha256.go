// Package sha256 fingerprints stored snapshots.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the hex SHA-256 digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
