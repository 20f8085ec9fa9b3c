// Package transition implements the state transition commit protocol:
// binding a data packet to its header transaction by fingerprint and
// committing both halves, packet store first and ledger second.
package transition

import (
	"crypto/sha256"

	"github.com/blockberries/dapi/types"
)

// Digest returns SHA256(SHA256(data)).
func Digest(data []byte) types.Hash {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Fingerprint returns the lower-case hex form of Digest(data).
func Fingerprint(data []byte) string {
	return Digest(data).String()
}
