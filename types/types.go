// Package types defines the data types exchanged by dapi: state
// transition headers and packets, blocks, filters and stream events.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. The header transaction is
// additionally RLP-encodable because that is its ledger wire form.
// Transport concerns (gRPC codec registration) are handled in the
// transport packages.
package types

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// String returns the lower-case hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is all zero bytes.
func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromHex parses a 64 character hex string in either case.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("types: parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("types: parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// TxID identifies a transaction accepted by the ledger node,
// in the hex form the node reports it.
type TxID string
