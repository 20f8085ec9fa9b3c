// Package codec provides the wire codecs for state transition halves:
// RLP for header transactions and cramberry for data packets, plus the
// hex handling shared by both.
package codec

import (
	"encoding/hex"
	"errors"
)

// ErrEmpty is returned by DecodeHex for an empty input.
var ErrEmpty = errors.New("codec: empty input")

// DecodeHex decodes s, accepting an optional 0x prefix and either case.
func DecodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1]|0x20) == 'x' {
		s = s[2:]
	}
	if s == "" {
		return nil, ErrEmpty
	}
	return hex.DecodeString(s)
}

// EncodeHex returns the lower-case hex encoding of b without a prefix.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
