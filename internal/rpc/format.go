package rpc

// Hex helpers for the strings Substrate uses on the wire.

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// ParseHexUint64 converts a hex-encoded quantity (with or without "0x" prefix)
// to uint64. Substrate sends header numbers this way.
//
// Examples:
//   - "0x1b4" -> 436
//   - "0x0" -> 0
//   - "" -> 0 (empty string treated as zero)
func ParseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}

	// big.Int parsing rejects stray characters that ParseUint would report
	// with a less useful message.
	val := new(big.Int)
	_, ok := val.SetString(s, 16)
	if !ok || !val.IsUint64() {
		return 0, fmt.Errorf("invalid hex: %s", s)
	}
	return val.Uint64(), nil
}

// DecodeHex decodes a "0x"-prefixed byte string such as a storage value or
// block hash. The prefix is optional.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex bytes: %w", err)
	}
	return b, nil
}

// EncodeHex renders bytes as a "0x"-prefixed lowercase hex string, the form
// Substrate expects for storage keys and hashes.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
