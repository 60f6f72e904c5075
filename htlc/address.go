package htlc

import (
	"encoding/hex"
	"fmt"
)

// Address is a 20-byte account address, matching the teacher's
// hex(sha256(pubkey)[:20]) convention.
type Address [20]byte

// AddressFromHex decodes a 40-char hex address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("htlc: invalid address hex: %w", err)
	}
	if len(raw) != 20 {
		return a, fmt.Errorf("htlc: address must be 20 bytes, got %d", len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// Hex returns the 40-char hex encoding of the address.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}
