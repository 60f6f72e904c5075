// Package slots resolves which validator is entitled to propose or sign at
// a given (block_number, view_number) under a given prior VRF seed. It is a
// read-only collaborator for the header, justification and fork-proof
// validators: it never decides what to propose, only who is allowed to.
package slots

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/tolelom/stakechain/crypto"
)

// TotalSlots is the number of slot bands a validator set is partitioned
// into, mirroring the teacher's round-robin index generalized to a
// weighted, seed-keyed distribution.
const TotalSlots = 512

// Validator is one member of a validator set: a Schnorr (ed25519) signing
// key for individual block/view-change signatures, and a BLS voting key for
// aggregated macro justifications.
type Validator struct {
	Address    string
	SigningKey crypto.PublicKey
	VotingKey  crypto.BLSPublicKey
	NumSlots   int // how many of TotalSlots this validator holds
}

// Set is an ordered validator set with a fixed total slot allocation.
type Set struct {
	validators []Validator
	// cumulative[i] is the first slot number owned by validators[i].
	cumulative []int
}

// NewSet builds a Set from validators, whose NumSlots must sum to
// TotalSlots.
func NewSet(validators []Validator) (*Set, error) {
	if len(validators) == 0 {
		return nil, fmt.Errorf("slots: empty validator set")
	}
	cumulative := make([]int, len(validators))
	total := 0
	for i, v := range validators {
		if v.NumSlots <= 0 {
			return nil, fmt.Errorf("slots: validator %s has non-positive slot count %d", v.Address, v.NumSlots)
		}
		cumulative[i] = total
		total += v.NumSlots
	}
	if total != TotalSlots {
		return nil, fmt.Errorf("slots: validator slot counts sum to %d, want %d", total, TotalSlots)
	}
	return &Set{validators: validators, cumulative: cumulative}, nil
}

// Validators returns the ordered validator list.
func (s *Set) Validators() []Validator {
	return s.validators
}

// Len returns the number of validators in the set.
func (s *Set) Len() int {
	return len(s.validators)
}

// slotNumber derives a pseudo-random slot number in [0, TotalSlots) from the
// block number, view number and the VRF seed entropy preceding this slot.
func slotNumber(blockNumber uint32, viewNumber uint32, prevSeedEntropy []byte) uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], blockNumber)
	binary.BigEndian.PutUint32(buf[4:8], viewNumber)
	h := sha256.New()
	h.Write(buf[:])
	h.Write(prevSeedEntropy)
	digest := h.Sum(nil)
	return binary.BigEndian.Uint32(digest[:4]) % TotalSlots
}

// Owner returns the validator owning the slot derived from (blockNumber,
// viewNumber, prevSeedEntropy), and the slot band number itself.
func (s *Set) Owner(blockNumber uint32, viewNumber uint32, prevSeedEntropy []byte) (Validator, int, bool) {
	band := int(slotNumber(blockNumber, viewNumber, prevSeedEntropy))
	// Binary search is unnecessary at this scale; linear scan over the
	// cumulative offsets mirrors the teacher's straightforward index math.
	for i := len(s.validators) - 1; i >= 0; i-- {
		if band >= s.cumulative[i] {
			return s.validators[i], band, true
		}
	}
	return Validator{}, 0, false
}

// ByAddress looks up a validator by its address.
func (s *Set) ByAddress(address string) (Validator, bool) {
	for _, v := range s.validators {
		if v.Address == address {
			return v, true
		}
	}
	return Validator{}, false
}

// VotingKeys returns the BLS voting keys of every validator, in order.
func (s *Set) VotingKeys() []crypto.BLSPublicKey {
	out := make([]crypto.BLSPublicKey, len(s.validators))
	for i, v := range s.validators {
		out[i] = v.VotingKey
	}
	return out
}
