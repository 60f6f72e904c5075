// Package primitives implements the tagged binary and human-readable codecs
// for the digests and preimages used throughout the chain: AnyHash (a
// multi-algorithm hash variant) and PreImage (its matching preimage variant).
package primitives

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Algorithm identifies which hash function produced an AnyHash.
type Algorithm uint8

// Wire tags, fixed by the protocol. Do not renumber.
const (
	Blake2b Algorithm = 1
	Sha256  Algorithm = 3
	Sha512  Algorithm = 4
)

// String returns the lowercase algorithm name used in the human-readable form.
func (a Algorithm) String() string {
	switch a {
	case Blake2b:
		return "blake2b"
	case Sha256:
		return "sha256"
	case Sha512:
		return "sha512"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Size returns the digest length in bytes for the algorithm.
func (a Algorithm) Size() int {
	switch a {
	case Blake2b, Sha256:
		return 32
	case Sha512:
		return 64
	default:
		return 0
	}
}

func algorithmFromName(name string) (Algorithm, error) {
	switch name {
	case "blake2b":
		return Blake2b, nil
	case "sha256":
		return Sha256, nil
	case "sha512":
		return Sha512, nil
	default:
		return 0, fmt.Errorf("primitives: unknown hash algorithm %q", name)
	}
}

// AnyHash is a tagged digest over one of three hash algorithms.
type AnyHash struct {
	Algorithm Algorithm
	Digest    []byte
}

// Sum computes the AnyHash of data under algo.
func Sum(algo Algorithm, data []byte) (AnyHash, error) {
	switch algo {
	case Blake2b:
		h := blake2b.Sum256(data)
		return AnyHash{Algorithm: Blake2b, Digest: h[:]}, nil
	case Sha256:
		h := sha256.Sum256(data)
		return AnyHash{Algorithm: Sha256, Digest: h[:]}, nil
	case Sha512:
		h := sha512.Sum512(data)
		return AnyHash{Algorithm: Sha512, Digest: h[:]}, nil
	default:
		return AnyHash{}, fmt.Errorf("primitives: unknown hash algorithm %d", algo)
	}
}

// Equal reports whether h and o carry the same algorithm and digest bytes.
func (h AnyHash) Equal(o AnyHash) bool {
	if h.Algorithm != o.Algorithm || len(h.Digest) != len(o.Digest) {
		return false
	}
	for i := range h.Digest {
		if h.Digest[i] != o.Digest[i] {
			return false
		}
	}
	return true
}

// EncodeBinary writes the non-human-readable wire form: one tag byte then
// the raw digest.
func (h AnyHash) EncodeBinary() ([]byte, error) {
	size := h.Algorithm.Size()
	if size == 0 {
		return nil, fmt.Errorf("primitives: unknown hash algorithm %d", h.Algorithm)
	}
	if len(h.Digest) != size {
		return nil, fmt.Errorf("primitives: digest length %d does not match algorithm %s (want %d)",
			len(h.Digest), h.Algorithm, size)
	}
	out := make([]byte, 1+size)
	out[0] = byte(h.Algorithm)
	copy(out[1:], h.Digest)
	return out, nil
}

// DecodeAnyHashBinary decodes the non-human-readable wire form.
// Returns the number of bytes consumed.
func DecodeAnyHashBinary(data []byte) (AnyHash, int, error) {
	if len(data) < 1 {
		return AnyHash{}, 0, fmt.Errorf("primitives: empty AnyHash buffer")
	}
	algo := Algorithm(data[0])
	size := algo.Size()
	if size == 0 {
		return AnyHash{}, 0, fmt.Errorf("primitives: unknown hash tag %d", data[0])
	}
	if len(data) < 1+size {
		return AnyHash{}, 0, fmt.Errorf("primitives: truncated AnyHash buffer for %s", algo)
	}
	digest := make([]byte, size)
	copy(digest, data[1:1+size])
	return AnyHash{Algorithm: algo, Digest: digest}, 1 + size, nil
}

// anyHashHuman is the human-readable wire struct.
type anyHashHuman struct {
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
}

// MarshalJSON implements the human-readable form: {algorithm, hash}.
func (h AnyHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(anyHashHuman{
		Algorithm: h.Algorithm.String(),
		Hash:      hex.EncodeToString(h.Digest),
	})
}

// UnmarshalJSON implements the human-readable form: {algorithm, hash}.
func (h *AnyHash) UnmarshalJSON(data []byte) error {
	var wire anyHashHuman
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	algo, err := algorithmFromName(wire.Algorithm)
	if err != nil {
		return err
	}
	digest, err := hex.DecodeString(wire.Hash)
	if err != nil {
		return fmt.Errorf("primitives: invalid hash hex: %w", err)
	}
	if len(digest) != algo.Size() {
		return fmt.Errorf("primitives: digest length %d does not match algorithm %s (want %d)",
			len(digest), algo, algo.Size())
	}
	h.Algorithm = algo
	h.Digest = digest
	return nil
}
