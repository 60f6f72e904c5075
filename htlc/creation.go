package htlc

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/stakechain/primitives"
)

// CreationData is the contract-creation payload carried in the data field
// of a transaction that opens a hash time-locked contract. Its binary
// encoding is exactly 82 bytes when hash_root is a 32-byte hash (Blake2b or
// Sha256) and 114 bytes when it is a 64-byte hash (Sha512):
// sender(20) + recipient(20) + hash_root(1+32 or 1+64) + hash_count(1) + timeout(8).
type CreationData struct {
	Sender    Address
	Recipient Address
	HashRoot  primitives.AnyHash
	HashCount uint8
	Timeout   uint64
}

// EncodeBinary serializes the creation data to its exact wire layout.
func (d CreationData) EncodeBinary() ([]byte, error) {
	hashBytes, err := d.HashRoot.EncodeBinary()
	if err != nil {
		return nil, fmt.Errorf("htlc: encode hash root: %w", err)
	}
	out := make([]byte, 0, 20+20+len(hashBytes)+1+8)
	out = append(out, d.Sender[:]...)
	out = append(out, d.Recipient[:]...)
	out = append(out, hashBytes...)
	out = append(out, d.HashCount)
	var timeoutBuf [8]byte
	binary.BigEndian.PutUint64(timeoutBuf[:], d.Timeout)
	out = append(out, timeoutBuf[:]...)
	return out, nil
}

// ParseCreationData decodes creation data from the exact wire layout,
// rejecting any buffer that is not exactly 82 or 114 bytes long.
func ParseCreationData(data []byte) (CreationData, error) {
	if len(data) != 20+20+1+32+1+8 && len(data) != 20+20+1+64+1+8 {
		return CreationData{}, fmt.Errorf("htlc: invalid creation data length %d", len(data))
	}
	var d CreationData
	copy(d.Sender[:], data[0:20])
	copy(d.Recipient[:], data[20:40])

	hashRoot, n, err := primitives.DecodeAnyHashBinary(data[40:])
	if err != nil {
		return CreationData{}, fmt.Errorf("htlc: decode hash root: %w", err)
	}
	d.HashRoot = hashRoot
	offset := 40 + n

	if offset+1+8 != len(data) {
		return CreationData{}, fmt.Errorf("htlc: trailing bytes after hash root")
	}
	d.HashCount = data[offset]
	d.Timeout = binary.BigEndian.Uint64(data[offset+1 : offset+9])
	return d, nil
}

// Verify checks the creation data's own invariants, independent of any
// enclosing transaction.
func (d CreationData) Verify() error {
	if d.HashCount == 0 {
		return fmt.Errorf("htlc: hash_count may not be zero")
	}
	return nil
}
