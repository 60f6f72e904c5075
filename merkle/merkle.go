// Package merkle computes and verifies Merkle tree roots and proofs over
// ordered leaf sequences, generalizing the teacher's length-prefixed
// transaction-root hashing (ComputeTxRoot) into a full binary tree with
// both full-root recomputation and growing-prefix (consistency) proofs, the
// shape the epoch-transactions sync handshake needs: a peer streams
// transactions for an epoch in order and each chunk must be provable
// against the epoch's final transactions root before the full set has
// arrived.
package merkle

import (
	"fmt"

	"github.com/tolelom/stakechain/crypto"
)

func leafHash(data []byte) []byte {
	buf := append([]byte{0x00}, data...)
	return crypto.HashBytes(buf)
}

func nodeHash(left, right []byte) []byte {
	buf := append([]byte{0x01}, left...)
	buf = append(buf, right...)
	return crypto.HashBytes(buf)
}

// largestPowerOfTwoLessThan returns the largest power of two strictly less
// than n, for n > 1.
func largestPowerOfTwoLessThan(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

// Root computes the Merkle tree hash of an ordered leaf sequence, per the
// standard recursive construction: MTH() = Hash(), MTH(d0) = LeafHash(d0),
// MTH(D[n]) = NodeHash(MTH(D[0:k]), MTH(D[k:n])) where k is the largest
// power of two < n.
func Root(leaves [][]byte) []byte {
	return subtreeHash(leaves)
}

func subtreeHash(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return crypto.HashBytes(nil)
	case 1:
		return leafHash(leaves[0])
	default:
		k := largestPowerOfTwoLessThan(len(leaves))
		left := subtreeHash(leaves[:k])
		right := subtreeHash(leaves[k:])
		return nodeHash(left, right)
	}
}

// RootHex computes Root and hex-encodes it.
func RootHex(leaves [][]byte) string {
	return fmt.Sprintf("%x", Root(leaves))
}

// ConsistencyProof returns the sequence of sibling hashes proving that the
// first m leaves of a size-n tree are a prefix of that tree, per RFC 6962
// §2.1.2. Requires 0 < m <= n.
func ConsistencyProof(m, n int, leaves [][]byte) ([][]byte, error) {
	if m <= 0 || m > n || n > len(leaves) {
		return nil, fmt.Errorf("merkle: invalid consistency proof bounds m=%d n=%d leaves=%d", m, n, len(leaves))
	}
	if m == n {
		return nil, nil
	}
	return subProof(m, leaves[:n], true), nil
}

// subProof implements the SUBPROOF(m, D[n], b) recursive construction.
func subProof(m int, d [][]byte, b bool) [][]byte {
	n := len(d)
	if m == n {
		if b {
			return nil
		}
		return [][]byte{subtreeHash(d)}
	}
	k := largestPowerOfTwoLessThan(n)
	if m <= k {
		proof := subProof(m, d[:k], b)
		return append(proof, subtreeHash(d[k:]))
	}
	proof := subProof(m-k, d[k:], false)
	return append(proof, subtreeHash(d[:k]))
}

// VerifyConsistency checks that a tree of m leaves with root oldRoot is a
// genuine prefix of a tree of n leaves with root newRoot, given the
// ConsistencyProof between them.
func VerifyConsistency(m, n int, oldRoot, newRoot []byte, proof [][]byte) (bool, error) {
	if m <= 0 || m > n {
		return false, fmt.Errorf("merkle: invalid consistency bounds m=%d n=%d", m, n)
	}
	if m == n {
		return len(proof) == 0 && bytesEqual(oldRoot, newRoot), nil
	}

	var fn, sn uint64 = uint64(m - 1), uint64(n - 1)
	for fn&1 == 1 {
		fn >>= 1
		sn >>= 1
	}

	if len(proof) == 0 {
		return false, fmt.Errorf("merkle: empty consistency proof")
	}
	if m&(m-1) == 0 {
		// m is an exact power of two: the old root is a node of the new tree
		// and ConsistencyProof leaves it out, so it starts the path here.
		proof = append([][]byte{oldRoot}, proof...)
	}
	firstHash := proof[0]
	secondHash := proof[0]
	rest := proof[1:]

	for _, next := range rest {
		if sn == 0 {
			return false, fmt.Errorf("merkle: consistency proof too long")
		}
		if fn&1 == 1 || fn == sn {
			firstHash = nodeHash(next, firstHash)
			secondHash = nodeHash(next, secondHash)
			for fn&1 != 1 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			secondHash = nodeHash(secondHash, next)
		}
		fn >>= 1
		sn >>= 1
	}

	return sn == 0 && bytesEqual(firstHash, oldRoot) && bytesEqual(secondHash, newRoot), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
