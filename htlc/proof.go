package htlc

import (
	"fmt"

	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/primitives"
)

// ProofKind discriminates the three disjoint ways funds can leave a
// hash time-locked contract.
type ProofKind uint8

const (
	// RegularTransferKind lets the recipient withdraw by presenting a
	// preimage that rehashes to hash_root after hash_depth iterations.
	RegularTransferKind ProofKind = 1
	// EarlyResolveKind lets sender and recipient jointly withdraw at any
	// time by both signing.
	EarlyResolveKind ProofKind = 2
	// TimeoutResolveKind lets the sender withdraw alone once the contract's
	// timeout block height has passed.
	TimeoutResolveKind ProofKind = 3
)

// OutgoingProof is one of RegularTransfer, EarlyResolve or TimeoutResolve.
type OutgoingProof interface {
	Kind() ProofKind
	// Verify checks the proof authorizes spending content (the signed
	// content of the enclosing transaction).
	Verify(content []byte) error
	encode() []byte
}

// RegularTransfer proves the recipient knows a preimage that, rehashed
// hashDepth times, yields hashRoot.
type RegularTransfer struct {
	HashDepth      uint8
	HashRoot       primitives.AnyHash
	PreImage       primitives.PreImage
	SignatureProof crypto.SignatureProof
}

func (p RegularTransfer) Kind() ProofKind { return RegularTransferKind }

// Verify rehashes PreImage HashDepth times using HashRoot's algorithm and
// checks the result equals HashRoot, then checks the signature proof.
func (p RegularTransfer) Verify(content []byte) error {
	tmp := append([]byte(nil), p.PreImage.Bytes...)
	for i := uint8(0); i < p.HashDepth; i++ {
		sum, err := primitives.Sum(p.HashRoot.Algorithm, tmp)
		if err != nil {
			return fmt.Errorf("htlc: rehash: %w", err)
		}
		tmp = sum.Digest
	}
	if !bytesEqual(tmp, p.HashRoot.Digest) {
		return fmt.Errorf("htlc: preimage does not resolve to hash root")
	}
	if !p.SignatureProof.Verify(content) {
		return fmt.Errorf("htlc: invalid signature proof")
	}
	return nil
}

func (p RegularTransfer) encode() []byte {
	hashRootBytes, _ := p.HashRoot.EncodeBinary()
	preImageBytes, _ := p.PreImage.EncodeBinary()
	out := []byte{byte(RegularTransferKind), p.HashDepth}
	out = append(out, hashRootBytes...)
	out = append(out, preImageBytes...)
	out = append(out, p.SignatureProof.EncodeBinary()...)
	return out
}

// EarlyResolve proves both parties agreed to release funds before timeout.
type EarlyResolve struct {
	SignatureProofRecipient crypto.SignatureProof
	SignatureProofSender    crypto.SignatureProof
}

func (p EarlyResolve) Kind() ProofKind { return EarlyResolveKind }

func (p EarlyResolve) Verify(content []byte) error {
	if !p.SignatureProofRecipient.Verify(content) || !p.SignatureProofSender.Verify(content) {
		return fmt.Errorf("htlc: invalid signature proof")
	}
	return nil
}

func (p EarlyResolve) encode() []byte {
	out := []byte{byte(EarlyResolveKind)}
	out = append(out, p.SignatureProofRecipient.EncodeBinary()...)
	out = append(out, p.SignatureProofSender.EncodeBinary()...)
	return out
}

// TimeoutResolve proves the sender is reclaiming funds after timeout.
type TimeoutResolve struct {
	SignatureProofSender crypto.SignatureProof
}

func (p TimeoutResolve) Kind() ProofKind { return TimeoutResolveKind }

func (p TimeoutResolve) Verify(content []byte) error {
	if !p.SignatureProofSender.Verify(content) {
		return fmt.Errorf("htlc: invalid signature proof")
	}
	return nil
}

func (p TimeoutResolve) encode() []byte {
	return append([]byte{byte(TimeoutResolveKind)}, p.SignatureProofSender.EncodeBinary()...)
}

// EncodeProof serializes any OutgoingProof to its wire form.
func EncodeProof(p OutgoingProof) []byte {
	return p.encode()
}

// ParseProof decodes an OutgoingProof from its wire form, rejecting any
// buffer left over after the structurally expected fields are consumed.
func ParseProof(data []byte) (OutgoingProof, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("htlc: empty proof buffer")
	}
	kind := ProofKind(data[0])
	rest := data[1:]

	switch kind {
	case RegularTransferKind:
		if len(rest) < 1 {
			return nil, fmt.Errorf("htlc: truncated regular transfer proof")
		}
		hashDepth := rest[0]
		rest = rest[1:]

		hashRoot, n, err := primitives.DecodeAnyHashBinary(rest)
		if err != nil {
			return nil, fmt.Errorf("htlc: decode hash root: %w", err)
		}
		rest = rest[n:]

		preImage, n, err := primitives.DecodePreImageBinary(rest)
		if err != nil {
			return nil, fmt.Errorf("htlc: decode preimage: %w", err)
		}
		rest = rest[n:]

		sigProof, n, err := crypto.DecodeSignatureProofBinary(rest)
		if err != nil {
			return nil, fmt.Errorf("htlc: decode signature proof: %w", err)
		}
		rest = rest[n:]

		if len(rest) != 0 {
			return nil, fmt.Errorf("htlc: trailing bytes in regular transfer proof")
		}
		return RegularTransfer{
			HashDepth:      hashDepth,
			HashRoot:       hashRoot,
			PreImage:       preImage,
			SignatureProof: sigProof,
		}, nil

	case EarlyResolveKind:
		recipientProof, n, err := crypto.DecodeSignatureProofBinary(rest)
		if err != nil {
			return nil, fmt.Errorf("htlc: decode recipient signature proof: %w", err)
		}
		rest = rest[n:]

		senderProof, n, err := crypto.DecodeSignatureProofBinary(rest)
		if err != nil {
			return nil, fmt.Errorf("htlc: decode sender signature proof: %w", err)
		}
		rest = rest[n:]

		if len(rest) != 0 {
			return nil, fmt.Errorf("htlc: trailing bytes in early resolve proof")
		}
		return EarlyResolve{SignatureProofRecipient: recipientProof, SignatureProofSender: senderProof}, nil

	case TimeoutResolveKind:
		senderProof, n, err := crypto.DecodeSignatureProofBinary(rest)
		if err != nil {
			return nil, fmt.Errorf("htlc: decode sender signature proof: %w", err)
		}
		rest = rest[n:]

		if len(rest) != 0 {
			return nil, fmt.Errorf("htlc: trailing bytes in timeout resolve proof")
		}
		return TimeoutResolve{SignatureProofSender: senderProof}, nil

	default:
		return nil, fmt.Errorf("htlc: unknown proof kind %d", kind)
	}
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
