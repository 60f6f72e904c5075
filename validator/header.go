package validator

import (
	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/slots"
)

// ValidateHeader runs the ordered checks from spec §4.1. parent is the
// local chain's current tip info; since Push only ever extends the current
// tip (side branches are out of scope), a header whose ParentHash does not
// match parent's hash is treated as referencing a block we don't have —
// Orphan — rather than InvalidSuccessor.
func (p *Pipeline) ValidateHeader(header blockchain.BlockHeader, isMacro bool, parent blockchain.ChainInfo, now uint64, checkSeed bool, validators *slots.Set) error {
	if header.Version != blockchain.ProtocolVersion {
		return newErr(UnsupportedVersion, nil)
	}
	if header.ParentHash != parent.Header.Hash() {
		return ErrOrphan
	}
	if p.chain.ExpectedNextBlockType(parent.Header.BlockNumber) != isMacro {
		return newErr(InvalidSuccessor, nil)
	}
	if header.BlockNumber != parent.Header.BlockNumber+1 {
		return newErr(InvalidSuccessor, nil)
	}
	if header.Timestamp < parent.Header.Timestamp {
		return newErr(InvalidSuccessor, nil)
	}
	var delta uint64
	if header.Timestamp > now {
		delta = header.Timestamp - now
	}
	if delta > p.MaxTimestampDrift {
		return newErr(FromTheFuture, nil)
	}
	if checkSeed {
		if err := p.validateSeed(header, parent, validators); err != nil {
			return err
		}
	}
	if isMacro && header.ParentElectionHash != p.chain.ElectionHeadHash() {
		return newErr(InvalidSuccessor, nil)
	}
	return nil
}

// validateSeed checks the header's VRF seed chains from the parent's seed
// and was produced by the slot owner entitled to (block_number,
// view_number) under the current validator set.
func (p *Pipeline) validateSeed(header blockchain.BlockHeader, parent blockchain.ChainInfo, validators *slots.Set) error {
	if validators == nil {
		return newErr(InvalidSeed, nil)
	}
	parentSeed, err := parent.Header.VRFSeed()
	if err != nil {
		return newErr(InvalidSeed, err)
	}
	seed, err := header.VRFSeed()
	if err != nil {
		return newErr(InvalidSeed, err)
	}
	owner, _, ok := validators.Owner(header.BlockNumber, header.ViewNumber, parentSeed.Entropy())
	if !ok {
		return newErr(InvalidSeed, nil)
	}
	valid, err := seed.Verify(owner.VotingKey, parentSeed.Entropy(), uint64(header.BlockNumber))
	if err != nil || !valid {
		return newErr(InvalidSeed, err)
	}
	return nil
}

// blockHash is a convenience the justification and fork-proof checks share.
func blockHash(header blockchain.BlockHeader) string {
	return header.Hash()
}

// verifySchnorr checks a hex-encoded ed25519 signature over content.
func verifySchnorr(pub crypto.PublicKey, content []byte, sigHex string) error {
	return crypto.Verify(pub, content, sigHex)
}
