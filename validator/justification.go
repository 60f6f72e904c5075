package validator

import (
	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/slots"
)

// ValidateJustification runs spec §4.2: a micro block's single Schnorr
// signature plus optional view-change proof, or a macro block's aggregated
// commit proof.
func (p *Pipeline) ValidateJustification(block blockchain.Block, parent blockchain.ChainInfo, validators *slots.Set) error {
	if block.IsMacro {
		return p.validateMacroJustification(block, validators)
	}
	return p.validateMicroJustification(block, parent, validators)
}

func (p *Pipeline) validateMicroJustification(block blockchain.Block, parent blockchain.ChainInfo, validators *slots.Set) error {
	j := block.Justification
	if j == nil || j.Signature == "" {
		return newErr(NoJustification, nil)
	}
	if validators == nil {
		return newErr(InvalidJustification, nil)
	}
	parentSeed, err := parent.Header.VRFSeed()
	if err != nil {
		return newErr(InvalidJustification, err)
	}
	owner, _, ok := validators.Owner(block.Header.BlockNumber, block.Header.ViewNumber, parentSeed.Entropy())
	if !ok {
		return newErr(InvalidJustification, nil)
	}
	if err := verifySchnorr(owner.SigningKey, []byte(blockHash(block.Header)), j.Signature); err != nil {
		return newErr(InvalidJustification, err)
	}

	referenceView := uint32(0)
	if !parent.IsMacro {
		referenceView = parent.Header.ViewNumber
	}
	v := block.Header.ViewNumber
	proof := j.ViewChangeProof

	switch {
	case v < referenceView:
		return newErr(InvalidViewNumber, nil)
	case v == referenceView && proof != nil:
		return newErr(InvalidJustification, nil)
	case v == referenceView:
		return nil
	case proof == nil:
		return newErr(NoViewChangeProof, nil)
	default:
		msg := blockchain.ViewChangeMessage(block.Header.BlockNumber, v, parentSeed.Entropy())
		ok, err := crypto.VerifyAggregateBLS(signerKeys(validators, proof.SignerBitmap), msg, bytesToBLSSignature(proof.AggregateSignature))
		if err != nil || !ok {
			return newErr(InvalidViewChangeProof, err)
		}
		return nil
	}
}

func (p *Pipeline) validateMacroJustification(block blockchain.Block, validators *slots.Set) error {
	j := block.Justification
	if j == nil || len(j.AggregateSignature) == 0 {
		return newErr(NoJustification, nil)
	}
	if validators == nil {
		return newErr(InvalidJustification, nil)
	}
	sig, err := crypto.BLSSignatureFromBytes(j.AggregateSignature)
	if err != nil {
		return newErr(InvalidJustification, err)
	}
	ok, err := crypto.VerifyAggregateBLS(signerKeys(validators, j.SignerBitmap), []byte(blockHash(block.Header)), sig)
	if err != nil || !ok {
		return newErr(InvalidJustification, err)
	}
	return nil
}

// signerKeys collects the voting keys of the validators flagged in bitmap,
// the set an aggregated BLS proof is verified against.
func signerKeys(validators *slots.Set, bitmap []bool) []crypto.BLSPublicKey {
	all := validators.Validators()
	keys := make([]crypto.BLSPublicKey, 0, len(all))
	for i, v := range all {
		if i < len(bitmap) && bitmap[i] {
			keys = append(keys, v.VotingKey)
		}
	}
	return keys
}

func bytesToBLSSignature(raw []byte) crypto.BLSSignature {
	sig, _ := crypto.BLSSignatureFromBytes(raw)
	return sig
}
