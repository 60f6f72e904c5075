package validator

import (
	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/slots"
)

// ValidateState runs spec §4.4. It assumes accounts already reflects the
// candidate block's effects (the caller applies a block to a scratch state
// before calling Push; this module validates only the result, since
// transaction execution itself is the block-production side of the
// pipeline and out of scope here). For a macro block it also reconciles or,
// for a header-only block, constructs the lost-reward/disabled-slot/
// validator-set bookkeeping every macro body carries.
func (p *Pipeline) ValidateState(block blockchain.Block, accounts blockchain.State, history blockchain.HistoryStore, validators *slots.Set) (*blockchain.MacroBody, error) {
	if accounts.ComputeRoot() != block.Header.StateRoot {
		return nil, newErr(AccountsHashMismatch, nil)
	}

	epoch := blockchain.EpochOf(block.Header.BlockNumber, p.MacroBlocksPerEpoch)
	existingRoot, ok := history.Root(epoch)
	if !ok || existingRoot != block.Header.HistoryRoot {
		return nil, newErr(InvalidHistoryRoot, nil)
	}

	if !block.IsMacro {
		return nil, nil
	}
	return p.validateMacroState(block, validators)
}

// validateMacroState reconciles a macro block's lost-reward, disabled-slot
// and (election-only) validator-set bookkeeping against what this node
// independently computes. Slashing bookkeeping has no staking-contract
// collaborator wired in yet, so the computed lost-reward/disabled-slot sets
// are always empty and the next validator set is always a carry-forward of
// the current one; a full implementation would derive both from the
// staking contract's state.
func (p *Pipeline) validateMacroState(block blockchain.Block, validators *slots.Set) (*blockchain.MacroBody, error) {
	isElection := blockchain.IsElectionBlockAt(block.Header.BlockNumber, p.MacroBlocksPerEpoch, p.ElectionEpochInterval)

	var computedValidators []slots.Validator
	var computedPkTreeRoot []byte
	if isElection && validators != nil {
		computedValidators = validators.Validators()
		computedPkTreeRoot = derivePkTreeRoot(computedValidators)
	}
	numSlots := 0
	if validators != nil {
		numSlots = validators.Len()
	}
	computedLostRewards := make([]bool, numSlots)
	computedDisabledSlots := map[int]bool{}

	computed := &blockchain.MacroBody{
		Validators:    computedValidators,
		PkTreeRoot:    computedPkTreeRoot,
		LostRewards:   computedLostRewards,
		DisabledSlots: computedDisabledSlots,
	}

	if block.MacroBody != nil {
		if !sameBoolSlice(block.MacroBody.LostRewards, computed.LostRewards) ||
			!sameDisabledSlots(block.MacroBody.DisabledSlots, computed.DisabledSlots) ||
			!sameValidatorSlice(block.MacroBody.Validators, computed.Validators) {
			return nil, newErr(InvalidValidators, nil)
		}
		return nil, nil
	}

	// Header-only macro block: construct the body the header's body_root
	// must hash to, as arrives mid macro-block sync.
	if computed.Hash() != block.Header.BodyRoot {
		return nil, newErr(BodyHashMismatch, nil)
	}
	return computed, nil
}

func sameBoolSlice(a, b []bool) bool {
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

// sameValidatorSlice reports whether a and b name the same validators, in
// the same order, with the same slot counts. Key fields are compared via
// Hex() since crypto.BLSPublicKey wraps an unexported curve point pointer
// and isn't comparable with ==.
func sameValidatorSlice(a, b []slots.Validator) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Address != b[i].Address ||
			a[i].NumSlots != b[i].NumSlots ||
			a[i].SigningKey.Hex() != b[i].SigningKey.Hex() ||
			a[i].VotingKey.Hex() != b[i].VotingKey.Hex() {
			return false
		}
	}
	return true
}

func sameDisabledSlots(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
