package validator

import (
	"encoding/json"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/slots"
	"github.com/tolelom/stakechain/vm"
)

// ValidateBody runs spec §4.3: body presence and hash, the ordered
// fork-proof and transaction sequences, and the macro-only validator-set /
// pk-tree-root invariants.
func (p *Pipeline) ValidateBody(block blockchain.Block, validators *slots.Set) error {
	if block.IsMacro && block.MacroBody == nil {
		// Header-only macro block, as arrives mid macro-block sync before
		// its epoch's transactions are known: the state validator
		// reconstructs and hash-checks the body once post-state is in
		// hand, so there is nothing to check here yet.
		return nil
	}
	if !block.HasBody() {
		return newErr(MissingBody, nil)
	}
	if block.BodyHash() != block.Header.BodyRoot {
		return newErr(BodyHashMismatch, nil)
	}

	if block.IsMacro {
		return p.validateMacroBody(block)
	}
	return p.validateMicroBody(block, validators)
}

func (p *Pipeline) validateMicroBody(block blockchain.Block, validators *slots.Set) error {
	body := block.MicroBody
	if size, err := json.Marshal(body); err == nil && len(size) > p.MaxMicroBodySize {
		return newErr(SizeExceeded, nil)
	}

	if err := p.validateForkProofs(block.Header.BlockNumber, body.ForkProofs, validators); err != nil {
		return err
	}
	return p.validateTransactions(block.Header.BlockNumber, body.Transactions)
}

func (p *Pipeline) validateForkProofs(blockNumber uint32, proofs []blockchain.ForkProof, validators *slots.Set) error {
	var previous *blockchain.ForkProof
	for i := range proofs {
		cur := proofs[i]
		if previous != nil {
			switch previous.Compare(cur) {
			case 0:
				return newErr(DuplicateForkProof, nil)
			case 1:
				return newErr(ForkProofsNotOrdered, nil)
			}
		}
		if !reportableAt(cur.Header1.BlockNumber, blockNumber) {
			return newErr(InvalidForkProof, nil)
		}
		if validators == nil {
			return newErr(InvalidForkProof, nil)
		}
		owner, _, ok := validators.Owner(cur.Header1.BlockNumber, cur.Header1.ViewNumber, cur.PrevVRFSeed)
		if !ok {
			return newErr(InvalidForkProof, nil)
		}
		if verifySchnorr(owner.SigningKey, []byte(blockHash(cur.Header1)), cur.Signature1) != nil ||
			verifySchnorr(owner.SigningKey, []byte(blockHash(cur.Header2)), cur.Signature2) != nil {
			return newErr(InvalidForkProof, nil)
		}
		previous = &proofs[i]
	}
	return nil
}

// reportableAt mirrors Transaction.IsValidAt's validity-window shape: a
// fork proof reported at blockNumber must have occurred within the
// preceding reporting window.
func reportableAt(reportedNumber, blockNumber uint32) bool {
	if blockNumber < reportedNumber {
		return false
	}
	return blockNumber-reportedNumber <= ForkProofReportingWindow
}

func (p *Pipeline) validateTransactions(blockNumber uint32, txs []blockchain.Transaction) error {
	var previous *blockchain.Transaction
	for i := range txs {
		cur := txs[i]
		if previous != nil {
			switch previous.Compare(cur) {
			case 1:
				return newErr(TransactionsNotOrdered, nil)
			case 0:
				return newErr(DuplicateTransaction, nil)
			}
		}
		if !cur.IsValidAt(blockNumber) {
			return newErr(ExpiredTransaction, nil)
		}
		if err := p.validateTransaction(blockNumber, cur); err != nil {
			return newErr(InvalidTransaction, err)
		}
		previous = &txs[i]
	}
	return nil
}

// validateTransaction runs the per-account-type intrinsic registry check,
// plus the HTLC contract-creation check for transactions opening a new
// contract (the registry only covers outgoing/spend proofs, since the
// recipient side of a creation has no signer of its own to verify).
func (p *Pipeline) validateTransaction(blockNumber uint32, tx blockchain.Transaction) error {
	if tx.RecipientType == blockchain.AccountHTLC && tx.HasFlag(blockchain.FlagContractCreation) {
		if err := validateHTLCCreation(tx); err != nil {
			return err
		}
	}
	return p.registry.Verify(&vm.Context{NetworkID: p.networkID, BlockNumber: blockNumber}, tx)
}

func (p *Pipeline) validateMacroBody(block blockchain.Block) error {
	body := block.MacroBody
	isElection := blockchain.IsElectionBlockAt(block.Header.BlockNumber, p.MacroBlocksPerEpoch, p.ElectionEpochInterval)

	if (body.Validators != nil) != isElection {
		return newErr(InvalidValidators, nil)
	}
	if (body.PkTreeRoot != nil) != isElection {
		return newErr(InvalidPkTreeRoot, nil)
	}
	if isElection {
		if _, err := slots.NewSet(body.Validators); err != nil {
			return newErr(InvalidValidators, err)
		}
		want := derivePkTreeRoot(body.Validators)
		if string(want) != string(body.PkTreeRoot) {
			return newErr(InvalidPkTreeRoot, nil)
		}
	}
	return nil
}
