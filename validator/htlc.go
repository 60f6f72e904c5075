package validator

import (
	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/htlc"
)

// validateHTLCCreation checks the incoming (contract-creation) half of
// spec §4.5: the transaction's shape must match a creation, and its data
// must decode to valid creation data. The outgoing (spend) half is covered
// by the vm registry's HTLC handler, since only a spend has a proof to
// verify.
func validateHTLCCreation(tx blockchain.Transaction) error {
	if tx.RecipientType != blockchain.AccountHTLC ||
		!tx.HasFlag(blockchain.FlagContractCreation) ||
		tx.HasFlag(blockchain.FlagSignaling) {
		return &TxError{Kind: TxInvalidForRecipient}
	}
	if tx.Recipient != tx.ContractCreationAddress() {
		return &TxError{Kind: TxInvalidForRecipient}
	}
	if len(tx.Data) != 82 && len(tx.Data) != 114 {
		return &TxError{Kind: TxInvalidData}
	}
	data, err := htlc.ParseCreationData(tx.Data)
	if err != nil {
		return &TxError{Kind: TxInvalidData, Cause: err}
	}
	if err := data.Verify(); err != nil {
		return &TxError{Kind: TxInvalidData, Cause: err}
	}
	return nil
}
