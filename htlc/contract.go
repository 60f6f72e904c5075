package htlc

import "fmt"

// Contract is the on-chain state of an open hash time-locked contract,
// derived from its CreationData at the block where it was opened.
type Contract struct {
	Sender    Address
	Recipient Address
	HashRoot  CreationData
	Balance   uint64
}

// Open builds the contract state for a newly created HTLC, checking the
// creation data's own invariants.
func Open(data CreationData, balance uint64) (Contract, error) {
	if err := data.Verify(); err != nil {
		return Contract{}, err
	}
	return Contract{
		Sender:    data.Sender,
		Recipient: data.Recipient,
		HashRoot:  data,
		Balance:   balance,
	}, nil
}

// VerifyOutgoing checks that proof authorizes spending content from this
// contract; for a RegularTransfer it also checks that the proof's hash root
// is the contract's. It computes no amount: the partial-withdrawal amount
// for a given depth comes from PartialAmount.
func (c Contract) VerifyOutgoing(proof OutgoingProof, content []byte) error {
	if err := proof.Verify(content); err != nil {
		return err
	}
	if rt, ok := proof.(RegularTransfer); ok {
		if !rt.HashRoot.Equal(c.HashRoot.HashRoot) {
			return fmt.Errorf("htlc: hash root does not match contract")
		}
	}
	return nil
}

// PartialAmount returns the fraction of the contract's full balance
// releasable by presenting a preimage at hashDepth < hash_count: 1/hashDepth
// of the balance, per the contract's regular-transfer semantics.
func (c Contract) PartialAmount(hashDepth uint8) (uint64, error) {
	if hashDepth == 0 {
		return 0, fmt.Errorf("htlc: hash depth may not be zero")
	}
	if hashDepth >= c.HashRoot.HashCount {
		return c.Balance, nil
	}
	return c.Balance / uint64(hashDepth), nil
}
