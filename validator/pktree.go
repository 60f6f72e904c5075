package validator

import (
	"encoding/hex"

	"github.com/tolelom/stakechain/merkle"
	"github.com/tolelom/stakechain/slots"
)

// derivePkTreeRoot computes the Merkle root over an election epoch's
// validator voting keys, the value a macro block's pk_tree_root field must
// equal.
func derivePkTreeRoot(validators []slots.Validator) []byte {
	leaves := make([][]byte, len(validators))
	for i, v := range validators {
		raw, _ := hex.DecodeString(v.VotingKey.Hex())
		leaves[i] = raw
	}
	return merkle.Root(leaves)
}
