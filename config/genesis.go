package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/htlc"
	"github.com/tolelom/stakechain/primitives"
	"github.com/tolelom/stakechain/slots"
)

// hashAlgorithmFromName maps the genesis config's human-readable algorithm
// name to the wire Algorithm tag, mirroring primitives' own JSON encoding.
func hashAlgorithmFromName(name string) (primitives.Algorithm, error) {
	switch name {
	case "blake2b":
		return primitives.Blake2b, nil
	case "sha256":
		return primitives.Sha256, nil
	case "sha512":
		return primitives.Sha512, nil
	default:
		return 0, fmt.Errorf("config: unknown hash algorithm %q", name)
	}
}

// BuildGenesisBlock seeds state from cfg.Genesis and produces block #0 as a
// macro (election) block carrying the initial validator set. It credits
// validators, stakers, basic accounts, vesting-seeded accounts and HTLC
// contracts into state, in that order, then computes the resulting state
// root and commits. It also commits the (empty) epoch-0 history so the
// first micro block's history-root check has something to extend.
func BuildGenesisBlock(cfg *Config, state blockchain.State, history blockchain.HistoryStore) (*blockchain.Block, error) {
	g := cfg.Genesis

	validators := make([]slots.Validator, 0, len(g.Validators))
	for _, v := range g.Validators {
		signingKey, err := crypto.PubKeyFromHex(v.SigningKeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: validator %s signing key: %w", v.Address, err)
		}
		votingKey, err := crypto.BLSPubKeyFromHex(v.VotingKeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: validator %s voting key: %w", v.Address, err)
		}
		validators = append(validators, slots.Validator{
			Address:    v.Address,
			SigningKey: signingKey,
			VotingKey:  votingKey,
			NumSlots:   v.NumSlots,
		})
		if err := state.SetAccount(&blockchain.Account{
			Address: v.RewardAddress,
			Type:    blockchain.AccountBasic,
		}); err != nil {
			return nil, err
		}
	}
	if _, err := slots.NewSet(validators); err != nil {
		return nil, fmt.Errorf("config: genesis validator set: %w", err)
	}

	for _, s := range g.Stakers {
		if err := state.SetAccount(&blockchain.Account{
			Address: s.Address,
			Type:    blockchain.AccountStaking,
			Balance: s.Balance,
		}); err != nil {
			return nil, err
		}
	}

	for _, a := range g.BasicAccounts {
		if err := state.SetAccount(&blockchain.Account{
			Address: a.Address,
			Type:    blockchain.AccountBasic,
			Balance: a.Balance,
		}); err != nil {
			return nil, err
		}
	}

	// Vesting accounts are seeded as plain basic-account balances; the
	// release schedule is recorded in the genesis config for node
	// operators to reason about but is not enforced by the account model,
	// which has no dedicated vesting kind.
	for _, v := range g.VestingContracts {
		if err := state.SetAccount(&blockchain.Account{
			Address: v.Address,
			Type:    blockchain.AccountBasic,
			Balance: v.Balance,
		}); err != nil {
			return nil, err
		}
	}

	for _, h := range g.HTLCContracts {
		algo, err := hashAlgorithmFromName(h.HashAlgorithm)
		if err != nil {
			return nil, err
		}
		digest, err := hexDigest(h.HashDigestHex)
		if err != nil {
			return nil, fmt.Errorf("config: htlc %s hash digest: %w", h.Address, err)
		}
		creation := htlc.CreationData{
			HashRoot:  primitives.AnyHash{Algorithm: algo, Digest: digest},
			HashCount: h.HashCount,
			Timeout:   h.Timeout,
		}
		sender, err := htlc.AddressFromHex(h.Sender)
		if err != nil {
			return nil, fmt.Errorf("config: htlc %s sender: %w", h.Address, err)
		}
		recipient, err := htlc.AddressFromHex(h.Recipient)
		if err != nil {
			return nil, fmt.Errorf("config: htlc %s recipient: %w", h.Address, err)
		}
		creation.Sender = sender
		creation.Recipient = recipient
		contract, err := htlc.Open(creation, h.Balance)
		if err != nil {
			return nil, fmt.Errorf("config: open htlc %s: %w", h.Address, err)
		}
		if err := state.SetAccount(&blockchain.Account{
			Address: h.Address,
			Type:    blockchain.AccountHTLC,
			Balance: h.Balance,
			HTLC:    &contract,
		}); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}
	historyRoot, err := history.Commit(0, nil)
	if err != nil {
		return nil, fmt.Errorf("config: commit epoch-0 history: %w", err)
	}

	var genesisTime time.Time
	if g.GenesisTime != "" {
		t, err := time.Parse(time.RFC3339, g.GenesisTime)
		if err != nil {
			return nil, fmt.Errorf("config: genesis_time: %w", err)
		}
		genesisTime = t
	}

	block := &blockchain.Block{
		Header: blockchain.BlockHeader{
			Version:     blockchain.ProtocolVersion,
			BlockNumber: 0,
			ViewNumber:  0,
			Timestamp:   uint64(genesisTime.UnixMilli()),
			ParentHash:  blockchain.GenesisParentHash,
			StateRoot:   stateRoot,
			HistoryRoot: historyRoot,
		},
		IsMacro: true,
		MacroBody: &blockchain.MacroBody{
			Validators:    validators,
			LostRewards:   make([]bool, len(validators)),
			DisabledSlots: map[int]bool{},
		},
	}
	block.Header.BodyRoot = block.MacroBody.Hash()
	return block, nil
}

func hexDigest(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
