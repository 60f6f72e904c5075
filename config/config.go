package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node ID
	Addr string `json:"addr"` // host:port
}

// GenesisConfig describes the chain's initial state: its network
// identifier plus every account the genesis block seeds, grouped by
// account kind the way the original genesis builder lays them out.
type GenesisConfig struct {
	ChainID     string `json:"chain_id"`
	NetworkID   uint8  `json:"network_id"`
	GenesisTime string `json:"genesis_time"` // RFC 3339

	Validators       []GenesisValidator `json:"validators"`
	Stakers          []GenesisStaker    `json:"stakers,omitempty"`
	BasicAccounts    []GenesisAccount   `json:"basic_accounts,omitempty"`
	VestingContracts []GenesisVesting   `json:"vesting_contracts,omitempty"`
	HTLCContracts    []GenesisHTLC      `json:"htlc_contracts,omitempty"`
}

// GenesisValidator is one founding member of the initial validator set.
type GenesisValidator struct {
	Address       string `json:"address"`
	SigningKeyHex string `json:"signing_key"` // hex ed25519 public key
	VotingKeyHex  string `json:"voting_key"`  // hex BLS public key
	NumSlots      int    `json:"num_slots"`
	RewardAddress string `json:"reward_address"`
}

// GenesisStaker is an initial delegation of balance to a validator.
type GenesisStaker struct {
	Address         string `json:"address"`
	Balance         uint64 `json:"balance"`
	DelegatedTo     string `json:"delegated_to"` // validator address
}

// GenesisAccount is a plain basic-account balance credit.
type GenesisAccount struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// GenesisVesting seeds a basic account with an attached vesting schedule
// tracked as opaque contract data rather than a distinct account type,
// since spec.md's account-type set has no dedicated vesting kind.
type GenesisVesting struct {
	Address      string `json:"address"`
	Balance      uint64 `json:"balance"`
	StartHeight  uint32 `json:"start_height"`
	StepBlocks   uint32 `json:"step_blocks"`
	StepAmount   uint64 `json:"step_amount"`
}

// GenesisHTLC seeds an HTLC account directly with an already-open contract.
type GenesisHTLC struct {
	Address       string `json:"address"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	HashAlgorithm string `json:"hash_algorithm"` // "blake2b", "sha256" or "sha512"
	HashDigestHex string `json:"hash_digest"`
	HashCount     uint8  `json:"hash_count"`
	Timeout       uint64 `json:"timeout"`
	Balance       uint64 `json:"balance"`
}

// Config holds all node configuration.
type Config struct {
	NodeID              string        `json:"node_id"`
	DataDir             string        `json:"data_dir"`
	RPCPort             int           `json:"rpc_port"`
	P2PPort             int           `json:"p2p_port"`
	MacroBlocksPerEpoch uint32        `json:"macro_blocks_per_epoch"`
	ElectionEpochInterval uint32      `json:"election_epoch_interval"`
	Genesis             GenesisConfig `json:"genesis"`
	SeedPeers           []SeedPeer    `json:"seed_peers,omitempty"`     // initial peers to connect to
	TLS                 *TLSConfig    `json:"tls,omitempty"`            // nil → plain TCP
	RPCAuthToken        string        `json:"rpc_auth_token,omitempty"` // empty → no auth
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:                "node0",
		DataDir:               "./data",
		RPCPort:               8545,
		P2PPort:               30303,
		MacroBlocksPerEpoch:   32,
		ElectionEpochInterval: 1,
		Genesis: GenesisConfig{
			ChainID:   "stakechain-dev",
			NetworkID: 1,
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if len(c.Genesis.Validators) == 0 {
		return fmt.Errorf("genesis.validators list must not be empty")
	}
	for i, v := range c.Genesis.Validators {
		b, err := hex.DecodeString(v.SigningKeyHex)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("genesis.validators[%d]: signing_key must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, v.SigningKeyHex)
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
