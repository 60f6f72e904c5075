// Package blockchain holds the chain's core data model: the tagged
// Micro/Macro block variant, headers, bodies, fork proofs and
// transactions, plus the minimal chain bookkeeping the validators and sync
// state machines consume.
package blockchain

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/slots"
)

// AccountType identifies what kind of account a transaction's sender or
// recipient addresses.
type AccountType uint8

const (
	AccountBasic   AccountType = 1
	AccountHTLC    AccountType = 2
	AccountStaking AccountType = 3
)

// TxFlags are bit flags carried on a transaction.
type TxFlags uint8

const (
	FlagContractCreation TxFlags = 1 << 0
	FlagSignaling        TxFlags = 1 << 1
)

// ProtocolVersion is the only header version this node accepts.
const ProtocolVersion uint16 = 1

// GenesisParentHash is the canonical all-zeros parent hash carried by block
// #0, the width of a hex-encoded SHA-256 digest.
const GenesisParentHash = "0000000000000000000000000000000000000000000000000000000000000000"

// IsGenesisParentHash reports whether h is the canonical genesis parent
// hash.
func IsGenesisParentHash(h string) bool {
	return h == GenesisParentHash
}

// BlockHeader carries the fields common to both micro and macro headers.
// ParentElectionHash is only meaningful (non-empty) on macro headers.
type BlockHeader struct {
	Version            uint16 `json:"version"`
	BlockNumber        uint32 `json:"block_number"`
	ViewNumber         uint32 `json:"view_number"`
	Timestamp          uint64 `json:"timestamp"` // ms since epoch
	ParentHash         string `json:"parent_hash"`
	Seed               []byte `json:"seed"` // VRF seed wire bytes, see crypto.VRFSeedFromBytes
	StateRoot          string `json:"state_root"`
	BodyRoot           string `json:"body_root"`
	HistoryRoot        string `json:"history_root"`
	ParentElectionHash string `json:"parent_election_hash,omitempty"`
}

// Hash returns the deterministic hash of the header, used as ParentHash in
// the next block and as the content signed by the block's justification.
func (h BlockHeader) Hash() string {
	data, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// VRFSeed decodes the header's wire-encoded VRF seed.
func (h BlockHeader) VRFSeed() (crypto.VRFSeed, error) {
	return crypto.VRFSeedFromBytes(h.Seed)
}

// ForkProof binds two conflicting headers produced by the same slot owner
// at the same (block_number, view_number).
type ForkProof struct {
	Header1     BlockHeader `json:"header1"`
	Header2     BlockHeader `json:"header2"`
	PrevVRFSeed []byte      `json:"prev_vrf_seed"`
	Signature1  string      `json:"signature1"` // hex-encoded Schnorr signature
	Signature2  string      `json:"signature2"`
}

// Compare gives ForkProof a strict total order by (block_number,
// view_number, header1 hash), matching the ordering the body validator
// enforces over the fork-proof list.
func (f ForkProof) Compare(o ForkProof) int {
	if f.Header1.BlockNumber != o.Header1.BlockNumber {
		return cmpUint32(f.Header1.BlockNumber, o.Header1.BlockNumber)
	}
	if f.Header1.ViewNumber != o.Header1.ViewNumber {
		return cmpUint32(f.Header1.ViewNumber, o.Header1.ViewNumber)
	}
	return bytes.Compare([]byte(f.Header1.Hash()), []byte(o.Header1.Hash()))
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Transaction is the atomic unit of value transfer and intrinsic
// verification on the chain.
type Transaction struct {
	Sender              string      `json:"sender"`
	Recipient           string      `json:"recipient"`
	SenderType          AccountType `json:"sender_type"`
	RecipientType       AccountType `json:"recipient_type"`
	Value               uint64      `json:"value"`
	Fee                 uint64      `json:"fee"`
	ValidityStartHeight uint32      `json:"validity_start_height"`
	NetworkID           uint8       `json:"network_id"`
	Flags               TxFlags     `json:"flags"`
	Data                []byte      `json:"data"`
	Proof               []byte      `json:"proof"`
}

// validityWindow bounds how many blocks after ValidityStartHeight a
// transaction remains eligible for inclusion.
const validityWindow = 7200

// Compare gives Transaction a strict total order, matching the ordering the
// body validator enforces over the transaction list: by sender, then by
// signing content bytes to break ties deterministically.
func (t Transaction) Compare(o Transaction) int {
	if t.Sender != o.Sender {
		if t.Sender < o.Sender {
			return -1
		}
		return 1
	}
	return bytes.Compare(t.SigningContent(), o.SigningContent())
}

// IsValidAt reports whether the transaction may be included in the block at
// blockNumber, per its validity-start height and window.
func (t Transaction) IsValidAt(blockNumber uint32) bool {
	if blockNumber < t.ValidityStartHeight {
		return false
	}
	return blockNumber-t.ValidityStartHeight <= validityWindow
}

// HasFlag reports whether flag is set.
func (t Transaction) HasFlag(flag TxFlags) bool {
	return t.Flags&flag != 0
}

// ContractCreationAddress derives the deterministic address a
// contract-creation transaction's recipient must equal. It hashes every
// signed field except Recipient itself, since Recipient is exactly the
// value being derived and including it would make the derivation circular.
func (t Transaction) ContractCreationAddress() string {
	seed := t
	seed.Recipient = ""
	h := crypto.Hash(seed.SigningContent())
	if len(h) < 40 {
		return h
	}
	return h[:40]
}

// signingBody mirrors every field that is covered by Proof's signature.
type signingBody struct {
	Sender              string      `json:"sender"`
	Recipient           string      `json:"recipient"`
	SenderType          AccountType `json:"sender_type"`
	RecipientType       AccountType `json:"recipient_type"`
	Value               uint64      `json:"value"`
	Fee                 uint64      `json:"fee"`
	ValidityStartHeight uint32      `json:"validity_start_height"`
	NetworkID           uint8       `json:"network_id"`
	Flags               TxFlags     `json:"flags"`
	Data                []byte      `json:"data"`
}

// SigningContent returns the byte content that sender/recipient signature
// proofs are computed and verified over.
func (t Transaction) SigningContent() []byte {
	data, err := json.Marshal(signingBody{
		Sender: t.Sender, Recipient: t.Recipient,
		SenderType: t.SenderType, RecipientType: t.RecipientType,
		Value: t.Value, Fee: t.Fee,
		ValidityStartHeight: t.ValidityStartHeight, NetworkID: t.NetworkID,
		Flags: t.Flags, Data: t.Data,
	})
	if err != nil {
		return nil
	}
	return data
}

// MicroBody carries a micro block's fork proofs and transactions, each a
// strictly-ascending, duplicate-free sequence.
type MicroBody struct {
	ForkProofs   []ForkProof   `json:"fork_proofs"`
	Transactions []Transaction `json:"transactions"`
}

// MacroBody carries the election-block-only validator set and pk-tree root,
// plus the per-epoch lost-reward and disabled-slot bookkeeping every macro
// body carries.
type MacroBody struct {
	Validators    []slots.Validator `json:"validators,omitempty"`
	PkTreeRoot    []byte            `json:"pk_tree_root,omitempty"`
	LostRewards   []bool            `json:"lost_rewards"`
	DisabledSlots map[int]bool      `json:"disabled_slots"`
}

// IsElection reports whether this macro body carries election-block data.
func (b MacroBody) IsElection() bool {
	return b.Validators != nil
}

// Hash returns the deterministic hash of a micro body.
func (b MicroBody) Hash() string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Hash returns the deterministic hash of a macro body.
func (b MacroBody) Hash() string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Justification carries the proof that a block was legitimately produced:
// a single Schnorr signature (plus an optional view-change proof) for micro
// blocks, or an aggregated BLS commit proof for macro blocks.
type Justification struct {
	// Micro
	Signature       string           `json:"signature,omitempty"` // hex-encoded Schnorr signature
	ViewChangeProof *ViewChangeProof `json:"view_change_proof,omitempty"`

	// Macro
	AggregateSignature []byte `json:"aggregate_signature,omitempty"` // compressed BLS signature
	SignerBitmap       []bool `json:"signer_bitmap,omitempty"`
}

// ViewChangeProof is the aggregated BLS proof that a supermajority of the
// current validator set agreed to advance past a stalled view.
type ViewChangeProof struct {
	AggregateSignature []byte `json:"aggregate_signature"`
	SignerBitmap       []bool `json:"signer_bitmap"`
}

// ViewChangeMessage returns the content a view-change proof's aggregate
// signature covers.
func ViewChangeMessage(blockNumber uint32, newViewNumber uint32, vrfEntropy []byte) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], blockNumber)
	binary.BigEndian.PutUint32(buf[4:8], newViewNumber)
	msg := append([]byte("view-change:"), buf[:]...)
	return append(msg, vrfEntropy...)
}

// Block is the tagged Micro/Macro block variant. Exactly one of MicroBody
// or MacroBody is used, selected by IsMacro; either body pointer may be nil
// for a header-only (body-pruned) block.
type Block struct {
	Header        BlockHeader    `json:"header"`
	IsMacro       bool           `json:"is_macro"`
	Justification *Justification `json:"justification,omitempty"`
	MicroBody     *MicroBody     `json:"micro_body,omitempty"`
	MacroBody     *MacroBody     `json:"macro_body,omitempty"`
}

// Hash returns the header hash, which identifies the block on the chain.
func (b Block) Hash() string {
	return b.Header.Hash()
}

// HasBody reports whether either body variant is populated.
func (b Block) HasBody() bool {
	return b.MicroBody != nil || b.MacroBody != nil
}

// BodyHash returns the hash of whichever body is present, or "" if the
// block is header-only.
func (b Block) BodyHash() string {
	switch {
	case b.MicroBody != nil:
		return b.MicroBody.Hash()
	case b.MacroBody != nil:
		return b.MacroBody.Hash()
	default:
		return ""
	}
}

// IsElectionBlockAt reports whether the macro block at blockNumber
// terminates an election epoch, given how many blocks make up an epoch
// (each epoch ends in exactly one macro block) and how many epochs make up
// an election interval.
func IsElectionBlockAt(blockNumber, macroBlocksPerEpoch, electionEpochInterval uint32) bool {
	if macroBlocksPerEpoch == 0 || blockNumber%macroBlocksPerEpoch != 0 {
		return false
	}
	epoch := blockNumber / macroBlocksPerEpoch
	return epoch > 0 && epoch%electionEpochInterval == 0
}

// EpochOf returns the epoch index (0-based) a block number falls into.
func EpochOf(blockNumber, macroBlocksPerEpoch uint32) uint32 {
	if macroBlocksPerEpoch == 0 {
		return 0
	}
	return blockNumber / macroBlocksPerEpoch
}

// ChainInfo is the minimal per-block metadata the header validator reads
// off the local chain for a block's parent.
type ChainInfo struct {
	Header      BlockHeader
	IsMacro     bool
	OnMainChain bool
}
