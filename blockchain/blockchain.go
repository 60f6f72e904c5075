package blockchain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/stakechain/events"
	"github.com/tolelom/stakechain/slots"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// BlockStore is the persistence interface used by Blockchain. Implementations
// live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	PutBlock(block *Block) error
	GetBlockByHeight(height uint32) (*Block, error)
	PutBlockByHeight(height uint32, hash string) error
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	SetTip(hash string) error
	// CommitBlock atomically writes the block, its height index entry, and
	// updates the tip pointer in a single batch operation.
	CommitBlock(block *Block) error
}

// PushResult reports how a pushed block was accepted.
type PushResult int

const (
	PushExtended PushResult = iota
	PushIgnoredKnown
)

// PushError carries the machine-distinguishable reason a push was rejected.
type PushError struct {
	Kind string
	Err  error
}

func (e *PushError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *PushError) Unwrap() error { return e.Err }

// Validator is the collaborator Blockchain fans a candidate block through:
// header, justification, body and state checks, in that order. Concrete
// implementations live in the validator package; Blockchain depends only on
// this interface to avoid an import cycle with it.
type Validator interface {
	ValidateHeader(header BlockHeader, isMacro bool, parent ChainInfo, now uint64, checkSeed bool, validators *slots.Set) error
	ValidateJustification(block Block, parent ChainInfo, validators *slots.Set) error
	ValidateBody(block Block, validators *slots.Set) error
	ValidateState(block Block, accounts State, history HistoryStore, validators *slots.Set) (*MacroBody, error)
}

// Blockchain manages the canonical chain: stores blocks, tracks the tip, the
// election head and the active validator set, and fans candidate blocks
// through the injected Validator.
type Blockchain struct {
	mu      sync.RWMutex
	store   BlockStore
	val     Validator
	state   State
	history HistoryStore
	emitter *events.Emitter

	tip           *Block
	electionHead  *Block
	validators    *slots.Set
	macroPerEpoch uint32
	electionEvery uint32
}

// Config bundles the epoch-shape constants used to derive election-block
// boundaries.
type Config struct {
	MacroBlocksPerEpoch   uint32
	ElectionEpochInterval uint32
}

// New returns a Blockchain backed by store, validating pushed blocks with
// val and tracking account/history state via state and history.
func New(store BlockStore, val Validator, state State, history HistoryStore, cfg Config, genesisValidators *slots.Set) *Blockchain {
	return &Blockchain{
		store:         store,
		val:           val,
		state:         state,
		history:       history,
		validators:    genesisValidators,
		macroPerEpoch: cfg.MacroBlocksPerEpoch,
		electionEvery: cfg.ElectionEpochInterval,
	}
}

// SetValidator wires val in as the chain's validator. Exists so callers can
// construct the chain first and hand it to the validator pipeline as its
// Chain collaborator before the pipeline itself is wired back in, avoiding a
// construction-order cycle between Blockchain and Pipeline.
func (bc *Blockchain) SetValidator(val Validator) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.val = val
}

// SetEmitter wires emitter in so Push, CommitGenesis and
// PushIsolatedMacroBlock announce EventBlockProcessed once a candidate
// block has been resolved. Optional: a Blockchain with no emitter wired
// simply does not announce.
func (bc *Blockchain) SetEmitter(emitter *events.Emitter) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.emitter = emitter
}

// emitBlockProcessed announces block's resolution, if an emitter is wired.
// txs is the block's transaction list (nil for a macro block, which carries
// none of its own).
func (bc *Blockchain) emitBlockProcessed(block *Block, txs []Transaction) {
	if bc.emitter == nil {
		return
	}
	bc.emitter.Emit(events.Event{
		Type:        events.EventBlockProcessed,
		BlockHash:   block.Hash(),
		BlockNumber: block.Header.BlockNumber,
		Data:        map[string]any{"transactions": txs},
	})
}

// Init loads the persisted tip from the block store. The election head is
// restored only when the tip is itself an election block; otherwise it
// stays unset.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil // fresh chain
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	if tip.IsMacro && tip.MacroBody != nil && tip.MacroBody.IsElection() {
		bc.electionHead = tip
	}
	return nil
}

// Now returns the current time in milliseconds since the Unix epoch.
func (bc *Blockchain) Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

// ChainInfo returns the chain metadata for the block identified by hash, if
// known locally.
func (bc *Blockchain) ChainInfo(hash string) (ChainInfo, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	block, err := bc.store.GetBlock(hash)
	if err != nil || block == nil {
		return ChainInfo{}, false
	}
	return ChainInfo{Header: block.Header, IsMacro: block.IsMacro, OnMainChain: true}, true
}

// ExpectedNextBlockType reports whether the block following parentNumber
// must be a macro block (true) or a micro block (false).
func (bc *Blockchain) ExpectedNextBlockType(parentNumber uint32) bool {
	if bc.macroPerEpoch == 0 {
		return false
	}
	return (parentNumber+1)%bc.macroPerEpoch == 0
}

// EpochConfig returns the macro-blocks-per-epoch and election-epoch-interval
// constants this chain was configured with.
func (bc *Blockchain) EpochConfig() Config {
	return Config{MacroBlocksPerEpoch: bc.macroPerEpoch, ElectionEpochInterval: bc.electionEvery}
}

// ElectionHeadHash returns the hash of the most recent election block.
func (bc *Blockchain) ElectionHeadHash() string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.electionHead == nil {
		return ""
	}
	return bc.electionHead.Hash()
}

// CurrentValidators returns the active validator set, if any is known.
func (bc *Blockchain) CurrentValidators() (*slots.Set, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.validators, bc.validators != nil
}

// SlotOwnerWithSeed looks up the validator entitled to the slot derived
// from (blockNumber, viewNumber, prevVRFSeed) under the current validator
// set.
func (bc *Blockchain) SlotOwnerWithSeed(blockNumber, viewNumber uint32, prevVRFSeed []byte) (slots.Validator, int, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.validators == nil {
		return slots.Validator{}, 0, false
	}
	return bc.validators.Owner(blockNumber, viewNumber, prevVRFSeed)
}

// HistoryStore exposes the configured history-store collaborator.
func (bc *Blockchain) HistoryStore() HistoryStore { return bc.history }

// Accounts exposes the configured accounts-state collaborator.
func (bc *Blockchain) Accounts() State { return bc.state }

// BlockAtHeight returns the locally stored block at height, if any.
func (bc *Blockchain) BlockAtHeight(height uint32) (*Block, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	b, err := bc.store.GetBlockByHeight(height)
	if err != nil || b == nil {
		return nil, false
	}
	return b, true
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// CommitGenesis commits block as block #0 without running it through the
// validator pipeline: there is no parent to validate against and the
// validator set it carries is exactly the one the header/justification
// validators would otherwise need in hand before they could run. Callers
// must only ever pass a block built by config.BuildGenesisBlock.
func (bc *Blockchain) CommitGenesis(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.tip != nil {
		return fmt.Errorf("commit genesis: chain already has a tip")
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit genesis block: %w", err)
	}
	bc.tip = block
	if block.IsMacro {
		if block.MacroBody != nil && block.MacroBody.IsElection() {
			bc.electionHead = block
			if vs, err := slots.NewSet(block.MacroBody.Validators); err == nil {
				bc.validators = vs
			}
		}
	}
	bc.emitBlockProcessed(block, nil)
	return nil
}

// Push validates and, on success, appends block to the chain, fanning it
// through the header, justification, body and state validators in order.
func (bc *Blockchain) Push(block *Block) (PushResult, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if existing, err := bc.store.GetBlock(block.Hash()); err == nil && existing != nil {
		return PushIgnoredKnown, nil
	}

	var parent ChainInfo
	if bc.tip != nil {
		parent = ChainInfo{Header: bc.tip.Header, IsMacro: bc.tip.IsMacro, OnMainChain: true}
	}

	if err := bc.val.ValidateHeader(block.Header, block.IsMacro, parent, bc.Now(), true, bc.validators); err != nil {
		pushErr := &PushError{Kind: "InvalidHeader", Err: err}
		bc.emitBlockProcessed(block, nil)
		return 0, pushErr
	}
	if err := bc.val.ValidateJustification(*block, parent, bc.validators); err != nil {
		pushErr := &PushError{Kind: "InvalidJustification", Err: err}
		bc.emitBlockProcessed(block, nil)
		return 0, pushErr
	}
	if err := bc.val.ValidateBody(*block, bc.validators); err != nil {
		pushErr := &PushError{Kind: "InvalidBody", Err: err}
		bc.emitBlockProcessed(block, nil)
		return 0, pushErr
	}
	macroBody, err := bc.val.ValidateState(*block, bc.state, bc.history, bc.validators)
	if err != nil {
		pushErr := &PushError{Kind: "InvalidState", Err: err}
		bc.emitBlockProcessed(block, nil)
		return 0, pushErr
	}
	if macroBody != nil && block.MacroBody == nil {
		block.MacroBody = macroBody
	}

	if err := bc.store.CommitBlock(block); err != nil {
		return 0, fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	if block.IsMacro {
		if block.MacroBody != nil && block.MacroBody.IsElection() {
			bc.electionHead = block
			if vs, verr := slots.NewSet(block.MacroBody.Validators); verr == nil {
				bc.validators = vs
			}
		}
	}
	var txs []Transaction
	if block.MicroBody != nil {
		txs = block.MicroBody.Transactions
	}
	bc.emitBlockProcessed(block, txs)
	return PushExtended, nil
}

// PushIsolatedMacroBlock pushes a macro block received without its epoch's
// preceding micro blocks, as happens during macro-block sync.
func (bc *Blockchain) PushIsolatedMacroBlock(block *Block, epochTxs []Transaction) (PushResult, error) {
	if _, err := bc.history.Commit(EpochOf(block.Header.BlockNumber, bc.macroPerEpoch), epochTxs); err != nil {
		return 0, fmt.Errorf("commit epoch history: %w", err)
	}
	return bc.Push(block)
}

// BlockLocators returns up to max block hashes, most recent first, used to
// seed an ordinary forward block request.
func (bc *Blockchain) BlockLocators(max int) []string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.locators(max, false)
}

// MacroBlockLocators returns up to max macro-block hashes, most recent
// first, used to seed a macro-only block request.
func (bc *Blockchain) MacroBlockLocators(max int) []string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.locators(max, true)
}

func (bc *Blockchain) locators(max int, macroOnly bool) []string {
	if bc.tip == nil {
		return nil
	}
	out := make([]string, 0, max)
	cur := bc.tip
	for len(out) < max {
		if !macroOnly || cur.IsMacro {
			out = append(out, cur.Hash())
		}
		if cur.Header.ParentHash == "" {
			break
		}
		parent, err := bc.store.GetBlock(cur.Header.ParentHash)
		if err != nil || parent == nil {
			break
		}
		cur = parent
	}
	return out
}
