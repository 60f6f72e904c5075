package sync

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/merkle"
)

// epochTimerHandle is a manually-invalidated stand-in for a weak
// back-reference from an armed timer to the MacroBlockSyncState that owns
// it. The timer callback holds this handle, not the state itself, so an
// OnClose (or a newer timer superseding an older one) can mark it invalid;
// the callback revalidates under the owner's lock before acting and is a
// no-op if it finds itself stale.
type epochTimerHandle struct {
	mu    sync.Mutex
	valid bool
	owner *MacroBlockSyncState
}

func (h *epochTimerHandle) invalidate() {
	h.mu.Lock()
	h.valid = false
	h.mu.Unlock()
}

func (h *epochTimerHandle) fire() {
	h.mu.Lock()
	valid := h.valid
	h.mu.Unlock()
	if !valid {
		return
	}
	h.owner.onEpochTimeout(h)
}

// MacroBlockSyncState drives the three-phase sync: macro blocks are cached
// and, one epoch at a time, matched against a Merkle-proved transaction
// set fetched separately, before falling through to an ordinary forward
// micro-block stream.
type MacroBlockSyncState struct {
	chain Chain
	peer  PeerLink

	macroBlocksPerEpoch uint32

	mu                sync.Mutex
	phase             Phase
	blockCache        []*blockchain.Block
	processingEpoch   bool
	transactionsCache []blockchain.Transaction
	timer             *time.Timer
	timerHandle       *epochTimerHandle

	// OnEpochComplete, if set, is notified (outside the state's lock) each
	// time an epoch's macro block is pushed with its full transaction set.
	OnEpochComplete func(block *blockchain.Block, txs []blockchain.Transaction)
}

// NewMacroBlockSyncState builds a MacroBlockSyncState driving peer against
// chain, deriving epoch boundaries from macroBlocksPerEpoch. The new state
// starts in PhaseMacroBlocks, not PhaseFinished, so macro blocks passed to
// OnBlock are cached even before Initiate is called.
func NewMacroBlockSyncState(chain Chain, peer PeerLink, macroBlocksPerEpoch uint32) *MacroBlockSyncState {
	return &MacroBlockSyncState{
		chain:               chain,
		peer:                peer,
		macroBlocksPerEpoch: macroBlocksPerEpoch,
		phase:               PhaseMacroBlocks,
	}
}

func (s *MacroBlockSyncState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *MacroBlockSyncState) Initiate() {
	s.mu.Lock()
	s.phase = PhaseMacroBlocks
	s.mu.Unlock()
	s.peer.RequestBlocks(s.Locators(maxLocators), maxBlocksPerRequest, true)
}

func (s *MacroBlockSyncState) Locators(max int) []string {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	if phase == PhaseMacroBlocks {
		return s.chain.MacroBlockLocators(max)
	}
	return s.chain.BlockLocators(max)
}

// OnBlock queues macro blocks awaiting their epoch's transactions during
// the macro phase; everything else (micro blocks, and any block once the
// macro phase has ended) goes straight to the chain.
func (s *MacroBlockSyncState) OnBlock(block *blockchain.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseMacroBlocks && block.IsMacro {
		if len(s.blockCache) >= BlockCacheSoftLimit {
			return
		}
		s.blockCache = append(s.blockCache, block)
		s.pumpLocked()
		return
	}
	s.chain.Push(block)
}

// pumpLocked arms the next epoch's transaction request whenever no epoch
// is currently being processed and a macro block is waiting for one. Must
// be called with mu held; the invariant it maintains is that
// processingEpoch is true iff exactly one epoch timer is armed.
func (s *MacroBlockSyncState) pumpLocked() {
	if s.processingEpoch || len(s.blockCache) == 0 {
		return
	}
	s.processingEpoch = true
	front := s.blockCache[0]
	epoch := blockchain.EpochOf(front.Header.BlockNumber, s.macroBlocksPerEpoch)
	s.armTimerLocked()
	s.peer.RequestEpochTransactions(epoch)
}

// OnEpochTransactions verifies one chunk of an epoch's transactions. Every
// chunk — not just the last — is checked with a Merkle consistency proof
// binding the leaves accumulated so far (this chunk included) to
// front.Header.HistoryRoot, the macro block's already-committed root: a
// chunk of garbage transactions is rejected as soon as it arrives, rather
// than only once every chunk has been accumulated.
func (s *MacroBlockSyncState) OnEpochTransactions(msg EpochTransactionsMessage) {
	s.mu.Lock()

	if s.phase != PhaseMacroBlocks || !s.processingEpoch || len(s.blockCache) == 0 {
		s.mu.Unlock()
		s.peer.Close(CloseUnexpectedEpochTransactions)
		s.OnClose()
		return
	}
	front := s.blockCache[0]
	if !front.IsMacro || blockchain.EpochOf(front.Header.BlockNumber, s.macroBlocksPerEpoch) != msg.Epoch {
		s.mu.Unlock()
		s.peer.Close(CloseUnexpectedEpochTransactions)
		s.OnClose()
		return
	}

	committedRoot, err := hex.DecodeString(front.Header.HistoryRoot)
	if err != nil {
		s.mu.Unlock()
		s.peer.Close(CloseInvalidEpochTransactions)
		s.OnClose()
		return
	}

	merged := make([]blockchain.Transaction, 0, len(s.transactionsCache)+len(msg.Transactions))
	merged = append(merged, s.transactionsCache...)
	merged = append(merged, msg.Transactions...)
	newLeaves := leavesOf(merged)

	if msg.Total <= 0 || len(newLeaves) > msg.Total || (msg.Last && len(newLeaves) != msg.Total) {
		s.mu.Unlock()
		s.peer.Close(CloseInvalidEpochTransactions)
		s.OnClose()
		return
	}

	ok, vErr := merkle.VerifyConsistency(len(newLeaves), msg.Total, merkle.Root(newLeaves), committedRoot, msg.Proof)
	if vErr != nil || !ok {
		s.mu.Unlock()
		s.peer.Close(CloseInvalidEpochTransactions)
		s.OnClose()
		return
	}
	s.transactionsCache = merged

	if !msg.Last {
		s.resetEpochTimerLocked()
		s.mu.Unlock()
		return
	}

	s.cancelTimerLocked()
	s.blockCache = s.blockCache[1:]
	txs := s.transactionsCache
	s.transactionsCache = nil
	s.processingEpoch = false
	callback := s.OnEpochComplete
	s.pumpLocked()
	s.mu.Unlock()

	s.chain.PushIsolatedMacroBlock(front, txs)
	if callback != nil {
		callback(front, txs)
	}
}

// OnNoNewObjectsAnnounced advances the phase: MacroBlocks -> MicroBlocks on
// the first call once the peer has nothing further to offer, then
// MicroBlocks -> Finished on the second. Finished is a fixpoint.
func (s *MacroBlockSyncState) OnNoNewObjectsAnnounced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseMacroBlocks:
		s.phase = PhaseMicroBlocks
	case PhaseMicroBlocks:
		s.phase = PhaseFinished
	}
}

func (s *MacroBlockSyncState) OnClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.blockCache = nil
	s.transactionsCache = nil
	s.processingEpoch = false
}

func (s *MacroBlockSyncState) onEpochTimeout(h *epochTimerHandle) {
	s.mu.Lock()
	if s.timerHandle != h {
		// Superseded by a newer timer or already cancelled; stale fire.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.peer.Close(CloseGetEpochTransactionsTimeout)
	s.OnClose()
}

func (s *MacroBlockSyncState) armTimerLocked() {
	handle := &epochTimerHandle{valid: true, owner: s}
	s.timerHandle = handle
	s.timer = time.AfterFunc(RequestTimeout, handle.fire)
}

func (s *MacroBlockSyncState) resetEpochTimerLocked() {
	s.cancelTimerLocked()
	s.armTimerLocked()
}

func (s *MacroBlockSyncState) cancelTimerLocked() {
	if s.timerHandle != nil {
		s.timerHandle.invalidate()
		s.timerHandle = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func leavesOf(txs []blockchain.Transaction) [][]byte {
	leaves := make([][]byte, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.SigningContent()
	}
	return leaves
}
