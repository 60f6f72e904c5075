package sync

import (
	"testing"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/merkle"
)

// fakeChain is a test double for Chain recording what was pushed.
type fakeChain struct {
	pushed        []*blockchain.Block
	isolatedPush  []isolatedPush
	blockLocators []string
	macroLocators []string
}

type isolatedPush struct {
	block *blockchain.Block
	txs   []blockchain.Transaction
}

func (c *fakeChain) BlockLocators(max int) []string      { return c.blockLocators }
func (c *fakeChain) MacroBlockLocators(max int) []string { return c.macroLocators }

func (c *fakeChain) Push(block *blockchain.Block) (blockchain.PushResult, error) {
	c.pushed = append(c.pushed, block)
	return blockchain.PushExtended, nil
}

func (c *fakeChain) PushIsolatedMacroBlock(block *blockchain.Block, txs []blockchain.Transaction) (blockchain.PushResult, error) {
	c.isolatedPush = append(c.isolatedPush, isolatedPush{block, txs})
	return blockchain.PushExtended, nil
}

// fakePeerLink is a test double for PeerLink recording requests and closes.
type fakePeerLink struct {
	blocksRequested int
	epochsRequested []uint32
	closedWith      *CloseReason
}

func (p *fakePeerLink) RequestBlocks(locators []string, max int, macroOnly bool) error {
	p.blocksRequested++
	return nil
}

func (p *fakePeerLink) RequestEpochTransactions(epoch uint32) error {
	p.epochsRequested = append(p.epochsRequested, epoch)
	return nil
}

func (p *fakePeerLink) Close(reason CloseReason) {
	r := reason
	p.closedWith = &r
}

func macroBlock(number uint32, historyRoot string) *blockchain.Block {
	return &blockchain.Block{
		Header: blockchain.BlockHeader{BlockNumber: number, HistoryRoot: historyRoot},
		IsMacro: true,
	}
}

func microBlock(number uint32) *blockchain.Block {
	return &blockchain.Block{
		Header: blockchain.BlockHeader{BlockNumber: number},
		IsMacro: false,
	}
}

func testTx(nonce uint64) blockchain.Transaction {
	return blockchain.Transaction{
		Sender: "sender", Recipient: "recipient",
		Value: nonce, Fee: 1, ValidityStartHeight: 0, NetworkID: 1,
	}
}

func rootOf(txs ...blockchain.Transaction) string {
	leaves := leavesOf(txs)
	return merkle.RootHex(leaves)
}

// TestMacroBlockSyncLifecycle exercises property 12: a new state starts in
// MacroBlocks, two NoNewObjectsAnnounced calls carry it MacroBlocks ->
// MicroBlocks -> Finished, and Finished is a terminal fixpoint.
func TestMacroBlockSyncLifecycle(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	if s.Phase() != PhaseMacroBlocks {
		t.Fatalf("initial phase: got %v want MacroBlocks", s.Phase())
	}
	s.Initiate()
	if peer.blocksRequested != 1 {
		t.Fatalf("expected Initiate to request blocks once, got %d", peer.blocksRequested)
	}

	s.OnNoNewObjectsAnnounced()
	if s.Phase() != PhaseMicroBlocks {
		t.Fatalf("phase after first announcement: got %v want MicroBlocks", s.Phase())
	}
	s.OnNoNewObjectsAnnounced()
	if s.Phase() != PhaseFinished {
		t.Fatalf("phase after second announcement: got %v want Finished", s.Phase())
	}
	// Finished is a fixpoint.
	s.OnNoNewObjectsAnnounced()
	if s.Phase() != PhaseFinished {
		t.Fatalf("phase should stay Finished, got %v", s.Phase())
	}
}

// TestMacroBlockSyncSingleChunkEpoch covers scenario E6's simple case: one
// macro block, one epoch-transactions chunk marked last, full root
// matching the block's history root.
func TestMacroBlockSyncSingleChunkEpoch(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	txs := []blockchain.Transaction{testTx(1), testTx(2)}
	block := macroBlock(4, rootOf(txs...))

	s.OnBlock(block)
	if len(peer.epochsRequested) != 1 || peer.epochsRequested[0] != 1 {
		t.Fatalf("expected epoch 1 requested once, got %v", peer.epochsRequested)
	}

	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: txs, Total: len(txs), Last: true})

	if len(chain.isolatedPush) != 1 {
		t.Fatalf("expected one isolated push, got %d", len(chain.isolatedPush))
	}
	if chain.isolatedPush[0].block.Hash() != block.Hash() {
		t.Error("pushed block should be the macro block")
	}
	if len(chain.isolatedPush[0].txs) != 2 {
		t.Errorf("pushed txs: got %d want 2", len(chain.isolatedPush[0].txs))
	}
	if peer.closedWith != nil {
		t.Errorf("peer should not be closed, got %v", *peer.closedWith)
	}
}

// TestMacroBlockSyncIncrementalChunks delivers an epoch's transactions
// across two chunks (last=false then last=true). Each chunk — including the
// first, non-final one — carries a consistency proof binding the leaves
// accumulated so far directly to the macro block's committed history root,
// mirroring scenario E6.
func TestMacroBlockSyncIncrementalChunks(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	first := []blockchain.Transaction{testTx(1), testTx(2)}
	second := []blockchain.Transaction{testTx(3)}
	full := append(append([]blockchain.Transaction{}, first...), second...)
	fullLeaves := leavesOf(full)
	total := len(fullLeaves)
	block := macroBlock(4, rootOf(full...))

	s.OnBlock(block)

	firstProof, err := merkle.ConsistencyProof(len(first), total, fullLeaves)
	if err != nil {
		t.Fatalf("ConsistencyProof: %v", err)
	}

	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: first, Total: total, Proof: firstProof, Last: false})
	if peer.closedWith != nil {
		t.Fatalf("peer closed after first chunk: %v", *peer.closedWith)
	}
	if len(chain.isolatedPush) != 0 {
		t.Fatal("should not push before last chunk arrives")
	}

	// The second chunk completes the tree (m == n == total), so no proof is
	// needed: VerifyConsistency degenerates to a direct root comparison.
	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: second, Total: total, Last: true})
	if peer.closedWith != nil {
		t.Fatalf("peer closed after last chunk: %v", *peer.closedWith)
	}
	if len(chain.isolatedPush) != 1 {
		t.Fatalf("expected one isolated push, got %d", len(chain.isolatedPush))
	}
	if len(chain.isolatedPush[0].txs) != 3 {
		t.Errorf("pushed txs: got %d want 3", len(chain.isolatedPush[0].txs))
	}
}

// TestMacroBlockSyncForgedNonFinalChunk verifies the fix for the gap where a
// non-final chunk was only checked for internal self-consistency: a first
// chunk carrying transactions that were never part of the macro block's
// committed history (here, with no proof binding it to that root at all)
// must be rejected immediately, not accumulated and only caught when the
// final chunk's root fails to match.
func TestMacroBlockSyncForgedNonFinalChunk(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	genuine := []blockchain.Transaction{testTx(1), testTx(2), testTx(3)}
	block := macroBlock(4, rootOf(genuine...))
	s.OnBlock(block)

	forged := []blockchain.Transaction{testTx(99), testTx(100)}
	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: forged, Total: len(genuine), Last: false})

	if peer.closedWith == nil || *peer.closedWith != CloseInvalidEpochTransactions {
		t.Fatalf("expected CloseInvalidEpochTransactions on a forged non-final chunk, got %v", peer.closedWith)
	}
	if len(chain.isolatedPush) != 0 {
		t.Error("a forged non-final chunk must not be accumulated toward a push")
	}
}

// TestMacroBlockSyncInvalidFullRoot verifies law 15: a last chunk whose
// recomputed full root mismatches the block's history root closes the peer
// and leaves no armed timer.
func TestMacroBlockSyncInvalidFullRoot(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	block := macroBlock(4, rootOf(testTx(1)))
	s.OnBlock(block)

	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: []blockchain.Transaction{testTx(99)}, Total: 1, Last: true})

	if peer.closedWith == nil || *peer.closedWith != CloseInvalidEpochTransactions {
		t.Fatalf("expected CloseInvalidEpochTransactions, got %v", peer.closedWith)
	}
	if len(chain.isolatedPush) != 0 {
		t.Error("should not push on an invalid root")
	}
	if s.timer != nil || s.timerHandle != nil {
		t.Error("no timer should remain armed after closing")
	}
}

// TestMacroBlockSyncUnexpectedEpochMismatch verifies that a reply for an
// epoch other than the one currently being processed is rejected as
// unexpected rather than silently accepted.
func TestMacroBlockSyncUnexpectedEpochMismatch(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	block := macroBlock(4, rootOf(testTx(1)))
	s.OnBlock(block)

	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 7, Transactions: []blockchain.Transaction{testTx(1)}, Last: true})

	if peer.closedWith == nil || *peer.closedWith != CloseUnexpectedEpochTransactions {
		t.Fatalf("expected CloseUnexpectedEpochTransactions, got %v", peer.closedWith)
	}
}

// TestMacroBlockSyncUnexpectedWithoutPending verifies that an
// epoch-transactions message arriving with nothing pending (no block
// cached, no epoch being processed) is rejected as unexpected.
func TestMacroBlockSyncUnexpectedWithoutPending(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: nil, Last: true})

	if peer.closedWith == nil || *peer.closedWith != CloseUnexpectedEpochTransactions {
		t.Fatalf("expected CloseUnexpectedEpochTransactions, got %v", peer.closedWith)
	}
}

// TestMacroBlockSyncMicroBlockDuringMacroPhase verifies that a micro block
// arriving while still in the macro phase is pushed directly rather than
// queued into the macro block cache.
func TestMacroBlockSyncMicroBlockDuringMacroPhase(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	block := microBlock(1)
	s.OnBlock(block)

	if len(chain.pushed) != 1 || chain.pushed[0].Hash() != block.Hash() {
		t.Fatal("micro block should be pushed directly")
	}
	if len(s.blockCache) != 0 {
		t.Error("micro block should not enter the macro block cache")
	}
}

// TestMacroBlockSyncProcessingPumpInvariant verifies law 13: processingEpoch
// is true exactly while a timer is armed, and a second macro block arriving
// before the first epoch resolves does not trigger a second request.
func TestMacroBlockSyncProcessingPumpInvariant(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	s := NewMacroBlockSyncState(chain, peer, 4)

	first := macroBlock(4, rootOf(testTx(1)))
	second := macroBlock(8, rootOf(testTx(2)))

	s.OnBlock(first)
	if !s.processingEpoch || s.timerHandle == nil {
		t.Fatal("processingEpoch and timer should be set after first block")
	}
	s.OnBlock(second)
	if len(peer.epochsRequested) != 1 {
		t.Fatalf("second block should not trigger a second request while one is outstanding, got %v", peer.epochsRequested)
	}

	s.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Transactions: []blockchain.Transaction{testTx(1)}, Total: 1, Last: true})

	if len(peer.epochsRequested) != 2 || peer.epochsRequested[1] != 2 {
		t.Fatalf("expected second epoch requested after first resolves, got %v", peer.epochsRequested)
	}
}

// TestFullSyncRejectsEpochTransactions verifies FullSync never expects an
// epoch-transactions message.
func TestFullSyncRejectsEpochTransactions(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	fs := NewFullSync(chain, peer)

	fs.OnEpochTransactions(EpochTransactionsMessage{Epoch: 1, Last: true})

	if peer.closedWith == nil || *peer.closedWith != CloseUnexpectedEpochTransactions {
		t.Fatalf("expected CloseUnexpectedEpochTransactions, got %v", peer.closedWith)
	}
}

// TestFullSyncPushesBlocksDirectly verifies FullSync's degenerate OnBlock
// path: every block goes straight to the chain.
func TestFullSyncPushesBlocksDirectly(t *testing.T) {
	chain := &fakeChain{}
	peer := &fakePeerLink{}
	fs := NewFullSync(chain, peer)

	block := microBlock(1)
	fs.OnBlock(block)

	if len(chain.pushed) != 1 || chain.pushed[0].Hash() != block.Hash() {
		t.Fatal("expected block pushed directly through the chain")
	}
}
