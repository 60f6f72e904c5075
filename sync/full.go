package sync

import "github.com/tolelom/stakechain/blockchain"

// FullSync is the degenerate baseline protocol: every block is pushed
// straight through the chain's ordinary validation path, and an epoch
// transactions message is never expected because macro blocks are never
// fetched ahead of their micro blocks.
type FullSync struct {
	chain Chain
	peer  PeerLink
}

// NewFullSync builds a FullSync driving peer against chain.
func NewFullSync(chain Chain, peer PeerLink) *FullSync {
	return &FullSync{chain: chain, peer: peer}
}

func (s *FullSync) Initiate() {
	s.peer.RequestBlocks(s.Locators(maxLocators), maxBlocksPerRequest, false)
}

func (s *FullSync) Locators(max int) []string {
	return s.chain.BlockLocators(max)
}

func (s *FullSync) OnBlock(block *blockchain.Block) {
	if _, err := s.chain.Push(block); err != nil {
		// Orphans and invalid blocks are reported by Push's error; FullSync
		// has no sync-level state to repair, so the peer's own retry/forget
		// logic (outside this package) decides what happens next.
		return
	}
}

// OnEpochTransactions is never legitimate in FullSync: macro blocks are
// never requested ahead of the micro blocks that accompany them, so no
// peer should ever send this.
func (s *FullSync) OnEpochTransactions(msg EpochTransactionsMessage) {
	s.peer.Close(CloseUnexpectedEpochTransactions)
}

func (s *FullSync) OnNoNewObjectsAnnounced() {}

func (s *FullSync) OnClose() {}

const (
	maxLocators         = 16
	maxBlocksPerRequest = 200
)
