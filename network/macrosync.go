package network

import (
	"encoding/json"
	"log"
	stdsync "sync"

	"github.com/tolelom/stakechain/blockchain"
	msync "github.com/tolelom/stakechain/sync"
)

// GetEpochTransactionsRequest asks a peer for the transaction set committed
// to a given epoch.
type GetEpochTransactionsRequest struct {
	Epoch uint32 `json:"epoch"`
}

// EpochTransactionsPayload answers GetEpochTransactionsRequest. A
// single-chunk reply (Last: true, Proof: nil, Total == len(Transactions))
// is the common case; Proof binds this chunk's leaves, combined with
// whatever chunks preceded it, to Total leaves of the epoch's committed
// root when a responder splits a large epoch across multiple messages.
type EpochTransactionsPayload struct {
	Epoch        uint32                   `json:"epoch"`
	Transactions []blockchain.Transaction `json:"transactions"`
	Total        int                      `json:"total"`
	Proof        [][]byte                 `json:"proof,omitempty"`
	Last         bool                     `json:"last"`
}

// epochTransactionsSource is the narrow history-store surface a
// MacroSyncer needs to answer MsgGetEpochTransactions; both
// storage.LevelHistoryStore and internal/testutil.MemHistoryStore satisfy
// it, beyond the blockchain.HistoryStore interface's Root/Commit pair.
type epochTransactionsSource interface {
	Transactions(epoch uint32) ([]blockchain.Transaction, bool)
}

// MacroSyncer drives macro-block sync (skipping ahead to macro blocks,
// epoch by epoch, before falling through to ordinary micro-block sync)
// against every currently connected peer, and answers epoch-transactions
// requests from peers syncing against this node.
type MacroSyncer struct {
	node *Node
	bc   *blockchain.Blockchain

	mu     stdsync.Mutex
	states map[string]*msync.MacroBlockSyncState
}

// NewMacroSyncer registers handlers for the macro-sync message types and
// returns a MacroSyncer ready to drive or answer them.
func NewMacroSyncer(node *Node, bc *blockchain.Blockchain) *MacroSyncer {
	m := &MacroSyncer{node: node, bc: bc, states: make(map[string]*msync.MacroBlockSyncState)}
	node.Handle(MsgMacroBlocks, m.handleMacroBlocks)
	node.Handle(MsgGetEpochTransactions, m.handleGetEpochTransactions)
	node.Handle(MsgEpochTransactions, m.handleEpochTransactions)
	return m
}

// StateFor returns (creating if necessary) the MacroBlockSyncState driving
// peer.
func (m *MacroSyncer) StateFor(peer *Peer) *msync.MacroBlockSyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[peer.ID]; ok {
		return s
	}
	s := msync.NewMacroBlockSyncState(m.bc, &peerLink{peer: peer}, m.bc.EpochConfig().MacroBlocksPerEpoch)
	m.states[peer.ID] = s
	return s
}

// InitiateSync starts macro-block sync against peer.
func (m *MacroSyncer) InitiateSync(peer *Peer) {
	m.StateFor(peer).Initiate()
}

// NoNewObjectsAnnounced advances peer's sync phase once its most recent
// MsgMacroBlocks/MsgBlocks reply came back empty.
func (m *MacroSyncer) NoNewObjectsAnnounced(peer *Peer) {
	m.StateFor(peer).OnNoNewObjectsAnnounced()
}

func (m *MacroSyncer) handleMacroBlocks(peer *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	state := m.StateFor(peer)
	if len(resp.Blocks) == 0 {
		state.OnNoNewObjectsAnnounced()
		return
	}
	for _, b := range resp.Blocks {
		state.OnBlock(b)
	}
}

// handleGetEpochTransactions answers a peer's request for an epoch's
// transactions from the local history store. A store with nothing
// committed yet for that epoch is silently ignored: the requester's own
// 10-second timer will expire and it will try elsewhere.
func (m *MacroSyncer) handleGetEpochTransactions(peer *Peer, msg Message) {
	var req GetEpochTransactionsRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	src, ok := m.bc.HistoryStore().(epochTransactionsSource)
	if !ok {
		return
	}
	txs, ok := src.Transactions(req.Epoch)
	if !ok {
		return
	}
	data, err := json.Marshal(EpochTransactionsPayload{Epoch: req.Epoch, Transactions: txs, Total: len(txs), Last: true})
	if err != nil {
		return
	}
	if err := peer.Send(Message{Type: MsgEpochTransactions, Payload: data}); err != nil {
		log.Printf("[macrosync] send epoch %d transactions to %s: %v", req.Epoch, peer.ID, err)
	}
}

func (m *MacroSyncer) handleEpochTransactions(peer *Peer, msg Message) {
	var payload EpochTransactionsPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}
	m.StateFor(peer).OnEpochTransactions(msync.EpochTransactionsMessage{
		Epoch:        payload.Epoch,
		Transactions: payload.Transactions,
		Total:        payload.Total,
		Proof:        payload.Proof,
		Last:         payload.Last,
	})
}

// peerLink adapts a *Peer into sync.PeerLink, framing macro-sync requests
// as ordinary P2P messages.
type peerLink struct {
	peer *Peer
}

func (p *peerLink) RequestBlocks(locators []string, max int, macroOnly bool) error {
	req, err := json.Marshal(GetBlocksRequest{Locators: locators, Limit: max, MacroOnly: macroOnly})
	if err != nil {
		return err
	}
	return p.peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (p *peerLink) RequestEpochTransactions(epoch uint32) error {
	req, err := json.Marshal(GetEpochTransactionsRequest{Epoch: epoch})
	if err != nil {
		return err
	}
	return p.peer.Send(Message{Type: MsgGetEpochTransactions, Payload: req})
}

func (p *peerLink) Close(reason msync.CloseReason) {
	log.Printf("[macrosync] closing peer %s: %s", p.peer.ID, reason)
	p.peer.Close()
}
