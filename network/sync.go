package network

import (
	"encoding/json"
	"log"

	"github.com/tolelom/stakechain/blockchain"
)

// GetBlocksRequest asks a peer for blocks starting after the first locator
// hash it recognizes (falling back to FromHeight when Locators is empty or
// none of them are known).
type GetBlocksRequest struct {
	Locators   []string `json:"locators,omitempty"`
	FromHeight uint32   `json:"from_height"`
	Limit      int      `json:"limit"`
	MacroOnly  bool     `json:"macro_only"`
}

// BlocksResponse carries a batch of blocks.
type BlocksResponse struct {
	Blocks []*blockchain.Block `json:"blocks"`
}

// Syncer handles ordinary (non-macro-sync) block propagation between nodes:
// requesting missing blocks by height and pushing received blocks through
// the chain's own validation pipeline.
type Syncer struct {
	node *Node
	bc   *blockchain.Blockchain
}

// NewSyncer creates a Syncer that requests missing blocks from peers and
// pushes received blocks into bc, which validates and commits them.
func NewSyncer(node *Node, bc *blockchain.Blockchain) *Syncer {
	s := &Syncer{node: node, bc: bc}
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight uint32) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: 50})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	req.FromHeight = s.resolveFromHeight(req)
	blocks := make([]*blockchain.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+uint32(req.Limit); h++ {
		b, ok := s.bc.BlockAtHeight(h)
		if !ok {
			break
		}
		if req.MacroOnly && !b.IsMacro {
			continue
		}
		blocks = append(blocks, b)
	}
	typ := MsgBlocks
	if req.MacroOnly {
		typ = MsgMacroBlocks
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: typ, Payload: data})
}

// resolveFromHeight walks req.Locators in order and starts the response
// just past the first one the local chain recognizes; an unrecognized or
// empty locator set falls back to req.FromHeight (genesis, if both are
// zero/empty).
func (s *Syncer) resolveFromHeight(req GetBlocksRequest) uint32 {
	for _, hash := range req.Locators {
		info, ok := s.bc.ChainInfo(hash)
		if ok {
			return info.Header.BlockNumber + 1
		}
	}
	return req.FromHeight
}

func (s *Syncer) handleBlocks(_ *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if _, err := s.bc.Push(b); err != nil {
			log.Printf("[sync] block %d push failed: %v", b.Header.BlockNumber, err)
		}
	}
}
