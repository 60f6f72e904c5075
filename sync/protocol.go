// Package sync implements the peer-driven block-sync protocols: a
// degenerate forward FullSync and a three-phase MacroBlockSync that skips
// intra-epoch micro blocks during initial sync by fetching macro blocks
// plus each epoch's Merkle-proved transaction set, then falls through to
// an ordinary forward micro-block stream.
package sync

import (
	"time"

	"github.com/tolelom/stakechain/blockchain"
)

// RequestTimeout bounds how long an outstanding GetEpochTransactions
// request may go unanswered before the peer is closed.
const RequestTimeout = 10 * time.Second

// BlockCacheSoftLimit caps how many macro-phase blocks are queued awaiting
// their epoch's transactions before new arrivals are dropped.
const BlockCacheSoftLimit = 1000

// Phase is a MacroBlockSyncState's position in the macro/micro/finished
// sequence.
type Phase int

const (
	PhaseMacroBlocks Phase = iota
	PhaseMicroBlocks
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseMacroBlocks:
		return "macro_blocks"
	case PhaseMicroBlocks:
		return "micro_blocks"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// CloseReason labels why a peer connection was terminated by the sync
// layer itself (a protocol violation, as opposed to an ordinary I/O error).
type CloseReason string

const (
	CloseUnexpectedEpochTransactions CloseReason = "unexpected_epoch_transactions"
	CloseInvalidEpochTransactions    CloseReason = "invalid_epoch_transactions"
	CloseGetEpochTransactionsTimeout CloseReason = "get_epoch_transactions_timeout"
)

// Chain is the read/push surface a sync protocol needs from the
// blockchain: block locators and the two ways of pushing a block in.
// Satisfied directly by *blockchain.Blockchain.
type Chain interface {
	BlockLocators(max int) []string
	MacroBlockLocators(max int) []string
	Push(block *blockchain.Block) (blockchain.PushResult, error)
	PushIsolatedMacroBlock(block *blockchain.Block, txs []blockchain.Transaction) (blockchain.PushResult, error)
}

// PeerLink is the send-or-close surface a sync protocol needs from the
// remote peer it is driving. Implementations live in the network package,
// which knows how to frame these as wire messages.
type PeerLink interface {
	RequestBlocks(locators []string, max int, macroOnly bool) error
	RequestEpochTransactions(epoch uint32) error
	Close(reason CloseReason)
}

// EpochTransactionsMessage is the payload of one MsgEpochTransactions
// delivery: an ordered chunk of an epoch's transactions, the total number
// of transactions the epoch carries, a Merkle consistency proof binding
// the leaves received so far (this chunk included) to that total, and a
// flag marking whether this is the epoch's final chunk.
type EpochTransactionsMessage struct {
	Epoch        uint32
	Transactions []blockchain.Transaction
	Total        int
	Proof        [][]byte
	Last         bool
}

// SyncProtocol is the capability set both FullSync and MacroBlockSyncState
// implement: initiate, produce locators, and react to blocks/epoch
// transactions/no-new-objects/peer-close notifications.
type SyncProtocol interface {
	Initiate()
	Locators(max int) []string
	OnBlock(block *blockchain.Block)
	OnEpochTransactions(msg EpochTransactionsMessage)
	OnNoNewObjectsAnnounced()
	OnClose()
}
