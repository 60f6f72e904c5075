package blockchain

import "github.com/tolelom/stakechain/htlc"

// Account holds a participant's balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key (or, for a contract
// account, its derived contract-creation address).
type Account struct {
	Address string         `json:"address"`
	Type    AccountType    `json:"type"`
	Balance uint64         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	HTLC    *htlc.Contract `json:"htlc,omitempty"` // populated iff Type == AccountHTLC
}

// State is the accounts-trie collaborator the state validator reads and
// writes against. Implementations must be snapshot-able so a candidate
// block can be applied to a scratch state and rolled back if validation
// fails downstream.
type State interface {
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Snapshot/rollback
	Snapshot() (int, error)
	RevertToSnapshot(id int) error

	// ComputeRoot returns the deterministic state root from the current
	// write buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}

// HistoryStore is the epoch-rooted transaction history collaborator the
// state validator consults for InvalidHistoryRoot checks.
type HistoryStore interface {
	// Root returns the committed history root for epoch, or ok == false if
	// no root has been committed for that epoch yet.
	Root(epoch uint32) (root string, ok bool)
	// Commit records txs as the committed content of epoch and returns its
	// root.
	Commit(epoch uint32, txs []Transaction) (root string, err error)
}
