package vm

import (
	"fmt"
	"sync"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/htlc"
)

// Context carries the chain parameters an intrinsic verification handler
// needs beyond the transaction itself.
type Context struct {
	NetworkID   uint8
	BlockNumber uint32
}

// Handler verifies a transaction's intrinsic validity for one account type:
// signature authorization and any account-type-specific proof shape. It
// never touches balances or nonces — that is the state validator's job once
// intrinsic validity is established.
type Handler func(ctx *Context, tx blockchain.Transaction) error

// Registry maps AccountTypes to Handlers. Thread-safe for concurrent
// registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[blockchain.AccountType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[blockchain.AccountType]Handler)}
}

// Register associates typ with h. Panics on duplicate registration.
func (r *Registry) Register(typ blockchain.AccountType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for AccountType %d", typ))
	}
	r.handlers[typ] = h
}

// Verify dispatches tx to the handler registered for its sender's account
// type.
func (r *Registry) Verify(ctx *Context, tx blockchain.Transaction) error {
	r.mu.RLock()
	h, ok := r.handlers[tx.SenderType]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("vm: no handler registered for AccountType %d", tx.SenderType)
	}
	return h(ctx, tx)
}

// globalRegistry is the package-level singleton the body validator consults.
var globalRegistry = NewRegistry()

// Default returns the global registry, pre-populated with the Basic/Staking
// and HTLC intrinsic verifiers.
func Default() *Registry { return globalRegistry }

func init() {
	globalRegistry.Register(blockchain.AccountBasic, verifySingleSigner)
	globalRegistry.Register(blockchain.AccountStaking, verifySingleSigner)
	globalRegistry.Register(blockchain.AccountHTLC, verifyHTLCOutgoing)
}

// verifySingleSigner checks a plain SignatureProof over the transaction's
// signing content, the shape basic and staking transactions share.
func verifySingleSigner(ctx *Context, tx blockchain.Transaction) error {
	if tx.NetworkID != ctx.NetworkID {
		return fmt.Errorf("vm: wrong network id %d, want %d", tx.NetworkID, ctx.NetworkID)
	}
	proof, consumed, err := crypto.DecodeSignatureProofBinary(tx.Proof)
	if err != nil {
		return fmt.Errorf("vm: decode signature proof: %w", err)
	}
	if consumed != len(tx.Proof) {
		return fmt.Errorf("vm: trailing bytes after signature proof")
	}
	if !proof.Verify(tx.SigningContent()) {
		return fmt.Errorf("vm: signature proof does not authorize transaction")
	}
	return nil
}

// verifyHTLCOutgoing parses the transaction's proof as one of the three
// HTLC outgoing-proof shapes and checks it in isolation, deferring the
// contract's hash-root/balance cross-check to the state validator, which
// has the account's stored HTLC contract in hand.
func verifyHTLCOutgoing(ctx *Context, tx blockchain.Transaction) error {
	if tx.NetworkID != ctx.NetworkID {
		return fmt.Errorf("vm: wrong network id %d, want %d", tx.NetworkID, ctx.NetworkID)
	}
	proof, err := htlc.ParseProof(tx.Proof)
	if err != nil {
		return fmt.Errorf("vm: parse htlc proof: %w", err)
	}
	if err := proof.Verify(tx.SigningContent()); err != nil {
		return fmt.Errorf("vm: htlc proof: %w", err)
	}
	return nil
}
