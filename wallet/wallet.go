package wallet

import (
	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/htlc"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// sign computes tx's signing content and attaches a SignatureProof as its
// Proof field.
func (w *Wallet) sign(tx blockchain.Transaction) blockchain.Transaction {
	proof := crypto.NewSignatureProof(w.priv, tx.SigningContent())
	tx.Proof = proof.EncodeBinary()
	return tx
}

// Transfer creates a signed basic-to-basic value transfer.
func (w *Wallet) Transfer(recipient string, value, fee uint64, validityStart uint32, networkID uint8) blockchain.Transaction {
	tx := blockchain.Transaction{
		Sender:              w.pub.Hex(),
		Recipient:           recipient,
		SenderType:          blockchain.AccountBasic,
		RecipientType:       blockchain.AccountBasic,
		Value:               value,
		Fee:                 fee,
		ValidityStartHeight: validityStart,
		NetworkID:           networkID,
	}
	return w.sign(tx)
}

// CreateHTLC creates a signed contract-creation transaction opening a hash
// time-locked contract. The recipient is set to the deterministic
// contract-creation address before signing, so the signature covers the
// final recipient value the state validator will check against.
func (w *Wallet) CreateHTLC(creation htlc.CreationData, value, fee uint64, validityStart uint32, networkID uint8) (blockchain.Transaction, error) {
	data, err := creation.EncodeBinary()
	if err != nil {
		return blockchain.Transaction{}, err
	}
	tx := blockchain.Transaction{
		Sender:              w.pub.Hex(),
		SenderType:          blockchain.AccountBasic,
		RecipientType:       blockchain.AccountHTLC,
		Value:               value,
		Fee:                 fee,
		ValidityStartHeight: validityStart,
		NetworkID:           networkID,
		Flags:               blockchain.FlagContractCreation,
		Data:                data,
	}
	tx.Recipient = tx.ContractCreationAddress()
	return w.sign(tx), nil
}

// SpendHTLC creates a transaction spending out of an HTLC contract,
// authorized by proof rather than by this wallet's own signature.
func (w *Wallet) SpendHTLC(contractAddress, recipient string, recipientType blockchain.AccountType, value, fee uint64, validityStart uint32, networkID uint8, proof htlc.OutgoingProof) blockchain.Transaction {
	tx := blockchain.Transaction{
		Sender:              contractAddress,
		Recipient:           recipient,
		SenderType:          blockchain.AccountHTLC,
		RecipientType:       recipientType,
		Value:               value,
		Fee:                 fee,
		ValidityStartHeight: validityStart,
		NetworkID:           networkID,
	}
	tx.Proof = htlc.EncodeProof(proof)
	return tx
}
