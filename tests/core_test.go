package tests

import (
	"testing"

	"github.com/tolelom/stakechain/blockchain"
	"github.com/tolelom/stakechain/crypto"
	"github.com/tolelom/stakechain/wallet"
)

// TestKeyGenAndAddress verifies that key generation and address derivation work.
func TestKeyGenAndAddress(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	addr := pub.Address()
	if len(addr) != 40 {
		t.Errorf("address length: got %d want 40", len(addr))
	}
	// Roundtrip: derived public key should match
	derived := priv.Public()
	if derived.Hex() != pub.Hex() {
		t.Error("derived public key does not match")
	}
}

// TestSignVerify ensures Sign/Verify round-trips correctly.
func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello stakechain")
	sig := crypto.Sign(priv, data)
	if err := crypto.Verify(pub, data, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}
	if err := crypto.Verify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered data should fail verification")
	}
}

// TestTransactionSignVerify ensures a wallet-built transfer's proof verifies
// against its signing content, and that tampering invalidates it.
func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	other, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	tx := w.Transfer(other.PubKey(), 100, 1, 0, 7)
	proof, _, err := crypto.DecodeSignatureProofBinary(tx.Proof)
	if err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	if !proof.Verify(tx.SigningContent()) {
		t.Error("proof should verify over the transaction's signing content")
	}

	// Tamper with the value to check that verification catches it.
	tx.Value = 999
	if proof.Verify(tx.SigningContent()) {
		t.Error("tampered tx should fail verification")
	}
}

// TestBlockHash ensures that hashing a block header is deterministic.
func TestBlockHash(t *testing.T) {
	header := blockchain.BlockHeader{
		Version:     blockchain.ProtocolVersion,
		BlockNumber: 1,
		ParentHash:  blockchain.GenesisParentHash,
	}
	block := blockchain.Block{Header: header}

	if block.Hash() == "" {
		t.Error("hash should not be empty")
	}
	if block.Hash() != header.Hash() {
		t.Error("Block.Hash() should match BlockHeader.Hash()")
	}
	// Changing a header field must change the hash.
	header.BlockNumber = 2
	if header.Hash() == block.Hash() {
		t.Error("hash should change when block_number changes")
	}
}

// TestMempool verifies add/remove/pending operations.
func TestMempool(t *testing.T) {
	mp := blockchain.NewMempool()
	w, _ := wallet.Generate()

	tx := w.Transfer("aa", 1, 0, 0, 1)
	if err := mp.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
	// Duplicate should fail
	if err := mp.Add(tx); err == nil {
		t.Error("adding duplicate tx should fail")
	}

	pending := mp.Pending(10)
	if len(pending) != 1 {
		t.Errorf("pending: got %d want 1", len(pending))
	}

	mp.Remove([]string{blockchain.TxID(tx)})
	if mp.Size() != 0 {
		t.Error("pool should be empty after remove")
	}
}
