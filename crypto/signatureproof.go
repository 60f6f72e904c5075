package crypto

import (
	"encoding/hex"
	"fmt"
)

// SignatureProof pairs a public key with a signature over some content,
// the standard single-signer authorization shape carried inside
// transaction proofs.
type SignatureProof struct {
	PublicKey PublicKey
	Signature []byte
}

// NewSignatureProof signs content with priv and packages the proof.
func NewSignatureProof(priv PrivateKey, content []byte) SignatureProof {
	sigHex := Sign(priv, content)
	sig, _ := hex.DecodeString(sigHex)
	return SignatureProof{PublicKey: priv.Public(), Signature: sig}
}

// Verify checks that the proof authorizes content.
func (p SignatureProof) Verify(content []byte) bool {
	if len(p.PublicKey) == 0 || len(p.Signature) == 0 {
		return false
	}
	return Verify(p.PublicKey, content, hex.EncodeToString(p.Signature)) == nil
}

// EncodeBinary writes the wire form: a 1-byte public key length, the public
// key, a 1-byte signature length, and the signature.
func (p SignatureProof) EncodeBinary() []byte {
	out := make([]byte, 0, 2+len(p.PublicKey)+len(p.Signature))
	out = append(out, byte(len(p.PublicKey)))
	out = append(out, p.PublicKey...)
	out = append(out, byte(len(p.Signature)))
	out = append(out, p.Signature...)
	return out
}

// DecodeSignatureProofBinary decodes the wire form produced by EncodeBinary,
// returning the number of bytes consumed.
func DecodeSignatureProofBinary(data []byte) (SignatureProof, int, error) {
	if len(data) < 1 {
		return SignatureProof{}, 0, fmt.Errorf("crypto: empty signature proof buffer")
	}
	pubLen := int(data[0])
	if len(data) < 1+pubLen+1 {
		return SignatureProof{}, 0, fmt.Errorf("crypto: truncated signature proof buffer")
	}
	pub := append([]byte(nil), data[1:1+pubLen]...)
	sigLenOffset := 1 + pubLen
	sigLen := int(data[sigLenOffset])
	end := sigLenOffset + 1 + sigLen
	if len(data) < end {
		return SignatureProof{}, 0, fmt.Errorf("crypto: truncated signature proof buffer")
	}
	sig := append([]byte(nil), data[sigLenOffset+1:end]...)
	return SignatureProof{PublicKey: PublicKey(pub), Signature: sig}, end, nil
}
