package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	bls12381 "github.com/kilic/bls12-381"
)

// BLSPrivateKey is a scalar in the BLS12-381 scalar field.
type BLSPrivateKey struct {
	scalar *big.Int
}

// BLSPublicKey is a point on G2: sk * g2Generator.
type BLSPublicKey struct {
	point *bls12381.PointG2
}

// BLSSignature is a point on G1: sk * H(msg).
type BLSSignature struct {
	point *bls12381.PointG1
}

// GenerateBLSKeyPair generates a new BLS key pair.
func GenerateBLSKeyPair() (BLSPrivateKey, BLSPublicKey, error) {
	order := bls12381.NewG1().Q()
	scalar, err := rand.Int(rand.Reader, order)
	if err != nil {
		return BLSPrivateKey{}, BLSPublicKey{}, fmt.Errorf("bls: generate scalar: %w", err)
	}
	priv := BLSPrivateKey{scalar: scalar}
	return priv, priv.Public(), nil
}

// Public derives the BLS public key from the private key.
func (priv BLSPrivateKey) Public() BLSPublicKey {
	g2 := bls12381.NewG2()
	pub := g2.New()
	g2.MulScalar(pub, g2.One(), priv.scalar)
	return BLSPublicKey{point: pub}
}

// hashToG1 maps a message to a point on G1, used as the signature domain.
func hashToG1(msg []byte) (*bls12381.PointG1, error) {
	g1 := bls12381.NewG1()
	return g1.HashToCurve(msg, []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"))
}

// SignBLS signs msg with priv, returning a G1 signature point.
func SignBLS(priv BLSPrivateKey, msg []byte) (BLSSignature, error) {
	hp, err := hashToG1(msg)
	if err != nil {
		return BLSSignature{}, fmt.Errorf("bls: hash to curve: %w", err)
	}
	g1 := bls12381.NewG1()
	sig := g1.New()
	g1.MulScalar(sig, hp, priv.scalar)
	return BLSSignature{point: sig}, nil
}

// VerifyBLS checks a single BLS signature over msg against pub.
func VerifyBLS(pub BLSPublicKey, msg []byte, sig BLSSignature) (bool, error) {
	hp, err := hashToG1(msg)
	if err != nil {
		return false, fmt.Errorf("bls: hash to curve: %w", err)
	}
	engine := bls12381.NewPairingEngine()
	g2 := bls12381.NewG2()

	engine.Reset()
	engine.AddPair(sig.point, g2.One())
	lhs := engine.Result()

	engine.Reset()
	engine.AddPair(hp, pub.point)
	rhs := engine.Result()

	return lhs.Equal(rhs), nil
}

// AggregateBLSSignatures sums signature points into a single aggregate
// signature. The sum is plain: no per-signer coefficients are applied.
func AggregateBLSSignatures(sigs []BLSSignature) (BLSSignature, error) {
	if len(sigs) == 0 {
		return BLSSignature{}, fmt.Errorf("bls: no signatures to aggregate")
	}
	g1 := bls12381.NewG1()
	acc := g1.Zero()
	for _, s := range sigs {
		g1.Add(acc, acc, s.point)
	}
	return BLSSignature{point: acc}, nil
}

// AggregateBLSPublicKeys sums public key points, used to verify an
// aggregated signature against the set of signers.
func AggregateBLSPublicKeys(pubs []BLSPublicKey) (BLSPublicKey, error) {
	if len(pubs) == 0 {
		return BLSPublicKey{}, fmt.Errorf("bls: no public keys to aggregate")
	}
	g2 := bls12381.NewG2()
	acc := g2.Zero()
	for _, p := range pubs {
		g2.Add(acc, acc, p.point)
	}
	return BLSPublicKey{point: acc}, nil
}

// VerifyAggregateBLS checks an aggregate signature over a single message
// against the aggregate of the signers' public keys (the shape used by
// Tendermint-style commit proofs and view-change proofs, where every signer
// attests to the same message).
func VerifyAggregateBLS(pubs []BLSPublicKey, msg []byte, sig BLSSignature) (bool, error) {
	agg, err := AggregateBLSPublicKeys(pubs)
	if err != nil {
		return false, err
	}
	return VerifyBLS(agg, msg, sig)
}

// Hex encodes the compressed G2 public key point as hex.
func (pub BLSPublicKey) Hex() string {
	g2 := bls12381.NewG2()
	return hex.EncodeToString(g2.ToCompressed(pub.point))
}

// BLSPubKeyFromHex decodes a compressed G2 public key point from hex.
func BLSPubKeyFromHex(s string) (BLSPublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return BLSPublicKey{}, fmt.Errorf("bls: invalid pubkey hex: %w", err)
	}
	g2 := bls12381.NewG2()
	point, err := g2.FromCompressed(raw)
	if err != nil {
		return BLSPublicKey{}, fmt.Errorf("bls: decode pubkey: %w", err)
	}
	return BLSPublicKey{point: point}, nil
}

// Bytes encodes the compressed G1 signature point.
func (sig BLSSignature) Bytes() []byte {
	g1 := bls12381.NewG1()
	return g1.ToCompressed(sig.point)
}

// BLSSignatureFromBytes decodes a compressed G1 signature point.
func BLSSignatureFromBytes(raw []byte) (BLSSignature, error) {
	g1 := bls12381.NewG1()
	point, err := g1.FromCompressed(raw)
	if err != nil {
		return BLSSignature{}, fmt.Errorf("bls: decode signature: %w", err)
	}
	return BLSSignature{point: point}, nil
}
