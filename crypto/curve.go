package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ScalarFromBytes reduces a 32-byte big-endian value mod the curve order
// and returns it as a private key, rejecting the all-zero scalar: a tweak
// or blinding factor of zero would leave an output point untweaked or a
// blinded message unblinded, so every caller in this package must treat it
// as a derivation failure rather than silently proceeding.
func ScalarFromBytes(b [32]byte) (*secp256k1.PrivateKey, error) {
	var s secp256k1.ModNScalar
	s.SetBytes(&b)
	if s.IsZero() {
		return nil, fmt.Errorf("crypto: scalar reduces to zero")
	}
	return secp256k1.NewPrivateKey(&s), nil
}

// PointFromPriv returns the public point priv*G.
func PointFromPriv(priv *secp256k1.PrivateKey) *secp256k1.PublicKey {
	return priv.PubKey()
}

// PointAdd returns a+b as an affine point.
func PointAdd(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	var ja, jb, sum secp256k1.JacobianPoint
	a.AsJacobian(&ja)
	b.AsJacobian(&jb)
	secp256k1.AddNonConst(&ja, &jb, &sum)
	sum.ToAffine()
	return secp256k1.NewPublicKey(&sum.X, &sum.Y)
}

// PointMul returns scalar*point as an affine point.
func PointMul(scalar *secp256k1.PrivateKey, point *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp, jr secp256k1.JacobianPoint
	point.AsJacobian(&jp)
	secp256k1.ScalarMultNonConst(&scalar.Key, &jp, &jr)
	jr.ToAffine()
	return secp256k1.NewPublicKey(&jr.X, &jr.Y)
}

// PointMulG returns scalar*G as an affine point.
func PointMulG(scalar *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var jr secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&scalar.Key, &jr)
	jr.ToAffine()
	return secp256k1.NewPublicKey(&jr.X, &jr.Y)
}

// Compress returns a point's 33-byte SEC1 compressed encoding.
func Compress(point *secp256k1.PublicKey) []byte {
	return point.SerializeCompressed()
}

// Decompress parses a 33-byte SEC1 compressed encoding back into a point.
func Decompress(b []byte) (*secp256k1.PublicKey, error) {
	point, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid compressed point: %w", err)
	}
	return point, nil
}

// ECDH returns the shared secret priv*pub, encoded as a 33-byte compressed
// point rather than an x-only coordinate. Both sides of a silent payment
// (Alice holding priv, Bob's scan key as pub, or the other way around) must
// arrive at byte-identical output, so the full compressed point — not a
// hashed or x-only reduction — is the canonical shared-secret encoding used
// by every derivation in this package.
func ECDH(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	return Compress(PointMul(priv, pub))
}
