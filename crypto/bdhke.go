package crypto

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// BlindMessage computes B_ = Y + rG for a proof secret, where Y is the
// domain-separated hash-to-curve point of the secret and r is the caller-
// supplied blinding factor. It returns both the blinded point and the
// private key wrapping r, since callers need r again to unblind.
func BlindMessage(secret []byte, blindingFactor []byte) (*secp256k1.PublicKey, *secp256k1.PrivateKey, error) {
	Y, err := HashToCurve(secret)
	if err != nil {
		return nil, nil, err
	}

	r, rpub := btcec.PrivKeyFromBytes(blindingFactor)
	B_ := PointAdd(Y, rpub)

	return B_, r, nil
}

// SignBlindedMessage computes C_ = kB_, the mint's blind signature over a
// blinded message using its private key k for the requested denomination.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	return PointMul(k, B_)
}

// UnblindSignature computes C = C_ - rK, recovering the mint's signature
// over the original (unblinded) secret from its blind signature.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	negR := secp256k1.NewPrivateKey(&rNeg)

	rK := PointMul(negR, K)
	return PointAdd(C_, rK)
}

// Verify reports whether k*HashToCurve(secret) == C, i.e. whether C is a
// valid mint signature over secret under private key k.
func Verify(secret []byte, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) bool {
	Y, err := HashToCurve(secret)
	if err != nil {
		return false
	}
	return PointMul(k, Y).IsEqual(C)
}
