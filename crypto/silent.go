package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SilentKeys is Bob's long-lived silent-payment identity: a scan key used to
// derive the ECDH shared secret with every sender, and a spend key that
// anchors ownership of every output derived from that shared secret.
// The wallet generates them when it is first opened, not on the first
// address request, and never changes them afterwards.
type SilentKeys struct {
	ScanPriv  *secp256k1.PrivateKey
	ScanPub   *secp256k1.PublicKey
	SpendPriv *secp256k1.PrivateKey
	SpendPub  *secp256k1.PublicKey
}

// NewSilentKeys generates a fresh scan/spend keypair using the system CSPRNG.
func NewSilentKeys() (*SilentKeys, error) {
	scanPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generating scan key: %w", err)
	}
	spendPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generating spend key: %w", err)
	}

	return &SilentKeys{
		ScanPriv:  scanPriv,
		ScanPub:   scanPriv.PubKey(),
		SpendPriv: spendPriv,
		SpendPub:  spendPriv.PubKey(),
	}, nil
}

// SilentKeysFromPrivateBytes reconstructs a SilentKeys from its two stored
// private scalars, used when loading Bob's identity back from disk.
func SilentKeysFromPrivateBytes(scanPriv, spendPriv []byte) (*SilentKeys, error) {
	if len(scanPriv) != 32 || len(spendPriv) != 32 {
		return nil, fmt.Errorf("crypto: silent key material must be 32 bytes")
	}
	scan := secp256k1.PrivKeyFromBytes(scanPriv)
	spend := secp256k1.PrivKeyFromBytes(spendPriv)

	return &SilentKeys{
		ScanPriv:  scan,
		ScanPub:   scan.PubKey(),
		SpendPriv: spend,
		SpendPub:  spend.PubKey(),
	}, nil
}

// OutputData is the client-side construction record for one silent-payment
// output: the blinded message sent to the mint, the blinding factor r used
// to produce it, and the plaintext secret it blinds. Both the sender and
// the scanning receiver compute byte-identical OutputData from the same
// (sharedSecret, spendPub, keysetId, k) tuple, which is what makes restore
// possible without a side channel.
type OutputData struct {
	Amount    uint64
	KeysetId  string
	Secret    string
	R         *secp256k1.PrivateKey
	B_        *secp256k1.PublicKey
}

// tweakScalar returns tweak_k = sha256("silent_output" || s || [k]) reduced
// mod n, for shared secret s and single-byte index k.
func tweakScalar(sharedSecret []byte, k byte) (*secp256k1.PrivateKey, error) {
	digest := DomainHash("silent_output", sharedSecret, []byte{k})
	return ScalarFromBytes(digest)
}

// outputSecretBytes returns sha256("output" || compress(output_point_k)),
// the raw 32-byte digest backing both the hex-encoded secret string and the
// blinding-factor derivation.
func outputSecretBytes(outputPoint *secp256k1.PublicKey) [32]byte {
	return DomainHash("output", Compress(outputPoint))
}

// blindingFactor returns blinding_factor_k = int(sha256("blinder" ||
// output_secret_bytes || [k])) mod n.
func blindingFactor(outputSecret [32]byte, k byte) (*secp256k1.PrivateKey, error) {
	digest := DomainHash("blinder", outputSecret[:], []byte{k})
	return ScalarFromBytes(digest)
}

// DeriveOutputPoint computes spend_pub + tweak_k·G for index k, the public
// point Bob owns and Alice can compute without ever learning Bob's spend
// private key.
func DeriveOutputPoint(sharedSecret []byte, spendPub *secp256k1.PublicKey, k byte) (*secp256k1.PublicKey, error) {
	tweak, err := tweakScalar(sharedSecret, k)
	if err != nil {
		return nil, err
	}
	tweakPoint := PointMulG(tweak)
	return PointAdd(spendPub, tweakPoint), nil
}

// DeriveOutputSecret returns the 64-char hex secret string and the matching
// blinding factor for index k, given the ECDH shared secret and Bob's
// spend_pub. Both are pure functions of (sharedSecret, spendPub, k) so a
// scanner who recomputes sharedSecret via ECDH rederives the identical pair.
func DeriveOutputSecret(sharedSecret []byte, spendPub *secp256k1.PublicKey, k byte) (secret string, r *secp256k1.PrivateKey, err error) {
	outputPoint, err := DeriveOutputPoint(sharedSecret, spendPub, k)
	if err != nil {
		return "", nil, err
	}
	rawSecret := outputSecretBytes(outputPoint)
	secret = hex.EncodeToString(rawSecret[:])
	r, err = blindingFactor(rawSecret, k)
	if err != nil {
		return "", nil, err
	}
	return secret, r, nil
}

// CreateSilentOutput deterministically derives the full OutputData for a
// single silent-payment output at index k: secret, blinding factor, and the
// blinded message B_ = hash_to_curve(secret) + r·G. Given identical
// (sharedSecret, spendPub, keysetId, k) on both sides of a payment, sender
// and receiver compute byte-identical output.
func CreateSilentOutput(amount uint64, keysetId string, sharedSecret []byte, spendPub *secp256k1.PublicKey, k byte) (*OutputData, error) {
	secret, r, err := DeriveOutputSecret(sharedSecret, spendPub, k)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating silent output: %w", err)
	}

	B_, _, err := BlindMessage([]byte(secret), r.Serialize())
	if err != nil {
		return nil, fmt.Errorf("crypto: creating silent output: %w", err)
	}

	return &OutputData{
		Amount:   amount,
		KeysetId: keysetId,
		Secret:   secret,
		R:        r,
		B_:       B_,
	}, nil
}

// RandomBlindingFactor returns a uniform scalar in [1, n), used for the
// signal proof whose blinding factor is deliberately NOT derived (so the
// signal cannot be symmetrically rediscovered once spent).
func RandomBlindingFactor() (*secp256k1.PrivateKey, error) {
	var b [32]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("crypto: reading random bytes: %w", err)
		}
		var s secp256k1.ModNScalar
		overflow := s.SetBytes(&b)
		if overflow == 0 && !s.IsZero() {
			return secp256k1.NewPrivateKey(&s), nil
		}
	}
}
