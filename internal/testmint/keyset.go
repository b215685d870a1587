package testmint

import (
	"math"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/silentpay/silentpay/crypto"
)

// maxOrder bounds the denominations a keyset signs for: 2^0 .. 2^(maxOrder-1).
const maxOrder = 32

// keyPair is one denomination's signing key, kept alongside its public half
// so signing and the NUT-01 response can share storage.
type keyPair struct {
	private *secp256k1.PrivateKey
	public  *secp256k1.PublicKey
}

// keyset is the mock mint's own signing identity for one NUT-02 keyset:
// the unit-test analogue of the teacher's crypto.MintKeyset, trimmed to
// what a test double needs and never touching the wallet-facing
// crypto.WalletKeyset, which carries no private key material at all.
type keyset struct {
	id          string
	unit        string
	active      bool
	inputFeePpk uint
	keys        map[uint64]keyPair
}

// generateKeyset derives a fresh signing keyset at the given hardened BIP-32
// index, following the teacher's m/0'/0'/index'/i' derivation path, where i
// is the exponent of the denomination 2^i.
func generateKeyset(master *hdkeychain.ExtendedKey, index uint32, inputFeePpk uint, active bool) (*keyset, error) {
	child, err := master.Derive(hdkeychain.HardenedKeyStart)
	if err != nil {
		return nil, err
	}
	unitPath, err := child.Derive(hdkeychain.HardenedKeyStart)
	if err != nil {
		return nil, err
	}
	keysetPath, err := unitPath.Derive(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, err
	}

	keys := make(map[uint64]keyPair, maxOrder)
	pubs := make(crypto.PublicKeys, maxOrder)
	for i := 0; i < maxOrder; i++ {
		amount := uint64(math.Pow(2, float64(i)))
		amountPath, err := keysetPath.Derive(hdkeychain.HardenedKeyStart + uint32(i))
		if err != nil {
			return nil, err
		}
		priv, err := amountPath.ECPrivKey()
		if err != nil {
			return nil, err
		}
		pub, err := amountPath.ECPubKey()
		if err != nil {
			return nil, err
		}
		keys[amount] = keyPair{private: priv, public: pub}
		pubs[amount] = pub
	}

	return &keyset{
		id:          crypto.DeriveKeysetId(pubs),
		unit:        "sat",
		active:      active,
		inputFeePpk: inputFeePpk,
		keys:        keys,
	}, nil
}

func (ks *keyset) publicKeys() crypto.PublicKeys {
	pubs := make(crypto.PublicKeys, len(ks.keys))
	for amount, kp := range ks.keys {
		pubs[amount] = kp.public
	}
	return pubs
}
