package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// PublicKeys maps a denomination amount to the mint's public key for that
// amount, the shape of a NUT-01 keys response.
type PublicKeys map[uint64]*secp256k1.PublicKey

// MarshalJSON writes keys in ascending amount order so two encodings of the
// same keyset always produce identical bytes. DeriveKeysetId relies on that
// same ordering, independently, when hashing the keys.
func (pks PublicKeys) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	amounts := make([]uint64, len(pks))
	i := 0
	for k := range pks {
		amounts[i] = k
		i++
	}
	slices.Sort(amounts)

	for j, amount := range amounts {
		if j != 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(amount)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('"')
		buf.Write(key)
		buf.WriteByte('"')
		buf.WriteByte(':')

		pubkey := hex.EncodeToString(pks[amount].SerializeCompressed())
		val, err := json.Marshal(pubkey)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (pks *PublicKeys) UnmarshalJSON(data []byte) error {
	var tempKeys map[uint64]string
	if err := json.Unmarshal(data, &tempKeys); err != nil {
		return err
	}

	if *pks == nil {
		*pks = make(PublicKeys, len(tempKeys))
	}
	for amount, key := range tempKeys {
		keyBytes, err := hex.DecodeString(key)
		if err != nil {
			return err
		}
		publicKey, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return fmt.Errorf("invalid public key: %v", err)
		}
		(*pks)[amount] = publicKey
	}
	return nil
}

// DeriveKeysetId returns the string ID derived from a keyset's public keys:
//   - sort public keys by amount ascending
//   - concatenate all compressed public keys into one byte array
//   - sha256 the concatenation
//   - take the first 14 hex characters of the digest
//   - prefix with the keyset ID version byte "00"
func DeriveKeysetId(keyset PublicKeys) string {
	type pubkey struct {
		amount uint64
		pk     *secp256k1.PublicKey
	}
	pubkeys := make([]pubkey, len(keyset))
	i := 0
	for amount, key := range keyset {
		pubkeys[i] = pubkey{amount, key}
		i++
	}
	sort.Slice(pubkeys, func(i, j int) bool {
		return pubkeys[i].amount < pubkeys[j].amount
	})

	keys := make([]byte, 0, len(pubkeys)*33)
	for _, key := range pubkeys {
		keys = append(keys, key.pk.SerializeCompressed()...)
	}
	hash := sha256.New()
	hash.Write(keys)

	return "00" + hex.EncodeToString(hash.Sum(nil))[:14]
}

// KeysetsMap maps a mint URL to the wallet's known keysets for that mint.
type KeysetsMap map[string][]WalletKeyset

// WalletKeyset is the wallet's local record of a mint's keyset: the mint's
// public keys plus the bookkeeping the wallet itself needs (whether the
// keyset is still active, its input fee, and a derivation counter used for
// the wallet's own non-silent backup path, see nut13).
type WalletKeyset struct {
	Id          string
	MintURL     string
	Unit        string
	Active      bool
	PublicKeys  map[uint64]*secp256k1.PublicKey
	Counter     uint32
	InputFeePpk uint
}

type walletKeysetTemp struct {
	Id          string
	MintURL     string
	Unit        string
	Active      bool
	PublicKeys  map[uint64][]byte
	Counter     uint32
	InputFeePpk uint
}

func (wk *WalletKeyset) MarshalJSON() ([]byte, error) {
	temp := &walletKeysetTemp{
		Id:      wk.Id,
		MintURL: wk.MintURL,
		Unit:    wk.Unit,
		Active:  wk.Active,
		PublicKeys: func() map[uint64][]byte {
			m := make(map[uint64][]byte)
			for k, v := range wk.PublicKeys {
				m[k] = v.SerializeCompressed()
			}
			return m
		}(),
		Counter:     wk.Counter,
		InputFeePpk: wk.InputFeePpk,
	}

	return json.Marshal(temp)
}

func (wk *WalletKeyset) UnmarshalJSON(data []byte) error {
	temp := &walletKeysetTemp{}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	wk.Id = temp.Id
	wk.MintURL = temp.MintURL
	wk.Unit = temp.Unit
	wk.Active = temp.Active
	wk.Counter = temp.Counter
	wk.InputFeePpk = temp.InputFeePpk

	wk.PublicKeys = make(map[uint64]*secp256k1.PublicKey)
	for k, v := range temp.PublicKeys {
		kp, err := secp256k1.ParsePubKey(v)
		if err != nil {
			return err
		}

		wk.PublicKeys[k] = kp
	}

	return nil
}
