package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/crypto"
	bolt "go.etcd.io/bbolt"
)

const (
	KEYSETS_BUCKET        = "keysets"
	PROOFS_BUCKET         = "proofs"
	MNEMONIC_BUCKET       = "mnemonic"
	SILENT_KEYS_BUCKET    = "silent_keys"
	MINT_METADATA_BUCKET  = "mint_metadata"
	PENDING_SIGNAL_BUCKET = "pending_signal"

	mnemonicKey   = "mnemonic"
	silentKeysKey = "silent_keys"
)

var (
	ErrProofNotFound    = errors.New("proof not found")
	ErrMnemonicExists   = errors.New("mnemonic already set")
	ErrMnemonicNotSet   = errors.New("mnemonic not set")
	ErrSilentKeysNotSet = errors.New("silent keys not set")
	ErrKeysetNotFound   = errors.New("keyset does not exist")
)

type BoltDB struct {
	bolt *bolt.DB
}

func InitBolt(path string) (*BoltDB, error) {
	db, err := bolt.Open(filepath.Join(path, "wallet.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}

	boltdb := &BoltDB{bolt: db}
	if err := boltdb.initWalletBuckets(); err != nil {
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}

	return boltdb, nil
}

func (db *BoltDB) Close() error {
	return db.bolt.Close()
}

func (db *BoltDB) initWalletBuckets() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{
			KEYSETS_BUCKET,
			PROOFS_BUCKET,
			MNEMONIC_BUCKET,
			SILENT_KEYS_BUCKET,
			MINT_METADATA_BUCKET,
			PENDING_SIGNAL_BUCKET,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveMnemonic is an insert, not an upsert: a wallet's seed phrase never
// changes once set.
func (db *BoltDB) SaveMnemonic(mnemonic string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MNEMONIC_BUCKET))
		if b.Get([]byte(mnemonicKey)) != nil {
			return ErrMnemonicExists
		}
		return b.Put([]byte(mnemonicKey), []byte(mnemonic))
	})
}

func (db *BoltDB) GetMnemonic() (string, error) {
	var mnemonic string
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MNEMONIC_BUCKET))
		val := b.Get([]byte(mnemonicKey))
		if val == nil {
			return ErrMnemonicNotSet
		}
		mnemonic = string(val)
		return nil
	})
	return mnemonic, err
}

type dbSilentKeys struct {
	ScanPriv  []byte `json:"scan_priv"`
	SpendPriv []byte `json:"spend_priv"`
}

func (db *BoltDB) SaveSilentKeys(keys *crypto.SilentKeys) error {
	dbKeys := dbSilentKeys{
		ScanPriv:  keys.ScanPriv.Serialize(),
		SpendPriv: keys.SpendPriv.Serialize(),
	}
	jsonBytes, err := json.Marshal(dbKeys)
	if err != nil {
		return fmt.Errorf("invalid silent keys: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(SILENT_KEYS_BUCKET))
		return b.Put([]byte(silentKeysKey), jsonBytes)
	})
}

func (db *BoltDB) GetSilentKeys() (*crypto.SilentKeys, error) {
	var dbKeys dbSilentKeys
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(SILENT_KEYS_BUCKET))
		val := b.Get([]byte(silentKeysKey))
		if val == nil {
			return ErrSilentKeysNotSet
		}
		return json.Unmarshal(val, &dbKeys)
	})
	if err != nil {
		return nil, err
	}
	return crypto.SilentKeysFromPrivateBytes(dbKeys.ScanPriv, dbKeys.SpendPriv)
}

func (db *BoltDB) AddProofs(proofs cashu.Proofs) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		proofsb := tx.Bucket([]byte(PROOFS_BUCKET))
		for _, proof := range proofs {
			jsonProof, err := json.Marshal(proof)
			if err != nil {
				return fmt.Errorf("invalid proof: %v", err)
			}
			if err := proofsb.Put([]byte(proof.Secret), jsonProof); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BoltDB) RemoveProofs(secrets []string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		proofsb := tx.Bucket([]byte(PROOFS_BUCKET))
		for _, secret := range secrets {
			if err := proofsb.Delete([]byte(secret)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BoltDB) ListProofs() cashu.Proofs {
	proofs := cashu.Proofs{}
	db.bolt.View(func(tx *bolt.Tx) error {
		proofsb := tx.Bucket([]byte(PROOFS_BUCKET))
		c := proofsb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var proof cashu.Proof
			if err := json.Unmarshal(v, &proof); err != nil {
				continue
			}
			proofs = append(proofs, proof)
		}
		return nil
	})
	return proofs
}

func (db *BoltDB) ListProofsByKeysetId(id string) cashu.Proofs {
	proofs := cashu.Proofs{}
	db.bolt.View(func(tx *bolt.Tx) error {
		proofsb := tx.Bucket([]byte(PROOFS_BUCKET))
		c := proofsb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var proof cashu.Proof
			if err := json.Unmarshal(v, &proof); err != nil {
				continue
			}
			if proof.Id == id {
				proofs = append(proofs, proof)
			}
		}
		return nil
	})
	return proofs
}

func (db *BoltDB) GetBalance() uint64 {
	var balance uint64
	db.bolt.View(func(tx *bolt.Tx) error {
		proofsb := tx.Bucket([]byte(PROOFS_BUCKET))
		c := proofsb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var proof cashu.Proof
			if err := json.Unmarshal(v, &proof); err != nil {
				continue
			}
			balance += proof.Amount
		}
		return nil
	})
	return balance
}

func (db *BoltDB) SaveKeyset(keyset *crypto.WalletKeyset) error {
	jsonKeyset, err := json.Marshal(keyset)
	if err != nil {
		return fmt.Errorf("invalid keyset format: %v", err)
	}

	if err := db.bolt.Update(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(KEYSETS_BUCKET))
		mintBucket, err := keysetsb.CreateBucketIfNotExists([]byte(keyset.MintURL))
		if err != nil {
			return err
		}
		return mintBucket.Put([]byte(keyset.Id), jsonKeyset)
	}); err != nil {
		return fmt.Errorf("error saving keyset: %v", err)
	}
	return nil
}

func (db *BoltDB) GetKeysets() crypto.KeysetsMap {
	keysets := make(crypto.KeysetsMap)

	if err := db.bolt.View(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(KEYSETS_BUCKET))

		return keysetsb.ForEach(func(mintURL, v []byte) error {
			mintKeysets := []crypto.WalletKeyset{}
			mintBucket := keysetsb.Bucket(mintURL)
			c := mintBucket.Cursor()

			for k, v := c.First(); k != nil; k, v = c.Next() {
				var keyset crypto.WalletKeyset
				if err := json.Unmarshal(v, &keyset); err != nil {
					return err
				}
				mintKeysets = append(mintKeysets, keyset)
			}
			keysets[string(mintURL)] = mintKeysets
			return nil
		})
	}); err != nil {
		return nil
	}

	return keysets
}

func (db *BoltDB) GetKeyset(keysetId string) *crypto.WalletKeyset {
	var keyset *crypto.WalletKeyset

	db.bolt.View(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(KEYSETS_BUCKET))

		return keysetsb.ForEach(func(mintURL, v []byte) error {
			mintBucket := keysetsb.Bucket(mintURL)
			keysetBytes := mintBucket.Get([]byte(keysetId))
			if keysetBytes != nil {
				return json.Unmarshal(keysetBytes, &keyset)
			}
			return nil
		})
	})

	return keyset
}

func (db *BoltDB) IncrementKeysetCounter(keysetId string, num uint32) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(KEYSETS_BUCKET))
		var keyset *crypto.WalletKeyset
		keysetFound := false

		err := keysetsb.ForEach(func(mintURL, v []byte) error {
			mintBucket := keysetsb.Bucket(mintURL)

			keysetBytes := mintBucket.Get([]byte(keysetId))
			if keysetBytes != nil {
				if err := json.Unmarshal(keysetBytes, &keyset); err != nil {
					return fmt.Errorf("error reading keyset from db: %v", err)
				}
				keyset.Counter += num

				jsonBytes, err := json.Marshal(keyset)
				if err != nil {
					return err
				}
				keysetFound = true
				return mintBucket.Put([]byte(keysetId), jsonBytes)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !keysetFound {
			return ErrKeysetNotFound
		}
		return nil
	})
}

func (db *BoltDB) GetKeysetCounter(keysetId string) uint32 {
	var counter uint32

	db.bolt.View(func(tx *bolt.Tx) error {
		keysetsb := tx.Bucket([]byte(KEYSETS_BUCKET))
		var keyset *crypto.WalletKeyset

		return keysetsb.ForEach(func(mintURL, v []byte) error {
			mintBucket := keysetsb.Bucket(mintURL)
			keysetBytes := mintBucket.Get([]byte(keysetId))
			if keysetBytes != nil {
				if err := json.Unmarshal(keysetBytes, &keyset); err != nil {
					return err
				}
				counter = keyset.Counter
			}
			return nil
		})
	})

	return counter
}

type dbMintMetadata struct {
	Keysets  []MintKeysetInfo                 `json:"keysets"`
	Keys     map[string]crypto.PublicKeys     `json:"keys"`
	Info     []byte                           `json:"info"`
	CachedAt int64                            `json:"cached_at"`
}

func (db *BoltDB) GetCachedMintMetadata(mintURL string) (*CachedMintMetadata, bool) {
	var stored dbMintMetadata
	found := false

	db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MINT_METADATA_BUCKET))
		val := b.Get([]byte(mintURL))
		if val == nil {
			return nil
		}
		if err := json.Unmarshal(val, &stored); err != nil {
			return nil
		}
		found = true
		return nil
	})

	if !found {
		return nil, false
	}

	cachedAt := time.Unix(stored.CachedAt, 0)
	if time.Since(cachedAt) > CacheTTL {
		return nil, false
	}

	return &CachedMintMetadata{
		Keysets:  stored.Keysets,
		Keys:     stored.Keys,
		Info:     stored.Info,
		CachedAt: cachedAt,
	}, true
}

func (db *BoltDB) CacheMintMetadata(mintURL string, meta *CachedMintMetadata) error {
	stored := dbMintMetadata{
		Keysets:  meta.Keysets,
		Keys:     meta.Keys,
		Info:     meta.Info,
		CachedAt: meta.CachedAt.Unix(),
	}
	jsonBytes, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("invalid mint metadata: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(MINT_METADATA_BUCKET))
		return b.Put([]byte(mintURL), jsonBytes)
	})
}

type dbPendingSignal struct {
	MintURL  string `json:"mint_url"`
	KeysetId string `json:"keyset_id"`
	Amount   uint64 `json:"amount"`
	Secret   string `json:"secret"`
	R        []byte `json:"r"`
}

func pendingSignalKey(mintURL, secret string) []byte {
	var buf bytes.Buffer
	buf.WriteString(mintURL)
	buf.WriteByte(0)
	buf.WriteString(secret)
	return buf.Bytes()
}

func (db *BoltDB) SavePendingSignal(mintURL string, signal PendingSignal) error {
	signal.MintURL = mintURL
	stored := dbPendingSignal{
		MintURL:  signal.MintURL,
		KeysetId: signal.KeysetId,
		Amount:   signal.Amount,
		Secret:   signal.Secret,
		R:        signal.R,
	}
	jsonBytes, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("invalid pending signal: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(PENDING_SIGNAL_BUCKET))
		return b.Put(pendingSignalKey(mintURL, signal.Secret), jsonBytes)
	})
}

func (db *BoltDB) ListPendingSignals() []PendingSignal {
	signals := []PendingSignal{}

	db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(PENDING_SIGNAL_BUCKET))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var stored dbPendingSignal
			if err := json.Unmarshal(v, &stored); err != nil {
				continue
			}
			signals = append(signals, PendingSignal{
				MintURL:  stored.MintURL,
				KeysetId: stored.KeysetId,
				Amount:   stored.Amount,
				Secret:   stored.Secret,
				R:        stored.R,
			})
		}
		return nil
	})

	return signals
}

func (db *BoltDB) RemovePendingSignal(mintURL, secret string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(PENDING_SIGNAL_BUCKET))
		return b.Delete(pendingSignalKey(mintURL, secret))
	})
}
