// Package storage persists a wallet's local state: its mnemonic, its
// silent-payment key material, the proofs it currently holds, cached mint
// metadata, its known keysets, and any signal proof left pending after an
// interrupted payment.
package storage

import (
	"time"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/crypto"
)

// WalletDB is the storage contract the wallet façade depends on. All
// operations are atomic at the single-row level; no cross-row transaction
// is required beyond per-call atomicity.
type WalletDB interface {
	// SaveMnemonic inserts the wallet's mnemonic. It must fail if a
	// mnemonic already exists — this is an insert, not an upsert, since a
	// wallet's seed phrase is fixed for its lifetime.
	SaveMnemonic(mnemonic string) error
	GetMnemonic() (string, error)

	// SaveSilentKeys upserts Bob's long-lived silent-payment keypair.
	SaveSilentKeys(keys *crypto.SilentKeys) error
	GetSilentKeys() (*crypto.SilentKeys, error)

	// GetBalance sums the amount of every stored proof; 0 if empty.
	GetBalance() uint64
	// AddProofs upserts by secret; duplicates replace.
	AddProofs(cashu.Proofs) error
	// RemoveProofs deletes matching rows by secret; silent if none match.
	RemoveProofs(secrets []string) error
	ListProofs() cashu.Proofs
	ListProofsByKeysetId(keysetId string) cashu.Proofs

	SaveKeyset(*crypto.WalletKeyset) error
	GetKeysets() crypto.KeysetsMap
	GetKeyset(keysetId string) *crypto.WalletKeyset
	IncrementKeysetCounter(keysetId string, num uint32) error
	GetKeysetCounter(keysetId string) uint32

	// GetCachedMintMetadata returns the cached entry for mintURL iff it is
	// younger than the store's TTL, else (nil, false).
	GetCachedMintMetadata(mintURL string) (*CachedMintMetadata, bool)
	// CacheMintMetadata replaces the cached entry for mintURL wholesale.
	CacheMintMetadata(mintURL string, meta *CachedMintMetadata) error

	// SavePendingSignal persists a signal proof's OutputData before the
	// signal swap is sent, so it can be recovered if the wallet crashes or
	// the paired silent-output swap fails.
	SavePendingSignal(mintURL string, signal PendingSignal) error
	ListPendingSignals() []PendingSignal
	RemovePendingSignal(mintURL, secret string) error

	Close() error
}

// CachedMintMetadata is a TTL-bounded local cache of a mint's keysets,
// public keys, and opaque info blob, avoiding a round trip to the mint on
// every operation.
type CachedMintMetadata struct {
	Keysets  []MintKeysetInfo
	Keys     map[string]crypto.PublicKeys
	Info     []byte
	CachedAt time.Time
}

// MintKeysetInfo mirrors a NUT-02 keyset entry.
type MintKeysetInfo struct {
	Id          string
	Unit        string
	Active      bool
	InputFeePpk uint
}

// PendingSignal records an in-flight signal proof: the secret Alice
// published (the ephemeral public key, hex-encoded), the matching
// ephemeral private key needed to rederive the ECDH shared secret, and
// the amount/keyset it was swapped under. Kept so a failed or
// interrupted payment can be retried without losing the ecash already
// committed to the signal swap.
type PendingSignal struct {
	MintURL  string
	KeysetId string
	Amount   uint64
	Secret   string
	R        []byte // serialized ephemeral private key
}

// CacheTTL is how long a CachedMintMetadata entry remains valid.
const CacheTTL = time.Hour
