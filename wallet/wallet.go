// Package wallet is the silent-payment wallet façade: it composes the
// proof store, mint client, and pay/scan engines behind Open/Close and a
// handful of operations (Balance, Address, Pay, Scan).
package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/cashu/nuts/nut13"
	"github.com/silentpay/silentpay/crypto"
	"github.com/silentpay/silentpay/wallet/mintclient"
	"github.com/silentpay/silentpay/wallet/storage"
)

// Wallet is a single (db_path, mint_url) handle. A process serializes its
// own calls into one Wallet; concurrent opens of the same db path are
// undefined, matching the store's single-writer assumption.
type Wallet struct {
	db     storage.WalletDB
	client *mintclient.Client

	MintURL string

	mnemonic  string
	masterKey *hdkeychain.ExtendedKey

	silentKeys *crypto.SilentKeys

	activeKeysetId    string
	activeKeys        crypto.PublicKeys
	inactiveKeysetIds []string
}

// Open creates or loads a wallet at config.WalletPath (overridable via
// CASHU_WALLET_DB) against config.MintURL. A fresh wallet generates a new
// mnemonic and silent-payment keypair; an existing one loads both from
// the store.
func Open(config Config) (*Wallet, error) {
	path := config.resolvedPath()
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, newError(StoreFailure, "creating wallet directory", err)
	}

	db, err := storage.InitBolt(path)
	if err != nil {
		return nil, newError(StoreFailure, "opening wallet store", err)
	}

	w := &Wallet{
		db:      db,
		client:  mintclient.New(config.MintURL),
		MintURL: config.MintURL,
	}

	if err := w.loadOrCreateMnemonic(); err != nil {
		db.Close()
		return nil, err
	}
	if err := w.loadOrCreateSilentKeys(); err != nil {
		db.Close()
		return nil, err
	}
	if err := w.syncMintMetadata(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

func (w *Wallet) loadOrCreateMnemonic() error {
	mnemonic, err := w.db.GetMnemonic()
	if err == storage.ErrMnemonicNotSet {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return newError(StoreFailure, "generating mnemonic entropy", err)
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			return newError(StoreFailure, "generating mnemonic", err)
		}
		if err := w.db.SaveMnemonic(mnemonic); err != nil {
			return newError(StoreFailure, "saving mnemonic", err)
		}
	} else if err != nil {
		return newError(StoreFailure, "loading mnemonic", err)
	}

	w.mnemonic = mnemonic
	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return newError(StoreFailure, "deriving master key", err)
	}
	w.masterKey = masterKey
	return nil
}

func (w *Wallet) loadOrCreateSilentKeys() error {
	keys, err := w.db.GetSilentKeys()
	if err == storage.ErrSilentKeysNotSet {
		keys, err = crypto.NewSilentKeys()
		if err != nil {
			return newError(StoreFailure, "generating silent keys", err)
		}
		if err := w.db.SaveSilentKeys(keys); err != nil {
			return newError(StoreFailure, "saving silent keys", err)
		}
	} else if err != nil {
		return newError(StoreFailure, "loading silent keys", err)
	}

	w.silentKeys = keys
	return nil
}

// syncMintMetadata refreshes the active keyset and its keys, consulting
// the TTL cache first. Inactive keyset ids are tracked so InactiveKeysetIDs
// can flag the keyset-rotation edge case to callers of Scan.
func (w *Wallet) syncMintMetadata() error {
	if cached, ok := w.db.GetCachedMintMetadata(w.MintURL); ok {
		return w.applyMintMetadata(cached)
	}

	keysetsRes, err := w.client.GetKeysets()
	if err != nil {
		return newError(MintUnavailable, "fetching keysets", err)
	}
	info, err := w.client.GetInfo()
	if err != nil {
		return newError(MintUnavailable, "fetching mint info", err)
	}

	keys := make(map[string]crypto.PublicKeys)
	metaKeysets := make([]storage.MintKeysetInfo, 0, len(keysetsRes.Keysets))
	for _, ks := range keysetsRes.Keysets {
		if ks.Unit != cashu.Sat.String() {
			continue
		}
		metaKeysets = append(metaKeysets, storage.MintKeysetInfo{
			Id: ks.Id, Unit: ks.Unit, Active: ks.Active, InputFeePpk: ks.InputFeePpk,
		})

		pubKeys, err := w.client.GetKeysById(ks.Id)
		if err != nil {
			return newError(MintUnavailable, fmt.Sprintf("fetching keys for keyset %s", ks.Id), err)
		}
		keys[ks.Id] = pubKeys
	}

	meta := &storage.CachedMintMetadata{
		Keysets:  metaKeysets,
		Keys:     keys,
		Info:     info,
		CachedAt: time.Now(),
	}
	if err := w.db.CacheMintMetadata(w.MintURL, meta); err != nil {
		return newError(StoreFailure, "caching mint metadata", err)
	}

	return w.applyMintMetadata(meta)
}

func (w *Wallet) applyMintMetadata(meta *storage.CachedMintMetadata) error {
	var inactive []string
	for _, ks := range meta.Keysets {
		var counter uint32
		if existing := w.db.GetKeyset(ks.Id); existing != nil {
			counter = existing.Counter
		}

		walletKeyset := &crypto.WalletKeyset{
			Id:          ks.Id,
			MintURL:     w.MintURL,
			Unit:        ks.Unit,
			Active:      ks.Active,
			PublicKeys:  meta.Keys[ks.Id],
			Counter:     counter,
			InputFeePpk: ks.InputFeePpk,
		}
		if err := w.db.SaveKeyset(walletKeyset); err != nil {
			return newError(StoreFailure, "saving keyset", err)
		}

		if ks.Active {
			w.activeKeysetId = ks.Id
			w.activeKeys = meta.Keys[ks.Id]
		} else {
			inactive = append(inactive, ks.Id)
		}
	}
	w.inactiveKeysetIds = inactive

	if w.activeKeysetId == "" {
		return newError(MintUnavailable, "mint has no active sat keyset", nil)
	}
	return nil
}

// InactiveKeysetIDs reports keyset ids the wallet knows about but which
// are no longer the mint's active keyset. Scan only probes the active
// keyset id (an unresolved rotation edge case the spec flags rather than
// guesses at); callers that care about proofs issued under a
// since-rotated keyset can consult this list.
func (w *Wallet) InactiveKeysetIDs() []string {
	return w.inactiveKeysetIds
}

func (w *Wallet) Close() error {
	return w.db.Close()
}

func (w *Wallet) Balance() uint64 {
	return w.db.GetBalance()
}

func (w *Wallet) Address() string {
	return FormatAddress(w.MintURL, w.silentKeys.ScanPub, w.silentKeys.SpendPub)
}

// createRandomBlindedMessages builds split-amount blinded messages with
// fresh random secrets and blinding factors, the wallet's default
// (non-silent, non-deterministic) output construction.
func createRandomBlindedMessages(keysetId string, amount uint64) (cashu.BlindedMessages, []string, []*secp256k1.PrivateKey, error) {
	splitAmounts := cashu.AmountSplit(amount)

	messages := make(cashu.BlindedMessages, len(splitAmounts))
	secrets := make([]string, len(splitAmounts))
	rs := make([]*secp256k1.PrivateKey, len(splitAmounts))

	for i, amt := range splitAmounts {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return nil, nil, nil, err
		}
		secret := hex.EncodeToString(secretBytes)

		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, nil, err
		}

		B_, r, err := crypto.BlindMessage([]byte(secret), r.Serialize())
		if err != nil {
			return nil, nil, nil, err
		}

		messages[i] = cashu.NewBlindedMessage(keysetId, amt, B_)
		secrets[i] = secret
		rs[i] = r
	}

	return messages, secrets, rs, nil
}

// createDeterministicBlindedMessages builds split-amount blinded messages
// whose secrets and blinding factors derive from the wallet's own mnemonic
// via nut13, so ordinary change can be recovered by restore scanning
// without depending on the local store surviving. This is orthogonal to
// Bob's SilentKeys derivation: it uses the wallet's own BIP-32 path, not
// an ECDH shared secret.
func (w *Wallet) createDeterministicBlindedMessages(keysetId string, amount uint64) (cashu.BlindedMessages, []string, []*secp256k1.PrivateKey, error) {
	splitAmounts := cashu.AmountSplit(amount)

	keysetPath, err := nut13.DeriveKeysetPath(w.masterKey, keysetId)
	if err != nil {
		return nil, nil, nil, err
	}
	startCounter := w.db.GetKeysetCounter(keysetId)
	counter := startCounter

	messages := make(cashu.BlindedMessages, len(splitAmounts))
	secrets := make([]string, len(splitAmounts))
	rs := make([]*secp256k1.PrivateKey, len(splitAmounts))

	for i, amt := range splitAmounts {
		secret, err := nut13.DeriveSecret(keysetPath, counter)
		if err != nil {
			return nil, nil, nil, err
		}
		r, err := nut13.DeriveBlindingFactor(keysetPath, counter)
		if err != nil {
			return nil, nil, nil, err
		}
		counter++

		B_, r, err := crypto.BlindMessage([]byte(secret), r.Serialize())
		if err != nil {
			return nil, nil, nil, err
		}

		messages[i] = cashu.NewBlindedMessage(keysetId, amt, B_)
		secrets[i] = secret
		rs[i] = r
	}

	if err := w.db.IncrementKeysetCounter(keysetId, counter-startCounter); err != nil {
		return nil, nil, nil, err
	}

	return messages, secrets, rs, nil
}

// constructProofs unblinds each signature against its matching r, using
// the keyset's known public key for that denomination.
func constructProofs(sigs cashu.BlindedSignatures, secrets []string, rs []*secp256k1.PrivateKey, keys crypto.PublicKeys) (cashu.Proofs, error) {
	if len(sigs) != len(secrets) || len(sigs) != len(rs) {
		return nil, fmt.Errorf("wallet: mismatched lengths constructing proofs")
	}

	proofs := make(cashu.Proofs, len(sigs))
	for i, sig := range sigs {
		C_bytes, err := hex.DecodeString(sig.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		K, ok := keys[sig.Amount]
		if !ok {
			return nil, fmt.Errorf("wallet: no mint key for amount %d", sig.Amount)
		}

		C := crypto.UnblindSignature(C_, rs[i], K)
		proofs[i] = cashu.Proof{
			Amount: sig.Amount,
			Id:     sig.Id,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
			DLEQ:   sig.DLEQ,
		}
	}

	return proofs, nil
}

// selectProofs greedily picks stored proofs, preferring inactive-keyset
// proofs first (so the wallet naturally migrates off a rotated keyset),
// until their sum reaches amount. Returns InsufficientBalance if the
// store can't cover it.
func (w *Wallet) selectProofs(amount uint64) (cashu.Proofs, uint64, error) {
	if w.db.GetBalance() < amount {
		return nil, 0, newError(InsufficientBalance, fmt.Sprintf("need %d, have %d", amount, w.db.GetBalance()), nil)
	}

	isInactive := make(map[string]bool, len(w.inactiveKeysetIds))
	for _, id := range w.inactiveKeysetIds {
		isInactive[id] = true
	}

	all := w.db.ListProofs()
	var inactiveProofs, activeProofs cashu.Proofs
	for _, p := range all {
		if isInactive[p.Id] {
			inactiveProofs = append(inactiveProofs, p)
		} else {
			activeProofs = append(activeProofs, p)
		}
	}

	var selected cashu.Proofs
	var total uint64
	for _, group := range []cashu.Proofs{inactiveProofs, activeProofs} {
		for _, p := range group {
			if total >= amount {
				break
			}
			selected = append(selected, p)
			total += p.Amount
		}
		if total >= amount {
			break
		}
	}

	if total < amount {
		return nil, 0, newError(InsufficientBalance, fmt.Sprintf("need %d, have %d", amount, total), nil)
	}

	return selected, total, nil
}
