package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/crypto"
	"github.com/silentpay/silentpay/wallet/storage"
)

// PayResult is what Pay returns to the caller: the proofs now owned by
// Bob (already swapped and signed, but never stored locally — they
// belong to the receiver, discovered later via their own Scan), Alice's
// change proofs (already committed to the local store), and the signal
// secret a scanner will eventually see in the mint's spent-secret feed.
type PayResult struct {
	BobProofs    cashu.Proofs
	AliceChange  cashu.Proofs
	SignalSecret string
}

// Pay sends amount to address using the two-phase silent-payment
// construction: a signal proof whose secret is the sender's ephemeral
// public key, then a second swap producing Bob's silent outputs and
// Alice's change in one request.
//
// Ordering requirement: selection -> signal swap -> silent swap -> local
// commit. The commit must not happen before the silent swap succeeds, or
// change would be double-counted against proofs already spent.
func (w *Wallet) Pay(address string, amount uint64) (*PayResult, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if addr.MintURL != w.MintURL {
		return nil, newError(CrossMint, fmt.Sprintf("wallet is bound to %s, address targets %s", w.MintURL, addr.MintURL), nil)
	}

	selected, total, err := w.selectProofs(amount)
	if err != nil {
		return nil, err
	}

	special, ePriv, err := w.swapSignalProof(selected, total)
	if err != nil {
		// Signal swap failed: selected inputs remain in the store
		// untouched. A pending-signal record saved before the swap was
		// sent is left in place.
		return nil, newError(MintUnavailable, "signal swap", err)
	}

	signalSecret := special.Secret

	bobProofs, aliceChange, err := w.swapSilentOutputs(special, ePriv, addr, amount, total)
	if err != nil {
		// The special proof is now orphaned on the mint but recoverable:
		// its secret is known (signalSecret) and RecoverOrphanedSignal can
		// retry the silent swap later.
		return nil, newError(MintUnavailable, "silent swap (signal proof orphaned, see RecoverOrphanedSignal)", err)
	}

	if err := w.db.RemoveProofs(proofSecrets(selected)); err != nil {
		return nil, newError(StoreFailure, "removing spent proofs", err)
	}
	if err := w.db.AddProofs(aliceChange); err != nil {
		return nil, newError(StoreFailure, "storing change proofs", err)
	}
	if err := w.db.RemovePendingSignal(w.MintURL, signalSecret); err != nil {
		return nil, newError(StoreFailure, "clearing pending signal", err)
	}

	return &PayResult{
		BobProofs:    bobProofs,
		AliceChange:  aliceChange,
		SignalSecret: signalSecret,
	}, nil
}

// swapSignalProof publishes a one-time ephemeral public key as the secret
// of a single proof of amount total. Its blinding factor is fresh random,
// not derived: the sender never needs to rediscover it.
//
// The pending-signal record is persisted before the signal swap is sent to
// the mint, not after: if the process dies between the mint accepting the
// swap and the call returning, the secret and r needed to recover the
// special proof must already be on disk, or RecoverOrphanedSignal has
// nothing to find.
func (w *Wallet) swapSignalProof(selected cashu.Proofs, total uint64) (cashu.Proof, *secp256k1.PrivateKey, error) {
	ePriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return cashu.Proof{}, nil, err
	}
	secret := hex.EncodeToString(ePriv.PubKey().SerializeCompressed())

	r, err := crypto.RandomBlindingFactor()
	if err != nil {
		return cashu.Proof{}, nil, err
	}

	B_, r, err := crypto.BlindMessage([]byte(secret), r.Serialize())
	if err != nil {
		return cashu.Proof{}, nil, err
	}

	pending := storage.PendingSignal{
		KeysetId: w.activeKeysetId,
		Amount:   total,
		Secret:   secret,
		R:        ePriv.Serialize(),
	}
	if err := w.db.SavePendingSignal(w.MintURL, pending); err != nil {
		return cashu.Proof{}, nil, newError(StoreFailure, "persisting pending signal before signal swap", err)
	}

	signalMsg := cashu.NewBlindedMessage(w.activeKeysetId, total, B_)
	sigs, err := w.client.Swap(selected, cashu.BlindedMessages{signalMsg})
	if err != nil {
		return cashu.Proof{}, nil, err
	}
	if len(sigs) != 1 {
		return cashu.Proof{}, nil, newError(RestoreMismatch, "expected exactly one signal signature", nil)
	}

	proofs, err := constructProofs(sigs, []string{secret}, []*secp256k1.PrivateKey{r}, w.activeKeys)
	if err != nil {
		return cashu.Proof{}, nil, err
	}

	return proofs[0], ePriv, nil
}

// swapSilentOutputs consumes the signal proof and emits Bob's silent
// outputs for amount, plus Alice's (deterministic) change for the
// remainder, in a single swap.
func (w *Wallet) swapSilentOutputs(special cashu.Proof, ePriv *secp256k1.PrivateKey, addr *CashuAddress, amount, total uint64) (cashu.Proofs, cashu.Proofs, error) {
	sharedSecret := crypto.ECDH(ePriv, addr.ScanPub)

	bobSplits := cashu.AmountSplit(amount)
	bobMessages := make(cashu.BlindedMessages, len(bobSplits))
	bobRs := make([]*secp256k1.PrivateKey, len(bobSplits))
	bobSecrets := make([]string, len(bobSplits))

	for k, amt := range bobSplits {
		out, err := crypto.CreateSilentOutput(amt, w.activeKeysetId, sharedSecret, addr.SpendPub, byte(k))
		if err != nil {
			return nil, nil, err
		}
		bobMessages[k] = cashu.NewBlindedMessage(w.activeKeysetId, amt, out.B_)
		bobRs[k] = out.R
		bobSecrets[k] = out.Secret
	}

	changeAmount := total - amount
	var changeMessages cashu.BlindedMessages
	var changeSecrets []string
	var changeRs []*secp256k1.PrivateKey
	if changeAmount > 0 {
		var err error
		changeMessages, changeSecrets, changeRs, err = w.createDeterministicBlindedMessages(w.activeKeysetId, changeAmount)
		if err != nil {
			return nil, nil, err
		}
	}

	outputs := make(cashu.BlindedMessages, 0, len(bobMessages)+len(changeMessages))
	outputs = append(outputs, bobMessages...)
	outputs = append(outputs, changeMessages...)

	sigs, err := w.client.Swap(cashu.Proofs{special}, outputs)
	if err != nil {
		return nil, nil, err
	}
	if len(sigs) != len(outputs) {
		return nil, nil, newError(RestoreMismatch, "mint returned a different number of signatures than outputs", nil)
	}

	bobSigs := sigs[:len(bobMessages)]
	changeSigs := sigs[len(bobMessages):]

	bobProofs, err := constructProofs(bobSigs, bobSecrets, bobRs, w.activeKeys)
	if err != nil {
		return nil, nil, err
	}
	aliceChange, err := constructProofs(changeSigs, changeSecrets, changeRs, w.activeKeys)
	if err != nil {
		return nil, nil, err
	}

	return bobProofs, aliceChange, nil
}

func proofSecrets(proofs cashu.Proofs) []string {
	secrets := make([]string, len(proofs))
	for i, p := range proofs {
		secrets[i] = p.Secret
	}
	return secrets
}

// RecoverOrphanedSignal retries the silent-output swap for the first
// signal proof of this mint left pending by an interrupted Pay, and
// returns after that one. This addresses the spec's open question about
// an orphaned special proof: since its secret is known and persisted, the
// swap can be retried instead of leaving the funds permanently
// unreachable. Callers supply the recipient address and payment amount
// again; the signal proof's total is taken from the persisted record.
func (w *Wallet) RecoverOrphanedSignal(address string, amount uint64) (*PayResult, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if addr.MintURL != w.MintURL {
		return nil, newError(CrossMint, "recovery address targets a different mint", nil)
	}

	pendings := w.db.ListPendingSignals()
	for _, p := range pendings {
		if p.MintURL != w.MintURL {
			continue
		}

		special := cashu.Proof{Amount: p.Amount, Id: p.KeysetId, Secret: p.Secret}
		ePriv := secp256k1.PrivKeyFromBytes(p.R)

		bobProofs, aliceChange, err := w.swapSilentOutputs(special, ePriv, addr, amount, p.Amount)
		if err != nil {
			return nil, newError(MintUnavailable, "retrying silent swap for pending signal", err)
		}

		if err := w.db.AddProofs(aliceChange); err != nil {
			return nil, newError(StoreFailure, "storing recovered change proofs", err)
		}
		if err := w.db.RemovePendingSignal(w.MintURL, p.Secret); err != nil {
			return nil, newError(StoreFailure, "clearing recovered pending signal", err)
		}

		return &PayResult{BobProofs: bobProofs, AliceChange: aliceChange, SignalSecret: p.Secret}, nil
	}

	return nil, newError(NoPendingSignal, "no pending signal found for this mint", nil)
}
