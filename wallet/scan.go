package wallet

import (
	"encoding/hex"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/cashu/nuts/nut07"
	"github.com/silentpay/silentpay/crypto"
)

// scanCounterBound is K: the maximum number of denominations per silent
// payment the scanner is willing to probe. A sender emitting more
// denominations than this produces undiscoverable outputs — a documented
// privacy-vs-cost tradeoff, not a bug.
const scanCounterBound = 8

// ScanResult is what Scan returns: the proofs claimed this call. Already
// added to the local store by the time Scan returns.
type ScanResult struct {
	Discovered cashu.Proofs
}

// Scan fetches the mint's spent-secret feed and, for every candidate that
// decompresses to a valid point, derives the K candidate silent outputs
// via ECDH with this wallet's scan key, asks the mint to restore any that
// exist, keeps only the ones still unspent, and claims them with a fresh
// swap so their secrets stop deterministically linking back to the
// sender.
//
// Idempotent: a candidate discovered by an earlier Scan was already
// claimed (swapped to a fresh secret), so its original secret restores
// the same proof again but check_states now reports it SPENT, and it is
// filtered out.
func (w *Wallet) Scan() (*ScanResult, error) {
	spentSecrets, err := w.client.FetchSpentSecrets()
	if err != nil {
		return nil, newError(MintUnavailable, "fetching spent secrets", err)
	}

	var restored cashu.Proofs
	for _, candidate := range spentSecrets {
		proofs, err := w.scanCandidate(candidate)
		if err != nil {
			return nil, err
		}
		restored = append(restored, proofs...)
	}

	if len(restored) == 0 {
		return &ScanResult{Discovered: cashu.Proofs{}}, nil
	}

	claimed, err := w.claimProofs(restored)
	if err != nil {
		return nil, err
	}

	if err := w.db.AddProofs(claimed); err != nil {
		return nil, newError(StoreFailure, "storing claimed proofs", err)
	}

	return &ScanResult{Discovered: claimed}, nil
}

// scanCandidate tests one spent-secret entry. A malformed or unrelated
// candidate yields zero proofs, never an error: InvalidCandidate is
// ignored silently during scan, per the error-handling design.
func (w *Wallet) scanCandidate(candidate string) (cashu.Proofs, error) {
	if len(candidate) != 66 {
		return nil, nil
	}
	pointBytes, err := hex.DecodeString(candidate)
	if err != nil {
		return nil, nil
	}
	P, err := crypto.Decompress(pointBytes)
	if err != nil {
		return nil, nil
	}

	sharedSecret := crypto.ECDH(w.silentKeys.ScanPriv, P)

	candidates := make([]*crypto.OutputData, scanCounterBound)
	messages := make(cashu.BlindedMessages, scanCounterBound)
	byB_ := make(map[string]*crypto.OutputData, scanCounterBound)

	for k := 0; k < scanCounterBound; k++ {
		out, err := crypto.CreateSilentOutput(0, w.activeKeysetId, sharedSecret, w.silentKeys.SpendPub, byte(k))
		if err != nil {
			return nil, err
		}
		candidates[k] = out
		messages[k] = cashu.NewBlindedMessage(w.activeKeysetId, 0, out.B_)
		byB_[hex.EncodeToString(out.B_.SerializeCompressed())] = out
	}

	restoredOutputs, sigs, err := w.client.Restore(messages)
	if err != nil {
		return nil, newError(MintUnavailable, "restore", err)
	}
	if len(restoredOutputs) == 0 {
		return nil, nil
	}

	proofsByY := make(map[string]cashu.Proof, len(restoredOutputs))
	Ys := make([]string, 0, len(restoredOutputs))

	for i, out := range restoredOutputs {
		cand, ok := byB_[out.B_]
		if !ok {
			continue
		}
		sig := sigs[i]

		K, ok := w.activeKeys[sig.Amount]
		if !ok {
			continue
		}

		C_bytes, err := hex.DecodeString(sig.C_)
		if err != nil {
			continue
		}
		C_, err := crypto.Decompress(C_bytes)
		if err != nil {
			continue
		}
		C := crypto.UnblindSignature(C_, cand.R, K)

		Y, err := crypto.HashToCurve([]byte(cand.Secret))
		if err != nil {
			continue
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		proofsByY[Yhex] = cashu.Proof{
			Amount: sig.Amount,
			Id:     sig.Id,
			Secret: cand.Secret,
			C:      hex.EncodeToString(C.SerializeCompressed()),
			DLEQ:   sig.DLEQ,
		}
		Ys = append(Ys, Yhex)
	}

	if len(Ys) == 0 {
		return nil, nil
	}

	states, err := w.client.CheckStates(Ys)
	if err != nil {
		return nil, newError(MintUnavailable, "checkstate", err)
	}

	var unspent cashu.Proofs
	for _, state := range states {
		if state.State == nut07.Unspent {
			unspent = append(unspent, proofsByY[state.Y])
		}
	}

	return unspent, nil
}

// claimProofs swaps every restored proof for a fresh one with a random
// (not derived) blinding factor, so their secrets stop deterministically
// tying back to the sender's ephemeral key once claimed.
func (w *Wallet) claimProofs(restored cashu.Proofs) (cashu.Proofs, error) {
	total := restored.Amount()

	messages, secrets, rs, err := createRandomBlindedMessages(w.activeKeysetId, total)
	if err != nil {
		return nil, err
	}

	sigs, err := w.client.Swap(restored, messages)
	if err != nil {
		return nil, newError(MintUnavailable, "claim swap", err)
	}

	return constructProofs(sigs, secrets, rs, w.activeKeys)
}
