// Package testmint is a minimal in-process mock of a Cashu mint's HTTP
// surface, used by integration tests to exercise the wallet's pay and scan
// engines against something that actually signs and tracks proofs, instead
// of a hand-rolled stub per test.
package testmint

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/cashu/nuts/nut07"
	"github.com/silentpay/silentpay/crypto"
)

// Mint holds every keyset the mock mint has ever generated, the set of
// secrets it has signed away (its "spent" ledger), and the signatures it
// issued per blinded point (for restore). A sync.Mutex guards all of it:
// tests run handlers concurrently via net/http/httptest just like a real
// server would.
type Mint struct {
	mu sync.Mutex

	master *hdkeychain.ExtendedKey

	keysets      map[string]*keyset
	activeKeyset *keyset
	nextIndex    uint32

	// signaturesByB_ remembers every blind signature issued, keyed by the
	// hex-encoded blinded point, so Restore can replay it.
	signaturesByB_ map[string]cashu.BlindedSignature
	blindedByB_    map[string]cashu.BlindedMessage

	// spentY marks a proof's Y = hash_to_curve(secret) as consumed.
	spentY map[string]bool
	// spentSecrets preserves insertion order for the spent-secrets feed.
	spentSecrets []string
}

// New builds a fresh mock mint with one active keyset. seed is whatever
// entropy the caller wants to fix for reproducible test fixtures.
func New(seed []byte) (*Mint, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("testmint: deriving master key: %w", err)
	}

	m := &Mint{
		master:         master,
		keysets:        make(map[string]*keyset),
		signaturesByB_: make(map[string]cashu.BlindedSignature),
		blindedByB_:    make(map[string]cashu.BlindedMessage),
		spentY:         make(map[string]bool),
	}

	if _, err := m.rotateKeyset(0); err != nil {
		return nil, err
	}
	return m, nil
}

// RotateKeyset deactivates the current keyset and generates a fresh active
// one, simulating the mint-side event the scan engine's keyset-rotation
// open question is about: existing wallet proofs signed under the
// now-inactive keyset remain valid, but new signing happens under the new
// id.
func (m *Mint) RotateKeyset() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotateKeyset(m.nextIndex)
}

func (m *Mint) rotateKeyset(index uint32) (string, error) {
	if m.activeKeyset != nil {
		m.activeKeyset.active = false
	}
	ks, err := generateKeyset(m.master, index, 0, true)
	if err != nil {
		return "", err
	}
	m.keysets[ks.id] = ks
	m.activeKeyset = ks
	m.nextIndex = index + 1
	return ks.id, nil
}

// ActiveKeysetId reports the id tests use to build blinded messages
// against the mint's current signing keyset.
func (m *Mint) ActiveKeysetId() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeKeyset.id
}

// Info returns an opaque info blob, mirroring NUT-06 shape loosely; the
// wallet never interprets its fields beyond caching them.
func (m *Mint) Info() map[string]any {
	return map[string]any{
		"name":        "testmint",
		"version":     "testmint/0.1",
		"description": "in-process mock mint for integration tests",
	}
}

// Keysets lists every keyset this mint has ever generated, active and
// retired alike, the NUT-02 summary shape.
func (m *Mint) Keysets() []keysetSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]keysetSummary, 0, len(m.keysets))
	for _, ks := range m.keysets {
		summaries = append(summaries, keysetSummary{
			Id:          ks.id,
			Unit:        ks.unit,
			Active:      ks.active,
			InputFeePpk: ks.inputFeePpk,
		})
	}
	return summaries
}

type keysetSummary struct {
	Id          string
	Unit        string
	Active      bool
	InputFeePpk uint
}

// Keys returns the public keys of every active keyset.
func (m *Mint) Keys() map[string]crypto.PublicKeys {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]crypto.PublicKeys)
	for id, ks := range m.keysets {
		if ks.active {
			out[id] = ks.publicKeys()
		}
	}
	return out
}

// KeysById returns one keyset's public keys regardless of whether it is
// still active, matching NUT-01's "may request keys of inactive keysets
// to restore" allowance.
func (m *Mint) KeysById(id string) (crypto.PublicKeys, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ks, ok := m.keysets[id]
	if !ok {
		return nil, false
	}
	return ks.publicKeys(), true
}

// Faucet signs a set of blinded messages with no input proofs required,
// standing in for the minting step the spec puts out of scope. Test
// fixtures use it to fund a wallet's starting balance directly.
func (m *Mint) Faucet(messages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signBlindedMessages(messages)
}

// Swap verifies every input proof, signs every output, and invalidates the
// inputs. Grounded on the teacher's Mint.Swap: verify amounts balance,
// verify each proof, then sign.
func (m *Mint) Swap(inputs cashu.Proofs, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(inputs) == 0 {
		return nil, cashu.NoProofsProvided
	}

	Ys := make([]string, len(inputs))
	for i, p := range inputs {
		Y, err := crypto.HashToCurve([]byte(p.Secret))
		if err != nil {
			return nil, cashu.InvalidProofErr
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	inputsAmount := inputs.Amount()
	outputsAmount := outputs.Amount()
	if inputsAmount < outputsAmount {
		return nil, cashu.InsufficientProofsAmount
	}

	if err := m.verifyProofs(inputs, Ys); err != nil {
		return nil, err
	}

	for _, bm := range outputs {
		if _, signed := m.signaturesByB_[bm.B_]; signed {
			return nil, cashu.BlindedMessageAlreadySigned
		}
	}

	sigs, err := m.signBlindedMessages(outputs)
	if err != nil {
		return nil, err
	}

	for i, y := range Ys {
		m.spentY[y] = true
		m.spentSecrets = append(m.spentSecrets, inputs[i].Secret)
	}

	return sigs, nil
}

func (m *Mint) verifyProofs(proofs cashu.Proofs, Ys []string) error {
	for i, p := range proofs {
		if m.spentY[Ys[i]] {
			return cashu.ProofAlreadyUsedErr
		}

		ks, ok := m.keysets[p.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		kp, ok := ks.keys[p.Amount]
		if !ok {
			return cashu.InvalidProofErr
		}

		Cbytes, err := hex.DecodeString(p.C)
		if err != nil {
			return cashu.InvalidProofErr
		}
		C, err := secp256k1.ParsePubKey(Cbytes)
		if err != nil {
			return cashu.InvalidProofErr
		}

		if !crypto.Verify([]byte(p.Secret), kp.private, C) {
			return cashu.InvalidProofErr
		}
	}
	return nil
}

// signBlindedMessages signs every output under its keyset's key for that
// denomination, requiring the keyset to still be active: a mint never
// issues new signatures under a retired keyset.
func (m *Mint) signBlindedMessages(messages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	sigs := make(cashu.BlindedSignatures, len(messages))

	for i, bm := range messages {
		ks, ok := m.keysets[bm.Id]
		if !ok {
			return nil, cashu.UnknownKeysetErr
		}
		if !ks.active {
			return nil, cashu.InactiveKeysetSignatureRequest
		}
		kp, ok := ks.keys[bm.Amount]
		if !ok {
			return nil, cashu.InvalidBlindedMessageAmount
		}

		B_bytes, err := hex.DecodeString(bm.B_)
		if err != nil {
			return nil, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		B_, err := secp256k1.ParsePubKey(B_bytes)
		if err != nil {
			return nil, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		C_ := crypto.SignBlindedMessage(B_, kp.private)
		sig := cashu.BlindedSignature{
			Amount: bm.Amount,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			Id:     ks.id,
		}

		sigs[i] = sig
		m.signaturesByB_[bm.B_] = sig
		m.blindedByB_[bm.B_] = bm
	}

	return sigs, nil
}

// CheckStates reports SPENT/UNSPENT for each Y, the rest of the mock mint
// never produces PENDING or UNKNOWN.
func (m *Mint) CheckStates(Ys []string) []nut07.ProofState {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]nut07.ProofState, len(Ys))
	for i, y := range Ys {
		state := nut07.Unspent
		if m.spentY[y] {
			state = nut07.Spent
		}
		states[i] = nut07.ProofState{Y: y, State: state}
	}
	return states
}

// Restore replays every previously-issued signature for the given blinded
// messages, the subset the mint recognizes.
func (m *Mint) Restore(requested cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var outputs cashu.BlindedMessages
	var sigs cashu.BlindedSignatures
	for _, bm := range requested {
		sig, ok := m.signaturesByB_[bm.B_]
		if !ok {
			continue
		}
		outputs = append(outputs, m.blindedByB_[bm.B_])
		sigs = append(sigs, sig)
	}
	return outputs, sigs
}

// SpentSecrets returns every proof secret ever consumed by a swap, the
// non-standard feed the scan protocol's discovery mechanism depends on.
func (m *Mint) SpentSecrets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.spentSecrets))
	copy(out, m.spentSecrets)
	return out
}
