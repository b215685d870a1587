package testmint

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/silentpay/silentpay/cashu"
	"github.com/silentpay/silentpay/cashu/nuts/nut07"
	"github.com/silentpay/silentpay/crypto"
)

func newTestMint(t *testing.T) *Mint {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatal(err)
	}
	m, err := New(seed)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func blindRandomSecret(t *testing.T, keysetId string, amount uint64) (cashu.BlindedMessage, string, *secp256k1.PrivateKey) {
	t.Helper()
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		t.Fatal(err)
	}
	secret := hex.EncodeToString(secretBytes)

	r, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	B_, r, err := crypto.BlindMessage([]byte(secret), r.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	return cashu.NewBlindedMessage(keysetId, amount, B_), secret, r
}

func faucetProof(t *testing.T, m *Mint, amount uint64) cashu.Proof {
	t.Helper()
	bm, secret, r := blindRandomSecret(t, m.ActiveKeysetId(), amount)
	sigs, err := m.Faucet(cashu.BlindedMessages{bm})
	if err != nil {
		t.Fatal(err)
	}

	C_bytes, _ := hex.DecodeString(sigs[0].C_)
	C_, err := secp256k1.ParsePubKey(C_bytes)
	if err != nil {
		t.Fatal(err)
	}
	pks, _ := m.KeysById(sigs[0].Id)
	C := crypto.UnblindSignature(C_, r, pks[amount])

	return cashu.Proof{Amount: amount, Id: sigs[0].Id, Secret: secret, C: hex.EncodeToString(C.SerializeCompressed())}
}

func TestSwapInvalidatesInputsAndSigns(t *testing.T) {
	m := newTestMint(t)
	proof := faucetProof(t, m, 8)

	outBm, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 8)
	sigs, err := m.Swap(cashu.Proofs{proof}, cashu.BlindedMessages{outBm})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Amount != 8 {
		t.Fatalf("unexpected signatures: %+v", sigs)
	}

	// Re-spending the same proof must fail: it is now invalidated.
	outBm2, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 8)
	if _, err := m.Swap(cashu.Proofs{proof}, cashu.BlindedMessages{outBm2}); err == nil {
		t.Fatal("expected double-spend to fail")
	}
}

func TestSwapRejectsUnbalancedAmounts(t *testing.T) {
	m := newTestMint(t)
	proof := faucetProof(t, m, 4)

	outBm, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 8)
	if _, err := m.Swap(cashu.Proofs{proof}, cashu.BlindedMessages{outBm}); err == nil {
		t.Fatal("expected insufficient-amount rejection")
	}
}

func TestCheckStatesReflectsSwap(t *testing.T) {
	m := newTestMint(t)
	proof := faucetProof(t, m, 2)

	Y, err := crypto.HashToCurve([]byte(proof.Secret))
	if err != nil {
		t.Fatal(err)
	}
	Yhex := hex.EncodeToString(Y.SerializeCompressed())

	states := m.CheckStates([]string{Yhex})
	if states[0].State != nut07.Unspent {
		t.Fatalf("expected unspent before swap, got %v", states[0].State)
	}

	outBm, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 2)
	if _, err := m.Swap(cashu.Proofs{proof}, cashu.BlindedMessages{outBm}); err != nil {
		t.Fatal(err)
	}

	states = m.CheckStates([]string{Yhex})
	if states[0].State != nut07.Spent {
		t.Fatalf("expected spent after swap, got %v", states[0].State)
	}
}

func TestRestoreReplaysIssuedSignature(t *testing.T) {
	m := newTestMint(t)
	bm, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 16)

	sigs, err := m.Faucet(cashu.BlindedMessages{bm})
	if err != nil {
		t.Fatal(err)
	}

	outputs, restoredSigs := m.Restore(cashu.BlindedMessages{bm})
	if len(outputs) != 1 || len(restoredSigs) != 1 {
		t.Fatalf("expected one restored output, got %d/%d", len(outputs), len(restoredSigs))
	}
	if restoredSigs[0].C_ != sigs[0].C_ {
		t.Error("restored signature does not match issued signature")
	}

	unknownBm, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 16)
	outputs, restoredSigs = m.Restore(cashu.BlindedMessages{unknownBm})
	if len(outputs) != 0 || len(restoredSigs) != 0 {
		t.Error("expected no restore match for an unissued blinded message")
	}
}

func TestRotateKeysetRetiresSigningButKeepsVerifying(t *testing.T) {
	m := newTestMint(t)
	oldId := m.ActiveKeysetId()
	proof := faucetProof(t, m, 1)

	newId, err := m.RotateKeyset()
	if err != nil {
		t.Fatal(err)
	}
	if newId == oldId {
		t.Fatal("expected a new keyset id after rotation")
	}

	// The old keyset can still verify (spend) a proof issued under it...
	outBm, _, _ := blindRandomSecret(t, newId, 1)
	if _, err := m.Swap(cashu.Proofs{proof}, cashu.BlindedMessages{outBm}); err != nil {
		t.Fatalf("swap against retired input keyset: %v", err)
	}

	// ...but the mint refuses to sign new outputs under the retired keyset.
	staleBm, _, _ := blindRandomSecret(t, oldId, 1)
	if _, err := m.Faucet(cashu.BlindedMessages{staleBm}); err != cashu.InactiveKeysetSignatureRequest {
		t.Fatalf("expected InactiveKeysetSignatureRequest, got %v", err)
	}
}

func TestSpentSecretsFeedTracksSwaps(t *testing.T) {
	m := newTestMint(t)
	proof := faucetProof(t, m, 1)

	if len(m.SpentSecrets()) != 0 {
		t.Fatal("expected empty spent-secrets feed before any swap")
	}

	outBm, _, _ := blindRandomSecret(t, m.ActiveKeysetId(), 1)
	if _, err := m.Swap(cashu.Proofs{proof}, cashu.BlindedMessages{outBm}); err != nil {
		t.Fatal(err)
	}

	secrets := m.SpentSecrets()
	if len(secrets) != 1 || secrets[0] != proof.Secret {
		t.Fatalf("expected spent-secrets feed to contain the swapped secret, got %v", secrets)
	}
}
