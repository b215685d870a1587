package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"net/http/httptest"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/silentpay/silentpay/internal/testmint"
)

// newTestMint starts one mock mint and its HTTP server; every wallet in a
// test shares it so payments and scans actually interact.
func newTestMint(t *testing.T) (*testmint.Mint, *httptest.Server) {
	t.Helper()

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatal(err)
	}
	mint, err := testmint.New(seed)
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(testmint.NewServer(mint))
	t.Cleanup(server.Close)

	return mint, server
}

// openWalletOn opens a fresh wallet bound to server, with its own isolated
// local store.
func openWalletOn(t *testing.T, server *httptest.Server) *Wallet {
	t.Helper()

	w, err := Open(Config{MintURL: server.URL, WalletPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })

	return w
}

// fund issues amount units of fresh ecash straight into w's store via the
// mock mint's no-input faucet path, standing in for the minting step the
// spec puts out of scope.
func fund(t *testing.T, w *Wallet, mint *testmint.Mint, amount uint64) {
	t.Helper()

	messages, secrets, rs, err := createRandomBlindedMessages(w.activeKeysetId, amount)
	if err != nil {
		t.Fatal(err)
	}
	sigs, err := mint.Faucet(messages)
	if err != nil {
		t.Fatal(err)
	}
	proofs, err := constructProofs(sigs, secrets, rs, w.activeKeys)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.db.AddProofs(proofs); err != nil {
		t.Fatal(err)
	}
}

// S1: full payment round-trip.
func TestPayAndScanRoundTrip(t *testing.T) {
	mint, server := newTestMint(t)

	alice := openWalletOn(t, server)
	fund(t, alice, mint, 1000)

	bob := openWalletOn(t, server)

	result, err := alice.Pay(bob.Address(), 100)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if result.BobProofs.Amount() != 100 {
		t.Errorf("expected bob's outputs to total 100, got %d", result.BobProofs.Amount())
	}
	if alice.Balance() != 1000-result.BobProofs.Amount() {
		t.Errorf("alice balance: expected %d, got %d", 1000-result.BobProofs.Amount(), alice.Balance())
	}

	scanResult, err := bob.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanResult.Discovered.Amount() != 100 {
		t.Errorf("expected bob to discover 100, got %d", scanResult.Discovered.Amount())
	}
	if bob.Balance() != 100 {
		t.Errorf("bob balance: expected 100, got %d", bob.Balance())
	}
}

// S2: empty scan against a mint with unrelated spent-secret activity.
func TestEmptyScan(t *testing.T) {
	mint, server := newTestMint(t)

	bob := openWalletOn(t, server)

	other := openWalletOn(t, server)
	fund(t, other, mint, 1000)

	stranger := openWalletOn(t, server)
	if _, err := other.Pay(stranger.Address(), 10); err != nil {
		t.Fatalf("pay: %v", err)
	}

	result, err := bob.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if bob.Balance() != 0 || result.Discovered.Amount() != 0 {
		t.Errorf("expected empty scan, got balance=%d discovered=%d", bob.Balance(), result.Discovered.Amount())
	}
}

// S3: cross-mint rejection leaves the store untouched.
func TestPayCrossMintRejected(t *testing.T) {
	mint, server := newTestMint(t)
	alice := openWalletOn(t, server)
	fund(t, alice, mint, 1000)

	otherAddress := "http://other.example:1234:" + hexPubkey(t, 0x02) + ":" + hexPubkey(t, 0x03)
	_, err := alice.Pay(otherAddress, 50)
	if err == nil {
		t.Fatal("expected CrossMint error")
	}
	werr, ok := err.(*Error)
	if !ok || werr.Kind != CrossMint {
		t.Fatalf("expected CrossMint wallet error, got %v (%T)", err, err)
	}
	if alice.Balance() != 1000 {
		t.Errorf("expected balance untouched at 1000, got %d", alice.Balance())
	}
}

// S4: address parsing, valid and malformed.
func TestParseAddress(t *testing.T) {
	scan := hexPubkey(t, 0x02)
	spend := hexPubkey(t, 0x03)

	addr, err := ParseAddress("http://m:8085:" + scan + ":" + spend)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr.MintURL != "http://m:8085" {
		t.Errorf("expected mint url 'http://m:8085', got %q", addr.MintURL)
	}

	if _, err := ParseAddress("http://m:8085:02ab:03cd"); err == nil {
		t.Fatal("expected AddressParse failure for truncated keys")
	} else if werr, ok := err.(*Error); !ok || werr.Kind != AddressParse {
		t.Fatalf("expected AddressParse wallet error, got %v (%T)", err, err)
	}
}

// S6: scan with a mix of unrelated and valid candidates.
func TestScanMixedCandidates(t *testing.T) {
	mint, server := newTestMint(t)

	alice := openWalletOn(t, server)
	fund(t, alice, mint, 1000)

	bob := openWalletOn(t, server)

	decoySender := openWalletOn(t, server)
	fund(t, decoySender, mint, 500)
	decoyRecipient := openWalletOn(t, server)
	if _, err := decoySender.Pay(decoyRecipient.Address(), 7); err != nil {
		t.Fatalf("decoy pay: %v", err)
	}

	if _, err := alice.Pay(bob.Address(), 42); err != nil {
		t.Fatalf("pay: %v", err)
	}

	result, err := bob.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Discovered.Amount() != 42 {
		t.Errorf("expected bob to discover 42, got %d", result.Discovered.Amount())
	}
}

func hexPubkey(t *testing.T, prefix byte) string {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	compressed := priv.PubKey().SerializeCompressed()
	compressed[0] = prefix
	return hex.EncodeToString(compressed)
}
