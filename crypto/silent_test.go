package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// secp256k1 generator point, compressed. Used as a fixed, reproducible
// stand-in for a spend_pub in golden-vector tests.
const generatorCompressedHex = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func mustDecompress(t *testing.T, h string) *secp256k1.PublicKey {
	t.Helper()
	b, err := hex.DecodeString(h)
	if err != nil {
		t.Fatal(err)
	}
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		t.Fatal(err)
	}
	return pk
}

// TestDeriveOutputSecretVector reproduces the fixed derivation vector:
// s = 0x02 || 0x00*32, spend_pub = G, k = 0.
func TestDeriveOutputSecretVector(t *testing.T) {
	s, err := hex.DecodeString("020000000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	spendPub := mustDecompress(t, generatorCompressedHex)

	secret, r, err := DeriveOutputSecret(s, spendPub, 0)
	if err != nil {
		t.Fatal(err)
	}

	expectedSecret := "2f96203a23c3cb1b87ca1751b9b0df53e1342b12c3ef45f520bf7803c06a5189"
	if secret != expectedSecret {
		t.Errorf("output_secret: expected '%v' but got '%v'", expectedSecret, secret)
	}

	expectedR := "c3f0aed6de24b71ea5a11cf1a46fe9476a069cef9be2b96e0108f2b2cded159f"
	if hex.EncodeToString(r.Serialize()) != expectedR {
		t.Errorf("blinding_factor: expected '%v' but got '%v'", expectedR, hex.EncodeToString(r.Serialize()))
	}

	out, err := CreateSilentOutput(4, "00deadbeef", s, spendPub, 0)
	if err != nil {
		t.Fatal(err)
	}
	expectedB_ := "033422977326500484a5d5c7f6ba4a0c954eba518f2bdd5557fc79dd63f1ebdd75"
	if hex.EncodeToString(out.B_.SerializeCompressed()) != expectedB_ {
		t.Errorf("B_: expected '%v' but got '%v'", expectedB_, hex.EncodeToString(out.B_.SerializeCompressed()))
	}
}

// TestCreateSilentOutputDeterministic checks invariant 1: the same
// (sharedSecret, spendPub, keysetId, k) always yields the same OutputData.
func TestCreateSilentOutputDeterministic(t *testing.T) {
	sharedSecret := Compress(PointMulG(secp256k1.PrivKeyFromBytes([]byte{7})))
	spendPub := mustDecompress(t, generatorCompressedHex)

	first, err := CreateSilentOutput(8, "00aabbccdd", sharedSecret, spendPub, 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := CreateSilentOutput(8, "00aabbccdd", sharedSecret, spendPub, 3)
	if err != nil {
		t.Fatal(err)
	}

	if first.Secret != second.Secret {
		t.Errorf("secret not deterministic: %v != %v", first.Secret, second.Secret)
	}
	if !first.R.PubKey().IsEqual(second.R.PubKey()) {
		t.Error("blinding factor not deterministic")
	}
	if !first.B_.IsEqual(second.B_) {
		t.Error("B_ not deterministic")
	}
}

// TestSymmetricDiscovery checks invariant 2: the sender deriving the shared
// secret as alicePriv*bobPub and the receiver deriving it as
// bobPriv*alicePub must compute the exact same OutputData, by ECDH
// commutativity.
func TestSymmetricDiscovery(t *testing.T) {
	alicePriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := NewSilentKeys()
	if err != nil {
		t.Fatal(err)
	}

	senderSecret := ECDH(alicePriv, bob.ScanPub)
	receiverSecret := ECDH(bob.ScanPriv, alicePriv.PubKey())

	if hex.EncodeToString(senderSecret) != hex.EncodeToString(receiverSecret) {
		t.Fatal("ECDH shared secrets diverge between sender and receiver")
	}

	for k := byte(0); k < 8; k++ {
		sent, err := CreateSilentOutput(1, "00aabbccdd", senderSecret, bob.SpendPub, k)
		if err != nil {
			t.Fatal(err)
		}
		restored, err := CreateSilentOutput(1, "00aabbccdd", receiverSecret, bob.SpendPub, k)
		if err != nil {
			t.Fatal(err)
		}

		if sent.Secret != restored.Secret {
			t.Fatalf("k=%d: secret mismatch: %v != %v", k, sent.Secret, restored.Secret)
		}
		if !sent.B_.IsEqual(restored.B_) {
			t.Fatalf("k=%d: B_ mismatch", k)
		}
	}
}

// TestDeriveOutputSecretVariesByIndex checks that distinct k produce
// distinct outputs, so a batch of K outputs doesn't collide.
func TestDeriveOutputSecretVariesByIndex(t *testing.T) {
	sharedSecret := Compress(PointMulG(secp256k1.PrivKeyFromBytes([]byte{9})))
	spendPub := mustDecompress(t, generatorCompressedHex)

	seen := make(map[string]bool)
	for k := byte(0); k < 8; k++ {
		secret, _, err := DeriveOutputSecret(sharedSecret, spendPub, k)
		if err != nil {
			t.Fatal(err)
		}
		if seen[secret] {
			t.Fatalf("k=%d: duplicate secret %v", k, secret)
		}
		seen[secret] = true
	}
}

// TestDeriveOutputSecretDependsOnSharedSecret checks that two different
// ECDH shared secrets (e.g. two different senders) never collide.
func TestDeriveOutputSecretDependsOnSharedSecret(t *testing.T) {
	spendPub := mustDecompress(t, generatorCompressedHex)

	secretA := Compress(PointMulG(secp256k1.PrivKeyFromBytes([]byte{1})))
	secretB := Compress(PointMulG(secp256k1.PrivKeyFromBytes([]byte{2})))

	outA, _, err := DeriveOutputSecret(secretA, spendPub, 0)
	if err != nil {
		t.Fatal(err)
	}
	outB, _, err := DeriveOutputSecret(secretB, spendPub, 0)
	if err != nil {
		t.Fatal(err)
	}

	if outA == outB {
		t.Fatal("distinct shared secrets produced the same output secret")
	}
}
