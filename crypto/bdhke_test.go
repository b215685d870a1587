package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestHashToCurve(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{message: "0000000000000000000000000000000000000000000000000000000000000000",
			expected: "024cce997d3b518f739663b757deaec95bcd9473c30a14ac2fd04023a739d1a725"},
		{message: "0000000000000000000000000000000000000000000000000000000000000001",
			expected: "022e7158e11c9506f1aa4248bf531298daa7febd6194f003edcd9b93ade6253acf"},
		{message: "0000000000000000000000000000000000000000000000000000000000000002",
			expected: "026cdbe15362df59cd1dd3c9c11de8aedac2106eca69236ecd9fbe117af897be4f"},
	}

	for _, test := range tests {
		msgBytes, err := hex.DecodeString(test.message)
		if err != nil {
			t.Errorf("error decoding msg: %v", err)
		}

		pk, err := HashToCurve(msgBytes)
		if err != nil {
			t.Fatal(err)
		}
		hexStr := hex.EncodeToString(pk.SerializeCompressed())
		if hexStr != test.expected {
			t.Errorf("expected '%v' but got '%v' instead\n", test.expected, hexStr)
		}
	}
}

func TestBlindMessage(t *testing.T) {
	tests := []struct {
		secret         []byte
		blindingFactor string
		expected       string
	}{
		{secret: []byte("test_message"),
			blindingFactor: "0000000000000000000000000000000000000000000000000000000000000001",
			expected:       "025cc16fe33b953e2ace39653efb3e7a7049711ae1d8a2f7a9108753f1cdea742b",
		},
		{secret: []byte("hello"),
			blindingFactor: "6d7e0abffc83267de28ed8ecc8760f17697e51252e13333ba69b4ddad1f95d05",
			expected:       "026e877a2f0d19fb0e6a36c22f9d89454a59defc38b9c5ecf0aa718f115541f98b",
		},
	}

	for _, test := range tests {
		rbytes, err := hex.DecodeString(test.blindingFactor)
		if err != nil {
			t.Errorf("error decoding blinding factor: %v", err)
		}

		B_, _, err := BlindMessage(test.secret, rbytes)
		if err != nil {
			t.Fatal(err)
		}
		B_Hex := hex.EncodeToString(B_.SerializeCompressed())
		if B_Hex != test.expected {
			t.Errorf("expected '%v' but got '%v' instead\n", test.expected, B_Hex)
		}
	}
}

func TestSignBlindedMessage(t *testing.T) {
	tests := []struct {
		secret         []byte
		blindingFactor string
		mintPrivKey    string
		expected       string
	}{
		{secret: []byte("test_message"),
			blindingFactor: "0000000000000000000000000000000000000000000000000000000000000001",
			mintPrivKey:    "0000000000000000000000000000000000000000000000000000000000000001",
			expected:       "025cc16fe33b953e2ace39653efb3e7a7049711ae1d8a2f7a9108753f1cdea742b",
		},
		{secret: []byte("test_message"),
			blindingFactor: "0000000000000000000000000000000000000000000000000000000000000001",
			mintPrivKey:    "7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f",
			expected:       "027726f0e5757b4202a27198369a3477a17bc275b7529da518fc7cb4a1d927cc0d",
		},
	}

	for _, test := range tests {
		rbytes, err := hex.DecodeString(test.blindingFactor)
		if err != nil {
			t.Errorf("error decoding blinding factor: %v", err)
		}

		B_, _, err := BlindMessage(test.secret, rbytes)
		if err != nil {
			t.Fatal(err)
		}

		mintKeyBytes, err := hex.DecodeString(test.mintPrivKey)
		if err != nil {
			t.Errorf("error decoding mint private key: %v", err)
		}

		k, _ := btcec.PrivKeyFromBytes(mintKeyBytes)

		blindedSignature := SignBlindedMessage(B_, k)
		blindedHex := hex.EncodeToString(blindedSignature.SerializeCompressed())
		if blindedHex != test.expected {
			t.Errorf("expected '%v' but got '%v' instead\n", test.expected, blindedHex)
		}
	}
}

func TestUnblindSignature(t *testing.T) {
	dst, _ := hex.DecodeString("02977daeb15110a3bd7abd43e9831f3b20d42f93b9bd10f3989bfe81e26be464b0")
	C_, err := secp256k1.ParsePubKey(dst)
	if err != nil {
		t.Error(err)
	}

	kdst, _ := hex.DecodeString("02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9")
	K, err := secp256k1.ParsePubKey(kdst)
	if err != nil {
		t.Error(err)
	}

	rhex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000002")
	r, _ := btcec.PrivKeyFromBytes(rhex)

	C := UnblindSignature(C_, r, K)
	CHex := hex.EncodeToString(C.SerializeCompressed())
	expected := "0352e7beb91e823b98c792be039af769fc36882a6616531537d7bcee59994ad8fa"
	if CHex != expected {
		t.Errorf("expected '%v' but got '%v' instead\n", expected, CHex)
	}
}

func TestVerify(t *testing.T) {
	secret := []byte("test_message")
	rhex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000002")

	B_, r, err := BlindMessage(secret, rhex)
	if err != nil {
		t.Fatal(err)
	}

	khex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000003")
	k, _ := btcec.PrivKeyFromBytes(khex)
	K := k.PubKey()

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, K)

	if !Verify(secret, k, C) {
		t.Error("failed verification")
	}
}

func TestVerifyFailsOnWrongKey(t *testing.T) {
	secret := []byte("test_message")
	rhex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000002")

	B_, r, err := BlindMessage(secret, rhex)
	if err != nil {
		t.Fatal(err)
	}

	khex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000003")
	k, _ := btcec.PrivKeyFromBytes(khex)
	K := k.PubKey()

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, K)

	wrongKeyBytes, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000004")
	wrongKey, _ := btcec.PrivKeyFromBytes(wrongKeyBytes)

	if Verify(secret, wrongKey, C) {
		t.Error("verification should have failed with wrong key")
	}
}
