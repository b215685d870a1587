package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// CashuAddress is a parsed "mintUrl:scanPub:spendPub" silent-payment
// address: a mint URL plus Bob's public scan and spend keys.
type CashuAddress struct {
	MintURL  string
	ScanPub  *secp256k1.PublicKey
	SpendPub *secp256k1.PublicKey
}

// String formats the address back into its wire form.
func (a CashuAddress) String() string {
	return fmt.Sprintf("%s:%s:%s", a.MintURL,
		hex.EncodeToString(a.ScanPub.SerializeCompressed()),
		hex.EncodeToString(a.SpendPub.SerializeCompressed()))
}

// ParseAddress splits on the final two colons (the mint URL itself may
// contain colons, e.g. a port) and validates both keys are 66-char
// compressed secp256k1 hex with prefix 02 or 03.
func ParseAddress(address string) (*CashuAddress, error) {
	lastColon := strings.LastIndex(address, ":")
	if lastColon < 0 {
		return nil, newError(AddressParse, "missing separator", nil)
	}
	spendHex := address[lastColon+1:]
	rest := address[:lastColon]

	secondColon := strings.LastIndex(rest, ":")
	if secondColon < 0 {
		return nil, newError(AddressParse, "missing separator", nil)
	}
	scanHex := rest[secondColon+1:]
	mintURL := rest[:secondColon]

	if mintURL == "" {
		return nil, newError(AddressParse, "empty mint URL", nil)
	}

	scanPub, err := parseCompressedHex(scanHex)
	if err != nil {
		return nil, newError(AddressParse, "invalid scan key", err)
	}
	spendPub, err := parseCompressedHex(spendHex)
	if err != nil {
		return nil, newError(AddressParse, "invalid spend key", err)
	}

	return &CashuAddress{MintURL: mintURL, ScanPub: scanPub, SpendPub: spendPub}, nil
}

func parseCompressedHex(h string) (*secp256k1.PublicKey, error) {
	if len(h) != 66 {
		return nil, fmt.Errorf("expected 66 hex characters, got %d", len(h))
	}
	if h[:2] != "02" && h[:2] != "03" {
		return nil, fmt.Errorf("expected prefix 02 or 03, got %s", h[:2])
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	return secp256k1.ParsePubKey(b)
}

// FormatAddress builds a CashuAddress string from its components.
func FormatAddress(mintURL string, scanPub, spendPub *secp256k1.PublicKey) string {
	return CashuAddress{MintURL: mintURL, ScanPub: scanPub, SpendPub: spendPub}.String()
}
