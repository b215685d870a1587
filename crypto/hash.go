package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// domainSeparator tags every hash_to_curve call so the resulting points
// can never collide with a point produced for some other protocol hashing
// the same bytes. bytes.fromhex("536563703235366b315f48617368546f43757276655f43617368755f").
const domainSeparator = "Secp256k1_HashToCurve_Cashu_"

// maxHashToCurveIterations bounds the counter loop in HashToCurve. Finding a
// valid point is a coin flip per iteration, so 2^16 tries is practically
// certain to succeed and only exists as a hard stop.
const maxHashToCurveIterations = 1 << 16

// Sha256 returns the SHA-256 digest of the given byte slices concatenated
// in order, without any domain tag.
func Sha256(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DomainHash returns sha256(tag || parts...), the pattern used throughout
// the silent-derivation chain (tweak, output secret, blinding factor all
// hash a fixed ASCII tag onto their inputs to keep the three hashes from
// ever colliding with each other).
func DomainHash(tag string, parts ...[]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashToCurve maps an arbitrary message onto a secp256k1 point with no
// known discrete log, by hashing the message under a domain separator and
// then walking an incrementing little-endian counter until the resulting
// digest happens to be a valid compressed point (prefix 0x02).
func HashToCurve(message []byte) (*secp256k1.PublicKey, error) {
	msgToHash := sha256.Sum256(append([]byte(domainSeparator), message...))

	for counter := uint32(0); counter < maxHashToCurveIterations; counter++ {
		c := make([]byte, 4)
		binary.LittleEndian.PutUint32(c, counter)

		hash := sha256.Sum256(append(msgToHash[:], c...))
		candidate := append([]byte{0x02}, hash[:]...)

		point, err := secp256k1.ParsePubKey(candidate)
		if err != nil {
			continue
		}
		if point.IsOnCurve() {
			return point, nil
		}
	}
	return nil, errors.New("crypto: no valid curve point found for message")
}
