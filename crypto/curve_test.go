package crypto

import "testing"

func TestScalarFromBytesRejectsZero(t *testing.T) {
	var zero [32]byte
	if _, err := ScalarFromBytes(zero); err == nil {
		t.Fatal("expected an error for the all-zero scalar")
	}
}

func TestScalarFromBytesReducesModN(t *testing.T) {
	var one [32]byte
	one[31] = 1

	s, err := ScalarFromBytes(one)
	if err != nil {
		t.Fatal(err)
	}
	if s.Key.IsZero() {
		t.Fatal("expected a non-zero scalar for input 1")
	}

	// n+1 must reduce to 1.
	nPlusOne := [32]byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
		0xba, 0xae, 0xdc, 0xe6, 0xaf, 0x48, 0xa0, 0x3b,
		0xbf, 0xd2, 0x5e, 0x8c, 0xd0, 0x36, 0x41, 0x42,
	}
	reduced, err := ScalarFromBytes(nPlusOne)
	if err != nil {
		t.Fatal(err)
	}
	if !reduced.Key.Equals(&s.Key) {
		t.Fatal("expected n+1 to reduce to 1")
	}
}
