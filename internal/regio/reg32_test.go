package regio

import "testing"

func TestGetSetRoundTrip(t *testing.T) {
	var reg uint32
	reg = Set(reg, 4, 8, 0xAB)
	if got := Get(reg, 4, 8); got != 0xAB {
		t.Fatalf("got %#x, want %#x", got, 0xAB)
	}
	// Bits outside the field must be untouched.
	reg = Set(reg, 0, 4, 0xF)
	if got := Get(reg, 4, 8); got != 0xAB {
		t.Fatalf("Set of an adjacent field clobbered an existing one: got %#x", got)
	}
}

func TestSetMasksOverflow(t *testing.T) {
	var reg uint32
	reg = Set(reg, 0, 2, 0xFF)
	if got := Get(reg, 0, 2); got != 0x3 {
		t.Fatalf("got %#x, want value masked to field width 0x3", got)
	}
}

func TestBitHelpers(t *testing.T) {
	var reg uint32
	reg = SetBit(reg, 3)
	if !Bit(reg, 3) {
		t.Fatal("SetBit(3) then Bit(3) reported false")
	}
	if Bit(reg, 4) {
		t.Fatal("Bit(4) reported true on an untouched bit")
	}
	reg = ClearBit(reg, 3)
	if Bit(reg, 3) {
		t.Fatal("ClearBit(3) did not clear the bit")
	}
}
