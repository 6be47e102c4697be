package regio

import (
	"errors"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	f := NewFile()

	if got := f.Read32(0x10); got != 0 {
		t.Fatalf("unwritten offset read back %#x, want 0", got)
	}

	f.Write32(0x10, 0xCAFEBABE)
	if got := f.Read32(0x10); got != 0xCAFEBABE {
		t.Fatalf("got %#x, want %#x", got, 0xCAFEBABE)
	}
}

func TestFaultInjectionIsOneShot(t *testing.T) {
	f := NewFile()

	if err := f.Fault(); err != nil {
		t.Fatalf("Fault on a clean file: %v", err)
	}

	wantErr := errors.New("bus error")
	f.InjectFault(wantErr)

	if err := f.Fault(); err != wantErr {
		t.Fatalf("Fault: got %v, want %v", err, wantErr)
	}
	if err := f.Fault(); err != nil {
		t.Fatalf("Fault did not clear after being observed once: got %v", err)
	}
}
