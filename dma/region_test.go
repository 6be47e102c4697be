package dma

import (
	"testing"
)

func TestReserveReleaseRoundTrip(t *testing.T) {
	r := NewRegion(0x1000, 4096)

	addr, buf, err := r.Reserve(128, 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(buf) != 128 {
		t.Fatalf("got buf len %d, want 128", len(buf))
	}
	if addr < 0x1000 || addr+128 > 0x1000+4096 {
		t.Fatalf("addr %#x out of region range", addr)
	}

	r.Release(addr)

	// After release, the same span should be available again to a
	// same-size request (first-fit over one contiguous free block).
	addr2, _, err := r.Reserve(128, 0)
	if err != nil {
		t.Fatalf("Reserve after Release: %v", err)
	}
	if addr2 != addr {
		t.Fatalf("got addr %#x after release, want reused %#x", addr2, addr)
	}
}

func TestReserveExhaustion(t *testing.T) {
	r := NewRegion(0x2000, 256)

	if _, _, err := r.Reserve(256, 0); err != nil {
		t.Fatalf("Reserve(256): %v", err)
	}
	if _, _, err := r.Reserve(1, 0); err != ErrOutOfMemory {
		t.Fatalf("got err %v, want ErrOutOfMemory", err)
	}
}

func TestResolveOwnedAndBound(t *testing.T) {
	r := NewRegion(0x3000, 4096)

	addr, buf, err := r.Reserve(64, 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	buf[0] = 0xAB

	resolved := r.Resolve(addr, 64)
	if resolved[0] != 0xAB {
		t.Fatalf("Resolve of owned memory did not alias Reserve's buffer")
	}

	external := make([]byte, 32)
	external[0] = 0xCD
	h, err := r.AllocHandle()
	if err != nil {
		t.Fatalf("AllocHandle: %v", err)
	}
	n, err := r.Bind(h, external)
	if err != nil || n != 1 {
		t.Fatalf("Bind: n=%d err=%v", n, err)
	}
	cookie, err := r.NextCookie(h)
	if err != nil {
		t.Fatalf("NextCookie: %v", err)
	}

	resolvedExternal := r.Resolve(cookie.BusAddr, 32)
	if resolvedExternal[0] != 0xCD {
		t.Fatalf("Resolve of bound memory did not alias the caller's buffer")
	}
}

func TestResolveUnknownAddressPanics(t *testing.T) {
	r := NewRegion(0x4000, 256)

	defer func() {
		if recover() == nil {
			t.Fatal("Resolve of an unknown address did not panic")
		}
	}()
	r.Resolve(0xdeadbeef, 8)
}

func TestBindSingleCookie(t *testing.T) {
	r := NewRegion(0x5000, 4096)

	h, err := r.AllocHandle()
	if err != nil {
		t.Fatalf("AllocHandle: %v", err)
	}
	defer r.FreeHandle(h)

	region := make([]byte, 512)
	n, err := r.Bind(h, region)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d cookies, want exactly 1 (spec: single-cookie allocator)", n)
	}

	if _, err := r.NextCookie(h); err != nil {
		t.Fatalf("first NextCookie: %v", err)
	}
	if _, err := r.NextCookie(h); err != ErrNoCookies {
		t.Fatalf("second NextCookie: got %v, want ErrNoCookies", err)
	}
}

func TestUnbindReleasesExternalMapping(t *testing.T) {
	r := NewRegion(0x6000, 4096)

	h, err := r.AllocHandle()
	if err != nil {
		t.Fatalf("AllocHandle: %v", err)
	}

	region := make([]byte, 16)
	if _, err := r.Bind(h, region); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	cookie, err := r.NextCookie(h)
	if err != nil {
		t.Fatalf("NextCookie: %v", err)
	}

	if err := r.Unbind(h); err != nil {
		t.Fatalf("Unbind: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Resolve after Unbind did not panic on a dropped external mapping")
		}
	}()
	r.Resolve(cookie.BusAddr, 16)
}

func TestFreeHandleIdempotent(t *testing.T) {
	r := NewRegion(0x7000, 256)

	h, err := r.AllocHandle()
	if err != nil {
		t.Fatalf("AllocHandle: %v", err)
	}
	if err := r.FreeHandle(h); err != nil {
		t.Fatalf("first FreeHandle: %v", err)
	}
	if err := r.FreeHandle(h); err != nil {
		t.Fatalf("second FreeHandle: %v", err)
	}
	if err := r.FreeHandle(999999); err != nil {
		t.Fatalf("FreeHandle of unknown handle: %v", err)
	}
}

func TestAllocMemoryThenBindUsesOwnedAddress(t *testing.T) {
	r := NewRegion(0x8000, 4096)

	h, err := r.AllocHandle()
	if err != nil {
		t.Fatalf("AllocHandle: %v", err)
	}
	buf, err := r.AllocMemory(h, 64, Streaming)
	if err != nil {
		t.Fatalf("AllocMemory: %v", err)
	}
	n, err := r.Bind(h, buf)
	if err != nil || n != 1 {
		t.Fatalf("Bind: n=%d err=%v", n, err)
	}
	cookie, err := r.NextCookie(h)
	if err != nil {
		t.Fatalf("NextCookie: %v", err)
	}

	if !r.owns(cookie.BusAddr) {
		t.Fatalf("owned-memory bind produced a synthetic external address")
	}
}

func TestAllocMemoryHandleBusy(t *testing.T) {
	r := NewRegion(0x9000, 4096)

	h, err := r.AllocHandle()
	if err != nil {
		t.Fatalf("AllocHandle: %v", err)
	}
	if _, err := r.AllocMemory(h, 64, Streaming); err != nil {
		t.Fatalf("first AllocMemory: %v", err)
	}
	if _, err := r.AllocMemory(h, 64, Streaming); err != ErrHandleBusy {
		t.Fatalf("second AllocMemory: got %v, want ErrHandleBusy", err)
	}
}
