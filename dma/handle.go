// DMA handle, binding and scatter/gather cookie support
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"errors"
	"sync/atomic"
)

// Handle identifies one DMA mapping context: either a region-owned buffer
// (AllocMemory) or a binding of caller-owned memory (Bind), never both at
// once. It is the Go analogue of the opaque platform DMA handle in
// spec.md §6.
type Handle uint64

// Attrs selects the coherence discipline for a handle's memory, mirroring
// the streaming-vs-consistent distinction in spec.md §4.A.
type Attrs int

const (
	// Streaming memory is synced explicitly around each DMA transfer.
	Streaming Attrs = iota
	// Consistent memory is always coherent; Sync is a no-op for it.
	Consistent
)

// Direction selects which side of a DMA transfer a Sync call should
// flush for.
type Direction int

const (
	// DirFromDevice flushes caches so the CPU observes device writes.
	DirFromDevice Direction = iota
	// DirToDevice flushes caches so the device observes CPU writes.
	DirToDevice
	// DirBidirectional covers both directions.
	DirBidirectional
)

// Cookie is one contiguous (bus-address, length) pair in a scatter/gather
// list, as produced by Bind.
type Cookie struct {
	BusAddr uint64
	Length  uint32
}

var (
	// ErrUnknownHandle is returned when an operation references a
	// handle this Region did not allocate.
	ErrUnknownHandle = errors.New("dma: unknown handle")
	// ErrHandleBusy is returned by AllocMemory when the handle already
	// owns memory or a binding, and by Bind when the handle already has
	// an active binding. A handle may bind its own AllocMemory'd buffer.
	ErrHandleBusy = errors.New("dma: handle already bound")
	// ErrNoCookies is returned by NextCookie once a binding's cookie
	// list is exhausted.
	ErrNoCookies = errors.New("dma: no more cookies")
)

type handleState struct {
	attrs Attrs

	owned   *block
	cookies []Cookie
	cursor  int
}

var handleCounter uint64

// AllocHandle reserves a new, empty DMA mapping context.
func (r *Region) AllocHandle() (Handle, error) {
	h := Handle(atomic.AddUint64(&handleCounter, 1))

	r.mu.Lock()
	r.handles[h] = &handleState{}
	r.mu.Unlock()

	return h, nil
}

// FreeHandle releases a handle. It is idempotent: freeing an unknown or
// already-freed handle is a no-op, matching the teacher's free-path
// discipline of tolerating repeated/partial teardown.
func (r *Region) FreeHandle(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, h)

	return nil
}

func (r *Region) state(h Handle) (*handleState, error) {
	hs, ok := r.handles[h]
	if !ok {
		return nil, ErrUnknownHandle
	}

	return hs, nil
}

// AllocMemory carves `size` bytes of region memory for exclusive use by
// `h`, returning the host-visible slice. The buffer is not yet
// bus-addressable from the caller's point of view until Bind is called
// on it -- matching the four-step alloc/zero/bind sequence of spec.md
// §4.A, even though on this in-process Region the address is, in fact,
// already fixed the moment the block is carved.
func (r *Region) AllocMemory(h Handle, size int, attrs Attrs) ([]byte, error) {
	r.mu.Lock()
	hs, err := r.state(h)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if hs.owned != nil || hs.cookies != nil {
		r.mu.Unlock()
		return nil, ErrHandleBusy
	}
	r.mu.Unlock()

	b, err := r.alloc(uint64(size), 0)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.usedBlocks[b.addr] = b
	hs.owned = b
	hs.attrs = attrs
	r.mu.Unlock()

	return r.slice(b.addr, size), nil
}

// FreeMemory releases a handle's owned buffer. Idempotent.
func (r *Region) FreeMemory(h Handle) error {
	r.mu.Lock()
	hs, ok := r.handles[h]
	if !ok || hs.owned == nil {
		r.mu.Unlock()
		return nil
	}
	b := hs.owned
	hs.owned = nil
	r.mu.Unlock()

	r.freeBlock(b.addr, false)

	return nil
}

// Bind establishes a DMA mapping for `region`, which may be a handle's
// own AllocMemory'd buffer or memory owned entirely by the caller (the
// zero-copy transmit scatter/gather path). It returns the number of
// cookies produced; callers retrieve them with NextCookie.
//
// This reference allocator never splits a binding across multiple
// cookies -- a hosted []byte is always contiguous, unlike physical pages
// on a real IOMMU-less platform -- so Bind always produces exactly one
// cookie. A single-cookie caller asserting on that (spec.md §4.A: "An
// alloc returning multiple scatter/gather cookies for a single-cookie
// request is a programming error") will therefore never trip on this
// implementation, though the interface shape supports one that does.
func (r *Region) Bind(h Handle, region []byte) (int, error) {
	if len(region) == 0 {
		return 0, errors.New("dma: cannot bind empty region")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hs, err := r.state(h)
	if err != nil {
		return 0, err
	}
	if hs.cookies != nil {
		return 0, ErrHandleBusy
	}

	var addr uint64

	if hs.owned != nil {
		addr = hs.owned.addr
	} else {
		addr = r.nextBound
		r.nextBound += uint64(len(region)) + 1
		r.boundAddrs[addr] = region
	}

	hs.cookies = []Cookie{{BusAddr: addr, Length: uint32(len(region))}}
	hs.cursor = 0

	return len(hs.cookies), nil
}

// NextCookie returns the next cookie of a handle's active binding, or
// ErrNoCookies once exhausted.
func (r *Region) NextCookie(h Handle) (Cookie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hs, err := r.state(h)
	if err != nil {
		return Cookie{}, err
	}

	if hs.cursor >= len(hs.cookies) {
		return Cookie{}, ErrNoCookies
	}

	c := hs.cookies[hs.cursor]
	hs.cursor++

	return c, nil
}

// Unbind releases a handle's active binding. If the binding was external
// (not owned memory), the synthetic bus address mapping is dropped too.
// Idempotent.
func (r *Region) Unbind(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hs, ok := r.handles[h]
	if !ok {
		return nil
	}

	if hs.owned == nil {
		for _, c := range hs.cookies {
			delete(r.boundAddrs, c.BusAddr)
		}
	}

	hs.cookies = nil
	hs.cursor = 0

	return nil
}

// Sync is a no-op on this in-process Region: host and "device" share the
// same memory with no cache hierarchy between them. Real platform
// allocators issue cache maintenance instructions here; this reference
// implementation exists purely so the core's sync call sites have
// something real to call and can be exercised in tests without a
// hardware model.
func (r *Region) Sync(h Handle, offset, length int, dir Direction) error {
	if _, err := r.state2(h); err != nil {
		return err
	}

	return nil
}

func (r *Region) state2(h Handle) (*handleState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state(h)
}
