// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import (
	"fmt"

	"github.com/ethermark/i40e/dma"
)

// ownedAttrs is the dma.Attrs used for every control-block buffer this
// core allocates itself (ring memory, receive and transmit staging
// buffers): streaming, since the core explicitly Syncs around device
// access rather than requiring uncached memory throughout.
const ownedAttrs = dma.Streaming

// DmaBuffer is Component A: a scoped, host-mapped region of bus-visible
// memory. Once bound, BusAddr and Size are immutable; only Len changes
// as writers record how much of the buffer is actually in use
// (spec.md §3).
type DmaBuffer struct {
	Host    []byte
	BusAddr uint64
	Size    int
	Len     int

	allocator DMAAllocator
	handle    dma.Handle
}

// ErrResourceExhausted is returned by AllocDmaBuffer when any of the
// four allocation steps reports unavailable resources (spec.md §4.A).
// Callers on hot paths treat this as transient: fall back to copy, or
// return the frame to the caller with blocked latched.
type ErrResourceExhausted struct {
	Step string
	Err  error
}

func (e *ErrResourceExhausted) Error() string {
	return fmt.Sprintf("xl710: dma alloc failed at %s: %v", e.Step, e.Err)
}

func (e *ErrResourceExhausted) Unwind() error { return e.Err }

// AllocDmaBuffer allocates a DmaBuffer through the four-step sequence of
// spec.md §4.A -- handle, memory, optional zero, bind -- unwinding
// every prior step on failure.
func AllocDmaBuffer(allocator DMAAllocator, size int, attrs dma.Attrs, zero bool) (*DmaBuffer, error) {
	h, err := allocator.AllocHandle()
	if err != nil {
		return nil, &ErrResourceExhausted{Step: "alloc_handle", Err: err}
	}

	buf, err := allocator.AllocMemory(h, size, attrs)
	if err != nil {
		allocator.FreeHandle(h)
		return nil, &ErrResourceExhausted{Step: "alloc_memory", Err: err}
	}

	if zero {
		for i := range buf {
			buf[i] = 0
		}
	}

	cookieCount, err := allocator.Bind(h, buf)
	if err != nil {
		allocator.FreeMemory(h)
		allocator.FreeHandle(h)
		return nil, &ErrResourceExhausted{Step: "bind", Err: err}
	}
	if cookieCount != 1 {
		// spec.md §4.A: "An alloc returning multiple scatter/gather
		// cookies for a single-cookie request is a programming
		// error."
		panic("xl710: dma buffer bind produced more than one cookie")
	}

	cookie, err := allocator.NextCookie(h)
	if err != nil {
		allocator.Unbind(h)
		allocator.FreeMemory(h)
		allocator.FreeHandle(h)
		return nil, &ErrResourceExhausted{Step: "next_cookie", Err: err}
	}

	return &DmaBuffer{
		Host:      buf,
		BusAddr:   cookie.BusAddr,
		Size:      size,
		allocator: allocator,
		handle:    h,
	}, nil
}

// Free releases a DmaBuffer. Idempotent, and tolerant of partially
// initialized buffers (spec.md §4.A), matching the allocator's own
// idempotent Unbind/FreeMemory/FreeHandle.
func (b *DmaBuffer) Free() {
	if b == nil || b.allocator == nil {
		return
	}

	b.allocator.Unbind(b.handle)
	b.allocator.FreeMemory(b.handle)
	b.allocator.FreeHandle(b.handle)
	b.allocator = nil
}

// Sync flushes CPU/device caches as needed for the given transfer
// direction (spec.md §4.A). On the reference dma.Region this is a
// no-op; real platform allocators issue cache maintenance here.
func (b *DmaBuffer) Sync(dir dma.Direction) error {
	if b.allocator == nil {
		return nil
	}
	return b.allocator.Sync(b.handle, 0, b.Size, dir)
}
