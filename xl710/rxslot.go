// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "sync/atomic"

// rxSlotState enumerates the lifecycle of one receive control block,
// per spec.md §3: a slot is Free while sitting in the pool's free list,
// Working while armed on the ring and owned exclusively by the RX
// engine, and Loaned once delivered upstream with outstanding
// references. A Loaned slot returns to Free only when its last
// reference is released.
type rxSlotState int32

const (
	rxSlotFree rxSlotState = iota
	rxSlotWorking
	rxSlotLoaned
)

// RxSlot is Component B's receive control block: a DmaBuffer plus the
// reference count and free callback needed to support zero-copy loans
// of receive data upstream (spec.md §3, §4.B). A loaned RxSlot is kept
// alive by its reference count alone -- the RX engine does not track
// which slots are loaned beyond that count reaching zero.
type RxSlot struct {
	buf   *DmaBuffer
	owner *RxData

	state rxSlotState
	refs  int32 // atomic; 0 while Free, >=1 while Working or Loaned

	free FreeCallback

	// header, when non-nil, is a pre-parsed view of the frame handed
	// upstream as part of a loan; recycle clears it. rx.go does not
	// populate it: a loan delivers a fresh FrameChain each time.
	header *FrameChain
}

// newRxSlot allocates the DMA buffer backing one receive control block
// and returns it parked in the Free state with a reference count of
// zero: a slot in the free list holds no reference, its lifetime is
// owned by the pool.
func newRxSlot(owner *RxData, allocator DMAAllocator, size int) (*RxSlot, error) {
	buf, err := AllocDmaBuffer(allocator, size, ownedAttrs, false)
	if err != nil {
		return nil, err
	}
	return &RxSlot{buf: buf, owner: owner, state: rxSlotFree}, nil
}

// arm transitions a slot from Free to Working: it acquires the single
// reference the RX ring holds while the descriptor is outstanding on
// the device.
func (s *RxSlot) arm() {
	atomic.StoreInt32(&s.refs, 1)
	s.state = rxSlotWorking
}

// loan adds one reference on behalf of an upstream holder and marks the
// slot Loaned. Called by the RX engine immediately before handing a
// zero-copy frame upstream.
func (s *RxSlot) loan() {
	atomic.AddInt32(&s.refs, 1)
	s.state = rxSlotLoaned
}

// release drops one reference. It reports whether that was the last
// reference -- the caller (either the RX engine dropping its own
// Working reference when it loans the slot, or RxSlot.Free releasing an
// upstream loan)
// must recycle the slot back to the free pool when true.
func (s *RxSlot) release() bool {
	n := atomic.AddInt32(&s.refs, -1)
	if n < 0 {
		// spec.md §8 invariant: reference counts never go negative.
		panic("xl710: RxSlot released more times than acquired")
	}
	return n == 0
}

// refCount reports the slot's current reference count, for tests and
// stats only.
func (s *RxSlot) refCount() int32 {
	return atomic.LoadInt32(&s.refs)
}

// recycle clears per-delivery state and returns the slot to Free,
// ready for the pool to re-arm it on a future poll.
func (s *RxSlot) recycle() {
	s.header = nil
	s.state = rxSlotFree
}

// Free implements the upstream-visible half of a zero-copy loan: the
// stack calls this when it is done with a delivered frame's backing
// memory. It drops the slot's loan reference and, once nothing else
// references it, invokes the owning ring's recycle callback so the
// control block becomes available for reuse.
func (s *RxSlot) Free() {
	if s.release() {
		if s.free != nil {
			s.free(s)
		}
		if s.owner != nil {
			s.owner.recycleSlot(s)
		}
	}
}

// Bytes returns the valid received payload, honoring ipAlignPad and the
// device-reported length.
func (s *RxSlot) Bytes() []byte {
	return s.buf.Host[ipAlignPad : ipAlignPad+s.buf.Len]
}
