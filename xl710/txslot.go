// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "github.com/ethermark/i40e/dma"

// txSlotMode tags which of the transmit paths a TX control block is
// carrying out. spec.md §9 calls for a tagged variant rather than an
// interface hierarchy here: the ring only ever needs to ask "how do I
// release this slot's resources", and a switch on a small enum reads
// more plainly at the reclaim site than a virtual dispatch would.
type txSlotMode int

const (
	// txModeNone marks an unused (reclaimed or never-armed) slot.
	txModeNone txSlotMode = iota
	// txModeContext marks a context descriptor slot: it precedes a
	// data slot, carries no frame of its own, and needs no DMA
	// teardown on reclaim.
	txModeContext
	// txModeCopy marks a slot whose payload was copied into a
	// driver-owned staging buffer borrowed from the ring's copy pool.
	txModeCopy
	// txModeBind marks a slot transmitting directly out of
	// upstream-owned memory via a scatter/gather DMA bind.
	txModeBind
)

// TxSlot is Component D's transmit control block, drawn from a free
// list sized independently of ring descriptor position (see
// txSlotPool); reclaim() releases whatever resources its mode implies
// and returns it to txModeNone so the pool can hand it out again.
type TxSlot struct {
	mode txSlotMode

	// copyBuf is set under txModeCopy: a staging buffer borrowed from
	// the ring's copy pool, returned to that pool on reclaim.
	copyBuf *DmaBuffer

	// handle and allocator are set under txModeBind: the handle bound
	// directly to the upstream frame's memory, torn down on reclaim.
	handle    dma.Handle
	allocator DMAAllocator

	// frame retains the submitted chain for the lifetime of the DMA
	// so nothing upstream can be mistaken for free while the device
	// may still be reading it.
	frame *FrameChain
}

// reclaim releases whatever this slot is holding and resets it to
// txModeNone, ready for the free-descriptor count to be incremented.
func (s *TxSlot) reclaim() {
	switch s.mode {
	case txModeCopy:
		if s.copyBuf != nil {
			s.copyBuf.Len = 0
		}
	case txModeBind:
		if s.allocator != nil {
			s.allocator.Unbind(s.handle)
			s.allocator.FreeHandle(s.handle)
		}
	}
	s.copyBuf = nil
	s.handle = 0
	s.allocator = nil
	s.frame = nil
	s.mode = txModeNone
}
