// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "sync"

// txCopyPool is the free list of pre-allocated copy-path staging
// buffers backing Component D's txModeCopy transmits. Sized to the ring
// depth: the copy path can never be outstanding on more descriptors
// than the ring itself admits.
type txCopyPool struct {
	mu   sync.Mutex
	bufs []*DmaBuffer
	top  int
}

func newTxCopyPool(bufs []*DmaBuffer) *txCopyPool {
	return &txCopyPool{bufs: bufs, top: len(bufs)}
}

func (p *txCopyPool) pop() *DmaBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.top == 0 {
		return nil
	}
	p.top--
	b := p.bufs[p.top]
	p.bufs[p.top] = nil
	return b
}

func (p *txCopyPool) push(b *DmaBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bufs[p.top] = b
	p.top++
}

func (p *txCopyPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.top
}

// txSlotPool is Component D's free list of TxSlot control blocks,
// decoupled from ring descriptor position the same way rxFreeList
// decouples RxSlots from ring position. Sized to 1.5x ring depth so a
// single transmit spanning a context descriptor plus several bound
// links can hold more control blocks outstanding at once than the ring
// depth alone would allow.
type txSlotPool struct {
	mu    sync.Mutex
	slots []*TxSlot
	top   int
}

func newTxSlotPool(n int) *txSlotPool {
	slots := make([]*TxSlot, n)
	for i := range slots {
		slots[i] = &TxSlot{}
	}
	return &txSlotPool{slots: slots, top: n}
}

// pop removes and returns one control block, or nil if the pool is
// exhausted.
func (p *txSlotPool) pop() *TxSlot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.top == 0 {
		return nil
	}
	p.top--
	s := p.slots[p.top]
	p.slots[p.top] = nil
	return s
}

// push returns a reclaimed control block to the pool.
func (p *txSlotPool) push(s *TxSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.slots[p.top] = s
	p.top++
}

func (p *txSlotPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.top
}
