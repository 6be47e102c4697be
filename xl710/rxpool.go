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

// rxFreeList is the free half of Component B's control-block pool: a
// mutex-guarded LIFO stack of RxSlots not currently armed on the ring.
// The pool holds 2x the ring depth (spec.md §4.B): one ring depth is
// armed on the ring and the other starts here, so that every Working
// slot can have a Loaned twin outstanding upstream without the pool
// running dry purely from ring occupancy.
type rxFreeList struct {
	mu    sync.Mutex
	slots []*RxSlot
	top   int
}

func newRxFreeList(slots []*RxSlot) *rxFreeList {
	return &rxFreeList{slots: slots, top: len(slots)}
}

// pop removes and returns one slot from the free list, or nil if empty.
// Never blocks: an empty pool is reported to the caller, which falls
// back to a copy delivery (spec.md §4.B).
func (p *rxFreeList) pop() *RxSlot {
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

// push returns a recycled slot to the free list.
func (p *rxFreeList) push(s *RxSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.slots[p.top] = s
	p.top++
}

// len reports the number of slots currently available, for stats.
func (p *rxFreeList) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.top
}
