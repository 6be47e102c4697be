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
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ethermark/i40e/dma"
)

// RxData is Component C's receive ring engine, aggregating the
// descriptor ring (Component A's DmaBuffer), the control-block pool
// (Component B), and the software head used to track how far the core
// has consumed device writebacks.
type RxData struct {
	cfg       Config
	allocator DMAAllocator
	regs      Registers
	framing   UpstreamFraming
	state     *instanceState
	log       *zap.Logger

	descBuf *DmaBuffer
	slots   []*RxSlot // ring position -> slot currently armed there
	free    *rxFreeList

	head int

	// drained is signaled (non-blocking) every time a loan is released,
	// so lifecycle teardown can wake up and recheck outstandingLoans
	// instead of polling on a fixed timer.
	drained chan struct{}

	delivered uint64
	dropped   uint64
	errors    uint64
}

// newRxData allocates the descriptor ring and the 2x-ring-size control
// block pool, arms every ring position, and programs the ring's base
// address and length through the Registers collaborator (spec.md §4.B,
// §6).
func newRxData(cfg Config, allocator DMAAllocator, regs Registers, framing UpstreamFraming, state *instanceState, log *zap.Logger) (*RxData, error) {
	descBuf, err := AllocDmaBuffer(allocator, cfg.RingSize*descriptorSize, ownedAttrs, true)
	if err != nil {
		return nil, err
	}

	r := &RxData{
		cfg:       cfg,
		allocator: allocator,
		regs:      regs,
		framing:   framing,
		state:     state,
		log:       log,
		descBuf:   descBuf,
		slots:     make([]*RxSlot, cfg.RingSize),
	}

	total := 2 * cfg.RingSize
	bufSize := cfg.rxBufferSize()
	all := make([]*RxSlot, total)
	for i := range all {
		s, err := newRxSlot(r, allocator, bufSize)
		if err != nil {
			for _, prior := range all[:i] {
				if prior != nil {
					prior.buf.Free()
				}
			}
			descBuf.Free()
			return nil, err
		}
		all[i] = s
	}

	for i := 0; i < cfg.RingSize; i++ {
		r.installSlot(i, all[i])
	}
	r.free = newRxFreeList(all[cfg.RingSize:])
	r.drained = make(chan struct{}, 1)

	if regs != nil {
		regs.Write32(RxRingBaseLoOffset, uint32(descBuf.BusAddr))
		regs.Write32(RxRingBaseHiOffset, uint32(descBuf.BusAddr>>32))
		regs.Write32(RxRingLenOffset, uint32(cfg.RingSize))
	}

	return r, nil
}

// installSlot arms slot s at ring position i: it takes RxData's own
// Working reference and programs the descriptor with the buffer's bus
// address past the ipAlignPad bytes, clearing any stale writeback
// status.
func (r *RxData) installSlot(i int, s *RxSlot) {
	s.arm()
	r.slots[i] = s

	d := rxDescriptorAt(r.descBuf.Host, i)
	d.setPktAddr(s.buf.BusAddr + ipAlignPad)
	d.setHdrAddr(0) // header split is unused; zero it per the wire format
	d.clearStatus()
}

// rearmInPlace reuses the same slot's buffer for another receive: valid
// whenever a delivered frame was copied out (the slot's memory is free
// again) or a descriptor reported a fatal error (its contents are
// discarded).
func (r *RxData) rearmInPlace(i int, s *RxSlot) {
	d := rxDescriptorAt(r.descBuf.Host, i)
	d.setHdrAddr(0)
	d.clearStatus()
}

// advanceHead wraps the software head past a consumed descriptor and
// writes the hardware tail register to (head-1) mod ring size, the
// position just behind the new head. That descriptor has just been
// rearmed by installSlot/rearmInPlace, so the device must observe that
// write before it sees the tail bump.
func (r *RxData) advanceHead() {
	r.head++
	if r.head == r.cfg.RingSize {
		r.head = 0
	}
	if r.regs != nil {
		if err := r.descBuf.Sync(dma.DirToDevice); err != nil {
			r.state.degrade(SeverityLost, "rx desc sync: "+err.Error())
			return
		}
		r.regs.Write32(RxTailOffset, uint32((r.head+r.cfg.RingSize-1)%r.cfg.RingSize))
	}
}

// recycleSlot returns a fully-released loaned slot to the free pool
// (spec.md §4.B); called by RxSlot.Free once its reference count drops
// to zero.
func (r *RxData) recycleSlot(s *RxSlot) {
	s.recycle()
	r.free.push(s)

	select {
	case r.drained <- struct{}{}:
	default:
	}
}

// poll drains completed receive descriptors, classifying and delivering
// frames upstream, per spec.md §4.C. quotaBytes bounds total delivered
// payload in polled mode; pass QuotaUnlimited for interrupt mode, which
// instead bounds the batch by Config.FramesPerInterrupt.
//
// A descriptor marked Done without EOP set indicates a frame spanning
// more than one receive buffer. This core never advertises a receive
// buffer smaller than the configured MTU, so that condition cannot
// arise from ordinary traffic; it is treated as a fatal ring
// programming fault (open question (c)) rather than a recoverable
// per-frame error.
func (r *RxData) poll(quotaBytes int) []*FrameChain {
	if !r.state.admit() {
		return nil
	}

	if r.regs != nil {
		if err := r.regs.Fault(); err != nil {
			r.state.degrade(SeverityLost, "rx register fault: "+err.Error())
			return nil
		}
	}

	if err := r.descBuf.Sync(dma.DirFromDevice); err != nil {
		r.state.degrade(SeverityLost, "rx desc sync: "+err.Error())
		return nil
	}

	var delivered []*FrameChain
	bytesUsed := 0
	frames := 0

	for {
		if quotaBytes == QuotaUnlimited && frames >= r.cfg.FramesPerInterrupt {
			break
		}

		i := r.head
		d := rxDescriptorAt(r.descBuf.Host, i)
		if !d.done() {
			break
		}

		if !d.eop() {
			if r.log != nil {
				r.log.Error("xl710: rx descriptor missing EOP", fieldRing("rx"), fieldDescIndex(i))
			}
			r.state.degrade(SeverityLost, "rx descriptor missing EOP")
			panic("xl710: rx descriptor chain spans more than one buffer")
		}

		// Peek the frame's length before admitting it: quotaBytes must
		// never be pushed past by the frame that trips it, so a
		// descriptor that would overshoot is left Done on the ring for
		// the next poll rather than consumed here.
		length := d.length()
		if quotaBytes != QuotaUnlimited && bytesUsed+length > quotaBytes {
			break
		}

		slot := r.slots[i]

		if d.hasFatalError() {
			atomic.AddUint64(&r.errors, 1)
			r.rearmInPlace(i, slot)
			r.advanceHead()
			continue
		}

		flags := d.classify()
		slot.buf.Len = length

		var frame *FrameChain
		if length >= r.cfg.RxCopyThreshold {
			if fresh := r.free.pop(); fresh != nil {
				frame = newFrameChain(slot.Bytes())
				slot.loan()
				// The slot leaves the ring: drop the ring's Working
				// reference so only the upstream loan holds it.
				slot.release()
				frame.Loan = slot
				r.installSlot(i, fresh)
			}
		}
		if frame == nil {
			cp := make([]byte, length)
			copy(cp, slot.Bytes())
			frame = newFrameChain(cp)
			r.rearmInPlace(i, slot)
		}

		if r.framing != nil {
			r.framing.SetChecksumFlags(frame, flags)
		}

		delivered = append(delivered, frame)
		bytesUsed += length
		frames++
		atomic.AddUint64(&r.delivered, 1)
		r.advanceHead()
	}

	return delivered
}

// freeAll releases the descriptor ring and every control block's DMA
// memory. Callers must first confirm outstandingLoans() == 0; freeing a
// buffer an upstream loan still references is a use-after-free on any
// real platform allocator.
func (r *RxData) freeAll() {
	seen := make(map[*RxSlot]bool, len(r.slots))
	for _, s := range r.slots {
		if s != nil && !seen[s] {
			seen[s] = true
			s.buf.Free()
		}
	}
	for {
		s := r.free.pop()
		if s == nil {
			break
		}
		if !seen[s] {
			seen[s] = true
			s.buf.Free()
		}
	}
	r.descBuf.Free()
}

// outstandingLoans reports how many control blocks are currently loaned
// upstream: the total pool size less what is armed on the ring and what
// sits free. lifecycle.go's shutdown path polls this to know when it is
// safe to release the ring's DMA memory.
func (r *RxData) outstandingLoans() int {
	total := 2 * r.cfg.RingSize
	return total - r.cfg.RingSize - r.free.len()
}
