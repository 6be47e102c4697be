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
	"encoding/binary"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ethermark/i40e/dma"
)

var (
	// ErrNotAdmitted is returned by Send when the instance is not in a
	// state that admits traffic (not started, suspended, faulted).
	ErrNotAdmitted = errors.New("xl710: tx not admitted")
	// ErrRingFull is returned by Send when too few free descriptors
	// remain to accept the frame.
	ErrRingFull = errors.New("xl710: tx ring full")
	// ErrFrameTooLarge is returned by Send for a copy-path frame that
	// exceeds Config.MaxFrameSize.
	ErrFrameTooLarge = errors.New("xl710: frame exceeds max frame size")
)

// TxRing is Component F's transmit ring engine, aggregating the
// descriptor ring, a free-list-backed pool of TxSlot control blocks
// (Component D) decoupled from ring descriptor position, and the copy
// staging pool.
type TxRing struct {
	cfg       Config
	allocator DMAAllocator
	regs      Registers
	framing   UpstreamFraming
	state     *instanceState
	log       *zap.Logger

	mu sync.Mutex

	descBuf      *DmaBuffer
	writebackOff int
	slots        []*TxSlot // ring position -> currently occupying control block, nil if unarmed
	slotPool     *txSlotPool
	copyPool     *txCopyPool

	tail int // next ring position to write a descriptor into
	head int // next ring position to reclaim

	free    int
	blocked bool

	onUnblock RingUpdateFunc

	sent    uint64
	dropped uint64
}

// newTxRing allocates the descriptor ring (with its adjoining
// writeback-head word) and the copy staging pool, and programs the
// ring's base address, length, and writeback address through the
// Registers collaborator.
func newTxRing(cfg Config, allocator DMAAllocator, regs Registers, framing UpstreamFraming, state *instanceState, log *zap.Logger, onUnblock RingUpdateFunc) (*TxRing, error) {
	writebackOff := cfg.RingSize * descriptorSize
	descBuf, err := AllocDmaBuffer(allocator, writebackOff+8, ownedAttrs, true)
	if err != nil {
		return nil, err
	}

	bufs := make([]*DmaBuffer, cfg.RingSize)
	for i := range bufs {
		b, err := AllocDmaBuffer(allocator, cfg.MaxFrameSize, ownedAttrs, false)
		if err != nil {
			for _, prior := range bufs[:i] {
				prior.Free()
			}
			descBuf.Free()
			return nil, err
		}
		bufs[i] = b
	}

	t := &TxRing{
		cfg:          cfg,
		allocator:    allocator,
		regs:         regs,
		framing:      framing,
		state:        state,
		log:          log,
		descBuf:      descBuf,
		writebackOff: writebackOff,
		slots:        make([]*TxSlot, cfg.RingSize),
		slotPool:     newTxSlotPool(cfg.RingSize + cfg.RingSize/2),
		copyPool:     newTxCopyPool(bufs),
		free:         cfg.RingSize,
		onUnblock:    onUnblock,
	}

	if regs != nil {
		regs.Write32(TxRingBaseLoOffset, uint32(descBuf.BusAddr))
		regs.Write32(TxRingBaseHiOffset, uint32(descBuf.BusAddr>>32))
		regs.Write32(TxRingLenOffset, uint32(cfg.RingSize))
		wbAddr := descBuf.BusAddr + uint64(writebackOff)
		regs.Write32(TxWritebackLoOffset, uint32(wbAddr))
		regs.Write32(TxWritebackHiOffset, uint32(wbAddr>>32))
	}

	return t, nil
}

func (t *TxRing) writebackHead() int {
	return int(binary.LittleEndian.Uint32(t.descBuf.Host[t.writebackOff : t.writebackOff+4]))
}

// needsContext reports whether req/lso/tunnel require a context
// descriptor ahead of the data descriptor (spec.md §4.E: tunneling, LSO
// and inner-header checksums all need one; a plain outer checksum does
// not).
func needsContext(req ChecksumRequest, lso LSOParams, tunnel TunnelType) bool {
	return lso.Enabled || tunnel != TunnelNone || req.InnerIPv4Checksum || req.InnerFullChecksum
}

// Send admits frame onto the transmit ring. On success it returns nil;
// on any admission failure -- not started/faulted, insufficient free
// descriptors, a copy-path frame too large to stage -- it returns the
// frame back to the caller untouched together with the reason, per
// spec.md §4.F. No TxSlot resources are ever consumed on a rejected
// admission.
//
// The bind path allocates one TxSlot and one DMA handle per non-empty
// chain link, so a multi-fragment frame consumes one data descriptor
// per link rather than pulling the chain up into one buffer; only the
// final descriptor carries EOP/RS.
func (t *TxRing) Send(frame *FrameChain) (*FrameChain, error) {
	if !t.state.admit() {
		return frame, ErrNotAdmitted
	}

	var req ChecksumRequest
	var lso LSOParams
	var tunnel TunnelType
	if t.framing != nil {
		req = t.framing.Checksum(frame)
		lso = t.framing.LSO(frame)
		tunnel = t.framing.Tunnel(frame)
	}

	offs, err := parseOffsets(frame, tunnel)
	if err != nil {
		return frame, err
	}

	needCtx := needsContext(req, lso, tunnel)
	bind := lso.Enabled || frame.Len() > t.cfg.TxCopyThreshold

	links := frame.Links()
	dataDescs := 1
	if bind {
		dataDescs = len(links)
	}
	needed := dataDescs
	if needCtx {
		needed++
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.regs != nil {
		if err := t.regs.Fault(); err != nil {
			t.state.degrade(SeverityLost, "tx register fault: "+err.Error())
			return frame, ErrNotAdmitted
		}
	}

	// spec.md §4.F: the admission gate compares free descriptors
	// against the block threshold, not against this frame's own
	// descriptor need -- BlockThreshold is expected to be sized above
	// the worst-case fragmentation the upstream stack can submit. The
	// needed > free check below is a backstop against a
	// misconfigured threshold, not the documented blocking condition.
	if t.free < t.cfg.BlockThreshold {
		t.setBlocked(true)
		return frame, ErrRingFull
	}
	if needed > t.free {
		return frame, ErrRingFull
	}

	var ctxIdx int
	if needCtx {
		ctxSlot := t.slotPool.pop()
		if ctxSlot == nil {
			return frame, ErrRingFull
		}
		ctxIdx = t.tail
		t.advanceTail()
		ctxSlot.mode = txModeContext
		t.slots[ctxIdx] = ctxSlot
		t.encodeContext(ctxIdx, offs, lso, tunnel)
	}

	var dataSlotIdx int
	if bind {
		dataSlotIdx, err = t.sendBind(frame, links, offs, req)
	} else {
		dataSlotIdx, err = t.sendCopy(frame, offs, req)
	}
	if err != nil {
		if needCtx {
			t.rewindTail(1)
		}
		if err == ErrRingFull {
			t.setBlocked(true)
		}
		return frame, err
	}

	if t.regs != nil {
		if err := t.descBuf.Sync(dma.DirToDevice); err != nil {
			t.state.degrade(SeverityLost, "tx desc sync: "+err.Error())
			return nil, nil
		}
	}

	t.free -= needed
	t.sent++

	if t.log != nil {
		t.log.Debug("xl710: tx admitted", fieldRing("tx"), fieldFrameLen(frame.Len()), fieldDescIndex(dataSlotIdx))
	}

	if t.regs != nil {
		t.regs.Write32(TxTailOffset, uint32(t.tail))
	}

	return nil, nil
}

// releaseSlot reclaims whatever control block currently occupies ring
// position idx (if any), returns it to the slot pool, and reports the
// copy-staging buffer it was holding, if it was holding one, so the
// caller can return that to the copy pool too.
func (t *TxRing) releaseSlot(idx int) *DmaBuffer {
	s := t.slots[idx]
	if s == nil {
		return nil
	}
	buf := s.copyBuf
	s.reclaim()
	t.slotPool.push(s)
	t.slots[idx] = nil
	return buf
}

// sendBind admits frame on the bind path: one TxSlot and one DMA
// handle per chain link. Any failure partway through unwinds every
// link already bound for this frame and rewinds the tail, so a
// partially-failed bind never leaks a TxSlot or a DMA handle.
func (t *TxRing) sendBind(frame *FrameChain, links [][]byte, offs frameOffsets, req ChecksumRequest) (int, error) {
	bound := make([]int, 0, len(links))

	for j, link := range links {
		idx := t.tail
		t.advanceTail()
		bound = append(bound, idx)

		if err := t.bindLink(idx, frame, link, offs, req, j == 0, j == len(links)-1); err != nil {
			for _, prior := range bound[:len(bound)-1] {
				t.releaseSlot(prior)
			}
			t.rewindTail(len(bound))
			return 0, err
		}
	}

	return bound[len(bound)-1], nil
}

func (t *TxRing) bindLink(idx int, frame *FrameChain, link []byte, offs frameOffsets, req ChecksumRequest, first, last bool) error {
	slot := t.slotPool.pop()
	if slot == nil {
		return ErrRingFull
	}

	h, err := t.allocator.AllocHandle()
	if err != nil {
		t.slotPool.push(slot)
		return err
	}
	n, err := t.allocator.Bind(h, link)
	if err != nil {
		t.allocator.FreeHandle(h)
		t.slotPool.push(slot)
		return err
	}
	if n != 1 {
		t.allocator.Unbind(h)
		t.allocator.FreeHandle(h)
		t.slotPool.push(slot)
		return errors.New("xl710: tx bind produced more than one cookie")
	}
	cookie, err := t.allocator.NextCookie(h)
	if err != nil {
		t.allocator.Unbind(h)
		t.allocator.FreeHandle(h)
		t.slotPool.push(slot)
		return err
	}

	slot.mode = txModeBind
	slot.handle = h
	slot.allocator = t.allocator
	if first {
		// spec.md §4.F: the upstream frame pointer is freed once, by
		// the first slot of the group, on reclaim.
		slot.frame = frame
	}
	t.slots[idx] = slot

	d := txDataDescriptorAt(t.descBuf.Host, idx)
	d.encode(txDataFields{
		BufferAddr: cookie.BusAddr,
		MACLen:     offs.macLen,
		IPLen:      offs.ipLen,
		L4Len:      offs.l4Len,
		L4Type:     l4TypeField(req, offs),
		IIPT:       iiptField(req, offs),
		EOP:        last,
		RS:         last,
		Length:     len(link),
	})
	return nil
}

// sendCopy admits frame on the copy path: one TxSlot, one staging
// buffer borrowed from the ring's copy pool, every link bcopy'd into
// it in chain order.
func (t *TxRing) sendCopy(frame *FrameChain, offs frameOffsets, req ChecksumRequest) (int, error) {
	if frame.Len() > t.cfg.MaxFrameSize {
		return 0, ErrFrameTooLarge
	}
	buf := t.copyPool.pop()
	if buf == nil {
		return 0, ErrRingFull
	}
	slot := t.slotPool.pop()
	if slot == nil {
		t.copyPool.push(buf)
		return 0, ErrRingFull
	}

	idx := t.tail
	t.advanceTail()

	n := 0
	for _, l := range frame.Links() {
		n += copy(buf.Host[n:], l)
	}
	buf.Len = n

	slot.mode = txModeCopy
	slot.copyBuf = buf
	slot.frame = frame
	t.slots[idx] = slot

	d := txDataDescriptorAt(t.descBuf.Host, idx)
	d.encode(txDataFields{
		BufferAddr: buf.BusAddr,
		MACLen:     offs.macLen,
		IPLen:      offs.ipLen,
		L4Len:      offs.l4Len,
		L4Type:     l4TypeField(req, offs),
		IIPT:       iiptField(req, offs),
		EOP:        true,
		RS:         true,
		Length:     frame.Len(),
	})
	return idx, nil
}

func l4TypeField(req ChecksumRequest, offs frameOffsets) int {
	if !req.FullChecksum || offs.l4Len == 0 {
		return txL4TNone
	}
	// The parser does not retain which L4 protocol it saw once it has
	// computed the header length; that is sufficient here because the
	// descriptor's L4 checksum algorithm is the same for TCP and UDP.
	// SCTP uses a CRC32C rather than a ones-complement checksum and is
	// intentionally not distinguished from TCP/UDP offload requests
	// here -- callers requesting SCTP checksum offload on a frame this
	// core does not recognize as SCTP get ordinary L4 checksum
	// insertion instead of CRC32C, a known limitation worth revisiting
	// if SCTP offload is ever exercised.
	return txL4TTCP
}

func iiptField(req ChecksumRequest, offs frameOffsets) int {
	if !offs.ipv6 && req.IPv4HeaderChecksum {
		return txIIPTIPv4Ck
	}
	if !offs.ipv6 {
		return txIIPTIPv4
	}
	return txIIPTIPv6
}

func (t *TxRing) encodeContext(idx int, offs frameOffsets, lso LSOParams, tunnel TunnelType) {
	d := txContextDescriptorAt(t.descBuf.Host, idx)
	var tun txTunnelFields
	if tunnel == TunnelVXLAN {
		tun = txTunnelFields{
			OuterL2Len: offs.macLen,
			OuterL3Len: offs.ipLen,
			L4Type:     txTunL4UDP,
			TotalLen:   offs.innerOffset,
		}
	}
	d.encode(txContextFields{
		Tunnel:     tun,
		TSO:        lso.Enabled,
		PayloadLen: 0,
		MSS:        lso.MSS,
	})
}

func (t *TxRing) advanceTail() {
	t.tail++
	if t.tail == t.cfg.RingSize {
		t.tail = 0
	}
}

// rewindTail undoes the last n tail advances, releasing any control
// block a failed admission left behind at each position back to the
// slot pool. Positions sendBind already unwound on its own internal
// failure path are already nil here and are simply skipped.
func (t *TxRing) rewindTail(n int) {
	for i := 0; i < n; i++ {
		t.tail--
		if t.tail < 0 {
			t.tail = t.cfg.RingSize - 1
		}
		t.releaseSlot(t.tail)
	}
}

func (t *TxRing) setBlocked(b bool) {
	t.blocked = b
}

// outstanding reports how many descriptor slots are currently in
// flight (neither free nor reclaimed).
func (t *TxRing) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.RingSize - t.free
}

// freeAll releases the descriptor ring and every copy-staging buffer.
// Callers must first reclaim all in-flight transmits; any slot still
// carrying a txModeBind resource is left to the caller to reclaim
// before calling this, since tearing down a bind out from under an
// in-flight DMA would be a use-after-free on any real platform
// allocator.
func (t *TxRing) freeAll() {
	for {
		b := t.copyPool.pop()
		if b == nil {
			break
		}
		b.Free()
	}
	t.descBuf.Free()
}

// Reclaim walks completed descriptors up to the device's last reported
// writeback head, releasing each slot's resources and returning
// descriptor credits to the free count. If the ring was blocked and
// enough descriptors have freed up, it fires onUnblock exactly once
// (spec.md §8 invariant).
func (t *TxRing) Reclaim() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.regs != nil {
		if err := t.regs.Fault(); err != nil {
			t.state.degrade(SeverityLost, "tx register fault: "+err.Error())
			return
		}
	}

	if err := t.descBuf.Sync(dma.DirFromDevice); err != nil {
		t.state.degrade(SeverityLost, "tx desc sync: "+err.Error())
		return
	}

	wbHead := t.writebackHead()
	for t.head != wbHead {
		buf := t.releaseSlot(t.head)
		if buf != nil {
			t.copyPool.push(buf)
		}
		t.free++
		t.head++
		if t.head == t.cfg.RingSize {
			t.head = 0
		}
	}

	if t.blocked && t.free >= t.cfg.BlockThreshold {
		t.blocked = false
		if t.onUnblock != nil {
			t.onUnblock()
		}
	}
}
