// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"time"

	"github.com/ethermark/i40e/dma"
	"github.com/ethermark/i40e/internal/regio"
	"github.com/ethermark/i40e/xl710"
	"go.uber.org/zap"
)

// The constants below mirror xl710's own private wire-format layout
// (descriptor.go). A real device encodes this format in silicon; this
// loopback device model plays that role for cmd/xl710sim, so it has to
// agree with the driver core on the bytes, not call into its
// unexported types. Keeping the two in sync is a one-module concern:
// this binary and package xl710 are built from the same source tree.
const (
	descSize = 16

	rxDD    = 1 << 0
	rxEOP   = 1 << 1
	rxLenSh = 18

	txDTypeMask = 0x3
	txTypeCtx   = 1
	txLenSh     = 46
	txLenMask   = 0x3ffff
)

// loopbackDevice plays the role of the NIC silicon: it watches the
// transmit tail register, reflects each transmitted frame's bytes back
// onto the receive ring, and reports transmit completion through the
// writeback word, all by reading and writing ring memory directly
// through the DMA allocator's bus-address Resolve -- exactly the
// access pattern real hardware has via its own DMA engine.
type loopbackDevice struct {
	rx  *regio.File
	tx  *regio.File
	log *zap.Logger

	ringSize int

	txHead   int // device's own consumption cursor
	rxNext   int // next rx ring position the device will fill
	wbOffset int
}

func newLoopbackDevice(rx, tx *regio.File, ringSize int, log *zap.Logger) *loopbackDevice {
	return &loopbackDevice{
		rx:       rx,
		tx:       tx,
		log:      log,
		ringSize: ringSize,
		wbOffset: ringSize * descSize,
	}
}

// run drives the device loop until stop is closed.
func (d *loopbackDevice) run(alloc *dma.Region, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.step(alloc)
		}
	}
}

func (d *loopbackDevice) step(alloc *dma.Region) {
	txBaseLo := d.tx.Read32(xl710.TxRingBaseLoOffset)
	txBaseHi := d.tx.Read32(xl710.TxRingBaseHiOffset)
	txBase := uint64(txBaseHi)<<32 | uint64(txBaseLo)
	if txBase == 0 {
		return
	}
	txTail := int(d.tx.Read32(xl710.TxTailOffset))

	rxBaseLo := d.rx.Read32(xl710.RxRingBaseLoOffset)
	rxBaseHi := d.rx.Read32(xl710.RxRingBaseHiOffset)
	rxBase := uint64(rxBaseHi)<<32 | uint64(rxBaseLo)

	txRing := alloc.Resolve(txBase, d.wbOffset+8)

	for d.txHead != txTail {
		off := d.txHead * descSize
		desc := txRing[off : off+descSize]
		q1 := binary.LittleEndian.Uint64(desc[8:16])

		if int(q1&txDTypeMask) == txTypeCtx {
			d.txHead = (d.txHead + 1) % d.ringSize
			continue
		}

		bufAddr := binary.LittleEndian.Uint64(desc[0:8])
		length := int((q1 >> txLenSh) & txLenMask)
		payload := alloc.Resolve(bufAddr, length)

		d.reflectToRx(alloc, rxBase, payload)

		d.txHead = (d.txHead + 1) % d.ringSize
	}

	binary.LittleEndian.PutUint32(txRing[d.wbOffset:d.wbOffset+4], uint32(d.txHead))
}

func (d *loopbackDevice) reflectToRx(alloc *dma.Region, rxBase uint64, payload []byte) {
	if rxBase == 0 {
		return
	}
	rxRing := alloc.Resolve(rxBase, d.ringSize*descSize)

	off := d.rxNext * descSize
	desc := rxRing[off : off+descSize]
	bufAddr := binary.LittleEndian.Uint64(desc[0:8])
	buf := alloc.Resolve(bufAddr, len(payload))
	copy(buf, payload)

	status := uint64(rxDD) | uint64(rxEOP) | uint64(len(payload))<<rxLenSh
	binary.LittleEndian.PutUint64(desc[8:16], status)

	d.rxNext = (d.rxNext + 1) % d.ringSize
}
