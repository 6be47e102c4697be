// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "encoding/binary"

// descriptorSize is the fixed wire size of every RX, TX data, and TX
// context descriptor (spec.md §6 wire protocol).
const descriptorSize = 16

// RX status-word bits (second quadword of a receive descriptor, valid
// only after the device has written it back).
const (
	rxDD  = 1 << 0 // Done
	rxEOP = 1 << 1 // End of packet

	// rxErrorMask covers the fatal receive error bits; any bit set
	// here causes the frame to be discarded (spec.md §4.C step 4).
	rxErrorMask = 0x7f << 2

	rxL3L4P = 1 << 9 // L3/L4 processing performed

	rxPtypeShift = 10
	rxPtypeMask  = 0xff

	rxLengthShift = 18
	rxLengthMask  = 0xffff

	rxIPv4HdrOK  = 1 << 34
	rxIPv4HdrBad = 1 << 35
	rxL4CksumOK  = 1 << 36
	rxL4CksumBad = 1 << 37
	rxFragment   = 1 << 38
)

// rxDescriptor is a view onto one 16-byte RX ring entry, aliasing a
// slice of the ring's own DMA buffer rather than owning its storage --
// the same slice-over-a-shared-buffer pattern the teacher's buffer
// descriptor ring uses. Before arming, it carries the data buffer's bus
// address in the first quadword (the "read" format); after the device
// marks it Done, the second quadword carries status/error/ptype/length
// (the "writeback" format). Both formats share the same 16 bytes, per
// spec.md §6.
type rxDescriptor struct {
	raw []byte // len(raw) == descriptorSize, sliced from the ring's DmaBuffer.Host
}

func (d *rxDescriptor) setPktAddr(addr uint64) {
	binary.LittleEndian.PutUint64(d.raw[0:8], addr)
}

func (d *rxDescriptor) setHdrAddr(addr uint64) {
	binary.LittleEndian.PutUint64(d.raw[8:16], addr)
}

// clearStatus zeroes the writeback quadword, discarding whatever status
// the previous occupant of this ring position left behind so a stale
// Done bit can never be mistaken for a fresh completion.
func (d *rxDescriptor) clearStatus() {
	binary.LittleEndian.PutUint64(d.raw[8:16], 0)
}

func (d *rxDescriptor) status() uint64 {
	return binary.LittleEndian.Uint64(d.raw[8:16])
}

func (d *rxDescriptor) done() bool {
	return d.status()&rxDD != 0
}

func (d *rxDescriptor) eop() bool {
	return d.status()&rxEOP != 0
}

func (d *rxDescriptor) hasFatalError() bool {
	return d.status()&rxErrorMask != 0
}

func (d *rxDescriptor) length() int {
	return int((d.status() >> rxLengthShift) & rxLengthMask)
}

func (d *rxDescriptor) ptype() int {
	return int((d.status() >> rxPtypeShift) & rxPtypeMask)
}

func (d *rxDescriptor) l3l4pValid() bool {
	return d.status()&rxL3L4P != 0
}

func (d *rxDescriptor) isFragment() bool {
	return d.status()&rxFragment != 0
}

// RxChecksumFlags mirrors the flag set spec.md §4.C asks the core to
// report upstream per delivered frame.
type RxChecksumFlags struct {
	IPv4HeaderChecksumOK  bool
	IPv4HeaderChecksumBad bool
	L4ChecksumOK          bool
	L4ChecksumBad         bool
	InnerIPv4ChecksumOK   bool
	InnerIPv4ChecksumBad  bool
	InnerL4ChecksumOK     bool
	InnerL4ChecksumBad    bool
}

func (d *rxDescriptor) checksumFlags(frag bool) RxChecksumFlags {
	var f RxChecksumFlags

	s := d.status()
	f.IPv4HeaderChecksumOK = s&rxIPv4HdrOK != 0
	f.IPv4HeaderChecksumBad = s&rxIPv4HdrBad != 0

	if frag {
		// Fragments report IP-level results only (spec.md §4.C).
		return f
	}

	f.L4ChecksumOK = s&rxL4CksumOK != 0
	f.L4ChecksumBad = s&rxL4CksumBad != 0

	return f
}

// TX descriptor type field (DTYPE), shared by data and context
// descriptors.
const (
	txTypeData    = 0
	txTypeContext = 1
)

// TX data descriptor command/offset/length quadword layout.
const (
	txDataDTypeShift = 0
	txDataDTypeMask  = 0x3

	txL4TShift = 2
	txL4TMask  = 0x3
	txL4TNone  = 0
	txL4TUDP   = 1
	txL4TTCP   = 2
	txL4TSCTP  = 3

	txIIPTShift  = 4
	txIIPTMask   = 0x3
	txIIPTNone   = 0
	txIIPTIPv4   = 1
	txIIPTIPv4Ck = 2
	txIIPTIPv6   = 3

	txEOP  = 1 << 6
	txRS   = 1 << 7
	txICRC = 1 << 8

	txMACLenShift = 12
	txMACLenMask  = 0x7f // units of 2 bytes

	txIPLenShift = 19
	txIPLenMask  = 0x7f // units of 4 bytes

	txL4LenShift = 26
	txL4LenMask  = 0xf // units of 4 bytes

	txLengthShift = 46
	txLengthMask  = 0x3ffff
)

type txDataDescriptor struct {
	raw []byte // len(raw) == descriptorSize, sliced from the ring's DmaBuffer.Host
}

type txDataFields struct {
	BufferAddr uint64
	MACLen     int
	IPLen      int
	L4Len      int
	L4Type     int // txL4T*
	IIPT       int // txIIPT*
	EOP        bool
	RS         bool
	Length     int
}

func (d *txDataDescriptor) encode(f txDataFields) {
	binary.LittleEndian.PutUint64(d.raw[0:8], f.BufferAddr)

	q := uint64(txTypeData) << txDataDTypeShift
	q |= uint64(f.L4Type&txL4TMask) << txL4TShift
	q |= uint64(f.IIPT&txIIPTMask) << txIIPTShift
	q |= uint64(txICRC)
	if f.EOP {
		q |= txEOP
	}
	if f.RS {
		q |= txRS
	}
	q |= uint64((f.MACLen/2)&txMACLenMask) << txMACLenShift
	q |= uint64((f.IPLen/4)&txIPLenMask) << txIPLenShift
	q |= uint64((f.L4Len/4)&txL4LenMask) << txL4LenShift
	q |= uint64(f.Length&txLengthMask) << txLengthShift

	binary.LittleEndian.PutUint64(d.raw[8:16], q)
}

// TX context descriptor layout.
const (
	txTunOuterL2Shift = 0
	txTunOuterL2Mask  = 0x7f // units of 2 bytes

	txTunOuterL3Shift = 7
	txTunOuterL3Mask  = 0x7f // units of 4 bytes

	txTunL4TShift = 14
	txTunL4TMask  = 0x3
	txTunL4None   = 0
	txTunL4UDP    = 1
	txTunL4GRE    = 2

	txTunTTLDecrement = 1 << 16

	txTunTotalLenShift = 17
	txTunTotalLenMask  = 0xff // units of 2 bytes

	txCtxDTypeShift = 0
	txCtxDTypeMask  = 0x3

	txCtxTSO = 1 << 2

	txCtxPayloadLenShift = 6
	txCtxPayloadLenMask  = 0xfffff // 20 bits

	txCtxMSSShift = 26
	txCtxMSSMask  = 0x3fff // 14 bits
)

type txContextDescriptor struct {
	raw []byte // len(raw) == descriptorSize, sliced from the ring's DmaBuffer.Host
}

type txTunnelFields struct {
	OuterL2Len int
	OuterL3Len int
	L4Type     int // txTunL4*
	TTLDecrement bool
	TotalLen   int
}

type txContextFields struct {
	Tunnel      txTunnelFields
	TSO         bool
	PayloadLen  int
	MSS         uint32
}

// rxDescriptorAt returns the rxDescriptor view of ring slot i within a
// descriptor ring's backing bytes.
func rxDescriptorAt(ring []byte, i int) rxDescriptor {
	off := i * descriptorSize
	return rxDescriptor{raw: ring[off : off+descriptorSize]}
}

// txDataDescriptorAt returns the txDataDescriptor view of ring slot i.
func txDataDescriptorAt(ring []byte, i int) txDataDescriptor {
	off := i * descriptorSize
	return txDataDescriptor{raw: ring[off : off+descriptorSize]}
}

// txContextDescriptorAt returns the txContextDescriptor view of ring
// slot i.
func txContextDescriptorAt(ring []byte, i int) txContextDescriptor {
	off := i * descriptorSize
	return txContextDescriptor{raw: ring[off : off+descriptorSize]}
}

func (d *txContextDescriptor) encode(f txContextFields) {
	var tp uint64
	tp |= uint64((f.Tunnel.OuterL2Len/2)&txTunOuterL2Mask) << txTunOuterL2Shift
	tp |= uint64((f.Tunnel.OuterL3Len/4)&txTunOuterL3Mask) << txTunOuterL3Shift
	tp |= uint64(f.Tunnel.L4Type&txTunL4TMask) << txTunL4TShift
	if f.Tunnel.TTLDecrement {
		tp |= txTunTTLDecrement
	}
	tp |= uint64((f.Tunnel.TotalLen/2)&txTunTotalLenMask) << txTunTotalLenShift
	binary.LittleEndian.PutUint64(d.raw[0:8], tp)

	var q uint64
	q |= uint64(txTypeContext&txCtxDTypeMask) << txCtxDTypeShift
	if f.TSO {
		q |= txCtxTSO
	}
	q |= uint64(f.PayloadLen&txCtxPayloadLenMask) << txCtxPayloadLenShift
	q |= uint64(f.MSS&txCtxMSSMask) << txCtxMSSShift
	binary.LittleEndian.PutUint64(d.raw[8:16], q)
}
