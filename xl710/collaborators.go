// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package xl710 implements the transmit/receive data-path core of a
// driver for a 40 Gb/s Ethernet controller exposing multiple
// transmit/receive queue pairs (TRQPs). It consumes a small set of
// collaborator interfaces for everything device probing, PCIe
// configuration, link negotiation, administration commands, interrupt
// attachment and mac-layer registration would otherwise require -- those
// concerns live outside this package entirely.
package xl710

import (
	"net"

	"github.com/ethermark/i40e/dma"
)

// DMAAllocator is the DMA allocator collaborator from spec.md §6. package
// dma's *Region is the reference implementation used by tests and by
// cmd/xl710sim.
type DMAAllocator interface {
	AllocHandle() (dma.Handle, error)
	AllocMemory(h dma.Handle, size int, attrs dma.Attrs) ([]byte, error)
	Bind(h dma.Handle, region []byte) (cookieCount int, err error)
	NextCookie(h dma.Handle) (dma.Cookie, error)
	Unbind(h dma.Handle) error
	FreeMemory(h dma.Handle) error
	FreeHandle(h dma.Handle) error
	Sync(h dma.Handle, offset, length int, dir dma.Direction) error

	Reserve(size int, align int) (addr uint64, buf []byte, err error)
	Release(addr uint64)
	Resolve(addr uint64, size int) []byte
}

// Registers is the register access collaborator from spec.md §6: a
// 32-bit memory-mapped register space plus a fault-check query. A real
// platform implementation backs this with actual PCIe BAR accesses; the
// reference used by tests and cmd/xl710sim is a software register file.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, val uint32)
	// Fault reports whether the register handle has observed a bus
	// fault since the last check.
	Fault() error
}

// Severity classifies a fault-management service-impact report.
type Severity int

const (
	SeverityDegraded Severity = iota
	SeverityLost
)

// FaultManager is the fault-management collaborator from spec.md §6.
type FaultManager interface {
	ServiceImpact(severity Severity, msg string)
}

// ChecksumRequest captures the offload flags an upstream frame carries,
// read via UpstreamFraming.Checksum.
type ChecksumRequest struct {
	IPv4HeaderChecksum bool
	FullChecksum       bool // L4 (TCP/UDP/SCTP) checksum requested
	InnerIPv4Checksum  bool
	InnerFullChecksum  bool
}

// LSOParams captures large-send-offload parameters read from an outgoing
// frame via UpstreamFraming.LSO.
type LSOParams struct {
	Enabled bool
	MSS     uint32
}

// TunnelType enumerates the tunnel encapsulations the core understands.
// Only VXLAN is supported; see spec.md §1 Non-goals.
type TunnelType int

const (
	TunnelNone TunnelType = iota
	TunnelVXLAN
)

// UpstreamFraming is the packet-framing helper collaborator from
// spec.md §6: it lets the core read offload intent from an outgoing
// frame and report computed checksum results on an incoming one,
// without the core knowing anything about the upstream stack's frame
// representation beyond a chain of byte slices (FrameChain).
type UpstreamFraming interface {
	Checksum(f *FrameChain) ChecksumRequest
	LSO(f *FrameChain) LSOParams
	Tunnel(f *FrameChain) TunnelType

	// SetChecksumFlags records hardware-computed checksum validity on
	// a delivered receive frame.
	SetChecksumFlags(f *FrameChain, flags RxChecksumFlags)
}

// ReceiveFunc delivers a batch of received frames upstream.
type ReceiveFunc func(frames []*FrameChain)

// RingUpdateFunc is invoked to tell the upstream stack that a
// previously blocked ring has free descriptors again.
type RingUpdateFunc func()

// FreeCallback is invoked by RxSlot.Free once the last reference to a
// loaned (zero-copy) receive frame is released, see RxSlot.
type FreeCallback func(slot *RxSlot)

// MAC is carried for completeness of the aggregate's identity; the core
// never uses it beyond stamping frames/logs, address assignment is the
// out-of-scope mac-layer registration collaborator's job.
type MAC = net.HardwareAddr
