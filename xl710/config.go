// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

// Config carries the configuration collaborator values named in
// spec.md §6. Parsing these out of a driver.conf-style file is
// explicitly out of scope (spec.md §1); this struct is the boundary.
type Config struct {
	// RingSize is the power-of-two descriptor count per ring.
	RingSize int
	// MaxFrameSize bounds a single transmit copy-path staging buffer.
	MaxFrameSize int
	// MTU bounds a received frame's payload, excluding L2 overhead
	// and FCS.
	MTU int

	// TxCopyThreshold is the frame size, in bytes, above which the
	// transmit path prefers scatter/gather DMA binding over copying.
	TxCopyThreshold int
	// RxCopyThreshold is the frame size, in bytes, at or above which
	// the receive path attempts a zero-copy bind instead of a copy.
	RxCopyThreshold int

	// FramesPerInterrupt bounds how many frames one interrupt-mode
	// poll() call will deliver.
	FramesPerInterrupt int
	// LSOMaxCookies bounds how many scatter/gather cookies a single
	// LSO-eligible transmit may consume.
	LSOMaxCookies int
	// BlockThreshold is the minimum free TX descriptor count below
	// which new admissions are refused and the ring is marked
	// blocked.
	BlockThreshold int
}

const (
	defaultRingSize           = 1024
	defaultMaxFrameSize       = 16384
	defaultMTU                = 9000
	defaultTxCopyThreshold    = 256
	defaultRxCopyThreshold    = 256
	defaultFramesPerInterrupt = 64
	defaultLSOMaxCookies      = 8
	defaultBlockThreshold     = 32

	// ipAlignPad is the two-byte pad at the start of every receive
	// buffer: the descriptor is armed with the buffer's bus address
	// plus this pad, so that the post-Ethernet-header IP payload lands
	// 4-byte aligned (spec.md §3, §4.B).
	ipAlignPad = 2

	// bufferAlign rounds receive buffer sizing up to 1 KiB chunks
	// per spec.md §4.B.
	bufferAlign = 1024

	// ethernetOverhead accounts for an Ethernet header, a VLAN tag
	// and the FCS when sizing receive buffers from MTU.
	ethernetOverhead = 22

	// vxlanHeaderLen is the fixed VXLAN encapsulation length used
	// when locating an inner header set (spec.md §6).
	vxlanHeaderLen = 8
)

// QuotaUnlimited is the sentinel quota_bytes value meaning "interrupt
// mode": poll() is bounded by FramesPerInterrupt rather than a byte
// budget.
const QuotaUnlimited = -1

// WithDefaults fills any zero-valued field of c with the package
// defaults and returns the result; it never mutates c in place so a
// caller's literal Config{RingSize: 2048} is safe to pass by value.
func (c Config) WithDefaults() Config {
	if c.RingSize == 0 {
		c.RingSize = defaultRingSize
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = defaultMaxFrameSize
	}
	if c.MTU == 0 {
		c.MTU = defaultMTU
	}
	if c.TxCopyThreshold == 0 {
		c.TxCopyThreshold = defaultTxCopyThreshold
	}
	if c.RxCopyThreshold == 0 {
		c.RxCopyThreshold = defaultRxCopyThreshold
	}
	if c.FramesPerInterrupt == 0 {
		c.FramesPerInterrupt = defaultFramesPerInterrupt
	}
	if c.LSOMaxCookies == 0 {
		c.LSOMaxCookies = defaultLSOMaxCookies
	}
	if c.BlockThreshold == 0 {
		c.BlockThreshold = defaultBlockThreshold
	}

	return c
}

// rxBufferSize returns the per-buffer allocation size for receive
// control blocks: MTU plus L2 overhead and FCS, rounded up to a 1 KiB
// boundary, plus the IP-alignment pad (spec.md §4.B).
func (c Config) rxBufferSize() int {
	raw := c.MTU + ethernetOverhead
	rounded := ((raw + bufferAlign - 1) / bufferAlign) * bufferAlign
	return rounded + ipAlignPad
}
