// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "gvisor.dev/gvisor/pkg/tcpip/header"

// ptypeEntry classifies one hardware packet-type code. The numbering
// itself is device-specific (spec.md §6 points at the datasheet's own
// tables); what the core cares about is the *shape* captured here:
// which network protocol, whether an L4 protocol is present and
// checksummable, and whether the packet type disqualifies checksum
// reporting outright (an IPv6 extension header the controller cannot
// reason about, or plain unknown-to-the-table).
type ptypeEntry struct {
	valid     bool
	l3        header.NetworkProtocolNumber
	l4        header.TransportProtocolNumber
	hasL4     bool
	fragment  bool
	extHeader bool // routing/destination-options: disqualifies checksums
}

// ptypeTable enumerates the packet types this core recognizes. Entries
// absent from the map are "unknown to the table" per spec.md §4.C and
// cause all checksum reporting to be discarded.
var ptypeTable = map[int]ptypeEntry{
	ptypeIPv4:         {valid: true, l3: header.IPv4ProtocolNumber},
	ptypeIPv4Frag:     {valid: true, l3: header.IPv4ProtocolNumber, fragment: true},
	ptypeIPv4TCP:      {valid: true, l3: header.IPv4ProtocolNumber, l4: header.TCPProtocolNumber, hasL4: true},
	ptypeIPv4UDP:      {valid: true, l3: header.IPv4ProtocolNumber, l4: header.UDPProtocolNumber, hasL4: true},
	ptypeIPv4SCTP:      {valid: true, l3: header.IPv4ProtocolNumber, l4: header.SCTPProtocolNumber, hasL4: true},
	ptypeIPv6:         {valid: true, l3: header.IPv6ProtocolNumber},
	ptypeIPv6TCP:      {valid: true, l3: header.IPv6ProtocolNumber, l4: header.TCPProtocolNumber, hasL4: true},
	ptypeIPv6UDP:      {valid: true, l3: header.IPv6ProtocolNumber, l4: header.UDPProtocolNumber, hasL4: true},
	ptypeIPv6SCTP:      {valid: true, l3: header.IPv6ProtocolNumber, l4: header.SCTPProtocolNumber, hasL4: true},
	ptypeIPv6ExtRouting: {valid: true, l3: header.IPv6ProtocolNumber, extHeader: true},
	ptypeIPv6ExtDstOpts: {valid: true, l3: header.IPv6ProtocolNumber, extHeader: true},
}

// Packet-type codes. These are assigned by this driver core, not drawn
// from the device datasheet (spec.md leaves the exact numbering to the
// hardware reference tables); what matters for testability is that the
// RX engine's decode table and a test's descriptor fixtures agree.
const (
	ptypeIPv4 = iota
	ptypeIPv4Frag
	ptypeIPv4TCP
	ptypeIPv4UDP
	ptypeIPv4SCTP
	ptypeIPv6
	ptypeIPv6TCP
	ptypeIPv6UDP
	ptypeIPv6SCTP
	ptypeIPv6ExtRouting
	ptypeIPv6ExtDstOpts
)

// classify resolves a descriptor's checksum flags into the upstream
// RxChecksumFlags, honoring the disqualification rules of spec.md
// §4.C: L3L4P clear, packet type unknown, or an IPv6 extension header
// all discard every checksum bit.
func (d *rxDescriptor) classify() RxChecksumFlags {
	if !d.l3l4pValid() {
		return RxChecksumFlags{}
	}

	entry, ok := ptypeTable[d.ptype()]
	if !ok || entry.extHeader {
		return RxChecksumFlags{}
	}

	return d.checksumFlags(entry.fragment)
}
