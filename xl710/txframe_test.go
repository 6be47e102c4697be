package xl710

import (
	"testing"

	"gvisor.dev/gvisor/pkg/tcpip/header"
)

func TestParseOffsetsIPv4TCP(t *testing.T) {
	f := newFrameChain(buildIPv4TCPFrame(64))

	offs, err := parseOffsets(f, TunnelNone)
	if err != nil {
		t.Fatalf("parseOffsets: %v", err)
	}
	if offs.macLen != ethHeaderLen {
		t.Fatalf("got macLen %d, want %d", offs.macLen, ethHeaderLen)
	}
	if offs.ipLen != header.IPv4MinimumSize {
		t.Fatalf("got ipLen %d, want %d", offs.ipLen, header.IPv4MinimumSize)
	}
	if offs.l4Len != header.TCPMinimumSize {
		t.Fatalf("got l4Len %d, want %d", offs.l4Len, header.TCPMinimumSize)
	}
	if offs.ipv6 {
		t.Fatal("got ipv6 true for an IPv4 frame")
	}
}

func buildIPv4UDPFrame(size int) []byte {
	b := buildIPv4TCPFrame(size)
	b[23] = 17 // UDP
	return b
}

func TestParseOffsetsIPv4UDP(t *testing.T) {
	f := newFrameChain(buildIPv4UDPFrame(64))

	offs, err := parseOffsets(f, TunnelNone)
	if err != nil {
		t.Fatalf("parseOffsets: %v", err)
	}
	if offs.l4Len != udpHeaderLen {
		t.Fatalf("got l4Len %d, want %d", offs.l4Len, udpHeaderLen)
	}
}

func buildIPv6TCPFrame(size int) []byte {
	if size < 14+header.IPv6MinimumSize+header.TCPMinimumSize {
		size = 14 + header.IPv6MinimumSize + header.TCPMinimumSize
	}
	b := make([]byte, size)
	b[12], b[13] = 0x86, 0xdd // IPv6

	base := ethHeaderLen
	b[base+6] = 6 // next header: TCP

	tcpOff := base + header.IPv6MinimumSize
	b[tcpOff+12] = 0x50 // data offset 5

	return b
}

func TestParseOffsetsIPv6TCP(t *testing.T) {
	f := newFrameChain(buildIPv6TCPFrame(80))

	offs, err := parseOffsets(f, TunnelNone)
	if err != nil {
		t.Fatalf("parseOffsets: %v", err)
	}
	if !offs.ipv6 {
		t.Fatal("got ipv6 false for an IPv6 frame")
	}
	if offs.ipLen != header.IPv6MinimumSize {
		t.Fatalf("got ipLen %d, want %d", offs.ipLen, header.IPv6MinimumSize)
	}
	if offs.l4Len != header.TCPMinimumSize {
		t.Fatalf("got l4Len %d, want %d", offs.l4Len, header.TCPMinimumSize)
	}
}

func buildVLANIPv4TCPFrame(size int) []byte {
	inner := buildIPv4TCPFrame(size)
	b := make([]byte, len(inner)+vlanTagLen)
	copy(b[0:12], inner[0:12])
	b[12], b[13] = 0x81, 0x00 // 802.1Q TPID
	b[14], b[15] = 0, 100     // VLAN tag control, ID 100
	b[16], b[17] = inner[12], inner[13]
	copy(b[18:], inner[14:])
	return b
}

func TestParseOffsetsVLANTagged(t *testing.T) {
	f := newFrameChain(buildVLANIPv4TCPFrame(64))

	offs, err := parseOffsets(f, TunnelNone)
	if err != nil {
		t.Fatalf("parseOffsets: %v", err)
	}
	if offs.macLen != ethHeaderLen+vlanTagLen {
		t.Fatalf("got macLen %d, want %d", offs.macLen, ethHeaderLen+vlanTagLen)
	}
	if offs.ipLen != header.IPv4MinimumSize {
		t.Fatalf("got ipLen %d, want %d", offs.ipLen, header.IPv4MinimumSize)
	}
}

func TestParseOffsetsUnsupportedEtherType(t *testing.T) {
	b := buildIPv4TCPFrame(64)
	b[12], b[13] = 0x88, 0x08 // EtherType for a protocol this core doesn't offload

	_, err := parseOffsets(newFrameChain(b), TunnelNone)
	if err != ErrUnsupportedEtherType {
		t.Fatalf("got %v, want ErrUnsupportedEtherType", err)
	}
}

func TestParseOffsetsTooShort(t *testing.T) {
	b := buildIPv4TCPFrame(64)[:20] // truncated mid-IPv4-header

	_, err := parseOffsets(newFrameChain(b), TunnelNone)
	if err != ErrFrameTooShort {
		t.Fatalf("got %v, want ErrFrameTooShort", err)
	}
}

// buildVXLANFrame constructs outer Ethernet+IPv4+UDP+VXLAN+inner
// Ethernet+IPv4+TCP, with the VXLAN flags byte controllable by the
// caller so both the valid and invalid cases can share one builder.
func buildVXLANFrame(vxlanFlags byte) []byte {
	const total = 120
	b := make([]byte, total)

	b[12], b[13] = 0x08, 0x00 // outer IPv4
	b[14] = 0x45              // outer IHL 5
	b[14+9] = 17              // outer proto: UDP

	vxlanOff := ethHeaderLen + header.IPv4MinimumSize + udpHeaderLen
	b[vxlanOff] = vxlanFlags

	inner := vxlanOff + vxlanVNIHdrLen
	b[inner+12], b[inner+13] = 0x08, 0x00 // inner IPv4

	innerIPOff := inner + ethHeaderLen
	b[innerIPOff] = 0x45
	b[innerIPOff+9] = 6 // inner proto: TCP

	innerTCPOff := innerIPOff + header.IPv4MinimumSize
	b[innerTCPOff+12] = 0x50 // TCP data offset 5

	return b
}

func TestParseOffsetsVXLANTunnel(t *testing.T) {
	f := newFrameChain(buildVXLANFrame(vxlanFlagI))

	offs, err := parseOffsets(f, TunnelVXLAN)
	if err != nil {
		t.Fatalf("parseOffsets: %v", err)
	}
	if offs.tunnel != TunnelVXLAN {
		t.Fatalf("got tunnel %v, want TunnelVXLAN", offs.tunnel)
	}
	wantInner := ethHeaderLen + header.IPv4MinimumSize + udpHeaderLen + vxlanVNIHdrLen
	if offs.innerOffset != wantInner {
		t.Fatalf("got innerOffset %d, want %d", offs.innerOffset, wantInner)
	}
	if offs.innerIPLen != header.IPv4MinimumSize {
		t.Fatalf("got innerIPLen %d, want %d", offs.innerIPLen, header.IPv4MinimumSize)
	}
	if offs.innerL4Len != header.TCPMinimumSize {
		t.Fatalf("got innerL4Len %d, want %d", offs.innerL4Len, header.TCPMinimumSize)
	}
}

func TestParseOffsetsVXLANMissingVNIFlagRejected(t *testing.T) {
	f := newFrameChain(buildVXLANFrame(0x00))

	_, err := parseOffsets(f, TunnelVXLAN)
	if err != ErrUnsupportedVXLANFlags {
		t.Fatalf("got %v, want ErrUnsupportedVXLANFlags", err)
	}
}

func TestFrameChainBytesAtSpansFragmentBoundary(t *testing.T) {
	f := NewFrameChain([][]byte{{1, 2, 3}, {4, 5, 6}, {7, 8}})

	got, err := f.bytesAt(2, 4)
	if err != nil {
		t.Fatalf("bytesAt: %v", err)
	}
	want := []byte{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestFrameChainBytesAtWithinOneFragmentAliases(t *testing.T) {
	link := []byte{10, 11, 12, 13}
	f := NewFrameChain([][]byte{link})

	got, err := f.bytesAt(1, 2)
	if err != nil {
		t.Fatalf("bytesAt: %v", err)
	}
	if &got[0] != &link[1] {
		t.Fatal("bytesAt copied a run that lies entirely within one fragment")
	}
}

func TestFrameChainByteAtOutOfRange(t *testing.T) {
	f := newFrameChain([]byte{1, 2, 3})

	if _, err := f.byteAt(2); err != errOffsetOutOfRange {
		t.Fatalf("byteAt(2) on a 3-byte chain: got %v, want errOffsetOutOfRange (2-byte reserve)", err)
	}
	if _, err := f.byteAt(0); err != nil {
		t.Fatalf("byteAt(0): %v", err)
	}
}
