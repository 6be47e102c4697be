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
	"go.uber.org/zap"

	"github.com/ethermark/i40e/xl710"
)

// loopbackFraming is a minimal UpstreamFraming: it requests outer IPv4
// header and L4 checksum insertion on every outgoing frame (no LSO, no
// tunnel) and just logs whatever the hardware
// reports on the way back in. A real upstream stack's framing
// collaborator would read offload intent from its own packet
// representation instead of returning a fixed request.
type loopbackFraming struct {
	log *zap.Logger
}

func (f *loopbackFraming) Checksum(fr *xl710.FrameChain) xl710.ChecksumRequest {
	return xl710.ChecksumRequest{IPv4HeaderChecksum: true, FullChecksum: true}
}

func (f *loopbackFraming) LSO(fr *xl710.FrameChain) xl710.LSOParams {
	return xl710.LSOParams{}
}

func (f *loopbackFraming) Tunnel(fr *xl710.FrameChain) xl710.TunnelType {
	return xl710.TunnelNone
}

func (f *loopbackFraming) SetChecksumFlags(fr *xl710.FrameChain, flags xl710.RxChecksumFlags) {
	if f.log != nil {
		f.log.Debug("xl710sim: frame delivered",
			zap.Int("len", fr.Len()),
			zap.Bool("ipv4_hdr_ok", flags.IPv4HeaderChecksumOK),
			zap.Bool("l4_ok", flags.L4ChecksumOK),
		)
	}
}
