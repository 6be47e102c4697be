// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

// Register offsets for one TRQP's receive and transmit rings, relative
// to the pair's own register window (spec.md §6 defers exact addresses
// to the datasheet). Exported so a Registers implementation standing in
// for real hardware -- cmd/xl710sim's software device model, or a
// test's fault-injection file -- can decode the same layout the ring
// engines program.
const (
	RxRingBaseLoOffset = 0x0000
	RxRingBaseHiOffset = 0x0004
	RxRingLenOffset    = 0x0008
	RxTailOffset       = 0x000c

	TxRingBaseLoOffset  = 0x0100
	TxRingBaseHiOffset  = 0x0104
	TxRingLenOffset     = 0x0108
	TxTailOffset        = 0x010c
	TxWritebackLoOffset = 0x0110
	TxWritebackHiOffset = 0x0114
)
