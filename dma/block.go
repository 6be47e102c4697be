// DMA region memory allocator
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

// block is a contiguous span of a Region's backing memory, addressed by a
// synthetic bus address. Unlike the bare-metal original this package is
// adapted from, the block never holds a raw pointer: the Region keeps one
// real []byte backing store and a block's bus address is always resolved
// through Region.slice().
type block struct {
	// bus-visible address
	addr uint64
	// buffer size
	size uint64
	// distinguishes regular (AllocMemory/FreeMemory) from reserved (Reserve/Release)
	// blocks, mirroring the two allocation disciplines the teacher
	// package supported.
	res bool
}
