// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package regio

import "sync"

// File is a software register file implementing the core's Registers
// collaborator. It backs cmd/xl710sim and the package's tests in place
// of a real PCIe BAR mapping: reads and writes just touch a map guarded
// by a mutex, and a fault can be injected for fault-path tests.
type File struct {
	mu     sync.Mutex
	values map[uint32]uint32
	fault  error
}

// NewFile returns an empty register file; every unwritten offset reads
// back as zero.
func NewFile() *File {
	return &File{values: make(map[uint32]uint32)}
}

func (f *File) Read32(offset uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[offset]
}

func (f *File) Write32(offset uint32, val uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[offset] = val
}

// Fault reports the injected fault, if any, and clears it -- matching
// the one-shot "observed since last check" semantics of a real bus
// error status register.
func (f *File) Fault() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.fault
	f.fault = nil
	return err
}

// InjectFault arms the next Fault() call to report err. Test-only.
func (f *File) InjectFault(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = err
}
