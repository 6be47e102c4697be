// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import "go.uber.org/zap"

// Trqpair is the top-level aggregate this package exposes: one
// transmit/receive queue pair, combining Component C's receive ring,
// Component F's transmit ring, and the shared fault-management state
// word from spec.md §9.
type Trqpair struct {
	cfg   Config
	state *instanceState
	log   *zap.Logger

	Rx *RxData
	Tx *TxRing

	stats *ringStats
}

// NewTrqpair wires the collaborators from spec.md §6 into one ring
// pair: a receive ring, a transmit ring, and the fault-management state
// word they share. onUnblock is invoked when a previously blocked
// transmit ring regains enough free descriptors to resume admission.
func NewTrqpair(cfg Config, allocator DMAAllocator, rxRegs, txRegs Registers, framing UpstreamFraming, fm FaultManager, log *zap.Logger, onUnblock RingUpdateFunc) (*Trqpair, error) {
	cfg = cfg.WithDefaults()
	state := newInstanceState(fm, log)

	rx, err := newRxData(cfg, allocator, rxRegs, framing, state, log)
	if err != nil {
		return nil, err
	}

	tx, err := newTxRing(cfg, allocator, txRegs, framing, state, log, onUnblock)
	if err != nil {
		return nil, err
	}

	p := &Trqpair{
		cfg:   cfg,
		state: state,
		log:   log,
		Rx:    rx,
		Tx:    tx,
	}
	p.stats = newRingStats(p)
	p.maybeServeDebugCharts()
	return p, nil
}

// Start admits traffic: poll() and Send() both refuse to act until
// this is called.
func (p *Trqpair) Start() {
	p.state.set(StateStarted)
}

// Suspend stops traffic admission without tearing anything down; Resume
// restarts it.
func (p *Trqpair) Suspend() {
	p.state.set(StateSuspended)
}

// Resume clears a prior Suspend.
func (p *Trqpair) Resume() {
	p.state.clear(StateSuspended)
}

// Poll drains receive completions; see RxData.poll.
func (p *Trqpair) Poll(quotaBytes int) []*FrameChain {
	return p.Rx.poll(quotaBytes)
}

// Send admits a transmit; see TxRing.Send.
func (p *Trqpair) Send(frame *FrameChain) (*FrameChain, error) {
	return p.Tx.Send(frame)
}

// Reclaim drains transmit completions; see TxRing.Reclaim.
func (p *Trqpair) Reclaim() {
	p.Tx.Reclaim()
}
