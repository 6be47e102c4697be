// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xl710

import (
	"context"
	"time"
)

// Component G: ring lifecycle and fault management. A Trqpair moves
// through Start/Suspend/Resume freely, but Shutdown is one-way: once
// every outstanding receive loan and transmit descriptor has drained,
// the ring's DMA memory is released and the pair cannot be restarted.

// reclaimPollInterval bounds how often Shutdown rechecks transmit
// completions while waiting for in-flight descriptors to drain.
const reclaimPollInterval = 5 * time.Millisecond

// Shutdown stops admitting new traffic, waits for every outstanding
// receive loan and in-flight transmit to drain, and then releases the
// ring's DMA memory. It returns ctx.Err() if ctx is done before
// draining completes -- the ring memory is left intact in that case, on
// the theory that a caller which gave up waiting may still want to
// inspect what was outstanding.
func (p *Trqpair) Shutdown(ctx context.Context) error {
	p.state.set(StateSuspended)

	if err := p.drainRx(ctx); err != nil {
		return err
	}
	if err := p.drainTx(ctx); err != nil {
		return err
	}

	p.Rx.freeAll()
	p.Tx.freeAll()

	if p.log != nil {
		p.log.Info("xl710: trqpair shutdown complete")
	}
	return nil
}

func (p *Trqpair) drainRx(ctx context.Context) error {
	for p.Rx.outstandingLoans() > 0 {
		select {
		case <-p.Rx.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Trqpair) drainTx(ctx context.Context) error {
	ticker := time.NewTicker(reclaimPollInterval)
	defer ticker.Stop()

	for p.Tx.outstanding() > 0 {
		p.Tx.Reclaim()
		if p.Tx.outstanding() == 0 {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Fault reports the current fault-management state word as one boolean
// per state bit, for logging and diagnostics (spec.md §9's "a
// process-wide per-instance state word with bit semantics").
func (p *Trqpair) Fault() (started, suspended, errored, overtemp bool) {
	return p.state.has(StateStarted),
		p.state.has(StateSuspended),
		p.state.has(StateError),
		p.state.has(StateOvertemp)
}

// Degrade lets an out-of-band fault source (an interrupt handler
// noticing a bus error, a thermal sensor) force the instance into the
// faulted state, exactly as an internal ring error would.
func (p *Trqpair) Degrade(severity Severity, msg string) {
	p.state.degrade(severity, msg)
}
