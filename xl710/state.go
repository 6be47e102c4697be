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
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State bits for the per-instance fault-management word (spec.md §9
// design notes: "a process-wide per-instance state word with bit
// semantics"). Grounded in the teacher's register bit-position style
// (internal/reg), but applied to a plain atomic word instead of a
// memory-mapped register, since this word is the core's own state, not
// hardware's.
type State uint32

const (
	StateStarted State = 1 << iota
	StateSuspended
	StateError
	StateOvertemp
)

// instanceState is the atomic fault-management word plus the throttled
// service-impact reporting path described in SPEC_FULL.md §4 (promoting
// golang.org/x/time/rate, an indirect-only dependency in the teacher's
// own go.mod, to a direct use: without it a flapping DMA/register fault
// would log-storm on every descriptor touched).
type instanceState struct {
	word uint32

	fm       FaultManager
	log      *zap.Logger
	limiter  *rate.Limiter
}

func newInstanceState(fm FaultManager, log *zap.Logger) *instanceState {
	return &instanceState{
		fm:      fm,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (s *instanceState) set(bits State) {
	for {
		old := atomic.LoadUint32(&s.word)
		next := old | uint32(bits)
		if atomic.CompareAndSwapUint32(&s.word, old, next) {
			return
		}
	}
}

func (s *instanceState) clear(bits State) {
	for {
		old := atomic.LoadUint32(&s.word)
		next := old &^ uint32(bits)
		if atomic.CompareAndSwapUint32(&s.word, old, next) {
			return
		}
	}
}

func (s *instanceState) has(bits State) bool {
	return atomic.LoadUint32(&s.word)&uint32(bits) == uint32(bits)
}

// admit reports whether traffic admission should proceed: the ring must
// be started and must carry none of the "stop traffic" bits.
func (s *instanceState) admit() bool {
	w := atomic.LoadUint32(&s.word)
	if w&uint32(StateStarted) == 0 {
		return false
	}
	return w&uint32(StateError|StateSuspended|StateOvertemp) == 0
}

// degrade marks the instance as faulted: ORs StateError into the state
// word and reports a service impact, throttled to at most once per
// second so a register/DMA fault that recurs on every descriptor does
// not flood the fault-management channel.
func (s *instanceState) degrade(severity Severity, msg string) {
	s.set(StateError)

	if s.limiter.Allow() {
		if s.fm != nil {
			s.fm.ServiceImpact(severity, msg)
		}
		if s.log != nil {
			s.log.Error("xl710: instance degraded", zap.String("reason", msg))
		}
	}
}
