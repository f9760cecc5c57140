package sim

import "fmt"

// SyncChain is an N-flop resynchronizer clocked by the destination clock.
// A level held on the source for stages+1 destination edges is guaranteed to
// appear on Out; shorter pulses may be lost.
type SyncChain struct {
	src  *Wire
	out  *Wire
	regs []uint64
	next []uint64
}

// NewSyncChain attaches a resynchronizer for src to dst
func NewSyncChain(e *Engine, dst *Clock, src *Wire, stages int) *SyncChain {
	if stages < 2 {
		panic(fmt.Sprintf("sim: sync chain needs at least 2 stages, got %d", stages))
	}
	s := &SyncChain{
		src:  src,
		out:  e.NewWire(0),
		regs: make([]uint64, stages),
		next: make([]uint64, stages),
	}
	e.Attach(dst, s)
	return s
}

// Out returns the synchronized level in the destination domain
func (s *SyncChain) Out() *Wire {
	return s.out
}

// Stages returns the chain length
func (s *SyncChain) Stages() int {
	return len(s.regs)
}

func (s *SyncChain) Eval() {
	s.next[0] = s.src.Sample()
	for i := 1; i < len(s.regs); i++ {
		s.next[i] = s.regs[i-1]
	}
}

func (s *SyncChain) Commit() {
	copy(s.regs, s.next)
	s.out.Set(s.regs[len(s.regs)-1])
}

// Hazard is one reset cause of a ResetSynchronizer
type Hazard struct {
	Wire      *Wire
	ActiveLow bool
}

func (h Hazard) active() bool {
	if h.ActiveLow {
		return h.Wire.Get() == 0
	}
	return h.Wire.Get() != 0
}

// ResetSynchronizer asserts its reset as soon as any hazard is active, with no
// clock edge needed, and releases it only after stages clean edges.
type ResetSynchronizer struct {
	hazards []Hazard
	regs    []bool
	next    []bool
}

// NewResetSynchronizer attaches a reset synchronizer to clk. The reset starts
// asserted.
func NewResetSynchronizer(e *Engine, clk *Clock, stages int, hazards ...Hazard) *ResetSynchronizer {
	if stages < 2 {
		panic(fmt.Sprintf("sim: reset synchronizer needs at least 2 stages, got %d", stages))
	}
	r := &ResetSynchronizer{
		hazards: hazards,
		regs:    make([]bool, stages),
		next:    make([]bool, stages),
	}
	for i := range r.regs {
		r.regs[i] = true
	}
	e.Attach(clk, r)
	return r
}

func (r *ResetSynchronizer) asserting() bool {
	for _, h := range r.hazards {
		if h.active() {
			return true
		}
	}
	return false
}

// Reset reports the synchronized reset level
func (r *ResetSynchronizer) Reset() bool {
	return r.asserting() || r.regs[len(r.regs)-1]
}

func (r *ResetSynchronizer) Eval() {
	if r.asserting() {
		for i := range r.next {
			r.next[i] = true
		}
		return
	}
	r.next[0] = false
	for i := 1; i < len(r.regs); i++ {
		r.next[i] = r.regs[i-1]
	}
}

func (r *ResetSynchronizer) Commit() {
	copy(r.regs, r.next)
}
