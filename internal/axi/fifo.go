package axi

import (
	"fmt"
	"reflect"

	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

func toGray(b uint64) uint64 {
	return b ^ (b >> 1)
}

func fromGray(g uint64) uint64 {
	b := g
	for shift := uint(1); shift < 64; shift <<= 1 {
		b ^= b >> shift
	}
	return b
}

// asyncFIFO carries one channel between two clocks. Write and read pointers
// cross as Gray codes through synchronizer chains, so the far side only ever
// sees a pointer that is either current or one step stale.
type asyncFIFO[T any] struct {
	name  string
	check func(T) error
	mem   []T
	mask  uint64

	// write clock side
	wbin     uint64
	wgray    *sim.Wire
	rptrSync *sim.SyncChain
	staged   *T
	offered  *T
	pending  *T
	sent     uint64

	// read clock side
	rbin     uint64
	rgray    *sim.Wire
	wptrSync *sim.SyncChain
	popped   bool
	received uint64

	err error
}

func newAsyncFIFO[T any](e *sim.Engine, name string, wclk, rclk *sim.Clock, p BridgeParams, check func(T) error) *asyncFIFO[T] {
	f := &asyncFIFO[T]{
		name:  name,
		check: check,
		mem:   make([]T, p.Depth),
		mask:  uint64(p.Depth - 1),
		wgray: e.NewWire(0),
		rgray: e.NewWire(0),
	}
	f.rptrSync = sim.NewSyncChain(e, wclk, f.rgray, p.SyncStages)
	f.wptrSync = sim.NewSyncChain(e, rclk, f.wgray, p.SyncStages)
	e.Attach(wclk, writeSide[T]{f})
	e.Attach(rclk, readSide[T]{f})
	return f
}

func (f *asyncFIFO[T]) fail(format string, args ...any) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: channel %s: %s", ErrProtocol, f.name, fmt.Sprintf(format, args...))
	}
}

func (f *asyncFIFO[T]) full() bool {
	return f.wbin-fromGray(f.rptrSync.Out().Get()) >= uint64(len(f.mem))
}

func (f *asyncFIFO[T]) empty() bool {
	return f.rbin == fromGray(f.wptrSync.Out().Get())
}

// offer presents v on the channel for the next write clock edge and reports
// whether it is accepted on that edge
func (f *asyncFIFO[T]) offer(v T) (bool, error) {
	if err := f.check(v); err != nil {
		return false, fmt.Errorf("channel %s: %w", f.name, err)
	}
	if f.offered != nil {
		return false, fmt.Errorf("%w: channel %s: two transfers offered in one cycle", ErrProtocol, f.name)
	}
	if f.pending != nil && !reflect.DeepEqual(*f.pending, v) {
		f.fail("payload changed while valid was held")
	}
	f.offered = &v
	if f.full() {
		return false, nil
	}
	f.staged = &v
	return true, nil
}

func (f *asyncFIFO[T]) peek() (T, bool) {
	var zero T
	if f.empty() || f.popped {
		return zero, false
	}
	return f.mem[f.rbin&f.mask], true
}

func (f *asyncFIFO[T]) take() (T, bool) {
	v, ok := f.peek()
	if ok {
		f.popped = true
	}
	return v, ok
}

type writeSide[T any] struct{ f *asyncFIFO[T] }

func (writeSide[T]) Eval() {}

func (w writeSide[T]) Commit() {
	f := w.f
	switch {
	case f.staged != nil:
		f.mem[f.wbin&f.mask] = *f.staged
		f.wbin++
		f.sent++
		f.wgray.Set(toGray(f.wbin))
		f.pending = nil
	case f.offered != nil:
		f.pending = f.offered
	case f.pending != nil:
		f.fail("valid dropped before the transfer was accepted")
		f.pending = nil
	}
	f.staged = nil
	f.offered = nil
}

type readSide[T any] struct{ f *asyncFIFO[T] }

func (readSide[T]) Eval() {}

func (r readSide[T]) Commit() {
	f := r.f
	if f.popped {
		f.rbin++
		f.received++
		f.rgray.Set(toGray(f.rbin))
		f.popped = false
	}
}

// Sender is the valid/ready producer end of a channel
type Sender[T any] struct {
	f *asyncFIFO[T]
}

// Send offers one transfer for the next edge of the producing clock and
// reports whether the consumer side accepted it. A refused transfer must be
// offered again, unchanged, on the next cycle.
func (s Sender[T]) Send(v T) (bool, error) {
	return s.f.offer(v)
}

// Ready reports whether a transfer offered now would be accepted
func (s Sender[T]) Ready() bool {
	return !s.f.full()
}

// Receiver is the consumer end of a channel
type Receiver[T any] struct {
	f *asyncFIFO[T]
}

// Recv accepts the head transfer on the next edge of the consuming clock
func (r Receiver[T]) Recv() (T, bool) {
	return r.f.take()
}

// Peek returns the head transfer without accepting it
func (r Receiver[T]) Peek() (T, bool) {
	return r.f.peek()
}

// Valid reports whether a transfer is waiting
func (r Receiver[T]) Valid() bool {
	_, ok := r.f.peek()
	return ok
}
