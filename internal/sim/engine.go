// Package sim is a small multi-clock cycle engine for the behavioral models of
// the clock-domain-crossing primitives.
//
// Every clock has a period and a phase; the engine jumps from edge to edge.
// On an edge, every Ticker attached to a clock with an edge at that instant
// first evaluates against the committed state and then all of them commit.
// Clocks share no phase relationship unless the caller gives them one.
package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// DefaultSetupPS is the metastability window used when none is configured.
const DefaultSetupPS = 150

// Ticker is a clocked component
type Ticker interface {
	// Eval computes the next state from committed state only
	Eval()
	// Commit makes the state computed in Eval visible
	Commit()
}

// Clock is one free-running clock
type Clock struct {
	name     string
	periodPS uint64
	next     uint64
	cycles   uint64
	tickers  []Ticker
}

// Name returns the clock name
func (c *Clock) Name() string {
	return c.name
}

// PeriodPS returns the period in picoseconds
func (c *Clock) PeriodPS() uint64 {
	return c.periodPS
}

// Cycles returns the number of rising edges seen so far
func (c *Clock) Cycles() uint64 {
	return c.cycles
}

// Engine advances a set of clocks edge by edge
type Engine struct {
	clocks  []*Clock
	now     uint64
	setupPS uint64
	rng     *rand.Rand
}

// NewEngine creates an engine. The seed drives metastability resolution, so a
// given seed always replays the same run.
func NewEngine(seed int64) *Engine {
	return &Engine{
		setupPS: DefaultSetupPS,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// WithSetupWindow sets the window before an edge during which a changing
// input resolves to either its old or its new value.
func (e *Engine) WithSetupWindow(ps uint64) *Engine {
	e.setupPS = ps
	return e
}

// AddClock adds a clock running at freqHz whose first edge is at phasePS
func (e *Engine) AddClock(name string, freqHz float64, phasePS uint64) *Clock {
	if freqHz <= 0 {
		panic(fmt.Sprintf("sim: clock %s has frequency %g", name, freqHz))
	}
	period := uint64(math.Round(1e12 / freqHz))
	if period == 0 {
		period = 1
	}
	c := &Clock{name: name, periodPS: period, next: phasePS}
	if c.next < e.now {
		c.next = e.now
	}
	e.clocks = append(e.clocks, c)
	return c
}

// Attach registers t on clock c
func (e *Engine) Attach(c *Clock, t Ticker) {
	c.tickers = append(c.tickers, t)
}

// Now returns the simulated time in picoseconds
func (e *Engine) Now() uint64 {
	return e.now
}

// Step advances to the next edge and returns the clocks that ticked
func (e *Engine) Step() []*Clock {
	if len(e.clocks) == 0 {
		return nil
	}
	next := uint64(math.MaxUint64)
	for _, c := range e.clocks {
		if c.next < next {
			next = c.next
		}
	}
	e.now = next

	var fired []*Clock
	for _, c := range e.clocks {
		if c.next == next {
			fired = append(fired, c)
		}
	}
	for _, c := range fired {
		for _, t := range c.tickers {
			t.Eval()
		}
	}
	for _, c := range fired {
		for _, t := range c.tickers {
			t.Commit()
		}
		c.cycles++
		c.next += c.periodPS
	}
	return fired
}

// RunCycles steps until c has seen n more edges
func (e *Engine) RunCycles(c *Clock, n int) {
	target := c.cycles + uint64(n)
	for c.cycles < target {
		e.Step()
	}
}

// RunUntil steps until cond holds or limitPS of simulated time has passed.
// It reports whether cond held.
func (e *Engine) RunUntil(cond func() bool, limitPS uint64) bool {
	deadline := e.now + limitPS
	for !cond() {
		if e.now >= deadline || len(e.clocks) == 0 {
			return false
		}
		e.Step()
	}
	return true
}

// Wire is a value with a change history, so that flops sampling it close to a
// change can resolve either way.
type Wire struct {
	eng       *Engine
	cur       uint64
	prev      uint64
	changedAt uint64
	changed   bool
}

// NewWire creates a wire holding init
func (e *Engine) NewWire(init uint64) *Wire {
	return &Wire{eng: e, cur: init, prev: init}
}

// Get returns the committed value
func (w *Wire) Get() uint64 {
	return w.cur
}

// Set changes the value at the current simulated time
func (w *Wire) Set(v uint64) {
	if v == w.cur {
		return
	}
	w.prev = w.cur
	w.cur = v
	w.changedAt = w.eng.now
	w.changed = true
}

// Sample returns the value seen by a flop clocked now. A change younger than
// the setup window resolves at random to the old or the new value.
func (w *Wire) Sample() uint64 {
	if w.changed && w.eng.now-w.changedAt < w.eng.setupPS {
		if w.eng.rng.Intn(2) == 0 {
			return w.prev
		}
	}
	return w.cur
}
