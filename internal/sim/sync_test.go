package sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

// pulser drives a wire high on one source edge and low on the next
type pulser struct {
	out    *sim.Wire
	riseAt uint64
	cycle  uint64
	next   uint64
}

func (p *pulser) Eval() {
	p.next = 0
	if p.cycle == p.riseAt {
		p.next = 1
	}
}

func (p *pulser) Commit() {
	p.out.Set(p.next)
	p.cycle++
}

var _ = Describe("SyncChain", func() {
	It("delivers a stable level within stages+1 destination edges", func() {
		for seed := int64(0); seed < 32; seed++ {
			engine := sim.NewEngine(seed)
			src := engine.AddClock("pcie", 125e6, 0)
			dst := engine.AddClock("sys", 100e6, 1234)
			level := engine.NewWire(0)
			chain := sim.NewSyncChain(engine, dst, level, 2)

			engine.RunCycles(src, 7)
			level.Set(1)

			var seen []uint64
			for i := 0; i < chain.Stages()+1; i++ {
				engine.RunCycles(dst, 1)
				seen = append(seen, chain.Out().Get())
			}

			Expect(seen[len(seen)-1]).To(Equal(uint64(1)), "seed %d", seed)
			for i := 1; i < len(seen); i++ {
				Expect(seen[i]).To(BeNumerically(">=", seen[i-1]), "output glitched for seed %d: %v", seed, seen)
			}
		}
	})

	It("may drop a pulse that falls between two destination edges", func() {
		engine := sim.NewEngine(1)
		src := engine.AddClock("fast", 400e6, 100)
		dst := engine.AddClock("slow", 100e6, 0)
		p := &pulser{out: engine.NewWire(0), riseAt: 5}
		engine.Attach(src, p)
		chain := sim.NewSyncChain(engine, dst, p.out, 2)

		observed := false
		for dst.Cycles() < 6 {
			engine.Step()
			if chain.Out().Get() != 0 {
				observed = true
			}
		}
		Expect(observed).To(BeFalse())
	})

	It("refuses a single-stage chain", func() {
		engine := sim.NewEngine(1)
		clk := engine.AddClock("sys", 100e6, 0)
		Expect(func() { sim.NewSyncChain(engine, clk, engine.NewWire(0), 1) }).To(Panic())
	})
})

var _ = Describe("ResetSynchronizer", func() {
	var (
		engine *sim.Engine
		clk    *sim.Clock
		sysRst *sim.Wire
		lock   *sim.Wire
		pgood  *sim.Wire
		rs     *sim.ResetSynchronizer
	)

	BeforeEach(func() {
		engine = sim.NewEngine(7)
		clk = engine.AddClock("pcie", 125e6, 0)
		sysRst = engine.NewWire(0)
		lock = engine.NewWire(0)
		pgood = engine.NewWire(0)
		rs = sim.NewResetSynchronizer(engine, clk, 2,
			sim.Hazard{Wire: sysRst},
			sim.Hazard{Wire: lock, ActiveLow: true},
			sim.Hazard{Wire: pgood, ActiveLow: true},
		)
	})

	It("releases only after the configured number of clean edges", func() {
		Expect(rs.Reset()).To(BeTrue())
		lock.Set(1)
		pgood.Set(1)
		Expect(rs.Reset()).To(BeTrue())

		engine.RunCycles(clk, 1)
		Expect(rs.Reset()).To(BeTrue())
		engine.RunCycles(clk, 1)
		Expect(rs.Reset()).To(BeFalse())
	})

	DescribeTable("asserts without a clock edge when any hazard appears",
		func(trip func()) {
			lock.Set(1)
			pgood.Set(1)
			engine.RunCycles(clk, 3)
			Expect(rs.Reset()).To(BeFalse())

			trip()
			Expect(rs.Reset()).To(BeTrue())
		},
		Entry("system reset", func() { sysRst.Set(1) }),
		Entry("PLL unlock", func() { lock.Set(0) }),
		Entry("power not good", func() { pgood.Set(0) }),
	)
})
