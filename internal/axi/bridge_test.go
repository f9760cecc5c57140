package axi_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/robert-at-pretension-io/s7pciehost/internal/axi"
	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

// script sends a fixed list of write addresses, one per accepted handshake
type script struct {
	port  axi.MasterPort
	addrs []axi.AddrBeat
	data  [][]byte
	aw    int
	w     int
	resps []uint32
}

func (s *script) Eval() {
	if s.aw < len(s.addrs) {
		if ok, err := s.port.AW.Send(s.addrs[s.aw]); err == nil && ok {
			s.aw++
		}
	}
	if s.w < s.aw {
		if ok, err := s.port.W.Send(axi.WriteBeat{Data: s.data[s.w], Strb: 0xff, Last: true}); err == nil && ok {
			s.w++
		}
	}
	if b, ok := s.port.B.Recv(); ok {
		s.resps = append(s.resps, b.ID)
	}
}

func (s *script) Commit() {}

// responder offers the same write response on every cycle
type responder struct {
	port axi.SlavePort
}

func (r *responder) Eval() {
	_, _ = r.port.B.Send(axi.RespBeat{ID: 0, Resp: axi.RespOkay})
}

func (r *responder) Commit() {}

var _ = Describe("Bridge", func() {
	var (
		engine *sim.Engine
		sys    *sim.Clock
		pcie   *sim.Clock
		params axi.BridgeParams
	)

	BeforeEach(func() {
		engine = sim.NewEngine(3)
		sys = engine.AddClock("sys", 100e6, 0)
		pcie = engine.AddClock("pcie", 125e6, 1700)
		params = axi.NewBridgeParams(axi.FullParams(64, 2))
	})

	It("returns write responses in issue order", func() {
		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		mem := axi.NewMemorySlave(engine, pcie, br)

		s := &script{port: br.Master()}
		for id, addr := range []uint64{0x100, 0x200, 0x300} {
			s.addrs = append(s.addrs, axi.AddrBeat{ID: uint32(id + 1), Addr: addr, Size: 3, Burst: axi.BurstIncr})
			s.data = append(s.data, []byte{byte(id + 1), 0, 0, 0, 0, 0, 0, 0xaa})
		}
		engine.Attach(sys, s)

		Expect(engine.RunUntil(func() bool { return len(s.resps) == 3 }, 2_000_000)).To(BeTrue())
		Expect(s.resps).To(Equal([]uint32{1, 2, 3}))
		Expect(mem.Load(0x200, 8)).To(Equal([]byte{2, 0, 0, 0, 0, 0, 0, 0xaa}))
		Expect(br.Err()).NotTo(HaveOccurred())
		Expect(br.Transfers()["b"]).To(Equal(uint64(3)))
	})

	It("round-trips generated traffic for every seed", func() {
		for seed := int64(0); seed < 8; seed++ {
			e := sim.NewEngine(seed)
			m := e.AddClock("sys", 100e6, 0)
			s := e.AddClock("pcie", 125e6, uint64(seed)*311)
			br, err := axi.NewBridge(e, "dma", m, s, params)
			Expect(err).NotTo(HaveOccurred())

			txns := axi.GenerateTraffic(params.Params, 24, 0x1000, 0x10000, rand.New(rand.NewSource(seed)))
			rep, err := axi.Loopback(e, br, m, s, txns, 50_000_000)
			Expect(err).NotTo(HaveOccurred(), "seed %d", seed)
			Expect(rep.Problems).To(BeEmpty(), "seed %d", seed)
			Expect(rep.Writes).To(Equal(24))
			Expect(rep.Reads).To(Equal(24))
		}
	})

	It("carries lite traffic across the control crossing", func() {
		lite := axi.NewBridgeParams(axi.LiteParams())
		ctl := engine.AddClock("pcie_ctl", 62.5e6, 900)
		br, err := axi.NewBridge(engine, "ctl", sys, ctl, lite)
		Expect(err).NotTo(HaveOccurred())

		txns := axi.GenerateTraffic(lite.Params, 10, 0, 0x1000, rand.New(rand.NewSource(1)))
		rep, err := axi.Loopback(engine, br, sys, ctl, txns, 50_000_000)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Problems).To(BeEmpty())
	})

	It("keeps generated bursts inside the window and reuses its slots", func() {
		const base, size = 0xfffff000, 0x1000
		txns := axi.GenerateTraffic(params.Params, 300, base, size, rand.New(rand.NewSource(5)))
		Expect(txns).To(HaveLen(300))
		for _, t := range txns {
			Expect(t.Addr.Addr).To(BeNumerically(">=", uint64(base)))
			end := t.Addr.Addr + uint64(len(t.Data)*params.BytesPerBeat())
			Expect(end).To(BeNumerically("<=", uint64(base+size)))
		}

		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		rep, err := axi.Loopback(engine, br, sys, pcie, txns, 400_000_000)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Problems).To(BeEmpty())
		Expect(rep.Writes).To(Equal(300))
		Expect(rep.Reads).To(Equal(300))
	})

	It("places every burst of a window smaller than one slot at its aligned line", func() {
		txns := axi.GenerateTraffic(params.Params, 4, 0x2004, 8, rand.New(rand.NewSource(2)))
		for _, t := range txns {
			Expect(t.Addr.Addr).To(Equal(uint64(0x2000)))
		}
	})

	It("reports an address problem ahead of the time limit", func() {
		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		txns := []axi.Txn{{
			Addr: axi.AddrBeat{Addr: 1 << 32, Size: 3, Burst: axi.BurstIncr},
			Data: [][]byte{make([]byte, 8)},
		}}
		_, err = axi.Loopback(engine, br, sys, pcie, txns, 2_000_000)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("exceeds 32 bits"))
		Expect(err.Error()).NotTo(ContainSubstring("time limit"))
	})

	It("surfaces a response the memory could not send", func() {
		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		engine.Attach(pcie, &responder{port: br.Slave()})
		mem := axi.NewMemorySlave(engine, pcie, br)

		s := &script{port: br.Master()}
		s.addrs = []axi.AddrBeat{{ID: 1, Addr: 0x100, Size: 3, Burst: axi.BurstIncr}}
		s.data = [][]byte{make([]byte, 8)}
		engine.Attach(sys, s)

		Expect(engine.RunUntil(func() bool { return mem.Err() != nil }, 2_000_000)).To(BeTrue())
		Expect(mem.Err()).To(MatchError(axi.ErrProtocol))
		Expect(mem.Err().Error()).To(ContainSubstring("memory b"))
	})

	It("stops accepting when the FIFO is full", func() {
		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		aw := br.Master().AW

		accepted := 0
		for i := 0; i < 3*params.Depth; i++ {
			ok, err := aw.Send(axi.AddrBeat{Addr: 0x40, Burst: axi.BurstIncr})
			Expect(err).NotTo(HaveOccurred())
			if ok {
				accepted++
			}
			engine.RunCycles(sys, 1)
		}
		Expect(accepted).To(Equal(params.Depth))
		Expect(aw.Ready()).To(BeFalse())
		Expect(br.Err()).NotTo(HaveOccurred())
	})

	It("flags a payload that changes while valid is held", func() {
		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		aw := br.Master().AW

		for i := 0; i < params.Depth; i++ {
			ok, err := aw.Send(axi.AddrBeat{Addr: 0x40, Burst: axi.BurstIncr})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			engine.RunCycles(sys, 1)
		}
		ok, err := aw.Send(axi.AddrBeat{Addr: 0x40, Burst: axi.BurstIncr})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		engine.RunCycles(sys, 1)

		_, err = aw.Send(axi.AddrBeat{Addr: 0x80, Burst: axi.BurstIncr})
		Expect(err).NotTo(HaveOccurred())
		engine.RunCycles(sys, 1)
		Expect(br.Err()).To(MatchError(axi.ErrProtocol))
	})

	It("refuses two transfers in one cycle and malformed beats", func() {
		br, err := axi.NewBridge(engine, "mmio", sys, pcie, params)
		Expect(err).NotTo(HaveOccurred())
		aw := br.Master().AW

		_, err = aw.Send(axi.AddrBeat{Addr: 0x40, Burst: axi.BurstIncr})
		Expect(err).NotTo(HaveOccurred())
		_, err = aw.Send(axi.AddrBeat{Addr: 0x48, Burst: axi.BurstIncr})
		Expect(err).To(MatchError(axi.ErrProtocol))

		engine.RunCycles(sys, 1)
		_, err = aw.Send(axi.AddrBeat{Addr: 0x40, Burst: 3})
		Expect(err).To(MatchError(axi.ErrProtocol))
	})

	It("rejects invalid bridge parameters", func() {
		bad := params
		bad.SyncStages = 1
		_, err := axi.NewBridge(engine, "mmio", sys, pcie, bad)
		Expect(err).To(MatchError(axi.ErrInvalidParams))
	})
})
