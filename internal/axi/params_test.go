package axi_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/robert-at-pretension-io/s7pciehost/internal/axi"
	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
)

type sysTag struct{}

var _ = Describe("Params", func() {
	DescribeTable("validation",
		func(p axi.Params, ok bool) {
			err := p.Validate()
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(axi.ErrInvalidParams))
			}
		},
		Entry("lite", axi.LiteParams(), true),
		Entry("lite with 64-bit data", axi.Params{Protocol: axi.AXI4Lite, DataWidth: 64, AddrWidth: 32}, false),
		Entry("lite with an id", axi.Params{Protocol: axi.AXI4Lite, DataWidth: 32, IDWidth: 2, AddrWidth: 32}, false),
		Entry("full 64", axi.FullParams(64, 4), true),
		Entry("full 128 without id", axi.FullParams(128, 0), true),
		Entry("full 32", axi.FullParams(32, 4), false),
		Entry("id too wide", axi.FullParams(64, axi.MaxIDWidth+1), false),
		Entry("no address", axi.Params{Protocol: axi.AXI4, DataWidth: 64}, false),
	)

	It("rejects a single synchronizer stage and odd FIFO depths", func() {
		bp := axi.NewBridgeParams(axi.FullParams(64, 4))
		Expect(bp.Validate()).To(Succeed())

		bp.SyncStages = 1
		Expect(bp.Validate()).To(MatchError(axi.ErrInvalidParams))

		bp = axi.NewBridgeParams(axi.FullParams(64, 4))
		bp.Depth = 6
		Expect(bp.Validate()).To(MatchError(axi.ErrInvalidParams))
	})

	It("names the protocol the way the IP catalog does", func() {
		Expect(axi.AXI4Lite.String()).To(Equal("AXI4LITE"))
		Expect(axi.AXI4.String()).To(Equal("AXI4"))
	})
})

var _ = Describe("Beat checks", func() {
	full := axi.FullParams(64, 2)
	lite := axi.LiteParams()

	It("rejects burst fields on a lite address", func() {
		Expect(lite.CheckAddr(axi.AddrBeat{Addr: 0x10})).To(Succeed())
		Expect(lite.CheckAddr(axi.AddrBeat{Addr: 0x10, Len: 3})).To(MatchError(axi.ErrProtocol))
	})

	It("rejects ids that do not fit", func() {
		Expect(full.CheckAddr(axi.AddrBeat{ID: 3, Burst: axi.BurstIncr})).To(Succeed())
		Expect(full.CheckAddr(axi.AddrBeat{ID: 4, Burst: axi.BurstIncr})).To(MatchError(axi.ErrProtocol))
	})

	It("rejects sizes wider than the bus and bad wrap lengths", func() {
		Expect(full.CheckAddr(axi.AddrBeat{Size: 3, Burst: axi.BurstIncr})).To(Succeed())
		Expect(full.CheckAddr(axi.AddrBeat{Size: 4, Burst: axi.BurstIncr})).To(MatchError(axi.ErrProtocol))
		Expect(full.CheckAddr(axi.AddrBeat{Len: 2, Burst: axi.BurstWrap})).To(MatchError(axi.ErrProtocol))
		Expect(full.CheckAddr(axi.AddrBeat{Len: 3, Burst: axi.BurstWrap})).To(Succeed())
	})

	It("requires exactly one bus width of write data", func() {
		Expect(full.CheckWrite(axi.WriteBeat{Data: make([]byte, 8), Strb: 0xff})).To(Succeed())
		Expect(full.CheckWrite(axi.WriteBeat{Data: make([]byte, 4), Strb: 0xf})).To(MatchError(axi.ErrProtocol))
		Expect(full.CheckWrite(axi.WriteBeat{Data: make([]byte, 8), Strb: 0x1ff})).To(MatchError(axi.ErrProtocol))
	})
})

var _ = Describe("Interface binding", func() {
	It("binds only the ports a black box declares", func() {
		m := hdl.NewModule("top")
		sys, err := hdl.ExternalDomain[sysTag](m, "sys")
		Expect(err).NotTo(HaveOccurred())

		iface, err := axi.NewPort(m, sys, "mmio", axi.FullParams(64, 2), axi.Slave)
		Expect(err).NotTo(HaveOccurred())
		Expect(iface.AW.ID.Width()).To(Equal(2))
		Expect(iface.W.Strb.Width()).To(Equal(8))

		inst := m.Instantiate("conv", "pcie_mmio_s7", hdl.KindBridge)
		spec := axi.PortSpec{Prefix: "s_axi_", Role: axi.Slave, Omit: []string{"awqos", "arqos"}}
		axi.Attach(hdl.Ports(inst, sys), spec, iface)

		nl, err := m.Finalize()
		Expect(err).NotTo(HaveOccurred())
		got, ok := nl.Instance("conv")
		Expect(ok).To(BeTrue())

		aw, ok := got.Binding("s_axi_awaddr")
		Expect(ok).To(BeTrue())
		Expect(aw.Dir).To(Equal(hdl.In))
		Expect(aw.Net).To(Equal("mmio_awaddr"))

		b, ok := got.Binding("s_axi_bvalid")
		Expect(ok).To(BeTrue())
		Expect(b.Dir).To(Equal(hdl.Out))

		_, ok = got.Binding("s_axi_awqos")
		Expect(ok).To(BeFalse())
		Expect(len(got.Bindings)).To(Equal(len(axi.PortNames(spec, axi.FullParams(64, 2)))))
	})

	It("leaves out id and burst signals on a lite interface", func() {
		names := axi.PortNames(axi.PortSpec{Prefix: "m_axi_", Role: axi.Master}, axi.LiteParams())
		Expect(names).To(ContainElements("m_axi_awaddr", "m_axi_awprot", "m_axi_wstrb", "m_axi_rready"))
		Expect(names).NotTo(ContainElement("m_axi_awid"))
		Expect(names).NotTo(ContainElement("m_axi_awlen"))
		Expect(names).NotTo(ContainElement("m_axi_wlast"))
	})
})
