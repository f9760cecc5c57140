// Package host wires the 7-series PCIe hard core into a system clock domain:
// three AXI clock converters, the reference clock buffer, the status
// resynchronizers and the reset tree.
//
// Building is two-staged. Finalize first resolves the region and link
// configuration into IP parameters, then declares the PCIe domains, whose
// clocks only exist once the hard core that produces them is instantiated,
// and freezes the netlist. Nothing is committed to the platform unless both
// stages succeed.
package host

import (
	"errors"
	"fmt"

	"github.com/robert-at-pretension-io/s7pciehost/internal/axi"
	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
	"github.com/robert-at-pretension-io/s7pciehost/internal/ipgen"
	"github.com/robert-at-pretension-io/s7pciehost/internal/platform"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// ErrFinalized is returned when Finalize or UpdateRegions is called on a
// finalized host
var ErrFinalized = errors.New("host already finalized")

// Config holds the construction parameters. Link describes the PCIe side;
// DataWidth and IDWidth describe the chip-facing MMIO and DMA buses.
type Config struct {
	Link      region.LinkConfig
	DataWidth int
	IDWidth   int
}

// Option customizes a Host
type Option func(*Host)

// WithHardCore replaces the axi_pcie port contract
func WithHardCore(hc HardCore) Option {
	return func(h *Host) { h.core = hc }
}

// WithRegistry replaces the IP template registry
func WithRegistry(r *ipgen.Registry) Option {
	return func(h *Host) { h.registry = r }
}

// WithSyncStages sets the synchronizer depth of the status and reset crossings
func WithSyncStages(n int) Option {
	return func(h *Host) { h.stages = n }
}

// Host is the builder of the PCIe host bridge
type Host struct {
	m         *hdl.Module
	plat      platform.Platform
	sys       *hdl.Domain[Sys]
	pads      Pads
	powerGood hdl.Sig[hdl.Async]
	cfg       Config
	conf      *region.Configurator
	core      HardCore
	registry  *ipgen.Registry
	stages    int
	finalized bool
	// failed holds the error that stopped elaboration. The module keeps
	// whatever was added before it, so elaboration is not retried.
	failed error

	ctlBus  *axi.Interface[Sys]
	mmioBus *axi.Interface[Sys]
	dmaBus  *axi.Interface[Sys]
}

// New validates the construction parameters and creates the chip-facing
// buses in the system domain. powerGood is the board's power-good input.
func New(m *hdl.Module, plat platform.Platform, sys *hdl.Domain[Sys], pads Pads, powerGood hdl.Sig[hdl.Async], cfg Config, opts ...Option) (*Host, error) {
	h := &Host{
		m:         m,
		plat:      plat,
		sys:       sys,
		pads:      pads,
		powerGood: powerGood,
		cfg:       cfg,
		core:      DefaultHardCore(),
		registry:  ipgen.DefaultRegistry(),
		stages:    hdl.MinSyncStages,
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := pads.validate(); err != nil {
		return nil, err
	}
	if pads.Lanes() != cfg.Link.Lanes {
		return nil, fmt.Errorf("%w: pads provide %d lanes, link configured for %d", region.ErrConfig, pads.Lanes(), cfg.Link.Lanes)
	}
	conf, err := region.NewConfigurator(cfg.Link)
	if err != nil {
		return nil, err
	}
	if cfg.DataWidth != 64 && cfg.DataWidth != 128 {
		return nil, fmt.Errorf("%w: data width %d not in {64,128}", region.ErrConfig, cfg.DataWidth)
	}
	if cfg.DataWidth != cfg.Link.DataWidth {
		return nil, fmt.Errorf("%w: clock converters do not resize, data width %d differs from PCIe data width %d", region.ErrConfig, cfg.DataWidth, cfg.Link.DataWidth)
	}
	if cfg.IDWidth != cfg.Link.IDWidth {
		return nil, fmt.Errorf("%w: clock converters do not resize, id width %d differs from PCIe id width %d", region.ErrConfig, cfg.IDWidth, cfg.Link.IDWidth)
	}
	if !powerGood.Valid() {
		return nil, fmt.Errorf("%w: power-good input missing", region.ErrConfig)
	}
	if h.stages < hdl.MinSyncStages {
		return nil, fmt.Errorf("%w: %d synchronizer stages, need at least %d", region.ErrConfig, h.stages, hdl.MinSyncStages)
	}
	if err := h.core.Check(cfg.Link); err != nil {
		return nil, err
	}
	h.conf = conf

	if h.ctlBus, err = axi.NewPort(m, sys, "ctl", axi.LiteParams(), axi.Slave); err != nil {
		return nil, fmt.Errorf("%w: %w", region.ErrConfig, err)
	}
	if h.mmioBus, err = axi.NewPort(m, sys, "mmio", axi.FullParams(cfg.DataWidth, cfg.IDWidth), axi.Slave); err != nil {
		return nil, fmt.Errorf("%w: %w", region.ErrConfig, err)
	}
	if h.dmaBus, err = axi.NewPort(m, sys, "dma", axi.FullParams(cfg.DataWidth, cfg.Link.DMAIDWidth), axi.Master); err != nil {
		return nil, fmt.Errorf("%w: %w", region.ErrConfig, err)
	}
	return h, nil
}

// CtlBus is the chip-facing control interface (the host is the slave)
func (h *Host) CtlBus() *axi.Interface[Sys] { return h.ctlBus }

// MMIOBus is the chip-facing MMIO interface (the host is the slave)
func (h *Host) MMIOBus() *axi.Interface[Sys] { return h.mmioBus }

// DMABus is the chip-facing DMA interface (the host is the master)
func (h *Host) DMABus() *axi.Interface[Sys] { return h.dmaBus }

// UpdateRegions replaces the ECAM and MMIO windows
func (h *Host) UpdateRegions(ecam, mmio *region.Region) error {
	if h.finalized {
		return ErrFinalized
	}
	return h.conf.UpdateRegions(ecam, mmio)
}

// Finalize runs both build stages and returns the frozen design. A missing
// region can be supplied and Finalize called again; an elaboration failure
// is returned again on every later call.
func (h *Host) Finalize() (*Design, error) {
	if h.finalized {
		return nil, ErrFinalized
	}
	if h.failed != nil {
		return nil, h.failed
	}

	// stage 1: configuration
	res, err := h.conf.Resolve()
	if err != nil {
		return nil, err
	}
	specs, err := h.registry.Specs(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", region.ErrConfig, err)
	}
	tcl := ipgen.Render(ipgen.Emit(specs))
	modules := make(map[string]string, len(specs))
	for _, s := range specs {
		modules[s.Template] = s.ModuleName
	}
	for _, name := range []string{"conv_ctl", "conv_mmio", "conv_dma", "host"} {
		if modules[name] == "" {
			return nil, fmt.Errorf("%w: IP registry has no %s template", region.ErrConfig, name)
		}
	}

	// stage 2: elaboration
	d, err := h.elaborate(res, modules)
	if err != nil {
		h.failed = err
		return nil, err
	}
	nl, err := h.m.Finalize()
	if err != nil {
		h.failed = err
		return nil, err
	}
	h.finalized = true

	h.plat.AddPeriodConstraint(h.pads.ClkP.Name(), res.Link.RefClkPeriodNS())
	h.plat.AddPreSynthesisCommands(tcl...)

	d.Netlist = nl
	d.Resolved = res
	d.Specs = specs
	d.Tcl = tcl
	return d, nil
}

func (h *Host) elaborate(res region.Resolved, modules map[string]string) (*Design, error) {
	m := h.m
	link := res.Link

	pcie, err := hdl.DeclareDomain[PCIe](m, "pcie")
	if err != nil {
		return nil, err
	}
	ctl, err := hdl.DeclareDomain[PCIeCtl](m, "pcie_ctl")
	if err != nil {
		return nil, err
	}

	// reference clock
	refclk := hdl.AsyncWire(m, "pcie_refclk", 1)
	buf := m.Instantiate("pcie_refclk_buf", "IBUFDS_GTE2", hdl.KindClockBuffer)
	buf.Tie("CEB", "0")
	hdl.Pads(buf).
		In("I", h.pads.ClkP).
		In("IB", h.pads.ClkN).
		Out("O", refclk)
	hdl.Constrain(m, h.pads.ClkP, link.RefClkPeriodNS())

	// PCIe side of the three bridges
	ctlPCIe, err := axi.NewInterface(m, ctl, "pcie_ctl", axi.LiteParams())
	if err != nil {
		return nil, err
	}
	mmioPCIe, err := axi.NewInterface(m, pcie, "pcie_mmio", axi.FullParams(link.DataWidth, link.IDWidth))
	if err != nil {
		return nil, err
	}
	dmaPCIe, err := axi.NewInterface(m, pcie, "pcie_dma", axi.FullParams(link.DataWidth, link.DMAIDWidth))
	if err != nil {
		return nil, err
	}

	nets := CoreNets{
		Module:    modules["host"],
		RefClk:    refclk,
		Pads:      h.pads,
		PCIe:      pcie,
		Ctl:       ctl,
		LinkUp:    hdl.Wire(m, pcie, "pcie_link_up_raw", 1),
		MMCMLock:  hdl.Wire(m, pcie, "pcie_mmcm_lock_raw", 1),
		Interrupt: hdl.Wire(m, pcie, "pcie_irq_raw", 1),
		CtlBus:    ctlPCIe,
		MMIOBus:   mmioPCIe,
		DMABus:    dmaPCIe,
	}
	h.core.Wire(m, nets)

	// status into the system domain
	linkUp, err := h.resyncOut(nets.LinkUp, "pcie_link_up")
	if err != nil {
		return nil, err
	}
	pllLock, err := h.resyncOut(nets.MMCMLock, "pcie_mmcm_lock")
	if err != nil {
		return nil, err
	}
	irq, err := h.resyncOut(nets.Interrupt, "pcie_irq")
	if err != nil {
		return nil, err
	}

	// resets
	if err := hdl.AsyncResetSync(m, pcie, h.stages,
		hdl.Asserted(h.sys.Reset()),
		hdl.Deasserted(pllLock),
		hdl.Deasserted(h.powerGood),
	); err != nil {
		return nil, err
	}
	hdl.ShareReset(m, ctl, pcie)
	if h.pads.HasRstN() {
		hdl.DrivePad(m, h.pads.RstN, pcie.Reset(), true)
	}

	// bridges
	bridges := []BridgeInfo{
		wireBridge(m, "pcie_conv_ctl", modules["conv_ctl"], h.sys, h.ctlBus, ctl, ctlPCIe),
		wireBridge(m, "pcie_conv_mmio", modules["conv_mmio"], h.sys, h.mmioBus, pcie, mmioPCIe),
		wireBridge(m, "pcie_conv_dma", modules["conv_dma"], pcie, dmaPCIe, h.sys, h.dmaBus),
	}

	return &Design{
		SystemDomain: h.sys.Name(),
		CtlBus:       h.ctlBus,
		MMIOBus:      h.mmioBus,
		DMABus:       h.dmaBus,
		IRQ:          InterruptPin{IRQ: irq},
		LinkUp:       linkUp,
		PLLLock:      pllLock,
		Bridges:      bridges,
		HasRstN:      h.pads.HasRstN(),
	}, nil
}

// resyncOut crosses a raw core status bit into the system domain and exposes
// it as a top-level output
func (h *Host) resyncOut(raw hdl.Sig[PCIe], name string) (hdl.Sig[Sys], error) {
	synced, err := hdl.Resync(h.m, raw, h.sys, name+"_sync", h.stages)
	if err != nil {
		return hdl.Sig[Sys]{}, err
	}
	out := hdl.Output(h.m, h.sys, name, 1)
	hdl.Connect(h.m, out, synced, false)
	return out, nil
}

// wireBridge instantiates one clock converter. The upstream (s_axi) side is
// the master's domain, the downstream (m_axi) side is the slave's.
func wireBridge[S, M any](m *hdl.Module, name, module string, sDom *hdl.Domain[S], sBus *axi.Interface[S], mDom *hdl.Domain[M], mBus *axi.Interface[M]) BridgeInfo {
	inst := m.Instantiate(name, module, hdl.KindBridge)

	hdl.Ports(inst, sDom).
		In("s_axi_aclk", sDom.Clock()).
		InN("s_axi_aresetn", sDom.Reset())
	axi.Attach(hdl.Ports(inst, sDom), axi.PortSpec{Prefix: "s_axi_", Role: axi.Slave}, sBus)

	hdl.Ports(inst, mDom).
		In("m_axi_aclk", mDom.Clock()).
		InN("m_axi_aresetn", mDom.Reset())
	axi.Attach(hdl.Ports(inst, mDom), axi.PortSpec{Prefix: "m_axi_", Role: axi.Master}, mBus)

	return BridgeInfo{
		Name:         name,
		Module:       module,
		Params:       axi.NewBridgeParams(sBus.Params),
		MasterDomain: sDom.Name(),
		SlaveDomain:  mDom.Name(),
	}
}

// Standalone describes a wrapper module that contains only the host bridge:
// the system clock and reset, the link pads and the power-good pin all become
// top-level ports
type Standalone struct {
	Name         string
	SystemDomain string
	HasRstN      bool
	Config       Config
	ECAM         *region.Region
	MMIO         *region.Region
	Options      []Option
}

// BuildStandalone elaborates a Standalone wrapper
func BuildStandalone(plat platform.Platform, s Standalone) (*Design, error) {
	m := hdl.NewModule(s.Name)
	sys, err := hdl.ExternalDomain[Sys](m, s.SystemDomain)
	if err != nil {
		return nil, err
	}
	pads := NewPads(m, s.Config.Link.Lanes, s.HasRstN)
	pgood := hdl.PadIn(m, "vadj_pgood", 1)
	h, err := New(m, plat, sys, pads, pgood, s.Config, s.Options...)
	if err != nil {
		return nil, err
	}
	if err := h.UpdateRegions(s.ECAM, s.MMIO); err != nil {
		return nil, err
	}
	return h.Finalize()
}
