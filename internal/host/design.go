package host

import (
	"github.com/robert-at-pretension-io/s7pciehost/internal/axi"
	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
	"github.com/robert-at-pretension-io/s7pciehost/internal/ipgen"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// InterruptPin is the resynchronized interrupt line, shaped like the irq pin
// of an interrupt-allocating event manager
type InterruptPin struct {
	IRQ hdl.Sig[Sys]
}

// BridgeInfo describes one instantiated clock converter
type BridgeInfo struct {
	Name         string
	Module       string
	Params       axi.BridgeParams
	MasterDomain string
	SlaveDomain  string
}

// Design is the frozen result of Host.Finalize
type Design struct {
	Netlist  *hdl.Netlist
	Resolved region.Resolved
	Specs    []ipgen.Spec
	Tcl      []string

	SystemDomain string
	CtlBus       *axi.Interface[Sys]
	MMIOBus      *axi.Interface[Sys]
	DMABus       *axi.Interface[Sys]
	IRQ          InterruptPin
	LinkUp       hdl.Sig[Sys]
	PLLLock      hdl.Sig[Sys]
	Bridges      []BridgeInfo
	HasRstN      bool
}

// CtlClockHz is the frequency of the core's control clock output
const CtlClockHz = 62.5e6

var coreClocks = []float64{62.5e6, 125e6, 250e6}

// laneRate returns the payload bit rate of one lane after 8b/10b coding
func laneRate(speed string) float64 {
	if speed == region.Speed5_0GT {
		return 4e9
	}
	return 2e9
}

// CoreClockHz returns the AXI clock the core runs its user interface at: the
// link payload rate over the data width, rounded up to a supported clock
func CoreClockHz(link region.LinkConfig) float64 {
	need := float64(link.Lanes) * laneRate(link.MaxLinkSpeed) / float64(link.DataWidth)
	for _, f := range coreClocks {
		if f >= need-1 {
			return f
		}
	}
	return coreClocks[len(coreClocks)-1]
}

// ClockFrequencies returns the frequency of every domain of the design
func (d *Design) ClockFrequencies(sysHz float64) map[string]float64 {
	return map[string]float64{
		d.SystemDomain: sysHz,
		"pcie":         CoreClockHz(d.Resolved.Link),
		"pcie_ctl":     CtlClockHz,
	}
}
