package host

import (
	"fmt"

	"github.com/robert-at-pretension-io/s7pciehost/internal/axi"
	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// CoreNets are the nets the hard core gets wired to. The domain clocks are
// undriven until the core binds them.
type CoreNets struct {
	Module string
	RefClk hdl.Sig[hdl.Async]
	Pads   Pads
	PCIe   *hdl.Domain[PCIe]
	Ctl    *hdl.Domain[PCIeCtl]

	LinkUp    hdl.Sig[PCIe]
	MMCMLock  hdl.Sig[PCIe]
	Interrupt hdl.Sig[PCIe]

	CtlBus  *axi.Interface[PCIeCtl]
	MMIOBus *axi.Interface[PCIe]
	DMABus  *axi.Interface[PCIe]
}

// HardCore is the opaque PCIe block. Implementations only describe its port
// contract.
type HardCore interface {
	// Check rejects link parameters the core cannot be generated with
	Check(link region.LinkConfig) error
	// Wire instantiates the core and binds it to nets
	Wire(m *hdl.Module, nets CoreNets) *hdl.Instance
}

// AXIPCIe is the 7-series AXI memory-mapped PCIe block configured as a root
// port
type AXIPCIe struct{}

// DefaultHardCore returns the axi_pcie port contract
func DefaultHardCore() HardCore {
	return AXIPCIe{}
}

// Check enforces the limits of the core's master port
func (AXIPCIe) Check(link region.LinkConfig) error {
	if link.DMAIDWidth != 0 {
		return fmt.Errorf("%w: axi_pcie master port carries no ID, DMA id width must be 0 (got %d)", region.ErrConfig, link.DMAIDWidth)
	}
	return nil
}

// Wire binds the axi_pcie ports
func (AXIPCIe) Wire(m *hdl.Module, n CoreNets) *hdl.Instance {
	inst := m.Instantiate("pcie_host", n.Module, hdl.KindHardCore)

	hdl.Pads(inst).
		In("REFCLK", n.RefClk).
		Out("pci_exp_txp", n.Pads.TxP).
		Out("pci_exp_txn", n.Pads.TxN).
		In("pci_exp_rxp", n.Pads.RxP).
		In("pci_exp_rxn", n.Pads.RxN)

	hdl.Ports(inst, n.PCIe).
		InN("axi_aresetn", n.PCIe.Reset()).
		Out("axi_aclk_out", n.PCIe.Clock()).
		Out("user_link_up", n.LinkUp).
		Out("mmcm_lock", n.MMCMLock).
		Out("interrupt_out", n.Interrupt)
	hdl.Ports(inst, n.Ctl).
		Out("axi_ctl_aclk_out", n.Ctl.Clock())

	axi.Attach(hdl.Ports(inst, n.Ctl), axi.PortSpec{
		Prefix: "s_axi_ctl_",
		Role:   axi.Slave,
		Omit:   []string{"awprot", "arprot"},
	}, n.CtlBus)
	axi.Attach(hdl.Ports(inst, n.PCIe), axi.PortSpec{
		Prefix: "s_axi_",
		Role:   axi.Slave,
		Omit:   []string{"awlock", "awcache", "awprot", "awqos", "arlock", "arcache", "arprot", "arqos"},
	}, n.MMIOBus)
	axi.Attach(hdl.Ports(inst, n.PCIe), axi.PortSpec{
		Prefix: "m_axi_",
		Role:   axi.Master,
		Omit:   []string{"awregion", "awqos", "arregion", "arqos"},
	}, n.DMABus)

	// MSI is not supported; the request side is tied off
	inst.Tie("INTX_MSI_Request", "0").
		Leave("INTX_MSI_Grant").
		Leave("MSI_enable").
		Tie("MSI_Vector_Num", "0").
		Leave("MSI_Vector_Width")
	return inst
}
