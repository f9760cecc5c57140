package host

import (
	"fmt"

	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// Sys tags the chip's system clock domain
type Sys struct{}

// PCIe tags the domain clocked by the hard core's AXI clock output
type PCIe struct{}

// PCIeCtl tags the domain clocked by the hard core's control clock output
type PCIeCtl struct{}

// Pads are the device pins of the PCIe link. RstN is optional.
type Pads struct {
	ClkP hdl.Sig[hdl.Async]
	ClkN hdl.Sig[hdl.Async]
	TxP  hdl.Sig[hdl.Async]
	TxN  hdl.Sig[hdl.Async]
	RxP  hdl.Sig[hdl.Async]
	RxN  hdl.Sig[hdl.Async]
	RstN hdl.Sig[hdl.Async]
}

// NewPads creates the link pins as top-level ports
func NewPads(m *hdl.Module, lanes int, withRstN bool) Pads {
	if lanes <= 0 {
		lanes = 1
	}
	p := Pads{
		ClkP: hdl.PadIn(m, "pcie_clk_p", 1),
		ClkN: hdl.PadIn(m, "pcie_clk_n", 1),
		TxP:  hdl.PadOut(m, "pcie_tx_p", lanes),
		TxN:  hdl.PadOut(m, "pcie_tx_n", lanes),
		RxP:  hdl.PadIn(m, "pcie_rx_p", lanes),
		RxN:  hdl.PadIn(m, "pcie_rx_n", lanes),
	}
	if withRstN {
		p.RstN = hdl.PadOut(m, "pcie_rst_n", 1)
	}
	return p
}

// Lanes returns the lane count implied by the transmit pins
func (p Pads) Lanes() int {
	return p.TxP.Width()
}

// HasRstN reports whether the board provides the reset output pin
func (p Pads) HasRstN() bool {
	return p.RstN.Valid()
}

func (p Pads) validate() error {
	if !p.ClkP.Valid() || !p.ClkN.Valid() {
		return fmt.Errorf("%w: reference clock pads missing", region.ErrConfig)
	}
	if !p.TxP.Valid() || !p.TxN.Valid() || !p.RxP.Valid() || !p.RxN.Valid() {
		return fmt.Errorf("%w: serial lane pads missing", region.ErrConfig)
	}
	n := p.TxP.Width()
	if p.TxN.Width() != n || p.RxP.Width() != n || p.RxN.Width() != n {
		return fmt.Errorf("%w: lane pads disagree on width (tx %d/%d, rx %d/%d)", region.ErrConfig,
			p.TxP.Width(), p.TxN.Width(), p.RxP.Width(), p.RxN.Width())
	}
	return nil
}
