package hdl

import "fmt"

// Async tags nets that belong to no clock domain: device pads and the
// asynchronous sources feeding a reset synchronizer.
type Async struct{}

// Sig is a net owned by clock domain D
type Sig[D any] struct {
	net *Net
}

// Net returns the underlying net description
func (s Sig[D]) Net() *Net {
	return s.net
}

// Name returns the net name, or "" for a zero Sig
func (s Sig[D]) Name() string {
	if s.net == nil {
		return ""
	}
	return s.net.Name
}

// Width returns the net width in bits
func (s Sig[D]) Width() int {
	if s.net == nil {
		return 0
	}
	return s.net.Width
}

// Valid reports whether the Sig refers to a net. AXI fields that a protocol
// variant does not carry are left as zero Sigs.
func (s Sig[D]) Valid() bool {
	return s.net != nil
}

// Domain is a declared clock domain
type Domain[D any] struct {
	info  *DomainInfo
	clock Sig[D]
	reset Sig[D]
}

// Name returns the domain name
func (d *Domain[D]) Name() string {
	return d.info.Name
}

// Clock returns the domain's clock net
func (d *Domain[D]) Clock() Sig[D] {
	return d.clock
}

// Reset returns the domain's active-high reset net
func (d *Domain[D]) Reset() Sig[D] {
	return d.reset
}

func declare[D any](m *Module, name string, external bool) (*Domain[D], error) {
	m.mustBeOpen()
	if name == "" {
		return nil, fmt.Errorf("%w: empty clock domain name", ErrTopology)
	}
	for _, d := range m.domains {
		if d.Name == name {
			return nil, fmt.Errorf("%w: clock domain %s declared twice", ErrTopology, name)
		}
	}
	clk := m.newNet(name+"_clk", 1, name)
	rst := m.newNet(name+"_rst", 1, name)
	if external {
		clk.Top, clk.TopDir = true, In
		rst.Top, rst.TopDir = true, In
	}
	info := &DomainInfo{Name: name, Clock: clk.Name, Reset: rst.Name, External: external}
	m.domains = append(m.domains, info)
	return &Domain[D]{info: info, clock: Sig[D]{clk}, reset: Sig[D]{rst}}, nil
}

// DeclareDomain declares an internal clock domain. Its clock must be driven by
// an instance output and its reset by a reset primitive before Finalize.
func DeclareDomain[D any](m *Module, name string) (*Domain[D], error) {
	return declare[D](m, name, false)
}

// ExternalDomain declares a domain whose clock and reset enter the module as
// top-level inputs.
func ExternalDomain[D any](m *Module, name string) (*Domain[D], error) {
	return declare[D](m, name, true)
}

// Wire creates an internal net in dom
func Wire[D any](m *Module, dom *Domain[D], name string, width int) Sig[D] {
	return Sig[D]{m.newNet(name, width, dom.Name())}
}

// Input creates a top-level input in dom
func Input[D any](m *Module, dom *Domain[D], name string, width int) Sig[D] {
	n := m.newNet(name, width, dom.Name())
	n.Top, n.TopDir = true, In
	return Sig[D]{n}
}

// Output creates a top-level output in dom
func Output[D any](m *Module, dom *Domain[D], name string, width int) Sig[D] {
	n := m.newNet(name, width, dom.Name())
	n.Top, n.TopDir = true, Out
	return Sig[D]{n}
}

// PadIn creates an unclocked top-level input
func PadIn(m *Module, name string, width int) Sig[Async] {
	n := m.newNet(name, width, "")
	n.Top, n.TopDir = true, In
	return Sig[Async]{n}
}

// PadOut creates an unclocked top-level output
func PadOut(m *Module, name string, width int) Sig[Async] {
	n := m.newNet(name, width, "")
	n.Top, n.TopDir = true, Out
	return Sig[Async]{n}
}

// AsyncWire creates an unclocked internal net, e.g. the output of a clock buffer
func AsyncWire(m *Module, name string, width int) Sig[Async] {
	return Sig[Async]{m.newNet(name, width, "")}
}

// Connect drives dst from src within one domain
func Connect[D any](m *Module, dst, src Sig[D], invert bool) {
	m.mustBeOpen()
	m.assigns = append(m.assigns, Assign{Target: dst.Name(), Source: src.Name(), Invert: invert})
}

// DrivePad drives an unclocked output pad from a domain net. Pads leave the
// chip, so this is not a crossing.
func DrivePad[D any](m *Module, pad Sig[Async], src Sig[D], invert bool) {
	m.mustBeOpen()
	m.assigns = append(m.assigns, Assign{Target: pad.Name(), Source: src.Name(), Invert: invert})
}

// Constrain registers a clock period on an unclocked input
func Constrain(m *Module, pin Sig[Async], periodNS float64) {
	m.mustBeOpen()
	m.constraints = append(m.constraints, PeriodConstraint{Net: pin.Name(), PeriodNS: periodNS})
}
