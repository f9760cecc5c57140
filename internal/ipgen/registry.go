// Package ipgen renders the vendor IP instances the host bridge depends on
// into the Tcl that creates, configures and synthesizes them ahead of the
// main synthesis run.
package ipgen

import (
	"fmt"
	"strconv"

	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// Value renders one option from the resolved configuration
type Value func(region.Resolved) string

// Const renders a fixed value
func Const(v any) Value {
	s := fmt.Sprint(v)
	return func(region.Resolved) string { return s }
}

// Int renders an integer derived from the configuration
func Int(f func(region.Resolved) int) Value {
	return func(r region.Resolved) string { return strconv.Itoa(f(r)) }
}

// Str renders a string derived from the configuration
func Str(f func(region.Resolved) string) Value {
	return Value(f)
}

// Option is one CONFIG.<Name> property of a template
type Option struct {
	Name  string
	Value Value
}

// Template is a named IP instantiation record
type Template struct {
	Name      string
	IPType    string
	DependsOn []string
	Options   []Option
}

// ModuleName returns the module name the IP is generated under
func (t Template) ModuleName() string {
	return "pcie_" + t.Name + "_s7"
}

// Registry holds templates in declaration order
type Registry struct {
	templates []Template
	index     map[string]int
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a template. Dependencies must already be registered.
func (r *Registry) Register(t Template) error {
	if t.Name == "" || t.IPType == "" {
		return fmt.Errorf("template needs a name and an IP type")
	}
	if _, dup := r.index[t.Name]; dup {
		return fmt.Errorf("template %s registered twice", t.Name)
	}
	seen := make(map[string]bool, len(t.Options))
	for _, o := range t.Options {
		if seen[o.Name] {
			return fmt.Errorf("template %s: option %s set twice", t.Name, o.Name)
		}
		seen[o.Name] = true
	}
	for _, dep := range t.DependsOn {
		if _, ok := r.index[dep]; !ok {
			return fmt.Errorf("template %s depends on unknown template %s", t.Name, dep)
		}
	}
	r.index[t.Name] = len(r.templates)
	r.templates = append(r.templates, t)
	return nil
}

// Template looks up a template by name
func (r *Registry) Template(name string) (Template, bool) {
	i, ok := r.index[name]
	if !ok {
		return Template{}, false
	}
	return r.templates[i], true
}

// Templates returns the templates in declaration order
func (r *Registry) Templates() []Template {
	return append([]Template(nil), r.templates...)
}

func mustRegister(r *Registry, t Template) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func clockConverter(name string, protocol string, dataWidth, idWidth func(region.Resolved) int) Template {
	return Template{
		Name:   name,
		IPType: "axi_clock_converter",
		Options: []Option{
			{"ID_WIDTH", Int(idWidth)},
			{"DATA_WIDTH", Int(dataWidth)},
			{"PROTOCOL", Const(protocol)},
			{"SYNCHRONIZATION_STAGES", Const(2)},
		},
	}
}

// DefaultRegistry returns the three clock converters and the axi_pcie hard
// core
func DefaultRegistry() *Registry {
	r := NewRegistry()
	fixed := func(n int) func(region.Resolved) int { return func(region.Resolved) int { return n } }
	dataWidth := func(res region.Resolved) int { return res.Link.DataWidth }

	mustRegister(r, clockConverter("conv_ctl", "AXI4LITE", fixed(32), fixed(0)))
	mustRegister(r, clockConverter("conv_mmio", "AXI4", dataWidth, func(res region.Resolved) int { return res.Link.IDWidth }))
	mustRegister(r, clockConverter("conv_dma", "AXI4", dataWidth, func(res region.Resolved) int { return res.Link.DMAIDWidth }))
	mustRegister(r, Template{
		Name:      "host",
		IPType:    "axi_pcie",
		DependsOn: []string{"conv_ctl", "conv_mmio", "conv_dma"},
		Options: []Option{
			{"AXIBAR2PCIEBAR_0", Str(func(res region.Resolved) string { return res.MMIOBase })},
			{"AXIBAR_0", Str(func(res region.Resolved) string { return res.MMIOBase })},
			{"AXIBAR_HIGHADDR_0", Str(func(res region.Resolved) string { return res.MMIOHigh })},
			{"AXIBAR_NUM", Const(1)},
			{"BAR0_SCALE", Str(func(res region.Resolved) string { return res.BARScale })},
			{"BAR0_SIZE", Int(func(res region.Resolved) int { return res.BARSize })},
			{"BAR_64BIT", Const("true")},
			{"BASEADDR", Str(func(res region.Resolved) string { return res.ECAMBase })},
			{"HIGHADDR", Str(func(res region.Resolved) string { return res.ECAMHigh })},
			{"CLASS_CODE", Const("0x060400")},
			{"ENABLE_CLASS_CODE", Const("true")},
			{"BASE_CLASS_MENU", Const("Bridge_device")},
			{"SUB_CLASS_INTERFACE_MENU", Const("PCI_to_PCI_bridge")},
			{"NO_OF_LANES", Str(func(res region.Resolved) string { return res.Lanes })},
			{"MAX_LINK_SPEED", Str(func(res region.Resolved) string { return res.MaxLinkSpeed })},
			{"REF_CLK_FREQ", Str(func(res region.Resolved) string { return res.RefClk })},
			{"DEVICE_ID", Const("0x7111")},
			{"INCLUDE_BAROFFSET_REG", Const("false")},
			{"INCLUDE_RC", Const("Root_Port_of_PCI_Express_Root_Complex")},
			{"S_AXI_SUPPORTS_NARROW_BURST", Const("true")},
			{"S_AXI_ID_WIDTH", Int(func(res region.Resolved) int { return res.Link.IDWidth })},
			{"S_AXI_DATA_WIDTH", Int(dataWidth)},
			{"M_AXI_DATA_WIDTH", Int(dataWidth)},
			{"COMP_TIMEOUT", Const("50ms")},
			{"rp_bar_hide", Const("true")},
		},
	})
	return r
}
