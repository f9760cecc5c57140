package hdl

// =============================================================================
// NETLIST PHILOSOPHY: DOMAINS ARE TYPES, CROSSINGS ARE PRIMITIVES
// =============================================================================
//
// Every clocked net carries its clock domain in its Go type (Sig[D]). A port
// group of an instance is also tagged with a domain, so binding a net of one
// domain into a port of another does not compile.
//
// The only functions that take a net of one domain and hand back a net of
// another are the crossing primitives in crossing.go (Resync, AsyncResetSync,
// ShareReset). If you need a new kind of crossing, add a primitive there and a
// Crossing row for it; do not add an untyped escape hatch.
//
// The policy engine re-checks the same rules on the extracted fact tables, so
// a netlist that reaches the build tool has been checked twice.
// =============================================================================

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTopology is returned when a module cannot be finalized because of a
// structural problem (undriven clock, multiply driven net, ...).
var ErrTopology = errors.New("topology error")

// Direction of a port as seen from the instance or module that owns it
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// InstanceKind classifies black boxes for reporting and policy checks
type InstanceKind string

const (
	KindClockBuffer InstanceKind = "clock_buffer"
	KindBridge      InstanceKind = "bridge"
	KindHardCore    InstanceKind = "hard_core"
)

// CrossingKind names a clock-domain-crossing primitive
type CrossingKind string

const (
	CrossResync     CrossingKind = "resync"
	CrossResetSync  CrossingKind = "reset_sync"
	CrossResetShare CrossingKind = "reset_share"
)

// Net is a named wire or bus. Domain is empty for unclocked nets (pads).
type Net struct {
	Name    string
	Width   int
	Domain  string
	Top     bool
	TopDir  Direction
	Comment string
}

// DomainInfo describes a declared clock domain
type DomainInfo struct {
	Name     string
	Clock    string
	Reset    string
	External bool
}

// Param is an instance parameter (generic)
type Param struct {
	Name  string
	Value string
}

// Binding connects one instance port to a net, a constant, or nothing
type Binding struct {
	Port   string
	Dir    Direction
	Net    string
	Domain string
	Invert bool
	Const  string
	Open   bool
}

// Instance is a black-box module instantiation
type Instance struct {
	Name     string
	Module   string
	Kind     InstanceKind
	Params   []Param
	Bindings []Binding
}

// Binding returns the binding for a port
func (i Instance) Binding(port string) (Binding, bool) {
	for _, b := range i.Bindings {
		if b.Port == port {
			return b, true
		}
	}
	return Binding{}, false
}

// Source is one input of a crossing primitive
type Source struct {
	Net       string
	Domain    string
	ActiveLow bool
}

// Crossing is an explicit clock-domain-crossing primitive
type Crossing struct {
	Kind     CrossingKind
	Name     string
	Sources  []Source
	Target   string
	ToDomain string
	Stages   int
}

// Assign is a combinational connection. Targets are same-domain nets or pads.
type Assign struct {
	Target string
	Source string
	Invert bool
}

// PeriodConstraint registers a clock period on a top-level input
type PeriodConstraint struct {
	Net      string
	PeriodNS float64
}

// Netlist is the immutable result of Module.Finalize
type Netlist struct {
	Name        string
	Domains     []DomainInfo
	Nets        []Net
	Instances   []Instance
	Assigns     []Assign
	Crossings   []Crossing
	Constraints []PeriodConstraint
}

// Instance looks up an instance by name
func (n *Netlist) Instance(name string) (Instance, bool) {
	for _, inst := range n.Instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return Instance{}, false
}

// Net looks up a net by name
func (n *Netlist) Net(name string) (Net, bool) {
	for _, net := range n.Nets {
		if net.Name == name {
			return net, true
		}
	}
	return Net{}, false
}

// Domain looks up a domain by name
func (n *Netlist) Domain(name string) (DomainInfo, bool) {
	for _, d := range n.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainInfo{}, false
}

// Drivers returns a description of every driver of each net, keyed by net name
func (n *Netlist) Drivers() map[string][]string {
	drivers := make(map[string][]string)
	for _, net := range n.Nets {
		if net.Top && net.TopDir == In {
			drivers[net.Name] = append(drivers[net.Name], "port "+net.Name)
		}
	}
	for _, inst := range n.Instances {
		for _, b := range inst.Bindings {
			if b.Dir == Out && b.Net != "" {
				drivers[b.Net] = append(drivers[b.Net], inst.Name+"."+b.Port)
			}
		}
	}
	for _, a := range n.Assigns {
		drivers[a.Target] = append(drivers[a.Target], "assign "+a.Source)
	}
	for _, c := range n.Crossings {
		drivers[c.Target] = append(drivers[c.Target], string(c.Kind)+" "+c.Name)
	}
	return drivers
}

// Module accumulates nets, instances and crossings until Finalize
type Module struct {
	name        string
	nets        map[string]*Net
	netOrder    []*Net
	domains     []*DomainInfo
	instances   []*Instance
	assigns     []Assign
	crossings   []Crossing
	constraints []PeriodConstraint
	finalized   bool
}

// NewModule creates an empty module
func NewModule(name string) *Module {
	return &Module{
		name: name,
		nets: make(map[string]*Net),
	}
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

func (m *Module) mustBeOpen() {
	if m.finalized {
		panic(fmt.Sprintf("hdl: module %s already finalized", m.name))
	}
}

// newNet allocates a net, suffixing the name when it is already taken.
func (m *Module) newNet(name string, width int, domain string) *Net {
	m.mustBeOpen()
	if width <= 0 {
		panic(fmt.Sprintf("hdl: net %s has width %d", name, width))
	}
	unique := name
	for i := 1; m.nets[unique] != nil; i++ {
		unique = fmt.Sprintf("%s_%d", name, i)
	}
	n := &Net{Name: unique, Width: width, Domain: domain}
	m.nets[unique] = n
	m.netOrder = append(m.netOrder, n)
	return n
}

// Instantiate adds a black-box instance
func (m *Module) Instantiate(name, module string, kind InstanceKind) *Instance {
	m.mustBeOpen()
	inst := &Instance{Name: name, Module: module, Kind: kind}
	m.instances = append(m.instances, inst)
	return inst
}

// SetParam appends a parameter to the instance
func (i *Instance) SetParam(name, value string) *Instance {
	i.Params = append(i.Params, Param{Name: name, Value: value})
	return i
}

// Tie drives an input port with a constant
func (i *Instance) Tie(port, value string) *Instance {
	i.Bindings = append(i.Bindings, Binding{Port: port, Dir: In, Const: value})
	return i
}

// Leave marks an output port as unconnected
func (i *Instance) Leave(port string) *Instance {
	i.Bindings = append(i.Bindings, Binding{Port: port, Dir: Out, Open: true})
	return i
}

// Finalize checks the module and freezes it into a Netlist. A port bound to a
// net of another domain, a net with several drivers and a domain without a
// clock or reset source are rejected with ErrTopology.
func (m *Module) Finalize() (*Netlist, error) {
	m.mustBeOpen()

	nl := &Netlist{Name: m.name}
	for _, d := range m.domains {
		nl.Domains = append(nl.Domains, *d)
	}
	for _, n := range m.netOrder {
		nl.Nets = append(nl.Nets, *n)
	}
	for _, inst := range m.instances {
		cp := *inst
		cp.Params = append([]Param(nil), inst.Params...)
		cp.Bindings = append([]Binding(nil), inst.Bindings...)
		nl.Instances = append(nl.Instances, cp)
	}
	nl.Assigns = append(nl.Assigns, m.assigns...)
	for _, c := range m.crossings {
		cp := c
		cp.Sources = append([]Source(nil), c.Sources...)
		nl.Crossings = append(nl.Crossings, cp)
	}
	nl.Constraints = append(nl.Constraints, m.constraints...)

	var problems []string
	netDomain := make(map[string]string, len(nl.Nets))
	for _, n := range nl.Nets {
		netDomain[n.Name] = n.Domain
	}
	for _, inst := range nl.Instances {
		for _, b := range inst.Bindings {
			if b.Net == "" || b.Domain == "" {
				continue
			}
			if d := netDomain[b.Net]; d != "" && d != b.Domain {
				problems = append(problems, fmt.Sprintf("%s.%s of domain %s is bound to net %s of domain %s", inst.Name, b.Port, b.Domain, b.Net, d))
			}
		}
	}
	drivers := nl.Drivers()
	for _, n := range nl.Nets {
		if len(drivers[n.Name]) > 1 {
			problems = append(problems, fmt.Sprintf("net %s has %d drivers (%s)", n.Name, len(drivers[n.Name]), strings.Join(drivers[n.Name], ", ")))
		}
		if n.Top && n.TopDir == Out && len(drivers[n.Name]) == 0 {
			problems = append(problems, fmt.Sprintf("output %s is not driven", n.Name))
		}
	}
	for _, d := range nl.Domains {
		if len(drivers[d.Clock]) == 0 {
			problems = append(problems, fmt.Sprintf("domain %s clock has no source", d.Name))
		}
		if len(drivers[d.Reset]) == 0 {
			problems = append(problems, fmt.Sprintf("domain %s reset has no source", d.Name))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w: %s: %s", ErrTopology, m.name, strings.Join(problems, "; "))
	}

	m.finalized = true
	return nl, nil
}
