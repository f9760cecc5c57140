package facts

import (
	"sort"

	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
	"github.com/robert-at-pretension-io/s7pciehost/internal/ipgen"
)

// Tables is the relational fact model of a finalized netlist.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Domains         []DomainRow         `json:"domains"`
	Nets            []NetRow            `json:"nets"`
	Instances       []InstanceRow       `json:"instances"`
	Params          []ParamRow          `json:"params"`
	Bindings        []BindingRow        `json:"bindings"`
	Drivers         []DriverRow         `json:"drivers"`
	Assigns         []AssignRow         `json:"assigns"`
	Crossings       []CrossingRow       `json:"crossings"`
	CrossingSources []CrossingSourceRow `json:"crossing_sources"`
	Constraints     []ConstraintRow     `json:"constraints"`
	IPInstances     []IPInstanceRow     `json:"ip_instances"`
	IPOptions       []IPOptionRow       `json:"ip_options"`
}

type DomainRow struct {
	Name     string `json:"name"`
	Clock    string `json:"clock"`
	Reset    string `json:"reset"`
	External bool   `json:"external"`
}

type NetRow struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Domain    string `json:"domain"`
	Top       bool   `json:"top"`
	Direction string `json:"direction"`
}

type InstanceRow struct {
	Name   string `json:"name"`
	Module string `json:"module"`
	Kind   string `json:"kind"`
}

type ParamRow struct {
	Instance string `json:"instance"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// BindingRow is one instance port. PortDomain is the domain of the port
// group the binding was made through; NetDomain is the domain owning the net.
type BindingRow struct {
	Instance   string `json:"instance"`
	Port       string `json:"port"`
	Direction  string `json:"direction"`
	Net        string `json:"net"`
	PortDomain string `json:"port_domain"`
	NetDomain  string `json:"net_domain"`
	Inverted   bool   `json:"inverted"`
	Constant   string `json:"constant"`
	Open       bool   `json:"open"`
}

type DriverRow struct {
	Net    string `json:"net"`
	Driver string `json:"driver"`
}

type AssignRow struct {
	Target       string `json:"target"`
	Source       string `json:"source"`
	TargetDomain string `json:"target_domain"`
	SourceDomain string `json:"source_domain"`
	Inverted     bool   `json:"inverted"`
}

type CrossingRow struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	ToDomain string `json:"to_domain"`
	Stages   int    `json:"stages"`
}

type CrossingSourceRow struct {
	Crossing  string `json:"crossing"`
	Net       string `json:"net"`
	Domain    string `json:"domain"`
	ActiveLow bool   `json:"active_low"`
}

type ConstraintRow struct {
	Net      string  `json:"net"`
	PeriodNS float64 `json:"period_ns"`
}

type IPInstanceRow struct {
	Module   string `json:"module"`
	Template string `json:"template"`
	IPType   string `json:"ip_type"`
	Order    int    `json:"order"`
}

type IPOptionRow struct {
	Module string `json:"module"`
	Option string `json:"option"`
	Value  string `json:"value"`
}

func emptyTables() Tables {
	return Tables{
		Domains:         []DomainRow{},
		Nets:            []NetRow{},
		Instances:       []InstanceRow{},
		Params:          []ParamRow{},
		Bindings:        []BindingRow{},
		Drivers:         []DriverRow{},
		Assigns:         []AssignRow{},
		Crossings:       []CrossingRow{},
		CrossingSources: []CrossingSourceRow{},
		Constraints:     []ConstraintRow{},
		IPInstances:     []IPInstanceRow{},
		IPOptions:       []IPOptionRow{},
	}
}

// FromNetlist converts a finalized netlist and its IP specs into the
// relational model.
func FromNetlist(nl *hdl.Netlist, specs []ipgen.Spec) Tables {
	tables := emptyTables()

	netDomain := make(map[string]string, len(nl.Nets))
	for _, n := range nl.Nets {
		netDomain[n.Name] = n.Domain
		dir := ""
		if n.Top {
			dir = n.TopDir.String()
		}
		tables.Nets = append(tables.Nets, NetRow{
			Name:      n.Name,
			Width:     n.Width,
			Domain:    n.Domain,
			Top:       n.Top,
			Direction: dir,
		})
	}

	for _, d := range nl.Domains {
		tables.Domains = append(tables.Domains, DomainRow{
			Name:     d.Name,
			Clock:    d.Clock,
			Reset:    d.Reset,
			External: d.External,
		})
	}

	for _, inst := range nl.Instances {
		tables.Instances = append(tables.Instances, InstanceRow{
			Name:   inst.Name,
			Module: inst.Module,
			Kind:   string(inst.Kind),
		})
		for _, p := range inst.Params {
			tables.Params = append(tables.Params, ParamRow{
				Instance: inst.Name,
				Name:     p.Name,
				Value:    p.Value,
			})
		}
		for _, b := range inst.Bindings {
			tables.Bindings = append(tables.Bindings, BindingRow{
				Instance:   inst.Name,
				Port:       b.Port,
				Direction:  b.Dir.String(),
				Net:        b.Net,
				PortDomain: b.Domain,
				NetDomain:  netDomain[b.Net],
				Inverted:   b.Invert,
				Constant:   b.Const,
				Open:       b.Open,
			})
		}
	}

	for net, drivers := range nl.Drivers() {
		for _, d := range drivers {
			tables.Drivers = append(tables.Drivers, DriverRow{Net: net, Driver: d})
		}
	}
	sort.Slice(tables.Drivers, func(i, j int) bool {
		if tables.Drivers[i].Net != tables.Drivers[j].Net {
			return tables.Drivers[i].Net < tables.Drivers[j].Net
		}
		return tables.Drivers[i].Driver < tables.Drivers[j].Driver
	})

	for _, a := range nl.Assigns {
		tables.Assigns = append(tables.Assigns, AssignRow{
			Target:       a.Target,
			Source:       a.Source,
			TargetDomain: netDomain[a.Target],
			SourceDomain: netDomain[a.Source],
			Inverted:     a.Invert,
		})
	}

	for _, c := range nl.Crossings {
		tables.Crossings = append(tables.Crossings, CrossingRow{
			Name:     c.Name,
			Kind:     string(c.Kind),
			Target:   c.Target,
			ToDomain: c.ToDomain,
			Stages:   c.Stages,
		})
		for _, s := range c.Sources {
			tables.CrossingSources = append(tables.CrossingSources, CrossingSourceRow{
				Crossing:  c.Name,
				Net:       s.Net,
				Domain:    s.Domain,
				ActiveLow: s.ActiveLow,
			})
		}
	}

	for _, c := range nl.Constraints {
		tables.Constraints = append(tables.Constraints, ConstraintRow{Net: c.Net, PeriodNS: c.PeriodNS})
	}

	for i, s := range specs {
		tables.IPInstances = append(tables.IPInstances, IPInstanceRow{
			Module:   s.ModuleName,
			Template: s.Template,
			IPType:   s.IPType,
			Order:    i,
		})
		for _, o := range s.Options {
			tables.IPOptions = append(tables.IPOptions, IPOptionRow{
				Module: s.ModuleName,
				Option: o.Option,
				Value:  o.Value,
			})
		}
	}

	return tables
}

// Counts returns the number of rows per relation
func (t Tables) Counts() map[string]int {
	return map[string]int{
		"domains":          len(t.Domains),
		"nets":             len(t.Nets),
		"instances":        len(t.Instances),
		"params":           len(t.Params),
		"bindings":         len(t.Bindings),
		"drivers":          len(t.Drivers),
		"assigns":          len(t.Assigns),
		"crossings":        len(t.Crossings),
		"crossing_sources": len(t.CrossingSources),
		"constraints":      len(t.Constraints),
		"ip_instances":     len(t.IPInstances),
		"ip_options":       len(t.IPOptions),
	}
}
