package hdl

// PortGroup binds ports of one instance that live in clock domain D
type PortGroup[D any] struct {
	inst   *Instance
	domain string
}

// Ports returns the group of inst's ports clocked by dom
func Ports[D any](inst *Instance, dom *Domain[D]) PortGroup[D] {
	return PortGroup[D]{inst: inst, domain: dom.Name()}
}

// Pads returns the group of inst's unclocked ports (serial lanes, reference clock)
func Pads(inst *Instance) PortGroup[Async] {
	return PortGroup[Async]{inst: inst}
}

// Instance returns the instance the group binds into
func (g PortGroup[D]) Instance() *Instance {
	return g.inst
}

// Domain returns the domain name of the group ("" for pads)
func (g PortGroup[D]) Domain() string {
	return g.domain
}

// In binds an input port to s
func (g PortGroup[D]) In(port string, s Sig[D]) PortGroup[D] {
	return g.bind(port, In, s, false)
}

// InN binds an input port to the inverse of s (active-low resets)
func (g PortGroup[D]) InN(port string, s Sig[D]) PortGroup[D] {
	return g.bind(port, In, s, true)
}

// Out binds an output port to s; the instance becomes a driver of s
func (g PortGroup[D]) Out(port string, s Sig[D]) PortGroup[D] {
	return g.bind(port, Out, s, false)
}

func (g PortGroup[D]) bind(port string, dir Direction, s Sig[D], invert bool) PortGroup[D] {
	if !s.Valid() {
		return g
	}
	g.inst.Bindings = append(g.inst.Bindings, Binding{
		Port:   port,
		Dir:    dir,
		Net:    s.Name(),
		Domain: g.domain,
		Invert: invert,
	})
	return g
}
