package axi

import (
	"fmt"

	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
)

// Role of an endpoint on an AXI port
type Role int

const (
	// Slave receives requests (AW, W, AR) and produces responses (B, R)
	Slave Role = iota
	// Master produces requests and receives responses
	Master
)

// AddrChannel is the AW or AR channel
type AddrChannel[D any] struct {
	ID, Addr, Len, Size, Burst, Lock, Cache, Prot, Region, QoS, Valid, Ready hdl.Sig[D]
}

// WriteChannel is the W channel
type WriteChannel[D any] struct {
	Data, Strb, Last, Valid, Ready hdl.Sig[D]
}

// RespChannel is the B channel
type RespChannel[D any] struct {
	ID, Resp, Valid, Ready hdl.Sig[D]
}

// ReadChannel is the R channel
type ReadChannel[D any] struct {
	ID, Data, Resp, Last, Valid, Ready hdl.Sig[D]
}

// Interface is a five-channel AXI bundle owned by clock domain D
type Interface[D any] struct {
	Name   string
	Params Params
	AW     AddrChannel[D]
	W      WriteChannel[D]
	B      RespChannel[D]
	AR     AddrChannel[D]
	R      ReadChannel[D]
}

type fieldDef struct {
	channel    string
	name       string
	fromMaster bool
	fullOnly   bool
	width      func(Params) int
}

func fixed(n int) func(Params) int { return func(Params) int { return n } }
func idWidth(p Params) int         { return p.IDWidth }
func addrWidth(p Params) int       { return p.AddrWidth }
func dataWidth(p Params) int       { return p.DataWidth }
func strbWidth(p Params) int       { return p.DataWidth / 8 }

func addrFields(ch string) []fieldDef {
	return []fieldDef{
		{ch, "id", true, true, idWidth},
		{ch, "addr", true, false, addrWidth},
		{ch, "len", true, true, fixed(8)},
		{ch, "size", true, true, fixed(3)},
		{ch, "burst", true, true, fixed(2)},
		{ch, "lock", true, true, fixed(1)},
		{ch, "cache", true, true, fixed(4)},
		{ch, "prot", true, false, fixed(3)},
		{ch, "region", true, true, fixed(4)},
		{ch, "qos", true, true, fixed(4)},
		{ch, "valid", true, false, fixed(1)},
		{ch, "ready", false, false, fixed(1)},
	}
}

// fields lists every AXI signal in port order
var fields = func() []fieldDef {
	var out []fieldDef
	out = append(out, addrFields("aw")...)
	out = append(out,
		fieldDef{"w", "data", true, false, dataWidth},
		fieldDef{"w", "strb", true, false, strbWidth},
		fieldDef{"w", "last", true, true, fixed(1)},
		fieldDef{"w", "valid", true, false, fixed(1)},
		fieldDef{"w", "ready", false, false, fixed(1)},
		fieldDef{"b", "id", false, true, idWidth},
		fieldDef{"b", "resp", false, false, fixed(2)},
		fieldDef{"b", "valid", false, false, fixed(1)},
		fieldDef{"b", "ready", true, false, fixed(1)},
	)
	out = append(out, addrFields("ar")...)
	out = append(out,
		fieldDef{"r", "id", false, true, idWidth},
		fieldDef{"r", "data", false, false, dataWidth},
		fieldDef{"r", "resp", false, false, fixed(2)},
		fieldDef{"r", "last", false, true, fixed(1)},
		fieldDef{"r", "valid", false, false, fixed(1)},
		fieldDef{"r", "ready", true, false, fixed(1)},
	)
	return out
}()

func (f fieldDef) carried(p Params) bool {
	if f.fullOnly && p.Protocol != AXI4 {
		return false
	}
	return f.width(p) > 0
}

func (i *Interface[D]) sig(channel, name string) *hdl.Sig[D] {
	var a *AddrChannel[D]
	switch channel {
	case "aw":
		a = &i.AW
	case "ar":
		a = &i.AR
	case "w":
		switch name {
		case "data":
			return &i.W.Data
		case "strb":
			return &i.W.Strb
		case "last":
			return &i.W.Last
		case "valid":
			return &i.W.Valid
		case "ready":
			return &i.W.Ready
		}
		return nil
	case "b":
		switch name {
		case "id":
			return &i.B.ID
		case "resp":
			return &i.B.Resp
		case "valid":
			return &i.B.Valid
		case "ready":
			return &i.B.Ready
		}
		return nil
	case "r":
		switch name {
		case "id":
			return &i.R.ID
		case "data":
			return &i.R.Data
		case "resp":
			return &i.R.Resp
		case "last":
			return &i.R.Last
		case "valid":
			return &i.R.Valid
		case "ready":
			return &i.R.Ready
		}
		return nil
	default:
		return nil
	}
	switch name {
	case "id":
		return &a.ID
	case "addr":
		return &a.Addr
	case "len":
		return &a.Len
	case "size":
		return &a.Size
	case "burst":
		return &a.Burst
	case "lock":
		return &a.Lock
	case "cache":
		return &a.Cache
	case "prot":
		return &a.Prot
	case "region":
		return &a.Region
	case "qos":
		return &a.QoS
	case "valid":
		return &a.Valid
	case "ready":
		return &a.Ready
	}
	return nil
}

func build[D any](name string, p Params, mk func(net string, width int, fromMaster bool) hdl.Sig[D]) (*Interface[D], error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}
	iface := &Interface[D]{Name: name, Params: p}
	for _, f := range fields {
		if !f.carried(p) {
			continue
		}
		*iface.sig(f.channel, f.name) = mk(name+"_"+f.channel+f.name, f.width(p), f.fromMaster)
	}
	return iface, nil
}

// NewInterface creates an interface made of internal nets in dom
func NewInterface[D any](m *hdl.Module, dom *hdl.Domain[D], name string, p Params) (*Interface[D], error) {
	return build(name, p, func(net string, width int, _ bool) hdl.Sig[D] {
		return hdl.Wire(m, dom, net, width)
	})
}

// NewPort creates an interface made of top-level ports in dom. role is the
// role of the module itself: a Slave port takes request signals as inputs.
func NewPort[D any](m *hdl.Module, dom *hdl.Domain[D], name string, p Params, role Role) (*Interface[D], error) {
	return build(name, p, func(net string, width int, fromMaster bool) hdl.Sig[D] {
		if fromMaster == (role == Slave) {
			return hdl.Input(m, dom, net, width)
		}
		return hdl.Output(m, dom, net, width)
	})
}

// PortSpec describes how a black box names the signals of one AXI port
type PortSpec struct {
	// Prefix is prepended to channel+field, e.g. "s_axi_" gives s_axi_awaddr
	Prefix string
	// Role of the black box on this port
	Role Role
	// Omit lists channel+field names the black box does not have, e.g. "awqos"
	Omit []string
}

func (s PortSpec) omits(name string) bool {
	for _, o := range s.Omit {
		if o == name {
			return true
		}
	}
	return false
}

// Attach binds every field iface carries to the matching port of the black
// box behind g
func Attach[D any](g hdl.PortGroup[D], spec PortSpec, iface *Interface[D]) {
	for _, f := range fields {
		s := iface.sig(f.channel, f.name)
		if s == nil || !s.Valid() || spec.omits(f.channel+f.name) {
			continue
		}
		port := spec.Prefix + f.channel + f.name
		if f.fromMaster == (spec.Role == Slave) {
			g.In(port, *s)
		} else {
			g.Out(port, *s)
		}
	}
}

// PortNames lists the port names Attach would bind, in order
func PortNames(spec PortSpec, p Params) []string {
	var names []string
	for _, f := range fields {
		if !f.carried(p) || spec.omits(f.channel+f.name) {
			continue
		}
		names = append(names, spec.Prefix+f.channel+f.name)
	}
	return names
}
