// Package verilog renders a finalized netlist as a structural Verilog wrapper.
// Black boxes become module instances, crossing primitives become ASYNC_REG
// flip-flop chains.
package verilog

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
)

const header = "// Generated by s7pcie-gen. Do not edit.\n"

// Emit returns the Verilog source of nl
func Emit(nl *hdl.Netlist) (string, error) {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("`default_nettype none\n\n")

	var ports []hdl.Net
	for _, n := range nl.Nets {
		if n.Top {
			ports = append(ports, n)
		}
	}
	fmt.Fprintf(&b, "module %s (\n", nl.Name)
	for i, p := range ports {
		dir := "input "
		if p.TopDir == hdl.Out {
			dir = "output"
		}
		sep := ","
		if i == len(ports)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %s wire %s%s%s\n", dir, vector(p.Width), p.Name, sep)
	}
	b.WriteString(");\n\n")

	drivers := nl.Drivers()
	var undriven []hdl.Net
	for _, n := range nl.Nets {
		if n.Top {
			continue
		}
		fmt.Fprintf(&b, "wire %s%s;\n", vector(n.Width), n.Name)
		if len(drivers[n.Name]) == 0 {
			undriven = append(undriven, n)
		}
	}
	if len(undriven) > 0 {
		b.WriteString("\n// not driven by any instance\n")
		for _, n := range undriven {
			fmt.Fprintf(&b, "assign %s = %s;\n", n.Name, zero(n.Width))
		}
	}

	for _, inst := range nl.Instances {
		b.WriteString("\n")
		writeInstance(&b, inst)
	}

	for _, c := range nl.Crossings {
		b.WriteString("\n")
		if err := writeCrossing(&b, nl, c); err != nil {
			return "", err
		}
	}

	if len(nl.Assigns) > 0 {
		b.WriteString("\n")
		for _, a := range nl.Assigns {
			fmt.Fprintf(&b, "assign %s = %s;\n", a.Target, ref(a.Source, a.Invert))
		}
	}

	b.WriteString("\nendmodule\n\n`default_nettype wire\n")
	return b.String(), nil
}

func vector(width int) string {
	if width == 1 {
		return ""
	}
	return fmt.Sprintf("[%d:0] ", width-1)
}

func zero(width int) string {
	if width == 1 {
		return "1'b0"
	}
	return fmt.Sprintf("{%d{1'b0}}", width)
}

func ref(net string, invert bool) string {
	if invert {
		return "~" + net
	}
	return net
}

func writeInstance(b *strings.Builder, inst hdl.Instance) {
	b.WriteString(inst.Module)
	if len(inst.Params) > 0 {
		b.WriteString(" #(\n")
		for i, p := range inst.Params {
			sep := ","
			if i == len(inst.Params)-1 {
				sep = ""
			}
			fmt.Fprintf(b, "    .%s(%s)%s\n", p.Name, p.Value, sep)
		}
		b.WriteString(")")
	}
	fmt.Fprintf(b, " %s (\n", inst.Name)
	for i, bd := range inst.Bindings {
		var conn string
		switch {
		case bd.Open:
			conn = ""
		case bd.Net == "":
			conn = bd.Const
		default:
			conn = ref(bd.Net, bd.Invert)
		}
		sep := ","
		if i == len(inst.Bindings)-1 {
			sep = ""
		}
		fmt.Fprintf(b, "    .%s(%s)%s\n", bd.Port, conn, sep)
	}
	b.WriteString(");\n")
}

func writeCrossing(b *strings.Builder, nl *hdl.Netlist, c hdl.Crossing) error {
	dom, ok := nl.Domain(c.ToDomain)
	if !ok {
		return fmt.Errorf("%w: crossing %s targets undeclared domain %s", hdl.ErrTopology, c.Name, c.ToDomain)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: crossing %s has no source", hdl.ErrTopology, c.Name)
	}
	ff := c.Name + "_ff"
	n := c.Stages

	switch c.Kind {
	case hdl.CrossResync:
		fmt.Fprintf(b, "// %s: %d-stage synchronizer into %s\n", c.Name, n, dom.Name)
		fmt.Fprintf(b, "(* ASYNC_REG = \"TRUE\" *) reg [%d:0] %s = %d'b0;\n", n-1, ff, n)
		fmt.Fprintf(b, "always @(posedge %s) %s <= {%s[%d:0], %s};\n", dom.Clock, ff, ff, n-2, c.Sources[0].Net)
		fmt.Fprintf(b, "assign %s = %s[%d];\n", c.Target, ff, n-1)

	case hdl.CrossResetSync:
		cause := c.Name + "_cause"
		terms := make([]string, len(c.Sources))
		for i, s := range c.Sources {
			terms[i] = ref(s.Net, s.ActiveLow)
		}
		fmt.Fprintf(b, "// %s: asynchronous assert, %d-stage synchronous release\n", c.Name, n)
		fmt.Fprintf(b, "wire %s = %s;\n", cause, strings.Join(terms, " | "))
		fmt.Fprintf(b, "(* ASYNC_REG = \"TRUE\" *) reg [%d:0] %s = {%d{1'b1}};\n", n-1, ff, n)
		fmt.Fprintf(b, "always @(posedge %s or posedge %s)\n", dom.Clock, cause)
		fmt.Fprintf(b, "    if (%s) %s <= {%d{1'b1}};\n", cause, ff, n)
		fmt.Fprintf(b, "    else %s <= {%s[%d:0], 1'b0};\n", ff, ff, n-2)
		fmt.Fprintf(b, "assign %s = %s[%d];\n", c.Target, ff, n-1)

	case hdl.CrossResetShare:
		fmt.Fprintf(b, "// %s\n", c.Name)
		fmt.Fprintf(b, "assign %s = %s;\n", c.Target, c.Sources[0].Net)

	default:
		return fmt.Errorf("%w: crossing %s has unknown kind %q", hdl.ErrTopology, c.Name, c.Kind)
	}
	return nil
}
