// Package platform is the build-tool sink the host bridge registers its
// timing constraints and pre-synthesis commands with.
package platform

import (
	"fmt"
	"strings"
)

// Platform collects what the build tool needs besides the netlist
type Platform interface {
	// AddPeriodConstraint registers a clock on a top-level pin
	AddPeriodConstraint(pin string, periodNS float64)
	// AddPreSynthesisCommands appends commands to run before synthesis
	AddPreSynthesisCommands(lines ...string)
}

// PeriodConstraint is one registered clock
type PeriodConstraint struct {
	Pin      string  `json:"pin"`
	PeriodNS float64 `json:"period_ns"`
}

// Vivado renders constraints as XDC and commands as a Tcl script
type Vivado struct {
	Part        string
	constraints []PeriodConstraint
	preSynth    []string
}

// NewVivado returns an empty sink for part
func NewVivado(part string) *Vivado {
	return &Vivado{Part: part}
}

func (v *Vivado) AddPeriodConstraint(pin string, periodNS float64) {
	for i, c := range v.constraints {
		if c.Pin == pin {
			v.constraints[i].PeriodNS = periodNS
			return
		}
	}
	v.constraints = append(v.constraints, PeriodConstraint{Pin: pin, PeriodNS: periodNS})
}

func (v *Vivado) AddPreSynthesisCommands(lines ...string) {
	v.preSynth = append(v.preSynth, lines...)
}

// Constraints returns the registered clocks in registration order
func (v *Vivado) Constraints() []PeriodConstraint {
	return append([]PeriodConstraint(nil), v.constraints...)
}

// PreSynthesisCommands returns the collected commands
func (v *Vivado) PreSynthesisCommands() []string {
	return append([]string(nil), v.preSynth...)
}

// XDC renders the period constraints
func (v *Vivado) XDC() string {
	var b strings.Builder
	for _, c := range v.constraints {
		fmt.Fprintf(&b, "create_clock -period %.3f -name %s [get_ports %s]\n", c.PeriodNS, c.Pin, c.Pin)
	}
	return b.String()
}

// Tcl renders the pre-synthesis script. A part, when set, opens an in-memory
// project first so the script runs standalone in batch mode.
func (v *Vivado) Tcl() string {
	var b strings.Builder
	if v.Part != "" {
		fmt.Fprintf(&b, "create_project -in_memory -part %s\n\n", v.Part)
	}
	for _, l := range v.preSynth {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
