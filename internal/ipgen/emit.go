package ipgen

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// Setting is one resolved option of an IP instance
type Setting struct {
	Option string `json:"option"`
	Value  string `json:"value"`
}

// Spec is one fully resolved IP instance
type Spec struct {
	Template   string    `json:"template"`
	IPType     string    `json:"ip_type"`
	ModuleName string    `json:"module_name"`
	Options    []Setting `json:"options"`
}

// Option returns the value of a resolved option
func (s Spec) Option(name string) (string, bool) {
	for _, o := range s.Options {
		if o.Option == name {
			return o.Value, true
		}
	}
	return "", false
}

// Specs resolves every template against res, in dependency order
func (r *Registry) Specs(res region.Resolved) ([]Spec, error) {
	ordered, err := r.Ordered()
	if err != nil {
		return nil, err
	}
	specs := make([]Spec, 0, len(ordered))
	for _, t := range ordered {
		s := Spec{Template: t.Name, IPType: t.IPType, ModuleName: t.ModuleName()}
		for _, o := range t.Options {
			v := o.Value(res)
			if v == "" {
				return nil, fmt.Errorf("template %s: option %s resolved to an empty value", t.Name, o.Name)
			}
			s.Options = append(s.Options, Setting{Option: o.Name, Value: v})
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// CommandKind is one step of the per-instance IP flow
type CommandKind string

const (
	CmdCreate     CommandKind = "create"
	CmdConfigure  CommandKind = "configure"
	CmdGenerate   CommandKind = "generate"
	CmdSynthesize CommandKind = "synthesize"
)

// Command is one tool command for one instance, already rendered to Tcl
type Command struct {
	Kind   CommandKind
	Module string
	Lines  []string
}

// Emit turns specs into create, configure, generate, synthesize commands,
// once per instance and in the order given
func Emit(specs []Spec) []Command {
	var cmds []Command
	for _, s := range specs {
		create := []string{
			fmt.Sprintf("create_ip -vendor xilinx.com -name %s -module_name %s", s.IPType, s.ModuleName),
			fmt.Sprintf("set obj [get_ips %s]", s.ModuleName),
		}
		configure := []string{"set_property -dict [list \\"}
		for _, o := range s.Options {
			configure = append(configure, fmt.Sprintf("CONFIG.%s {{%s}} \\", o.Option, o.Value))
		}
		configure = append(configure, "] $obj")
		cmds = append(cmds,
			Command{Kind: CmdCreate, Module: s.ModuleName, Lines: create},
			Command{Kind: CmdConfigure, Module: s.ModuleName, Lines: configure},
			Command{Kind: CmdGenerate, Module: s.ModuleName, Lines: []string{"generate_target all $obj"}},
			Command{Kind: CmdSynthesize, Module: s.ModuleName, Lines: []string{"synth_ip $obj", ""}},
		)
	}
	return cmds
}

// Render flattens commands into Tcl lines
func Render(cmds []Command) []string {
	var lines []string
	for _, c := range cmds {
		lines = append(lines, c.Lines...)
	}
	return lines
}

// Tcl renders specs as one script
func Tcl(specs []Spec) string {
	return strings.Join(Render(Emit(specs)), "\n") + "\n"
}
