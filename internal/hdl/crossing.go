package hdl

import "fmt"

// MinSyncStages is the smallest synchronizer chain accepted by the crossing
// primitives.
const MinSyncStages = 2

// Resync carries a single-bit level from one domain into another through a
// chain of flip-flops clocked by dst. It is the only way to turn a Sig[From]
// into a Sig[To].
func Resync[From, To any](m *Module, src Sig[From], dst *Domain[To], name string, stages int) (Sig[To], error) {
	m.mustBeOpen()
	if stages < MinSyncStages {
		return Sig[To]{}, fmt.Errorf("%w: resync of %s needs at least %d stages, got %d", ErrTopology, src.Name(), MinSyncStages, stages)
	}
	if src.Width() != 1 {
		return Sig[To]{}, fmt.Errorf("%w: resync of %s: only single-bit levels can be resynchronized, width is %d", ErrTopology, src.Name(), src.Width())
	}
	out := m.newNet(name, 1, dst.Name())
	m.crossings = append(m.crossings, Crossing{
		Kind:     CrossResync,
		Name:     name + "_resync",
		Sources:  []Source{{Net: src.Name(), Domain: src.net.Domain}},
		Target:   out.Name,
		ToDomain: dst.Name(),
		Stages:   stages,
	})
	return Sig[To]{out}, nil
}

// Cause is one hazard feeding a reset synchronizer. Causes are asynchronous
// by definition, so any domain may contribute one.
type Cause struct {
	net       *Net
	activeLow bool
}

// Asserted makes s (active high) a reset cause
func Asserted[D any](s Sig[D]) Cause {
	return Cause{net: s.net}
}

// Deasserted makes the absence of s (active low, e.g. PLL lock or power
// good) a reset cause
func Deasserted[D any](s Sig[D]) Cause {
	return Cause{net: s.net, activeLow: true}
}

// AsyncResetSync drives dom's reset from the OR of causes. The reset asserts
// immediately and releases after stages clean edges of dom's clock.
func AsyncResetSync[D any](m *Module, dom *Domain[D], stages int, causes ...Cause) error {
	m.mustBeOpen()
	if stages < MinSyncStages {
		return fmt.Errorf("%w: reset synchronizer for %s needs at least %d stages, got %d", ErrTopology, dom.Name(), MinSyncStages, stages)
	}
	if len(causes) == 0 {
		return fmt.Errorf("%w: reset synchronizer for %s has no cause", ErrTopology, dom.Name())
	}
	sources := make([]Source, 0, len(causes))
	for _, c := range causes {
		if c.net == nil {
			return fmt.Errorf("%w: reset synchronizer for %s has an unconnected cause", ErrTopology, dom.Name())
		}
		sources = append(sources, Source{Net: c.net.Name, Domain: c.net.Domain, ActiveLow: c.activeLow})
	}
	m.crossings = append(m.crossings, Crossing{
		Kind:     CrossResetSync,
		Name:     dom.Name() + "_reset_sync",
		Sources:  sources,
		Target:   dom.Reset().Name(),
		ToDomain: dom.Name(),
		Stages:   stages,
	})
	return nil
}

// ShareReset ties to's reset to from's reset. The domains share a reset
// source but not a clock.
func ShareReset[To, From any](m *Module, to *Domain[To], from *Domain[From]) {
	m.mustBeOpen()
	m.crossings = append(m.crossings, Crossing{
		Kind:     CrossResetShare,
		Name:     to.Name() + "_reset_share",
		Sources:  []Source{{Net: from.Reset().Name(), Domain: from.Name()}},
		Target:   to.Reset().Name(),
		ToDomain: to.Name(),
	})
}
