package axi

import (
	"errors"
	"fmt"

	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

// Bridge is the behavioral model of an AXI clock converter: five independent
// asynchronous FIFOs, requests flowing from the master clock to the slave
// clock and responses flowing back.
type Bridge struct {
	name   string
	params BridgeParams
	aw     *asyncFIFO[AddrBeat]
	w      *asyncFIFO[WriteBeat]
	b      *asyncFIFO[RespBeat]
	ar     *asyncFIFO[AddrBeat]
	r      *asyncFIFO[ReadBeat]
}

// MasterPort is the side of the bridge facing the upstream master
type MasterPort struct {
	AW Sender[AddrBeat]
	W  Sender[WriteBeat]
	B  Receiver[RespBeat]
	AR Sender[AddrBeat]
	R  Receiver[ReadBeat]
}

// SlavePort is the side of the bridge facing the downstream slave
type SlavePort struct {
	AW Receiver[AddrBeat]
	W  Receiver[WriteBeat]
	B  Sender[RespBeat]
	AR Receiver[AddrBeat]
	R  Sender[ReadBeat]
}

// NewBridge builds a bridge whose upstream side runs on masterClk and whose
// downstream side runs on slaveClk
func NewBridge(e *sim.Engine, name string, masterClk, slaveClk *sim.Clock, p BridgeParams) (*Bridge, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("bridge %s: %w", name, err)
	}
	return &Bridge{
		name:   name,
		params: p,
		aw:     newAsyncFIFO(e, name+".aw", masterClk, slaveClk, p, p.CheckAddr),
		w:      newAsyncFIFO(e, name+".w", masterClk, slaveClk, p, p.CheckWrite),
		b:      newAsyncFIFO(e, name+".b", slaveClk, masterClk, p, p.CheckResp),
		ar:     newAsyncFIFO(e, name+".ar", masterClk, slaveClk, p, p.CheckAddr),
		r:      newAsyncFIFO(e, name+".r", slaveClk, masterClk, p, p.CheckRead),
	}, nil
}

// Name returns the bridge name
func (b *Bridge) Name() string {
	return b.name
}

// Params returns the bridge configuration
func (b *Bridge) Params() BridgeParams {
	return b.params
}

// Master returns the upstream endpoints
func (b *Bridge) Master() MasterPort {
	return MasterPort{
		AW: Sender[AddrBeat]{b.aw},
		W:  Sender[WriteBeat]{b.w},
		B:  Receiver[RespBeat]{b.b},
		AR: Sender[AddrBeat]{b.ar},
		R:  Receiver[ReadBeat]{b.r},
	}
}

// Slave returns the downstream endpoints
func (b *Bridge) Slave() SlavePort {
	return SlavePort{
		AW: Receiver[AddrBeat]{b.aw},
		W:  Receiver[WriteBeat]{b.w},
		B:  Sender[RespBeat]{b.b},
		AR: Receiver[AddrBeat]{b.ar},
		R:  Sender[ReadBeat]{b.r},
	}
}

// Err returns the handshake violations seen on any channel
func (b *Bridge) Err() error {
	return errors.Join(b.aw.err, b.w.err, b.b.err, b.ar.err, b.r.err)
}

// Transfers counts the transfers each channel has delivered, keyed by channel
func (b *Bridge) Transfers() map[string]uint64 {
	return map[string]uint64{
		"aw": b.aw.received,
		"w":  b.w.received,
		"b":  b.b.received,
		"ar": b.ar.received,
		"r":  b.r.received,
	}
}
