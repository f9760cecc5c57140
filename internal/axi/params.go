// Package axi describes AXI transaction interfaces twice: as netlist bundles
// that get bound to black-box ports, and as a behavioral clock-domain bridge
// built from one asynchronous FIFO per channel.
package axi

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is wrapped by every parameter validation failure
var ErrInvalidParams = errors.New("invalid AXI parameters")

// MaxIDWidth bounds the transaction identifier width
const MaxIDWidth = 8

// Protocol is the AXI variant
type Protocol int

const (
	AXI4Lite Protocol = iota
	AXI4
)

// String renders the protocol the way the IP catalog spells it
func (p Protocol) String() string {
	if p == AXI4 {
		return "AXI4"
	}
	return "AXI4LITE"
}

// Params fixes the shape of an interface
type Params struct {
	Protocol  Protocol
	DataWidth int
	IDWidth   int
	AddrWidth int
}

// LiteParams returns the 32-bit control interface shape
func LiteParams() Params {
	return Params{Protocol: AXI4Lite, DataWidth: 32, AddrWidth: 32}
}

// FullParams returns a full AXI4 shape
func FullParams(dataWidth, idWidth int) Params {
	return Params{Protocol: AXI4, DataWidth: dataWidth, IDWidth: idWidth, AddrWidth: 32}
}

// Validate checks the shape against what the clock converters support
func (p Params) Validate() error {
	switch p.Protocol {
	case AXI4Lite:
		if p.DataWidth != 32 {
			return fmt.Errorf("%w: AXI4-Lite data width %d, want 32", ErrInvalidParams, p.DataWidth)
		}
		if p.IDWidth != 0 {
			return fmt.Errorf("%w: AXI4-Lite carries no ID, got id width %d", ErrInvalidParams, p.IDWidth)
		}
	case AXI4:
		if p.DataWidth != 64 && p.DataWidth != 128 {
			return fmt.Errorf("%w: data width %d not in {64,128}", ErrInvalidParams, p.DataWidth)
		}
		if p.IDWidth < 0 || p.IDWidth > MaxIDWidth {
			return fmt.Errorf("%w: id width %d not in [0,%d]", ErrInvalidParams, p.IDWidth, MaxIDWidth)
		}
	default:
		return fmt.Errorf("%w: unknown protocol %d", ErrInvalidParams, int(p.Protocol))
	}
	if p.AddrWidth <= 0 || p.AddrWidth > 64 {
		return fmt.Errorf("%w: address width %d not in [1,64]", ErrInvalidParams, p.AddrWidth)
	}
	return nil
}

// BytesPerBeat returns the data bus width in bytes
func (p Params) BytesPerBeat() int {
	return p.DataWidth / 8
}

// BridgeParams configures one clock-domain bridge
type BridgeParams struct {
	Params
	SyncStages int
	Depth      int
}

// DefaultSyncStages matches the SYNCHRONIZATION_STAGES the IPs are generated with
const DefaultSyncStages = 2

// DefaultDepth is the per-channel FIFO depth of the behavioral model
const DefaultDepth = 8

// NewBridgeParams fills in the default synchronizer depth and FIFO depth
func NewBridgeParams(p Params) BridgeParams {
	return BridgeParams{Params: p, SyncStages: DefaultSyncStages, Depth: DefaultDepth}
}

// Validate checks the interface shape and the crossing parameters
func (b BridgeParams) Validate() error {
	if err := b.Params.Validate(); err != nil {
		return err
	}
	if b.SyncStages < 2 {
		return fmt.Errorf("%w: %d synchronization stages, need at least 2", ErrInvalidParams, b.SyncStages)
	}
	if b.Depth < 2 || b.Depth&(b.Depth-1) != 0 {
		return fmt.Errorf("%w: FIFO depth %d is not a power of two >= 2", ErrInvalidParams, b.Depth)
	}
	return nil
}
