package axi

import (
	"errors"
	"fmt"
)

// ErrProtocol is wrapped by every handshake or payload violation
var ErrProtocol = errors.New("AXI protocol violation")

// Burst types
const (
	BurstFixed uint8 = 0
	BurstIncr  uint8 = 1
	BurstWrap  uint8 = 2
)

// Response codes
const (
	RespOkay   uint8 = 0
	RespExOkay uint8 = 1
	RespSlvErr uint8 = 2
	RespDecErr uint8 = 3
)

// AddrBeat is one AW or AR transfer
type AddrBeat struct {
	ID     uint32
	Addr   uint64
	Len    uint8
	Size   uint8
	Burst  uint8
	Lock   uint8
	Cache  uint8
	Prot   uint8
	Region uint8
	QoS    uint8
}

// WriteBeat is one W transfer. Data holds exactly one bus width of bytes.
type WriteBeat struct {
	Data []byte
	Strb uint64
	Last bool
}

// RespBeat is one B transfer
type RespBeat struct {
	ID   uint32
	Resp uint8
}

// ReadBeat is one R transfer
type ReadBeat struct {
	ID   uint32
	Data []byte
	Resp uint8
	Last bool
}

func (p Params) checkID(id uint32) error {
	if uint64(id) >= 1<<uint(p.IDWidth) {
		return fmt.Errorf("%w: id %d does not fit in %d bits", ErrProtocol, id, p.IDWidth)
	}
	return nil
}

func (p Params) checkData(data []byte) error {
	if len(data) != p.BytesPerBeat() {
		return fmt.Errorf("%w: %d data bytes on a %d-bit bus", ErrProtocol, len(data), p.DataWidth)
	}
	return nil
}

func maxSize(bytes int) uint8 {
	var s uint8
	for 1<<(s+1) <= bytes {
		s++
	}
	return s
}

// CheckAddr validates an address beat against the interface shape. Fields
// the protocol does not carry must be zero.
func (p Params) CheckAddr(b AddrBeat) error {
	if err := p.checkID(b.ID); err != nil {
		return err
	}
	if p.AddrWidth < 64 && b.Addr >= 1<<uint(p.AddrWidth) {
		return fmt.Errorf("%w: address 0x%x exceeds %d bits", ErrProtocol, b.Addr, p.AddrWidth)
	}
	if b.Prot > 7 {
		return fmt.Errorf("%w: prot %d", ErrProtocol, b.Prot)
	}
	if p.Protocol == AXI4Lite {
		if b.Len|b.Size|b.Burst|b.Lock|b.Cache|b.Region|b.QoS != 0 {
			return fmt.Errorf("%w: burst fields set on an AXI4-Lite address", ErrProtocol)
		}
		return nil
	}
	if b.Burst > BurstWrap {
		return fmt.Errorf("%w: reserved burst type %d", ErrProtocol, b.Burst)
	}
	if b.Size > maxSize(p.BytesPerBeat()) {
		return fmt.Errorf("%w: size %d wider than the %d-bit bus", ErrProtocol, b.Size, p.DataWidth)
	}
	if b.Burst == BurstWrap {
		switch b.Len {
		case 1, 3, 7, 15:
		default:
			return fmt.Errorf("%w: wrapping burst of %d beats", ErrProtocol, int(b.Len)+1)
		}
	}
	if b.Lock > 1 || b.Cache > 15 || b.Region > 15 || b.QoS > 15 {
		return fmt.Errorf("%w: attribute out of range", ErrProtocol)
	}
	return nil
}

// CheckWrite validates a write data beat
func (p Params) CheckWrite(b WriteBeat) error {
	if err := p.checkData(b.Data); err != nil {
		return err
	}
	if lanes := p.BytesPerBeat(); lanes < 64 && b.Strb >= 1<<uint(lanes) {
		return fmt.Errorf("%w: strobe 0x%x wider than %d lanes", ErrProtocol, b.Strb, lanes)
	}
	if p.Protocol == AXI4Lite && b.Last {
		return fmt.Errorf("%w: last set on an AXI4-Lite write", ErrProtocol)
	}
	return nil
}

// CheckResp validates a write response beat
func (p Params) CheckResp(b RespBeat) error {
	if err := p.checkID(b.ID); err != nil {
		return err
	}
	if b.Resp > RespDecErr {
		return fmt.Errorf("%w: response code %d", ErrProtocol, b.Resp)
	}
	return nil
}

// CheckRead validates a read data beat
func (p Params) CheckRead(b ReadBeat) error {
	if err := p.checkID(b.ID); err != nil {
		return err
	}
	if err := p.checkData(b.Data); err != nil {
		return err
	}
	if b.Resp > RespDecErr {
		return fmt.Errorf("%w: response code %d", ErrProtocol, b.Resp)
	}
	if p.Protocol == AXI4Lite && b.Last {
		return fmt.Errorf("%w: last set on an AXI4-Lite read", ErrProtocol)
	}
	return nil
}

// beatAddr returns the address of beat n of a burst
func (p Params) beatAddr(a AddrBeat, n int) uint64 {
	if p.Protocol == AXI4Lite {
		return a.Addr
	}
	step := uint64(1) << a.Size
	aligned := a.Addr &^ (step - 1)
	switch a.Burst {
	case BurstFixed:
		return a.Addr
	case BurstWrap:
		span := step * (uint64(a.Len) + 1)
		base := aligned &^ (span - 1)
		return base + (aligned-base+uint64(n)*step)%span
	default:
		if n == 0 {
			return a.Addr
		}
		return aligned + uint64(n)*step
	}
}

// beats returns the number of data transfers an address beat announces
func (p Params) beats(a AddrBeat) int {
	if p.Protocol == AXI4Lite {
		return 1
	}
	return int(a.Len) + 1
}
