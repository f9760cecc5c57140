package axi

import (
	"fmt"

	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

type burst struct {
	addr AddrBeat
	beat int
}

// MemorySlave is a byte-addressed memory behind the slave side of a bridge.
// It completes writes and reads in the order their addresses arrive.
type MemorySlave struct {
	port   SlavePort
	params Params
	mem    map[uint64]byte

	writes []burst
	resps  []RespBeat
	reads  []burst
	held   *ReadBeat

	err error
}

// NewMemorySlave attaches a memory to the slave side of br on clk
func NewMemorySlave(e *sim.Engine, clk *sim.Clock, br *Bridge) *MemorySlave {
	m := &MemorySlave{
		port:   br.Slave(),
		params: br.Params().Params,
		mem:    make(map[uint64]byte),
	}
	e.Attach(clk, m)
	return m
}

// Err returns the first error a response send reported. The memory stops
// responding once it is set.
func (m *MemorySlave) Err() error {
	return m.err
}

func (m *MemorySlave) fail(channel string, err error) {
	if m.err == nil {
		m.err = fmt.Errorf("memory %s: %w", channel, err)
	}
}

// Load returns the bytes stored at [addr, addr+n)
func (m *MemorySlave) Load(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.mem[addr+uint64(i)]
	}
	return out
}

func (m *MemorySlave) lineBase(addr uint64) uint64 {
	return addr &^ uint64(m.params.BytesPerBeat()-1)
}

func (m *MemorySlave) Eval() {
	if m.err != nil {
		return
	}
	if aw, ok := m.port.AW.Recv(); ok {
		m.writes = append(m.writes, burst{addr: aw})
	}
	if len(m.writes) > 0 {
		if wb, ok := m.port.W.Recv(); ok {
			cur := &m.writes[0]
			base := m.lineBase(m.params.beatAddr(cur.addr, cur.beat))
			for lane := range wb.Data {
				if wb.Strb&(1<<uint(lane)) != 0 {
					m.mem[base+uint64(lane)] = wb.Data[lane]
				}
			}
			cur.beat++
			if cur.beat == m.params.beats(cur.addr) {
				m.resps = append(m.resps, RespBeat{ID: cur.addr.ID, Resp: RespOkay})
				m.writes = m.writes[1:]
			}
		}
	}
	if len(m.resps) > 0 {
		if ok, err := m.port.B.Send(m.resps[0]); err != nil {
			m.fail("b", err)
			return
		} else if ok {
			m.resps = m.resps[1:]
		}
	}

	if ar, ok := m.port.AR.Recv(); ok {
		m.reads = append(m.reads, burst{addr: ar})
	}
	if len(m.reads) > 0 {
		cur := &m.reads[0]
		n := m.params.beats(cur.addr)
		if m.held == nil {
			m.held = &ReadBeat{
				ID:   cur.addr.ID,
				Data: m.Load(m.lineBase(m.params.beatAddr(cur.addr, cur.beat)), m.params.BytesPerBeat()),
				Resp: RespOkay,
				Last: m.params.Protocol == AXI4 && cur.beat == n-1,
			}
		}
		if ok, err := m.port.R.Send(*m.held); err != nil {
			m.fail("r", err)
			return
		} else if ok {
			m.held = nil
			cur.beat++
			if cur.beat == n {
				m.reads = m.reads[1:]
			}
		}
	}
}

func (m *MemorySlave) Commit() {}
