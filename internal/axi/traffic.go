package axi

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

// Txn is one write burst that is later read back
type Txn struct {
	Addr AddrBeat
	Data [][]byte
}

// GenerateTraffic builds n write bursts inside the window [base, base+size).
// Bursts start on four-beat slots; once every slot of the window is used
// the slots are reused and later writes supersede earlier ones. A window
// smaller than one slot gets the single slot holding base. Full interfaces
// get INCR bursts of one to four beats and cycling IDs.
func GenerateTraffic(p Params, n int, base, size uint64, rng *rand.Rand) []Txn {
	lanes := p.BytesPerBeat()
	stride := uint64(lanes) * 4
	start := (base + stride - 1) &^ (stride - 1)
	var slots uint64
	if end := base + size; start < end {
		slots = (end - start) / stride
	}
	if slots == 0 {
		start, slots = base&^(stride-1), 1
	}
	txns := make([]Txn, 0, n)
	for k := 0; k < n; k++ {
		a := AddrBeat{Addr: start + (uint64(k)%slots)*stride}
		beats := 1
		if p.Protocol == AXI4 {
			beats = 1 + rng.Intn(4)
			a.Len = uint8(beats - 1)
			a.Size = maxSize(lanes)
			a.Burst = BurstIncr
			a.ID = uint32(k % (1 << uint(p.IDWidth)))
		}
		t := Txn{Addr: a}
		for i := 0; i < beats; i++ {
			d := make([]byte, lanes)
			rng.Read(d)
			t.Data = append(t.Data, d)
		}
		txns = append(txns, t)
	}
	return txns
}

// Report summarizes one traffic run
type Report struct {
	Writes   int
	Reads    int
	Problems []string
}

// Initiator drives a list of transactions into the master side of a bridge:
// every write first, then a read-back of each burst. It checks that write
// responses come back in issue order and that read data matches.
type Initiator struct {
	port   MasterPort
	params Params
	txns   []Txn
	expect map[uint64][]byte

	awNext int
	wTxn   int
	wBeat  int
	bDone  int

	arNext int
	rTxn   int
	rBeat  int

	problems []string
}

// NewInitiator attaches an initiator to the master side of br on clk
func NewInitiator(e *sim.Engine, clk *sim.Clock, br *Bridge, txns []Txn) *Initiator {
	i := &Initiator{port: br.Master(), params: br.Params().Params, txns: txns, expect: make(map[uint64][]byte)}
	for _, t := range txns {
		for n, d := range t.Data {
			i.expect[i.line(t.Addr, n)] = d
		}
	}
	e.Attach(clk, i)
	return i
}

// line returns the beat-aligned address of beat n of a
func (i *Initiator) line(a AddrBeat, n int) uint64 {
	return i.params.beatAddr(a, n) &^ uint64(i.params.BytesPerBeat()-1)
}

// Done reports whether every read-back has completed
func (i *Initiator) Done() bool {
	return i.rTxn == len(i.txns)
}

// Report returns the outcome so far
func (i *Initiator) Report() Report {
	return Report{Writes: i.bDone, Reads: i.rTxn, Problems: append([]string(nil), i.problems...)}
}

func (i *Initiator) problem(format string, args ...any) {
	i.problems = append(i.problems, fmt.Sprintf(format, args...))
}

func (i *Initiator) strb() uint64 {
	return 1<<uint(i.params.BytesPerBeat()) - 1
}

func (i *Initiator) Eval() {
	if i.awNext < len(i.txns) {
		if ok, err := i.port.AW.Send(i.txns[i.awNext].Addr); err != nil {
			i.problem("aw %d: %v", i.awNext, err)
			i.awNext = len(i.txns)
		} else if ok {
			i.awNext++
		}
	}
	if i.wTxn < i.awNext {
		t := i.txns[i.wTxn]
		last := i.wBeat == len(t.Data)-1
		beat := WriteBeat{Data: t.Data[i.wBeat], Strb: i.strb(), Last: last && i.params.Protocol == AXI4}
		if ok, err := i.port.W.Send(beat); err != nil {
			i.problem("w %d: %v", i.wTxn, err)
			i.wTxn = len(i.txns)
		} else if ok {
			i.wBeat++
			if last {
				i.wTxn++
				i.wBeat = 0
			}
		}
	}
	if b, ok := i.port.B.Recv(); ok {
		if i.bDone >= len(i.txns) {
			i.problem("unexpected write response id %d", b.ID)
		} else {
			if want := i.txns[i.bDone].Addr.ID; b.ID != want {
				i.problem("write response %d: id %d, want %d", i.bDone, b.ID, want)
			}
			if b.Resp != RespOkay {
				i.problem("write response %d: resp %d", i.bDone, b.Resp)
			}
			i.bDone++
		}
	}

	if i.bDone < len(i.txns) {
		return
	}
	if i.arNext < len(i.txns) {
		if ok, err := i.port.AR.Send(i.txns[i.arNext].Addr); err != nil {
			i.problem("ar %d: %v", i.arNext, err)
			i.arNext = len(i.txns)
		} else if ok {
			i.arNext++
		}
	}
	if r, ok := i.port.R.Recv(); ok && i.rTxn < len(i.txns) {
		t := i.txns[i.rTxn]
		last := i.rBeat == len(t.Data)-1
		if r.ID != t.Addr.ID {
			i.problem("read %d beat %d: id %d, want %d", i.rTxn, i.rBeat, r.ID, t.Addr.ID)
		}
		if want := i.expect[i.line(t.Addr, i.rBeat)]; !bytes.Equal(r.Data, want) {
			i.problem("read %d beat %d: data %x, want %x", i.rTxn, i.rBeat, r.Data, want)
		}
		if i.params.Protocol == AXI4 && r.Last != last {
			i.problem("read %d beat %d: last %v, want %v", i.rTxn, i.rBeat, r.Last, last)
		}
		i.rBeat++
		if last {
			i.rTxn++
			i.rBeat = 0
		}
	}
}

func (i *Initiator) Commit() {}

// Loopback runs txns through br against a fresh MemorySlave and returns the
// report once every read-back is done or limitPS of simulated time passes.
// Protocol errors and initiator problems are reported ahead of a timeout.
func Loopback(e *sim.Engine, br *Bridge, masterClk, slaveClk *sim.Clock, txns []Txn, limitPS uint64) (Report, error) {
	mem := NewMemorySlave(e, slaveClk, br)
	driver := NewInitiator(e, masterClk, br, txns)
	finished := e.RunUntil(driver.Done, limitPS)
	rep := driver.Report()
	if err := br.Err(); err != nil {
		return rep, err
	}
	if err := mem.Err(); err != nil {
		return rep, fmt.Errorf("bridge %s: %w", br.Name(), err)
	}
	if len(rep.Problems) > 0 {
		return rep, fmt.Errorf("bridge %s: %s", br.Name(), rep.Problems[0])
	}
	if !finished {
		return rep, fmt.Errorf("bridge %s: %d of %d transactions completed before the time limit", br.Name(), rep.Reads, len(txns))
	}
	return rep, nil
}
