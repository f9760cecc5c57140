package pipeline

import (
	"fmt"
	"math/rand"

	"github.com/robert-at-pretension-io/s7pciehost/internal/axi"
	"github.com/robert-at-pretension-io/s7pciehost/internal/host"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
	"github.com/robert-at-pretension-io/s7pciehost/internal/sim"
)

// slavePhasePS offsets the downstream clock so edges of the two domains
// do not coincide
const slavePhasePS = 1700

// SimReport is the loopback outcome of one bridge
type SimReport struct {
	Bridge    string            `json:"bridge"`
	Writes    int               `json:"writes"`
	Reads     int               `json:"reads"`
	Problems  []string          `json:"problems"`
	Transfers map[string]uint64 `json:"transfers"`
}

// simulateBridges pushes n write bursts and their read-backs through the
// behavioral model of every bridge of d, each in its own engine. Control and
// MMIO traffic stays inside the ECAM and MMIO windows. Any
// protocol violation or data mismatch fails the run.
func simulateBridges(d *host.Design, clocks map[string]float64, n int, seed int64) ([]SimReport, error) {
	windows := map[string]region.Region{
		"pcie_conv_ctl":  d.Resolved.ECAM,
		"pcie_conv_mmio": d.Resolved.MMIO,
	}
	limitPS := uint64(n)*2_000_000 + 10_000_000

	reports := make([]SimReport, 0, len(d.Bridges))
	for i, b := range d.Bridges {
		params := b.Params
		mHz, ok := clocks[b.MasterDomain]
		if !ok {
			return nil, fmt.Errorf("bridge %s: no clock for domain %s", b.Name, b.MasterDomain)
		}
		sHz, ok := clocks[b.SlaveDomain]
		if !ok {
			return nil, fmt.Errorf("bridge %s: no clock for domain %s", b.Name, b.SlaveDomain)
		}

		e := sim.NewEngine(seed + int64(i))
		mClk := e.AddClock(b.MasterDomain, mHz, 0)
		sClk := e.AddClock(b.SlaveDomain, sHz, slavePhasePS)
		br, err := axi.NewBridge(e, b.Name, mClk, sClk, params)
		if err != nil {
			return nil, fmt.Errorf("bridge %s: %w", b.Name, err)
		}
		w, ok := windows[b.Name]
		if !ok {
			w = region.Region{Origin: 0, Size: 1 << uint(params.AddrWidth)}
		}
		txns := axi.GenerateTraffic(params.Params, n, w.Origin, w.Size, rand.New(rand.NewSource(seed+int64(i))))
		rep, err := axi.Loopback(e, br, mClk, sClk, txns, limitPS)
		if err != nil {
			return nil, fmt.Errorf("simulate %s: %w", b.Name, err)
		}
		if len(rep.Problems) > 0 {
			return nil, fmt.Errorf("simulate %s: %s", b.Name, rep.Problems[0])
		}
		problems := rep.Problems
		if problems == nil {
			problems = []string{}
		}
		reports = append(reports, SimReport{
			Bridge:    b.Name,
			Writes:    rep.Writes,
			Reads:     rep.Reads,
			Problems:  problems,
			Transfers: br.Transfers(),
		})
	}
	return reports, nil
}

