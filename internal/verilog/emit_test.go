package verilog

import (
	"errors"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/s7pciehost/internal/hdl"
	"github.com/robert-at-pretension-io/s7pciehost/internal/host"
	"github.com/robert-at-pretension-io/s7pciehost/internal/platform"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

func hostDesign(t *testing.T, stages int) *host.Design {
	t.Helper()
	d, err := host.BuildStandalone(platform.NewVivado(""), host.Standalone{
		Name:         "pcie_host_wrapper",
		SystemDomain: "sys",
		HasRstN:      true,
		Config: host.Config{
			Link: region.LinkConfig{
				Lanes:        4,
				MaxLinkSpeed: region.Speed2_5GT,
				RefClkFreq:   100e6,
				DataWidth:    64,
				IDWidth:      4,
			},
			DataWidth: 64,
			IDWidth:   4,
		},
		ECAM:    &region.Region{Origin: 0x0, Size: 0x1000000},
		MMIO:    &region.Region{Origin: 0x40000000, Size: 0x10000000},
		Options: []host.Option{host.WithSyncStages(stages)},
	})
	if err != nil {
		t.Fatalf("BuildStandalone: %v", err)
	}
	return d
}

func TestEmitHostWrapper(t *testing.T) {
	src, err := Emit(hostDesign(t, 2).Netlist)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	for _, want := range []string{
		"module pcie_host_wrapper (",
		"pcie_conv_ctl_s7 pcie_conv_ctl (",
		"pcie_conv_mmio_s7 pcie_conv_mmio (",
		"pcie_conv_dma_s7 pcie_conv_dma (",
		"pcie_host_s7 pcie_host (",
		"IBUFDS_GTE2 pcie_refclk_buf (",
		"    input  wire [3:0] pcie_rx_p,",
		"    .CEB(0),",
		"    .INTX_MSI_Grant(),",
		"    .s_axi_aresetn(~sys_rst),",
		"(* ASYNC_REG = \"TRUE\" *) reg [1:0] pcie_link_up_sync_resync_ff = 2'b0;",
		"always @(posedge sys_clk) pcie_link_up_sync_resync_ff <= {pcie_link_up_sync_resync_ff[0:0], pcie_link_up_raw};",
		"wire pcie_reset_sync_cause = sys_rst | ~pcie_mmcm_lock | ~vadj_pgood;",
		"always @(posedge pcie_clk or posedge pcie_reset_sync_cause)",
		"assign pcie_ctl_rst = pcie_rst;",
		"assign pcie_rst_n = ~pcie_rst;",
		"endmodule",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q", want)
		}
	}

	if strings.Count(src, "_s7 pcie_") != 4 {
		t.Errorf("expected exactly four IP instances")
	}
}

func TestEmitTiesOffUndrivenNets(t *testing.T) {
	src, err := Emit(hostDesign(t, 2).Netlist)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	// the hard core's DMA master has no region or qos outputs
	for _, want := range []string{
		"assign pcie_dma_awregion = {4{1'b0}};",
		"assign pcie_dma_arqos = {4{1'b0}};",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestEmitHonorsStageCount(t *testing.T) {
	src, err := Emit(hostDesign(t, 3).Netlist)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(src, "reg [2:0] pcie_irq_sync_resync_ff = 3'b0;") {
		t.Errorf("expected a three-stage interrupt synchronizer")
	}
	if !strings.Contains(src, "else pcie_reset_sync_ff <= {pcie_reset_sync_ff[1:0], 1'b0};") {
		t.Errorf("expected a three-stage reset synchronizer")
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	a, err := Emit(hostDesign(t, 2).Netlist)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	b, err := Emit(hostDesign(t, 2).Netlist)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if a != b {
		t.Fatalf("identical netlists rendered differently")
	}
}

func TestEmitRejectsUnknownCrossing(t *testing.T) {
	nl := &hdl.Netlist{
		Name:    "top",
		Domains: []hdl.DomainInfo{{Name: "sys", Clock: "sys_clk", Reset: "sys_rst", External: true}},
		Crossings: []hdl.Crossing{{
			Kind: "handshake", Name: "hs", Target: "x", ToDomain: "sys", Stages: 2,
			Sources: []hdl.Source{{Net: "y", Domain: "other"}},
		}},
	}
	if _, err := Emit(nl); !errors.Is(err, hdl.ErrTopology) {
		t.Fatalf("expected topology error, got %v", err)
	}
}
