package validator

import (
	"testing"

	"github.com/robert-at-pretension-io/s7pciehost/internal/facts"
	"github.com/robert-at-pretension-io/s7pciehost/internal/host"
	"github.com/robert-at-pretension-io/s7pciehost/internal/platform"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

func buildTables(t *testing.T) facts.Tables {
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
		ECAM: &region.Region{Origin: 0x0, Size: 0x1000000},
		MMIO: &region.Region{Origin: 0x40000000, Size: 0x10000000},
	})
	if err != nil {
		t.Fatalf("BuildStandalone: %v", err)
	}
	return facts.FromNetlist(d.Netlist, d.Specs)
}

func TestFactsValidatorAcceptsExtractedTables(t *testing.T) {
	v, err := NewFactsValidator()
	if err != nil {
		t.Fatalf("new facts validator: %v", err)
	}

	if err := v.Validate(buildTables(t)); err != nil {
		t.Fatalf("expected valid tables, got error: %v", err)
	}
}

func TestFactsValidatorRejectsInvalidTables(t *testing.T) {
	v, err := NewFactsValidator()
	if err != nil {
		t.Fatalf("new facts validator: %v", err)
	}

	tables := buildTables(t)
	tables.Crossings = append(tables.Crossings, facts.CrossingRow{
		Name:     "handshake",
		Kind:     "handshake",
		Target:   "x",
		ToDomain: "sys",
		Stages:   2,
	})

	if err := v.Validate(tables); err == nil {
		t.Fatalf("expected validation error for unknown crossing kind, got nil")
	}

	tables = buildTables(t)
	tables.Nets[0].Width = 0
	if err := v.Validate(tables); err == nil {
		t.Fatalf("expected validation error for zero width net, got nil")
	}
}
