package validator

import (
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/s7pciehost/internal/config"
	"github.com/robert-at-pretension-io/s7pciehost/internal/ipgen"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// TestConfigContractEnforcement checks the configuration contract on raw
// documents, the way they arrive from disk.
func TestConfigContractEnforcement(t *testing.T) {
	v, err := NewConfigValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	base := func(link string) string {
		return `{
			"link": ` + link + `,
			"regions": {"ecam": {"origin": 0, "size": 16777216}},
			"pads": {"has_rst_n": true},
			"outputs": {},
			"simulate": {"enabled": false},
			"toolchain": {"run": false},
			"cache": {},
			"policy": {}
		}`
	}

	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name:    "valid_input",
			doc:     base(`{"lanes": 4, "max_link_speed": "2.5_GT/s", "refclk_freq": 100000000, "data_width": 64, "id_width": 4, "dma_id_width": 0}`),
			wantErr: false,
		},
		{
			name:    "float_refclk",
			doc:     base(`{"lanes": 8, "max_link_speed": "5.0_GT/s", "refclk_freq": 1.25e8, "data_width": 128, "id_width": 0, "dma_id_width": 0}`),
			wantErr: false,
		},
		{
			name:    "three_lanes",
			doc:     base(`{"lanes": 3, "max_link_speed": "2.5_GT/s", "refclk_freq": 100000000, "data_width": 64, "id_width": 4, "dma_id_width": 0}`),
			wantErr: true,
		},
		{
			name:    "unsupported_refclk",
			doc:     base(`{"lanes": 4, "max_link_speed": "2.5_GT/s", "refclk_freq": 156250000, "data_width": 64, "id_width": 4, "dma_id_width": 0}`),
			wantErr: true,
		},
		{
			name:    "gen3_speed",
			doc:     base(`{"lanes": 4, "max_link_speed": "8.0_GT/s", "refclk_freq": 100000000, "data_width": 64, "id_width": 4, "dma_id_width": 0}`),
			wantErr: true,
		},
		{
			name:    "unknown_field",
			doc:     base(`{"lanes": 4, "max_link_speed": "2.5_GT/s", "refclk_freq": 100000000, "data_width": 64, "id_width": 4, "dma_id_width": 0, "gen": 2}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateJSON([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidatorAcceptsDefaults(t *testing.T) {
	v, err := NewConfigValidator()
	if err != nil {
		t.Fatalf("new config validator: %v", err)
	}
	if err := v.Validate(config.DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestConfigValidatorReportsEveryError(t *testing.T) {
	v, err := NewConfigValidator()
	if err != nil {
		t.Fatalf("new config validator: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Link.Lanes = 3
	cfg.Link.DataWidth = 96
	cfg.Policy.Rules["cdc_direct_binding"] = "fatal"

	errs := v.ValidationErrors(cfg)
	if len(errs) < 3 {
		t.Fatalf("expected at least 3 errors, got %v", errs)
	}
	joined := strings.Join(errs, "\n")
	for _, field := range []string{"lanes", "data_width", "cdc_direct_binding"} {
		if !strings.Contains(joined, field) {
			t.Errorf("expected an error naming %s, got:\n%s", field, joined)
		}
	}
}

func TestIPValidator(t *testing.T) {
	v, err := NewIPValidator()
	if err != nil {
		t.Fatalf("new ip validator: %v", err)
	}

	good := []ipgen.Spec{{
		Template:   "conv_ctl",
		IPType:     "axi_clock_converter",
		ModuleName: "pcie_conv_ctl_s7",
		Options:    []ipgen.Setting{{Option: "PROTOCOL", Value: "AXI4LITE"}},
	}}
	if err := v.Validate(good); err != nil {
		t.Fatalf("expected valid specs, got %v", err)
	}

	noOptions := []ipgen.Spec{{
		Template:   "conv_ctl",
		IPType:     "axi_clock_converter",
		ModuleName: "pcie_conv_ctl_s7",
		Options:    []ipgen.Setting{},
	}}
	if err := v.Validate(noOptions); err == nil {
		t.Fatalf("expected an instance without options to be rejected")
	}

	badModule := []ipgen.Spec{{
		Template:   "conv_ctl",
		IPType:     "axi_clock_converter",
		ModuleName: "conv_ctl",
		Options:    []ipgen.Setting{{Option: "PROTOCOL", Value: "AXI4LITE"}},
	}}
	if err := v.Validate(badModule); err == nil {
		t.Fatalf("expected a module name without the pcie_ prefix to be rejected")
	}
}

// TestIPValidatorAcceptsDefaultRegistry runs the rendered option lists of
// every registered template through the contract, lowercase hard core
// options included.
func TestIPValidatorAcceptsDefaultRegistry(t *testing.T) {
	v, err := NewIPValidator()
	if err != nil {
		t.Fatalf("new ip validator: %v", err)
	}

	for _, lanes := range []int{1, 4, 8} {
		cfg := config.DefaultConfig()
		cfg.Link.Lanes = lanes
		c, err := region.NewConfigurator(cfg.RegionLink())
		if err != nil {
			t.Fatalf("x%d: configurator: %v", lanes, err)
		}
		if err := c.UpdateRegions(cfg.Regions.ECAM, cfg.Regions.MMIO); err != nil {
			t.Fatalf("x%d: regions: %v", lanes, err)
		}
		res, err := c.Resolve()
		if err != nil {
			t.Fatalf("x%d: resolve: %v", lanes, err)
		}
		specs, err := ipgen.DefaultRegistry().Specs(res)
		if err != nil {
			t.Fatalf("x%d: specs: %v", lanes, err)
		}
		if len(specs) != 4 {
			t.Fatalf("x%d: expected 4 instances, got %d", lanes, len(specs))
		}
		if err := v.Validate(specs); err != nil {
			t.Fatalf("x%d: default registry rejected: %v", lanes, err)
		}
	}

	mixedCase := []ipgen.Spec{{
		Template:   "host",
		IPType:     "axi_pcie",
		ModuleName: "pcie_host_s7",
		Options:    []ipgen.Setting{{Option: "rp_bar_hide", Value: "true"}},
	}}
	if err := v.Validate(mixedCase); err != nil {
		t.Fatalf("expected a lowercase option name to be accepted, got %v", err)
	}

	leadingDigit := []ipgen.Spec{{
		Template:   "host",
		IPType:     "axi_pcie",
		ModuleName: "pcie_host_s7",
		Options:    []ipgen.Setting{{Option: "0_BAR", Value: "true"}},
	}}
	if err := v.Validate(leadingDigit); err == nil {
		t.Fatalf("expected an option name starting with a digit to be rejected")
	}
}
