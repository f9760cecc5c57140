package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
)

// FileName is the configuration file looked up in the working directory and
// the output root
const FileName = "s7pcie.json"

// Config is the top-level configuration for s7pcie-gen
type Config struct {
	// Top is the name of the generated wrapper module
	Top string `json:"top,omitempty"`

	// SystemDomain names the chip-side clock domain
	SystemDomain string `json:"system_domain,omitempty"`

	// SysClkFreq is the system clock frequency in Hz
	SysClkFreq float64 `json:"sys_clk_freq,omitempty"`

	Link      LinkConfig      `json:"link"`
	Regions   RegionsConfig   `json:"regions"`
	Pads      PadsConfig      `json:"pads"`
	Outputs   OutputsConfig   `json:"outputs"`
	Simulate  SimulateConfig  `json:"simulate"`
	Toolchain ToolchainConfig `json:"toolchain"`
	Cache     CacheConfig     `json:"cache"`
	Policy    PolicyConfig    `json:"policy"`
}

// LinkConfig holds the hard-core and bridge construction parameters.
// PCIeDataWidth and PCIeIDWidth default to DataWidth and IDWidth.
type LinkConfig struct {
	Lanes         int     `json:"lanes"`
	MaxLinkSpeed  string  `json:"max_link_speed"`
	RefClkFreq    float64 `json:"refclk_freq"`
	DataWidth     int     `json:"data_width"`
	IDWidth       int     `json:"id_width"`
	PCIeDataWidth int     `json:"pcie_data_width,omitempty"`
	PCIeIDWidth   int     `json:"pcie_id_width,omitempty"`
	DMAIDWidth    int     `json:"dma_id_width"`
	SyncStages    int     `json:"sync_stages,omitempty"`
}

// RegionsConfig holds the decode windows. Either may be absent, in which
// case elaboration fails with a missing region error.
type RegionsConfig struct {
	ECAM *region.Region `json:"ecam,omitempty"`
	MMIO *region.Region `json:"mmio,omitempty"`
}

// PadsConfig selects optional board pins
type PadsConfig struct {
	// HasRstN exposes the active-low PCIe reset output pin
	HasRstN bool `json:"has_rst_n"`
}

// OutputsConfig names the generated artifacts. Relative names are placed
// under Dir, which is itself relative to the output root.
type OutputsConfig struct {
	Dir     string `json:"dir,omitempty"`
	Tcl     string `json:"tcl,omitempty"`
	XDC     string `json:"xdc,omitempty"`
	Verilog string `json:"verilog,omitempty"`
	Facts   string `json:"facts,omitempty"`
	Result  string `json:"result,omitempty"`
}

// SimulateConfig controls the loopback run through the bridge models
type SimulateConfig struct {
	Enabled      bool  `json:"enabled"`
	Transactions int   `json:"transactions,omitempty"`
	Seed         int64 `json:"seed,omitempty"`
}

// ToolchainConfig controls the external synthesis tool run
type ToolchainConfig struct {
	Run  bool   `json:"run"`
	Part string `json:"part,omitempty"`
}

// CacheConfig controls the result cache
type CacheConfig struct {
	// Enabled turns on result cache usage
	Enabled *bool `json:"enabled,omitempty"`

	// Dir is the cache directory (relative to the output root if not absolute)
	Dir string `json:"dir,omitempty"`
}

// PolicyConfig overrides design rule severities
type PolicyConfig struct {
	// Rules maps rule names to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty"`
}

const (
	defaultTop          = "pcie_host_wrapper"
	defaultSystemDomain = "sys"
	defaultSysClkFreq   = 100e6
	defaultCacheDir     = ".s7pcie_cache"
	defaultPart         = "xc7a200tfbg484-2"
)

// DefaultConfig returns a sensible default configuration: a four lane Gen1
// link with the ECAM window at 0 and a 256MB MMIO window at 0x40000000
func DefaultConfig() *Config {
	cfg := &Config{
		Link: LinkConfig{
			Lanes:        4,
			MaxLinkSpeed: region.Speed2_5GT,
			RefClkFreq:   100e6,
			DataWidth:    64,
			IDWidth:      4,
		},
		Regions: RegionsConfig{
			ECAM: &region.Region{Origin: 0x0, Size: 0x1000000},
			MMIO: &region.Region{Origin: 0x40000000, Size: 0x10000000},
		},
		Pads: PadsConfig{HasRstN: true},
		Simulate: SimulateConfig{
			Enabled: true,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func boolPtr(v bool) *bool {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./s7pcie.json (current working directory)
//  2. ./.s7pcie.json (current working directory)
//  3. <rootPath>/s7pcie.json (if different from cwd)
//  4. ~/.config/s7pcie/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	path := Find(rootPath)
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// Find returns the first configuration file on the search path, or ""
func Find(rootPath string) string {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, FileName),
		filepath.Join(cwd, "."+FileName),
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			searchPaths = append(searchPaths,
				filepath.Join(rootPath, FileName),
				filepath.Join(rootPath, "."+FileName),
			)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "s7pcie", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for missing fields
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults. Identifier
// widths are left alone since zero is a legal width.
func (c *Config) applyDefaults() {
	if c.Top == "" {
		c.Top = defaultTop
	}
	if c.SystemDomain == "" {
		c.SystemDomain = defaultSystemDomain
	}
	if c.SysClkFreq == 0 {
		c.SysClkFreq = defaultSysClkFreq
	}

	if c.Link.Lanes == 0 {
		c.Link.Lanes = 4
	}
	if c.Link.MaxLinkSpeed == "" {
		c.Link.MaxLinkSpeed = region.Speed2_5GT
	}
	if c.Link.RefClkFreq == 0 {
		c.Link.RefClkFreq = 100e6
	}
	if c.Link.DataWidth == 0 {
		c.Link.DataWidth = 64
	}
	if c.Link.PCIeDataWidth == 0 {
		c.Link.PCIeDataWidth = c.Link.DataWidth
	}
	if c.Link.PCIeIDWidth == 0 {
		c.Link.PCIeIDWidth = c.Link.IDWidth
	}
	if c.Link.SyncStages == 0 {
		c.Link.SyncStages = 2
	}

	if c.Outputs.Tcl == "" {
		c.Outputs.Tcl = "ip.tcl"
	}
	if c.Outputs.XDC == "" {
		c.Outputs.XDC = "pcie.xdc"
	}
	if c.Outputs.Verilog == "" {
		c.Outputs.Verilog = c.Top + ".v"
	}
	if c.Outputs.Facts == "" {
		c.Outputs.Facts = "facts.json"
	}
	if c.Outputs.Result == "" {
		c.Outputs.Result = "result.json"
	}

	if c.Simulate.Transactions == 0 {
		c.Simulate.Transactions = 32
	}
	if c.Simulate.Seed == 0 {
		c.Simulate.Seed = 1
	}

	if c.Toolchain.Part == "" {
		c.Toolchain.Part = defaultPart
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir
	}
	if c.Cache.Enabled == nil {
		c.Cache.Enabled = boolPtr(true)
	}

	if c.Policy.Rules == nil {
		c.Policy.Rules = make(map[string]string)
	}
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// RegionLink returns the link parameters of the hard core side
func (c *Config) RegionLink() region.LinkConfig {
	return region.LinkConfig{
		Lanes:        c.Link.Lanes,
		MaxLinkSpeed: c.Link.MaxLinkSpeed,
		RefClkFreq:   c.Link.RefClkFreq,
		DataWidth:    c.Link.PCIeDataWidth,
		IDWidth:      c.Link.PCIeIDWidth,
		DMAIDWidth:   c.Link.DMAIDWidth,
	}
}

// CacheEnabled reports whether the result cache is on
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// GetRuleSeverity returns the severity for a rule, or the default if not configured
func (c *Config) GetRuleSeverity(rule string, defaultSeverity string) string {
	if severity, ok := c.Policy.Rules[rule]; ok {
		return severity
	}
	return defaultSeverity
}

// IsRuleEnabled returns true if the rule is not set to "off"
func (c *Config) IsRuleEnabled(rule string) bool {
	if severity, ok := c.Policy.Rules[rule]; ok {
		return severity != "off"
	}
	return true // enabled by default
}
