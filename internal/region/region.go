// Package region turns the ECAM and MMIO decode windows plus the link
// parameters into the fixed parameter set of the hard core and its bridges.
package region

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig is wrapped by every configuration precondition failure
var ErrConfig = errors.New("configuration error")

// ErrMissingRegion is returned when configuration is resolved before both
// regions have been provided
var ErrMissingRegion = fmt.Errorf("%w: missing region", ErrConfig)

// AddrWidth is the address width of the AXI BAR windows
const AddrWidth = 32

// RootPortBAR is the size of the root port BAR0. It spans the whole AXI
// address space whatever the MMIO window, so inbound DMA reaches any
// address.
const RootPortBAR = uint64(1) << AddrWidth

// Region is a decode window
type Region struct {
	Origin uint64 `json:"origin"`
	Size   uint64 `json:"size"`
}

// High returns the last address inside the window
func (r Region) High() uint64 {
	return r.Origin + r.Size - 1
}

func (r Region) String() string {
	return fmt.Sprintf("origin 0x%08x size 0x%x", r.Origin, r.Size)
}

// Validate checks that the window is non-empty and fits in AddrWidth bits
func (r Region) Validate(name string) error {
	if r.Size == 0 {
		return fmt.Errorf("%w: %s region has size 0", ErrConfig, name)
	}
	limit := uint64(1) << AddrWidth
	if r.Origin >= limit || r.Size > limit-r.Origin {
		return fmt.Errorf("%w: %s region %s exceeds %d address bits", ErrConfig, name, r, AddrWidth)
	}
	return nil
}

// Supported link speeds
const (
	Speed2_5GT = "2.5_GT/s"
	Speed5_0GT = "5.0_GT/s"
)

var (
	validLanes      = []int{1, 2, 4, 8}
	validSpeeds     = []string{Speed2_5GT, Speed5_0GT}
	validRefClks    = []float64{100e6, 125e6, 250e6}
	validDataWidths = []int{64, 128}
)

// MaxIDWidth bounds the AXI identifier widths of the bridges
const MaxIDWidth = 8

// LinkConfig holds the construction parameters of the hard core. It is fixed
// once validated.
type LinkConfig struct {
	Lanes        int
	MaxLinkSpeed string
	RefClkFreq   float64
	DataWidth    int
	IDWidth      int
	DMAIDWidth   int
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Validate checks every field against the set the IP catalog accepts
func (l LinkConfig) Validate() error {
	if !containsInt(validLanes, l.Lanes) {
		return fmt.Errorf("%w: lane count %d not in {1,2,4,8}", ErrConfig, l.Lanes)
	}
	speedOK := false
	for _, s := range validSpeeds {
		if s == l.MaxLinkSpeed {
			speedOK = true
		}
	}
	if !speedOK {
		return fmt.Errorf("%w: max link speed %q not in {%s, %s}", ErrConfig, l.MaxLinkSpeed, Speed2_5GT, Speed5_0GT)
	}
	refOK := false
	for _, f := range validRefClks {
		if f == l.RefClkFreq {
			refOK = true
		}
	}
	if !refOK {
		return fmt.Errorf("%w: reference clock %g Hz not in {100,125,250} MHz", ErrConfig, l.RefClkFreq)
	}
	if !containsInt(validDataWidths, l.DataWidth) {
		return fmt.Errorf("%w: data width %d not in {64,128}", ErrConfig, l.DataWidth)
	}
	if l.IDWidth < 0 || l.IDWidth > MaxIDWidth {
		return fmt.Errorf("%w: id width %d not in [0,%d]", ErrConfig, l.IDWidth, MaxIDWidth)
	}
	if l.DMAIDWidth < 0 || l.DMAIDWidth > MaxIDWidth {
		return fmt.Errorf("%w: DMA id width %d not in [0,%d]", ErrConfig, l.DMAIDWidth, MaxIDWidth)
	}
	return nil
}

// RefClkPeriodNS returns the reference clock period in nanoseconds
func (l LinkConfig) RefClkPeriodNS() float64 {
	return 1e9 / l.RefClkFreq
}

// Resolved is the rendered parameter set consumed by the IP templates and
// the instance wiring
type Resolved struct {
	Link LinkConfig
	ECAM Region
	MMIO Region

	ECAMBase string
	ECAMHigh string
	MMIOBase string
	MMIOHigh string

	BARSize  int
	BARScale string

	Lanes        string
	MaxLinkSpeed string
	RefClk       string
}

// Configurator holds the two regions and the link parameters
type Configurator struct {
	link LinkConfig
	ecam *Region
	mmio *Region
}

// NewConfigurator validates link and returns a configurator with no regions
func NewConfigurator(link LinkConfig) (*Configurator, error) {
	if err := link.Validate(); err != nil {
		return nil, err
	}
	return &Configurator{link: link}, nil
}

// Link returns the link parameters
func (c *Configurator) Link() LinkConfig {
	return c.link
}

// UpdateRegions replaces both regions. A nil region clears it, and Resolve
// then fails until it is provided again.
func (c *Configurator) UpdateRegions(ecam, mmio *Region) error {
	if ecam != nil {
		if err := ecam.Validate("ECAM"); err != nil {
			return err
		}
	}
	if mmio != nil {
		if err := mmio.Validate("MMIO"); err != nil {
			return err
		}
	}
	c.ecam = copyRegion(ecam)
	c.mmio = copyRegion(mmio)
	return nil
}

func copyRegion(r *Region) *Region {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Regions returns copies of the stored regions
func (c *Configurator) Regions() (ecam, mmio *Region) {
	return copyRegion(c.ecam), copyRegion(c.mmio)
}

// Resolve renders the parameter set. It has no side effects.
func (c *Configurator) Resolve() (Resolved, error) {
	if c.ecam == nil {
		return Resolved{}, fmt.Errorf("%w: no ECAM region provided", ErrMissingRegion)
	}
	if c.mmio == nil {
		return Resolved{}, fmt.Errorf("%w: no MMIO region provided", ErrMissingRegion)
	}
	size, scale, err := BARWindow(RootPortBAR)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{
		Link:         c.link,
		ECAM:         *c.ecam,
		MMIO:         *c.mmio,
		ECAMBase:     Hex(c.ecam.Origin),
		ECAMHigh:     Hex(c.ecam.High()),
		MMIOBase:     Hex(c.mmio.Origin),
		MMIOHigh:     Hex(c.mmio.High()),
		BARSize:      size,
		BARScale:     scale,
		Lanes:        fmt.Sprintf("X%d", c.link.Lanes),
		MaxLinkSpeed: c.link.MaxLinkSpeed,
		RefClk:       fmt.Sprintf("%d_MHz", int(math.Round(c.link.RefClkFreq/1e6))),
	}, nil
}

// Hex renders an address as eight lowercase hex digits
func Hex(v uint64) string {
	return fmt.Sprintf("0x%08x", v)
}

// BARWindow returns the smallest power-of-two BAR covering size bytes, in the
// unit the IP catalog expects. BARs are at least 4 Kilobytes and at most the
// AXI address space.
func BARWindow(size uint64) (int, string, error) {
	if size > uint64(1)<<AddrWidth {
		return 0, "", fmt.Errorf("%w: BAR of 0x%x bytes exceeds %d address bits", ErrConfig, size, AddrWidth)
	}
	window := uint64(4 << 10)
	for window < size {
		window <<= 1
	}
	switch {
	case window >= 1<<30:
		return int(window >> 30), "Gigabytes", nil
	case window >= 1<<20:
		return int(window >> 20), "Megabytes", nil
	default:
		return int(window >> 10), "Kilobytes", nil
	}
}
