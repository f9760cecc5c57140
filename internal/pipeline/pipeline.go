// Package pipeline runs the host bridge generator end to end: it validates
// the configuration, elaborates the netlist, checks it against the
// clock-domain-crossing rules, runs the bridge models, and writes the
// generated files.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robert-at-pretension-io/s7pciehost/internal/config"
	"github.com/robert-at-pretension-io/s7pciehost/internal/facts"
	"github.com/robert-at-pretension-io/s7pciehost/internal/host"
	"github.com/robert-at-pretension-io/s7pciehost/internal/platform"
	"github.com/robert-at-pretension-io/s7pciehost/internal/policy"
	"github.com/robert-at-pretension-io/s7pciehost/internal/toolchain"
	"github.com/robert-at-pretension-io/s7pciehost/internal/validator"
	"github.com/robert-at-pretension-io/s7pciehost/internal/verilog"
)

// ErrDesignRules is returned when the netlist has error-severity violations
var ErrDesignRules = errors.New("design rule violations")

// Artifact kinds, in write order
const (
	kindTcl     = "tcl"
	kindXDC     = "xdc"
	kindVerilog = "verilog"
	kindFacts   = "facts"
	kindResult  = "result"
)

// Result is the machine-readable summary of one run
type Result struct {
	Top         string             `json:"top"`
	ConfigHash  string             `json:"config_hash"`
	Cached      bool               `json:"cached"`
	Artifacts   []Artifact         `json:"artifacts"`
	IPInstances []string           `json:"ip_instances"`
	Bridges     []BridgeSummary    `json:"bridges"`
	Clocks      map[string]float64 `json:"clocks"`
	Simulation  []SimReport        `json:"simulation"`
	Violations  []policy.Violation `json:"violations"`
	Summary     policy.Summary     `json:"summary"`
	Toolchain   *ToolchainReport   `json:"toolchain,omitempty"`
}

// Artifact is one generated file. Path is relative to the output root. The
// result file carries no digest of itself.
type Artifact struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// BridgeSummary describes one clock converter of the design
type BridgeSummary struct {
	Name         string `json:"name"`
	Module       string `json:"module"`
	Protocol     string `json:"protocol"`
	DataWidth    int    `json:"data_width"`
	IDWidth      int    `json:"id_width"`
	MasterDomain string `json:"master_domain"`
	SlaveDomain  string `json:"slave_domain"`
}

// ToolchainReport records the external tool run
type ToolchainReport struct {
	Ran        bool   `json:"ran"`
	Binary     string `json:"binary"`
	DurationMS int64  `json:"duration_ms"`
}

// Runner executes the pipeline
type Runner struct {
	// Config is loaded from the output root when nil
	Config *config.Config

	Verbose    bool
	JSONOutput bool
	Timing     bool
	TimingPath string

	// Out receives the text or JSON report; os.Stdout when nil
	Out io.Writer
}

// New creates a Runner for cfg
func New(cfg *config.Config) *Runner {
	return &Runner{Config: cfg}
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) logf(format string, args ...any) {
	if r.Verbose && !r.JSONOutput {
		fmt.Fprintf(r.out(), format, args...)
	}
}

// generated is the in-memory output of a fresh run
type generated struct {
	result *Result
	files  map[string]string
}

// Run generates every artifact under outdir. Non-fatal problems (timing file
// or cache unusable) do not stop the run; they are returned together once
// the artifacts are written.
func (r *Runner) Run(ctx context.Context, outdir string) (*Result, error) {
	runStart := time.Now()
	pipelineErrs := make([]error, 0)
	recordPipelineErr := func(err error) {
		pipelineErrs = append(pipelineErrs, err)
	}

	if r.Config == nil {
		cfg, err := config.Load(outdir)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		r.Config = cfg
	}
	cfg := r.Config
	paths := cfg.ResolveOutputs(outdir)

	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	timing := newTimingRecorder(runStart, r.resolveTimingPath(paths.Root))
	if err := timing.Err(); err != nil {
		recordPipelineErr(fmt.Errorf("timing output disabled: %w", err))
	}
	defer timing.Close()

	// 1. Validate configuration
	stepStart := time.Now()
	cv, err := validator.NewConfigValidator()
	if err != nil {
		return nil, fmt.Errorf("config contract: %w", err)
	}
	if errs := cv.ValidationErrors(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}
	hash, err := configHash(cfg)
	if err != nil {
		return nil, err
	}
	timing.RecordStage("config", stepStart, time.Since(stepStart), "")
	r.logf("Configuration %s (%s)\n", cfg.Top, hash[:12])

	// 2. Generate, or replay from the cache
	var entry *resultCacheEntry
	if cfg.CacheEnabled() {
		entry, err = loadResultCache(paths.Cache)
		if err != nil {
			recordPipelineErr(fmt.Errorf("result cache ignored: %w", err))
			entry = nil
		}
	}

	var gen *generated
	if resultCacheValid(entry, hash) {
		stepStart = time.Now()
		res := entry.Result
		res.Cached = true
		gen = &generated{result: &res, files: entry.Files}
		timing.RecordStage("generate", stepStart, time.Since(stepStart), "cached")
		r.logf("Using cached result\n")
	} else {
		gen, err = r.generate(ctx, cfg, timing)
		if err != nil {
			return gen.resultOrNil(), err
		}
		gen.result.ConfigHash = hash
		if cfg.CacheEnabled() {
			save := resultCacheEntry{
				Version:    resultCacheVersion,
				ConfigHash: hash,
				Result:     *gen.result,
				Files:      gen.files,
			}
			if err := saveResultCache(paths.Cache, save); err != nil {
				recordPipelineErr(err)
			}
		}
	}
	result := gen.result

	// 3. Write artifacts
	stepStart = time.Now()
	targets := []struct {
		kind string
		path string
	}{
		{kindTcl, paths.Tcl},
		{kindXDC, paths.XDC},
		{kindVerilog, paths.Verilog},
		{kindFacts, paths.Facts},
	}
	result.Artifacts = make([]Artifact, 0, len(targets)+1)
	for _, t := range targets {
		data := []byte(gen.files[t.kind])
		if err := writeFileAtomic(t.path, data); err != nil {
			return result, fmt.Errorf("write %s: %w", t.kind, err)
		}
		result.Artifacts = append(result.Artifacts, Artifact{
			Kind:   t.kind,
			Path:   relPath(paths.Root, t.path),
			SHA256: hashBytes(data),
		})
		r.logf("  wrote %s\n", t.path)
	}
	result.Artifacts = append(result.Artifacts, Artifact{
		Kind: kindResult,
		Path: relPath(paths.Root, paths.Result),
	})
	timing.RecordStage("write", stepStart, time.Since(stepStart), "")

	// 4. Optional toolchain run
	if cfg.Toolchain.Run {
		stepStart = time.Now()
		report, err := r.runToolchain(ctx, paths)
		if err != nil {
			return result, err
		}
		result.Toolchain = report
		timing.RecordStage("toolchain", stepStart, time.Since(stepStart), "")
	}

	// 5. Result document
	rv, err := validator.NewResultValidator()
	if err != nil {
		return result, fmt.Errorf("result contract: %w", err)
	}
	if err := rv.Validate(result); err != nil {
		return result, fmt.Errorf("result contract: %w", err)
	}
	if err := writeJSONAtomic(paths.Result, result); err != nil {
		return result, fmt.Errorf("write result: %w", err)
	}

	r.report(result)
	if r.Verbose && !r.JSONOutput {
		fmt.Fprintf(r.out(), "  total:       %s\n", formatDuration(time.Since(runStart)))
	}
	timing.RecordStage("total", runStart, time.Since(runStart), "")

	if len(pipelineErrs) > 0 {
		return result, fmt.Errorf("pipeline errors:\n%s", formatPipelineErrors(pipelineErrs))
	}
	return result, nil
}

func (g *generated) resultOrNil() *Result {
	if g == nil {
		return nil
	}
	return g.result
}

// Elaborate builds the standalone wrapper described by cfg and returns it
// with the platform sink holding its constraints and IP commands
func Elaborate(cfg *config.Config) (*host.Design, *platform.Vivado, error) {
	plat := platform.NewVivado(cfg.Toolchain.Part)
	design, err := host.BuildStandalone(plat, host.Standalone{
		Name:         cfg.Top,
		SystemDomain: cfg.SystemDomain,
		HasRstN:      cfg.Pads.HasRstN,
		Config: host.Config{
			Link:      cfg.RegionLink(),
			DataWidth: cfg.Link.DataWidth,
			IDWidth:   cfg.Link.IDWidth,
		},
		ECAM:    cfg.Regions.ECAM,
		MMIO:    cfg.Regions.MMIO,
		Options: []host.Option{host.WithSyncStages(cfg.Link.SyncStages)},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("elaborate: %w", err)
	}
	return design, plat, nil
}

// generate elaborates the design and produces every file in memory. Nothing
// is written unless the whole of it succeeds.
func (r *Runner) generate(ctx context.Context, cfg *config.Config, timing *timingRecorder) (*generated, error) {
	// Elaborate
	stepStart := time.Now()
	design, plat, err := Elaborate(cfg)
	if err != nil {
		return nil, err
	}
	timing.RecordStage("elaborate", stepStart, time.Since(stepStart), "")
	r.logf("Elaborated %s: %d nets, %d instances, %d crossings\n",
		design.Netlist.Name, len(design.Netlist.Nets), len(design.Netlist.Instances), len(design.Netlist.Crossings))

	// IP contract
	stepStart = time.Now()
	iv, err := validator.NewIPValidator()
	if err != nil {
		return nil, fmt.Errorf("IP contract: %w", err)
	}
	if err := iv.Validate(design.Specs); err != nil {
		return nil, fmt.Errorf("IP instances: %w", err)
	}
	timing.RecordStage("ip", stepStart, time.Since(stepStart), "")

	// Facts
	stepStart = time.Now()
	tables := facts.FromNetlist(design.Netlist, design.Specs)
	fv, err := validator.NewFactsValidator()
	if err != nil {
		return nil, fmt.Errorf("facts contract: %w", err)
	}
	if err := fv.Validate(tables); err != nil {
		return nil, fmt.Errorf("fact tables: %w", err)
	}
	factsJSON, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal facts: %w", err)
	}
	timing.RecordStage("facts", stepStart, time.Since(stepStart), "")

	// Design rules
	stepStart = time.Now()
	engine, err := policy.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	raw, err := engine.Evaluate(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	rules := raw.WithSeverities(cfg.Policy.Rules)
	timing.RecordStage("policy", stepStart, time.Since(stepStart), "")

	result := &Result{
		Top:         cfg.Top,
		Artifacts:   []Artifact{},
		IPInstances: make([]string, 0, len(design.Specs)),
		Bridges:     make([]BridgeSummary, 0, len(design.Bridges)),
		Clocks:      design.ClockFrequencies(cfg.SysClkFreq),
		Simulation:  []SimReport{},
		Violations:  rules.Violations,
		Summary:     rules.Summary,
	}
	for _, s := range design.Specs {
		result.IPInstances = append(result.IPInstances, s.ModuleName)
	}
	for _, b := range design.Bridges {
		result.Bridges = append(result.Bridges, BridgeSummary{
			Name:         b.Name,
			Module:       b.Module,
			Protocol:     b.Params.Protocol.String(),
			DataWidth:    b.Params.DataWidth,
			IDWidth:      b.Params.IDWidth,
			MasterDomain: b.MasterDomain,
			SlaveDomain:  b.SlaveDomain,
		})
	}
	gen := &generated{result: result}
	if rules.HasErrors() {
		r.report(result)
		return gen, fmt.Errorf("%w: %d errors", ErrDesignRules, rules.Summary.Errors)
	}

	// Bridge models
	if cfg.Simulate.Enabled {
		stepStart = time.Now()
		reports, err := simulateBridges(design, result.Clocks, cfg.Simulate.Transactions, cfg.Simulate.Seed)
		if err != nil {
			return gen, err
		}
		result.Simulation = reports
		timing.RecordStage("simulate", stepStart, time.Since(stepStart), "")
		r.logf("Simulated %d bridges, %d transactions each\n", len(reports), cfg.Simulate.Transactions)
	}

	// Render
	stepStart = time.Now()
	v, err := verilog.Emit(design.Netlist)
	if err != nil {
		return gen, fmt.Errorf("verilog: %w", err)
	}
	gen.files = map[string]string{
		kindTcl:     plat.Tcl(),
		kindXDC:     plat.XDC(),
		kindVerilog: v,
		kindFacts:   string(factsJSON) + "\n",
	}
	timing.RecordStage("render", stepStart, time.Since(stepStart), "")

	return gen, nil
}

func (r *Runner) runToolchain(ctx context.Context, paths config.OutputPaths) (*ToolchainReport, error) {
	tool, err := toolchain.Locate()
	if err != nil {
		return nil, fmt.Errorf("toolchain: %w", err)
	}
	script, err := filepath.Rel(paths.Dir, paths.Tcl)
	if err != nil {
		script = paths.Tcl
	}
	var out io.Writer = io.Discard
	if r.Verbose && !r.JSONOutput {
		out = r.out()
	}
	rep, err := tool.Run(ctx, paths.Dir, script, out)
	if err != nil {
		return nil, fmt.Errorf("toolchain: %w", err)
	}
	return &ToolchainReport{Ran: true, Binary: rep.Binary, DurationMS: rep.DurationMS}, nil
}

// report prints the result in the selected output mode
func (r *Runner) report(result *Result) {
	w := r.out()
	if r.JSONOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	if len(result.Violations) > 0 {
		fmt.Fprintf(w, "\n=== Design Rule Violations ===\n")
		for _, v := range result.Violations {
			icon := "ℹ"
			if v.Severity == "error" {
				icon = "✗"
			} else if v.Severity == "warning" {
				icon = "⚠"
			}
			fmt.Fprintf(w, "%s [%s] %s - %s\n", icon, v.Rule, v.Subject, v.Message)
		}
	}

	fmt.Fprintf(w, "\n=== Design Rule Summary ===\n")
	fmt.Fprintf(w, "  Errors:   %d\n", result.Summary.Errors)
	fmt.Fprintf(w, "  Warnings: %d\n", result.Summary.Warnings)
	fmt.Fprintf(w, "  Info:     %d\n", result.Summary.Info)

	if len(result.Bridges) > 0 {
		fmt.Fprintf(w, "\n=== Bridges ===\n")
		for _, b := range result.Bridges {
			fmt.Fprintf(w, "  %-16s %-9s %3d bit  %s -> %s\n", b.Name, b.Protocol, b.DataWidth, b.MasterDomain, b.SlaveDomain)
		}
	}

	if len(result.Simulation) > 0 {
		fmt.Fprintf(w, "\n=== Simulation ===\n")
		for _, s := range result.Simulation {
			fmt.Fprintf(w, "  %-16s writes %d, reads %d\n", s.Bridge, s.Writes, s.Reads)
		}
	}

	if len(result.Artifacts) > 0 {
		fmt.Fprintf(w, "\n=== Artifacts ===\n")
		for _, a := range result.Artifacts {
			fmt.Fprintf(w, "  %-8s %s\n", a.Kind, a.Path)
		}
	}
	if result.Cached {
		fmt.Fprintf(w, "  (from cache)\n")
	}
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func formatPipelineErrors(errs []error) string {
	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(err.Error())
	}
	return b.String()
}
