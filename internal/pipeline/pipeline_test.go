package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/s7pciehost/internal/config"
	"github.com/robert-at-pretension-io/s7pciehost/internal/region"
	"github.com/robert-at-pretension-io/s7pciehost/internal/toolchain"
)

var stubVivado string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "s7pcie-pipeline-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	stubVivado = filepath.Join(dir, "vivado")
	script := "#!/bin/sh\necho \"$@\" > toolchain_args.txt\n"
	if err := os.WriteFile(stubVivado, []byte(script), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "write stub: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Simulate.Transactions = 8
	return cfg
}

func runForTest(t *testing.T, cfg *config.Config, outdir string) (*Result, string) {
	t.Helper()
	var out bytes.Buffer
	r := New(cfg)
	r.Out = &out
	res, err := r.Run(context.Background(), outdir)
	if err != nil {
		t.Fatalf("run: %v\noutput:\n%s", err, out.String())
	}
	return res, out.String()
}

func TestRunWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	res, out := runForTest(t, testConfig(), dir)

	if res.Cached {
		t.Fatalf("first run should not be cached")
	}
	if res.Summary.Errors != 0 {
		t.Fatalf("expected clean design, got %+v", res.Violations)
	}
	if len(res.IPInstances) != 4 {
		t.Fatalf("expected 4 IP instances, got %v", res.IPInstances)
	}
	if len(res.Bridges) != 3 || len(res.Simulation) != 3 {
		t.Fatalf("expected 3 bridges simulated, got %d/%d", len(res.Bridges), len(res.Simulation))
	}
	for _, s := range res.Simulation {
		if s.Writes != 8 || s.Reads != 8 {
			t.Errorf("%s: writes %d reads %d, want 8/8", s.Bridge, s.Writes, s.Reads)
		}
	}

	wantKinds := []string{kindTcl, kindXDC, kindVerilog, kindFacts, kindResult}
	if len(res.Artifacts) != len(wantKinds) {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
	for i, a := range res.Artifacts {
		if a.Kind != wantKinds[i] {
			t.Errorf("artifact %d kind = %s, want %s", i, a.Kind, wantKinds[i])
		}
		data, err := os.ReadFile(filepath.Join(dir, a.Path))
		if err != nil {
			t.Fatalf("read %s: %v", a.Path, err)
		}
		if a.Kind != kindResult && hashBytes(data) != a.SHA256 {
			t.Errorf("%s digest mismatch", a.Path)
		}
	}

	xdc, _ := os.ReadFile(filepath.Join(dir, "pcie.xdc"))
	if !strings.Contains(string(xdc), "create_clock -period 10.000 -name pcie_clk_p [get_ports pcie_clk_p]") {
		t.Fatalf("unexpected xdc:\n%s", xdc)
	}
	tcl, _ := os.ReadFile(filepath.Join(dir, "ip.tcl"))
	if !strings.Contains(string(tcl), "create_ip -vendor xilinx.com -name axi_pcie -module_name pcie_host_s7") {
		t.Fatalf("unexpected tcl:\n%s", tcl)
	}

	if !strings.Contains(out, "=== Design Rule Summary ===") {
		t.Fatalf("missing summary in output:\n%s", out)
	}
}

func TestRunCachedSecondRunIdentical(t *testing.T) {
	dir := t.TempDir()
	first, _ := runForTest(t, testConfig(), dir)
	before := readArtifacts(t, dir, first)

	second, out := runForTest(t, testConfig(), dir)
	if !second.Cached {
		t.Fatalf("second run should replay the cache")
	}
	if !strings.Contains(out, "(from cache)") {
		t.Fatalf("expected cache note in output:\n%s", out)
	}
	if first.ConfigHash != second.ConfigHash {
		t.Fatalf("config hash changed: %s vs %s", first.ConfigHash, second.ConfigHash)
	}
	after := readArtifacts(t, dir, second)
	for kind, data := range before {
		if !bytes.Equal(data, after[kind]) {
			t.Errorf("%s differs between runs", kind)
		}
	}
}

func TestRunConfigChangeInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	first, _ := runForTest(t, testConfig(), dir)

	cfg := testConfig()
	cfg.Link.Lanes = 8
	second, _ := runForTest(t, cfg, dir)
	if second.Cached {
		t.Fatalf("changed configuration must not hit the cache")
	}
	if first.ConfigHash == second.ConfigHash {
		t.Fatalf("config hash unchanged after lane change")
	}
}

func TestRunCacheDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	off := false
	cfg.Cache.Enabled = &off
	runForTest(t, cfg, dir)
	second, _ := runForTest(t, cfg, dir)
	if second.Cached {
		t.Fatalf("cache disabled but result replayed")
	}
	if _, err := os.Stat(filepath.Join(dir, ".s7pcie_cache")); !os.IsNotExist(err) {
		t.Fatalf("cache dir created with caching off: %v", err)
	}
}

func TestRunCorruptCacheIsReported(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, ".s7pcie_cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, "result_cache.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(testConfig())
	r.Out = &bytes.Buffer{}
	res, err := r.Run(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "pipeline errors:") {
		t.Fatalf("expected pipeline errors, got %v", err)
	}
	if res == nil || res.Cached {
		t.Fatalf("expected a fresh result, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "result.json")); err != nil {
		t.Fatalf("artifacts should still be written: %v", err)
	}
}

func TestRunMissingRegionWritesNothing(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Regions.MMIO = nil

	r := New(cfg)
	r.Out = &bytes.Buffer{}
	_, err := r.Run(context.Background(), dir)
	if !errors.Is(err, region.ErrMissingRegion) {
		t.Fatalf("expected ErrMissingRegion, got %v", err)
	}
	if !strings.Contains(err.Error(), "no MMIO region provided") {
		t.Fatalf("error should name the region: %v", err)
	}
	for _, name := range []string{"ip.tcl", "pcie.xdc", "pcie_host_wrapper.v", "facts.json", "result.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s written by a failed run", name)
		}
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Link.Lanes = 3

	r := New(cfg)
	r.Out = &bytes.Buffer{}
	_, err := r.Run(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected config contract failure, got %v", err)
	}
}

func TestRunJSONOutput(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	r := New(testConfig())
	r.Out = &out
	r.JSONOutput = true
	res, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not one JSON object: %v\n%s", err, out.String())
	}
	if decoded.ConfigHash != res.ConfigHash || decoded.Top != "pcie_host_wrapper" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestRunSimulationDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Simulate.Enabled = false
	res, _ := runForTest(t, cfg, dir)
	if len(res.Simulation) != 0 {
		t.Fatalf("simulation ran while disabled: %+v", res.Simulation)
	}
}

func TestRunSimulationWrapsInsideTopWindow(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Regions.MMIO = &region.Region{Origin: 0xfffff000, Size: 0x1000}
	cfg.Simulate.Transactions = 512
	res, _ := runForTest(t, cfg, dir)

	var found bool
	for _, s := range res.Simulation {
		if s.Bridge != "pcie_conv_mmio" {
			continue
		}
		found = true
		if s.Writes != 512 || s.Reads != 512 {
			t.Fatalf("mmio loopback = %d writes, %d reads, want 512 each", s.Writes, s.Reads)
		}
	}
	if !found {
		t.Fatalf("no mmio simulation report in %+v", res.Simulation)
	}
}

func TestRunOutputsDir(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Outputs.Dir = "gen"
	res, _ := runForTest(t, cfg, dir)
	if res.Artifacts[0].Path != "gen/ip.tcl" {
		t.Fatalf("tcl path = %s", res.Artifacts[0].Path)
	}
	if _, err := os.Stat(filepath.Join(dir, "gen", "pcie_host_wrapper.v")); err != nil {
		t.Fatalf("verilog not under outputs dir: %v", err)
	}
}

func TestRunToolchain(t *testing.T) {
	t.Setenv(toolchain.EnvBin, stubVivado)
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Toolchain.Run = true
	res, _ := runForTest(t, cfg, dir)

	if res.Toolchain == nil || !res.Toolchain.Ran || res.Toolchain.Binary != stubVivado {
		t.Fatalf("toolchain report = %+v", res.Toolchain)
	}
	args, err := os.ReadFile(filepath.Join(dir, "toolchain_args.txt"))
	if err != nil {
		t.Fatalf("stub did not run in the output dir: %v", err)
	}
	if !strings.Contains(string(args), "-source ip.tcl") {
		t.Fatalf("stub args = %q", args)
	}
}

func TestRunToolchainMissing(t *testing.T) {
	t.Setenv(toolchain.EnvBin, filepath.Join(t.TempDir(), "absent"))
	cfg := testConfig()
	cfg.Toolchain.Run = true
	r := New(cfg)
	r.Out = &bytes.Buffer{}
	if _, err := r.Run(context.Background(), t.TempDir()); err == nil || !strings.Contains(err.Error(), "toolchain") {
		t.Fatalf("expected toolchain error, got %v", err)
	}
}

func readArtifacts(t *testing.T, root string, res *Result) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, a := range res.Artifacts {
		if a.Kind == kindResult {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, a.Path))
		if err != nil {
			t.Fatalf("read %s: %v", a.Path, err)
		}
		out[a.Kind] = data
	}
	return out
}
