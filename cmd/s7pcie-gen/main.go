// =============================================================================
// s7pcie-gen - 7-series PCIe host bridge generator
// =============================================================================
//
// Elaborates the PCIe host bridge into a netlist and writes everything the
// build needs to instantiate it next to a system clock domain.
//
// THE PIPELINE:
//   1. CUE validates s7pcie.json (crash on unknown or out-of-range fields)
//   2. The host builder resolves regions and link into IP parameters, then
//      wires the hard core, the three clock converters and the reset tree
//   3. CUE validates the IP option lists and the netlist fact tables
//   4. OPA evaluates the clock-domain-crossing rules against the facts
//   5. The bridge models run loopback traffic through each converter
//   6. ip.tcl, pcie.xdc, the Verilog wrapper, facts.json and result.json
//      are written atomically
//
// WHEN A RULE FIRES:
//   Dump the facts (s7pcie-facts) and look at the bindings and crossings the
//   rule names before touching the rule.
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tty "github.com/mattn/go-tty"

	"github.com/robert-at-pretension-io/s7pciehost/internal/config"
	"github.com/robert-at-pretension-io/s7pciehost/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		os.Exit(runGenerate(os.Args[1:]))
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: s7pcie-gen [command] [options] <outdir>

Commands:
  init              Create an s7pcie.json configuration file
  <outdir>          Generate the host bridge into outdir

Options:
  -v, --verbose     Enable verbose output
  -c, --config      Specify config file: s7pcie-gen -c s7pcie.json <outdir>
  --json            Print the run result as JSON
  --timing          Write stage timing to <outdir>/timing.jsonl
  -h, --help        Show this help message

Configuration:
  s7pcie-gen looks for configuration in:
    1. ./s7pcie.json
    2. ./.s7pcie.json
    3. <outdir>/s7pcie.json
    4. ~/.config/s7pcie/config.json

  Run 's7pcie-gen init' to create a default configuration file.`)
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing file without asking")
	_ = fs.Parse(args)

	configPath := config.FileName
	if fs.NArg() > 0 {
		configPath = fs.Arg(0)
	}

	if _, err := os.Stat(configPath); err == nil && !*force {
		if !confirm(fmt.Sprintf("Config file %s already exists. Overwrite? [y/N]: ", configPath)) {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Link width, speed and reference clock")
	fmt.Println("  - ECAM and MMIO windows")
	fmt.Println("  - Design rule severities")
}

// confirm asks on the controlling terminal. Without one the answer is no.
func confirm(prompt string) bool {
	t, err := tty.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "no terminal to confirm on (%v); use --force\n", err)
		return false
	}
	defer t.Close()

	fmt.Fprint(t.Output(), prompt)
	response, err := t.ReadString()
	if err != nil {
		return false
	}
	response = strings.TrimSpace(response)
	return response == "y" || response == "Y"
}

func runGenerate(args []string) int {
	fs := flag.NewFlagSet("s7pcie-gen", flag.ContinueOnError)
	var verbose, jsonOut, timing bool
	var configPath string
	fs.BoolVar(&verbose, "v", false, "verbose output")
	fs.BoolVar(&verbose, "verbose", false, "verbose output")
	fs.StringVar(&configPath, "c", "", "config file")
	fs.StringVar(&configPath, "config", "", "config file")
	fs.BoolVar(&jsonOut, "json", false, "print the run result as JSON")
	fs.BoolVar(&timing, "timing", false, "write stage timing JSONL")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		printUsage()
		return 1
	}
	outdir := fs.Arg(0)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", configPath, err)
			return 1
		}
	} else {
		cfg, err = config.Load(outdir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := pipeline.New(cfg)
	r.Verbose = verbose
	r.JSONOutput = jsonOut
	r.Timing = timing
	if _, err := r.Run(ctx, outdir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, pipeline.ErrDesignRules) {
			return 2
		}
		return 1
	}
	return 0
}
