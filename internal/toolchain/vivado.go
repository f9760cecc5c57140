// Package toolchain finds and runs the external Vivado batch tool on the
// generated pre-synthesis script.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// EnvBin overrides the tool location
const EnvBin = "S7PCIE_VIVADO_BIN"

// ErrNotFound is returned when no tool binary can be located
var ErrNotFound = errors.New("vivado binary not found")

// Tool is a located Vivado executable
type Tool struct {
	Path string
}

// Report describes one finished tool run
type Report struct {
	Binary     string   `json:"binary"`
	Args       []string `json:"args"`
	DurationMS int64    `json:"duration_ms"`
}

// Locate returns the tool named by S7PCIE_VIVADO_BIN, then the one under
// $XILINX_VIVADO/bin, then the first vivado on PATH.
func Locate() (*Tool, error) {
	if env := os.Getenv(EnvBin); env != "" {
		if existsExecutable(env) {
			return &Tool{Path: env}, nil
		}
		return nil, fmt.Errorf("%s is set but not executable: %s", EnvBin, env)
	}

	if root := os.Getenv("XILINX_VIVADO"); root != "" {
		candidate := filepath.Join(root, "bin", "vivado")
		if existsExecutable(candidate) {
			return &Tool{Path: candidate}, nil
		}
	}

	if path, err := exec.LookPath("vivado"); err == nil {
		return &Tool{Path: path}, nil
	}
	return nil, ErrNotFound
}

func existsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// BatchArgs are the arguments of a non-interactive run of script
func BatchArgs(script string) []string {
	return []string{"-mode", "batch", "-nolog", "-nojournal", "-notrace", "-source", script}
}

// Run executes script in batch mode with dir as working directory. The
// tool's output is copied to out when it is non-nil; stderr is also kept
// for the error message.
func (t *Tool) Run(ctx context.Context, dir, script string, out io.Writer) (Report, error) {
	args := BatchArgs(script)
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = io.MultiWriter(out, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	report := Report{
		Binary:     t.Path,
		Args:       args,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		if ctx.Err() != nil {
			return report, fmt.Errorf("running %s: %w", filepath.Base(t.Path), ctx.Err())
		}
		return report, fmt.Errorf("running %s: %w (%s)", filepath.Base(t.Path), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return report, nil
}
