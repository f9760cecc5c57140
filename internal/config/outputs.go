package config

import "path/filepath"

// OutputPaths are the absolute artifact paths of one run
type OutputPaths struct {
	Root    string
	Dir     string
	Tcl     string
	XDC     string
	Verilog string
	Facts   string
	Result  string
	Cache   string
}

// ResolveOutputs places every artifact relative to rootPath. Absolute names
// in the configuration are kept as they are.
func (c *Config) ResolveOutputs(rootPath string) OutputPaths {
	root, err := filepath.Abs(rootPath)
	if err != nil {
		root = filepath.Clean(rootPath)
	}
	dir := under(root, c.Outputs.Dir)
	return OutputPaths{
		Root:    root,
		Dir:     dir,
		Tcl:     under(dir, c.Outputs.Tcl),
		XDC:     under(dir, c.Outputs.XDC),
		Verilog: under(dir, c.Outputs.Verilog),
		Facts:   under(dir, c.Outputs.Facts),
		Result:  under(dir, c.Outputs.Result),
		Cache:   under(root, c.Cache.Dir),
	}
}

// Artifacts returns the generated file paths in write order
func (p OutputPaths) Artifacts() []string {
	return []string{p.Tcl, p.XDC, p.Verilog, p.Facts, p.Result}
}

func under(base, name string) string {
	if name == "" {
		return base
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(base, name)
}
