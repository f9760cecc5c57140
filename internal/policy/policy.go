package policy

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/robert-at-pretension-io/s7pciehost/internal/facts"
)

//go:embed rules/*.rego
var rulesFS embed.FS

// Engine evaluates the clock-domain-crossing rules against netlist facts
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// Rules lists every rule the embedded policy can raise
var Rules = []string{
	"cdc_direct_binding",
	"cdc_resync_stages",
	"cdc_multibit_resync",
	"cdc_missing_period_constraint",
	"cdc_domain_clock_undriven",
	"cdc_reset_unsynchronized",
	"cdc_reset_share_target",
	"cdc_unknown_domain",
}

// New creates a policy engine from the embedded rule set
func New(ctx context.Context) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}

	files, err := fs.Glob(rulesFS, "rules/*.rego")
	if err != nil {
		return nil, fmt.Errorf("finding policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files embedded")
	}

	var modules []func(*rego.Rego)
	for _, f := range files {
		content, err := fs.ReadFile(rulesFS, f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		modules = append(modules, rego.Module(f, string(content)))
	}

	for name, q := range map[string]string{
		"violations": "data.s7pcie.cdc.all_violations",
		"summary":    "data.s7pcie.cdc.summary",
	} {
		opts := append(append([]func(*rego.Rego){}, modules...), rego.Query(q))
		query, err := rego.New(opts...).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", name, err)
		}
		engine.queries[name] = query
	}

	return engine, nil
}

// Evaluate runs the policies against the fact tables. Violations are sorted
// by rule, then subject.
func (e *Engine) Evaluate(ctx context.Context, tables facts.Tables) (*Result, error) {
	inputMap, err := structToMap(tables)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					Subject:  getString(vmap, "subject"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}
	sortViolations(result.Violations)

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
				Info:            getInt(smap, "info"),
			}
		}
	}

	return result, nil
}

// WithSeverities returns a copy of r with per-rule severity overrides
// applied. A rule set to "off" is dropped.
func (r *Result) WithSeverities(rules map[string]string) *Result {
	out := &Result{Violations: []Violation{}}
	for _, v := range r.Violations {
		if sev, ok := rules[v.Rule]; ok {
			if sev == "off" {
				continue
			}
			v.Severity = sev
		}
		out.Violations = append(out.Violations, v)
	}
	out.Summary = summarize(out.Violations)
	return out
}

// HasErrors reports whether any error-severity violation remains
func (r *Result) HasErrors() bool {
	return r.Summary.Errors > 0
}

func summarize(violations []Violation) Summary {
	s := Summary{TotalViolations: len(violations)}
	for _, v := range violations {
		switch v.Severity {
		case "error":
			s.Errors++
		case "warning":
			s.Warnings++
		case "info":
			s.Info++
		}
	}
	return s
}

func sortViolations(vs []Violation) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Rule != vs[j].Rule {
			return vs[i].Rule < vs[j].Rule
		}
		if vs[i].Subject != vs[j].Subject {
			return vs[i].Subject < vs[j].Subject
		}
		return vs[i].Message < vs[j].Message
	})
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}

// RulesHash fingerprints the embedded rule files. Cached results carry it so
// that a rule change invalidates them.
func RulesHash() (string, error) {
	files, err := fs.Glob(rulesFS, "rules/*.rego")
	if err != nil {
		return "", fmt.Errorf("policy rules hash: %w", err)
	}
	sort.Strings(files)
	h := sha256.New()
	for _, f := range files {
		content, err := fs.ReadFile(rulesFS, f)
		if err != nil {
			return "", fmt.Errorf("policy rules hash: %w", err)
		}
		h.Write([]byte(f))
		h.Write([]byte{0})
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
