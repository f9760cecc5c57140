package validator

// =============================================================================
// VALIDATOR PHILOSOPHY: CRASH EARLY, CRASH LOUD
// =============================================================================
//
// The CUE contracts sit on every boundary where Go data leaves the typed
// world: the configuration file coming in, the IP option lists going to the
// build tool, the fact tables going to the rego engine, and the result
// document going out.
//
// Without validation a renamed JSON field reaches rego as `undefined`, the
// rule never fires and the netlist looks clean. With validation the run stops
// with "field not allowed" and names the field.
//
// WHEN VALIDATION FAILS:
// 1. DON'T loosen the schema to make the error go away
// 2. DO trace back to the producer (config defaults, ipgen formatter,
//    facts extraction, pipeline result) and fix it there
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed config_schema.cue ip_schema.cue facts_schema.cue result_schema.cue
var schemaFS embed.FS

// contract is one compiled schema file and the definition data is unified with
type contract struct {
	ctx    *cue.Context
	schema cue.Value
	def    string
}

func newContract(file, def string) (*contract, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema %s: %w", file, err)
	}

	schema := ctx.CompileBytes(schemaBytes, cue.Filename(file))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", file, schema.Err())
	}
	if d := schema.LookupPath(cue.ParsePath(def)); d.Err() != nil {
		return nil, fmt.Errorf("looking up %s definition: %w", def, d.Err())
	}

	return &contract{ctx: ctx, schema: schema, def: def}, nil
}

func (c *contract) unify(jsonBytes []byte) (cue.Value, error) {
	dataValue := c.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling JSON as CUE: %w", dataValue.Err())
	}
	return c.schema.LookupPath(cue.ParsePath(c.def)).Unify(dataValue), nil
}

func (c *contract) validateJSON(jsonBytes []byte) error {
	unified, err := c.unify(jsonBytes)
	if err != nil {
		return err
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", c.def, err)
	}
	return nil
}

func (c *contract) validate(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling data to JSON: %w", err)
	}
	return c.validateJSON(jsonBytes)
}

// errorList returns one line per CUE error, or nil when data is valid
func (c *contract) errorList(data interface{}) []string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return []string{fmt.Sprintf("marshal error: %v", err)}
	}
	unified, err := c.unify(jsonBytes)
	if err != nil {
		return []string{err.Error()}
	}
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}

// ConfigValidator validates configuration documents against #Config
type ConfigValidator struct{ c *contract }

// NewConfigValidator creates a validator for configuration documents
func NewConfigValidator() (*ConfigValidator, error) {
	c, err := newContract("config_schema.cue", "#Config")
	if err != nil {
		return nil, err
	}
	return &ConfigValidator{c: c}, nil
}

// Validate checks a decoded configuration
func (v *ConfigValidator) Validate(cfg interface{}) error {
	return v.c.validate(cfg)
}

// ValidateJSON checks a configuration file as written on disk
func (v *ConfigValidator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes)
}

// ValidationErrors returns every violation of the contract
func (v *ConfigValidator) ValidationErrors(cfg interface{}) []string {
	return v.c.errorList(cfg)
}

// IPValidator validates resolved IP instances before their Tcl is emitted
type IPValidator struct{ c *contract }

// NewIPValidator creates a validator for []ipgen.Spec
func NewIPValidator() (*IPValidator, error) {
	c, err := newContract("ip_schema.cue", "#IPInstances")
	if err != nil {
		return nil, err
	}
	return &IPValidator{c: c}, nil
}

// Validate checks a list of IP instances
func (v *IPValidator) Validate(specs interface{}) error {
	return v.c.validate(specs)
}

// FactsValidator validates relational fact tables against the facts schema.
type FactsValidator struct{ c *contract }

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	c, err := newContract("facts_schema.cue", "#FactTables")
	if err != nil {
		return nil, err
	}
	return &FactsValidator{c: c}, nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data interface{}) error {
	return v.c.validate(data)
}

// ResultValidator validates the run result document
type ResultValidator struct{ c *contract }

// NewResultValidator creates a validator for run results
func NewResultValidator() (*ResultValidator, error) {
	c, err := newContract("result_schema.cue", "#Result")
	if err != nil {
		return nil, err
	}
	return &ResultValidator{c: c}, nil
}

// Validate checks that the result conforms to the result schema
func (v *ResultValidator) Validate(data interface{}) error {
	return v.c.validate(data)
}
