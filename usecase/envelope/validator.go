// Package envelope validates untrusted command envelopes before they reach
// an engine backend. Validation failures are returned as data.
package envelope

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kompox/patchbay/domain/model"
)

//go:embed envelope.schema.json
var schemaJSON string

// RootField names the document itself in field errors.
const RootField = "(root)"

// Config sets the operation ceilings.
type Config struct {
	DefaultMaxOps int
	HardMaxOps    int
}

// FieldError is one validation failure.
type FieldError struct {
	Field   string          `json:"field"`
	Kind    model.ErrorKind `json:"kind"`
	Rule    string          `json:"rule,omitempty"`
	Message string          `json:"message"`
	Details map[string]any  `json:"details,omitempty"`
}

// Result is the outcome of a validation.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
	// Count and Limit describe the operation check.
	Count int `json:"count"`
	Limit int `json:"limit"`
	// Envelope is the decoded envelope when Valid.
	Envelope *model.CommandEnvelope `json:"-"`
}

// Validator checks envelopes against the embedded JSON schema and the
// operation ceiling. It is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
	cfg    Config
}

// New compiles the schema.
func New(cfg Config) (*Validator, error) {
	if cfg.DefaultMaxOps <= 0 {
		cfg.DefaultMaxOps = model.DefaultMaxOps
	}
	if cfg.HardMaxOps <= 0 {
		cfg.HardMaxOps = model.HardMaxOps
	}
	if cfg.DefaultMaxOps > cfg.HardMaxOps {
		return nil, fmt.Errorf("default maxOps %d exceeds hard ceiling %d", cfg.DefaultMaxOps, cfg.HardMaxOps)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &Validator{schema: s, cfg: cfg}, nil
}

// MustNew is New that panics on error.
func MustNew(cfg Config) *Validator {
	v, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a raw JSON document. It never returns a Go error:
// unparseable input is reported as a single root field error.
func (v *Validator) Validate(raw []byte) *Result {
	res := &Result{}
	sr, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		res.Errors = append(res.Errors, FieldError{
			Field:   RootField,
			Kind:    model.KindSchemaValidationFailed,
			Rule:    "parse",
			Message: err.Error(),
		})
		return res
	}
	for _, e := range sr.Errors() {
		res.Errors = append(res.Errors, fieldError(e))
	}
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Field < res.Errors[j].Field })

	count, requested := probe(raw)
	probeEnv := &model.CommandEnvelope{}
	if requested > 0 {
		probeEnv.Constraints = &model.Constraints{MaxOps: requested}
	}
	res.Count = count
	res.Limit = probeEnv.MaxOps(v.cfg.DefaultMaxOps, v.cfg.HardMaxOps)
	if count > res.Limit {
		res.Errors = append(res.Errors, FieldError{
			Field:   "actions",
			Kind:    model.KindTooManyOperations,
			Rule:    "maxOps",
			Message: fmt.Sprintf("%d actions exceed the limit of %d", count, res.Limit),
			Details: map[string]any{"count": count, "limit": res.Limit},
		})
	}

	if len(res.Errors) > 0 {
		return res
	}
	var env model.CommandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		res.Errors = append(res.Errors, FieldError{Field: RootField, Kind: model.KindSchemaValidationFailed, Rule: "decode", Message: err.Error()})
		return res
	}
	res.Valid = true
	res.Envelope = &env
	return res
}

// ValidateEnvelope checks an already decoded envelope.
func (v *Validator) ValidateEnvelope(env *model.CommandEnvelope) *Result {
	if env == nil {
		return &Result{Errors: []FieldError{{Field: RootField, Kind: model.KindSchemaValidationFailed, Rule: "required", Message: "envelope is missing"}}}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return &Result{Errors: []FieldError{{Field: RootField, Kind: model.KindSchemaValidationFailed, Rule: "encode", Message: err.Error()}}}
	}
	res := v.Validate(raw)
	if res.Valid {
		res.Envelope = env
	}
	return res
}

func fieldError(e gojsonschema.ResultError) FieldError {
	field := e.Field()
	details := map[string]any{}
	for k, v := range e.Details() {
		if k == "field" || k == "context" {
			continue
		}
		details[k] = v
	}
	if e.Type() == "required" {
		if p, ok := e.Details()["property"].(string); ok {
			if field == RootField {
				field = p
			} else {
				field += "." + p
			}
		}
	}
	fe := FieldError{
		Field:   field,
		Kind:    model.KindSchemaValidationFailed,
		Rule:    e.Type(),
		Message: e.Description(),
	}
	if len(details) > 0 {
		fe.Details = details
	}
	return fe
}

// probe reads the action count and requested maxOps without trusting types.
func probe(raw []byte) (count, maxOps int) {
	var top map[string]json.RawMessage
	if json.Unmarshal(raw, &top) != nil {
		return 0, 0
	}
	var actions []json.RawMessage
	if a, ok := top["actions"]; ok && json.Unmarshal(a, &actions) == nil {
		count = len(actions)
	}
	var c struct {
		MaxOps int `json:"maxOps"`
	}
	if cr, ok := top["constraints"]; ok && json.Unmarshal(cr, &c) == nil {
		maxOps = c.MaxOps
	}
	return count, maxOps
}

// AsError converts an invalid result into a categorized error. It returns
// nil for a valid result.
func AsError(r *Result) error {
	if r == nil || r.Valid {
		return nil
	}
	onlyOps := len(r.Errors) > 0
	for _, e := range r.Errors {
		if e.Kind != model.KindTooManyOperations {
			onlyOps = false
		}
	}
	if onlyOps {
		return model.NewError(model.KindTooManyOperations, "%d actions exceed the limit of %d", r.Count, r.Limit).
			WithDetail("count", r.Count).
			WithDetail("limit", r.Limit).
			WithDetail("field", "actions")
	}
	msg := "envelope is invalid"
	if len(r.Errors) > 0 {
		msg = fmt.Sprintf("%s: %s", r.Errors[0].Field, r.Errors[0].Message)
		if n := len(r.Errors) - 1; n > 0 {
			msg += fmt.Sprintf(" (and %d more)", n)
		}
	}
	return model.NewError(model.KindSchemaValidationFailed, "%s", msg).WithDetail("errors", r.Errors)
}
