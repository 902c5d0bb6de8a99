package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates a Shared store snapshot against a JSON Schema
// (Draft 2020-12). Validation happens once at the run boundary rather
// than per access; inside a run the store stays duck-typed.
// Safe for concurrent use after construction.
type Validator struct {
	compiled *jsonschema.Schema
}

// NewValidator compiles the given JSON Schema document.
func NewValidator(schemaJSON []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, NewError(ErrCodeValidation, "unmarshal context schema").WithCause(err)
	}
	const id = "dojo://schemas/context.json"
	if err := c.AddResource(id, doc); err != nil {
		return nil, NewError(ErrCodeValidation, "add context schema resource").WithCause(err)
	}
	compiled, err := c.Compile(id)
	if err != nil {
		return nil, NewError(ErrCodeValidation, "compile context schema").WithCause(err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks a snapshot of the shared store against the schema.
func (v *Validator) Validate(shared *Shared) error {
	if shared == nil {
		return NewError(ErrCodeValidation, "shared context is nil")
	}

	doc, err := toJSONValue(shared.Snapshot())
	if err != nil {
		return NewError(ErrCodeValidation, "serialize shared context").WithCause(err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return NewErrorf(ErrCodeValidation, "shared context schema violation: %s", err.Error()).WithCause(err)
	}
	return nil
}

// toJSONValue round-trips a value through JSON so numbers become
// json.Number, matching what the validator expects.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}
