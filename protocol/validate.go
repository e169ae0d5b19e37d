package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/frame.schema.json
var frameSchema []byte

const frameSchemaURL = "frame.schema.json"

// Validator checks inbound payloads against the frame JSON schema before
// they are decoded. It is optional; Decode already rejects payloads it
// cannot interpret.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded frame schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(frameSchemaURL, bytes.NewReader(frameSchema)); err != nil {
		return nil, fmt.Errorf("adding frame schema: %w", err)
	}
	s, err := c.Compile(frameSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling frame schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate reports an ErrMalformed-wrapped error when b violates the schema.
// Empty payloads are valid.
func (v *Validator) Validate(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
