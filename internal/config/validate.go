package config

import (
	"bytes"
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// Schema compiles the embedded CUE schema.
func Schema() (cue.Value, error) {
	v := cuecontext.New().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile config schema: %w", err)
	}
	return v, nil
}

// ValidateSchema checks raw YAML against the embedded CUE schema. Empty
// documents are accepted.
func ValidateSchema(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	schema, err := Schema()
	if err != nil {
		return err
	}
	file, err := yaml.Extract("config.yaml", data)
	if err != nil {
		return fmt.Errorf("%w: parse yaml: %v", ErrInvalidConfig, err)
	}
	doc := schema.Context().BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: build yaml: %v", ErrInvalidConfig, err)
	}
	final := schema.Unify(doc)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalidConfig, err)
	}
	return nil
}
