package payload

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidationError reports a value rejected by a JSON schema
type SchemaValidationError struct {
	Argument string
	Details  string
	Value    interface{}
}

func (e *SchemaValidationError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("schema validation failed for argument '%s': %s", e.Argument, e.Details)
	}
	return fmt.Sprintf("schema validation failed: %s", e.Details)
}

// Schema is a compiled JSON schema
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// CompileSchema compiles a JSON schema given as a JSON string, JSON bytes
// or a Go value. name labels validation errors.
func CompileSchema(name string, schema interface{}) (*Schema, error) {
	var loader gojsonschema.JSONLoader
	switch s := schema.(type) {
	case string:
		loader = gojsonschema.NewStringLoader(s)
	case []byte:
		loader = gojsonschema.NewBytesLoader(s)
	default:
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for %q: %w", name, err)
		}
		loader = gojsonschema.NewBytesLoader(raw)
	}
	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %q: %w", name, err)
	}
	return &Schema{name: name, schema: compiled}, nil
}

// Validate checks a decoded value against the schema
func (s *Schema) Validate(value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &SchemaValidationError{
			Argument: s.name,
			Details:  fmt.Sprintf("failed to marshal value for validation: %v", err),
			Value:    value,
		}
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &SchemaValidationError{
			Argument: s.name,
			Details:  fmt.Sprintf("failed to validate: %v", err),
			Value:    value,
		}
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, fmt.Sprintf("  - %s", desc))
		}
		return &SchemaValidationError{
			Argument: s.name,
			Details:  strings.Join(details, "\n"),
			Value:    value,
		}
	}
	return nil
}
