package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var compiled sync.Map // schema source -> *jsonschema.Schema

func compile(schemaJSON string) (*jsonschema.Schema, error) {
	if sch, ok := compiled.Load(schemaJSON); ok {
		return sch.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile JSON schema: %w", err)
	}
	compiled.Store(schemaJSON, sch)
	return sch, nil
}

// ValidateJSONWithSchema validates a JSON data string against a JSON schema string.
// An empty schema accepts everything.
func ValidateJSONWithSchema(schemaJSON string, dataJSON string) error {
	if schemaJSON == "" {
		return nil
	}
	sch, err := compile(schemaJSON)
	if err != nil {
		return err
	}

	var data interface{}
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w", err)
	}
	return validate(sch, data)
}

// ValidateValue validates an in-memory value (typically a decoded request payload)
// against a JSON schema string.
func ValidateValue(schemaJSON string, value any) error {
	if schemaJSON == "" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for validation: %w", err)
	}
	if string(raw) == "null" {
		raw = []byte("{}")
	}
	return ValidateJSONWithSchema(schemaJSON, string(raw))
}

func validate(sch *jsonschema.Schema, data interface{}) error {
	if err := sch.Validate(data); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("JSON data failed validation against schema: %v", validationErr)
		}
		return fmt.Errorf("JSON data failed validation (unexpected error type): %w", err)
	}
	return nil
}
