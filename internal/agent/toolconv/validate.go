package toolconv

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map

// CompileSchema compiles a parameters schema, caching by its serialized form.
func CompileSchema(schema []byte) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		schema = []byte(`{"type":"object"}`)
	}
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateArguments checks a tool-call argument object against the tool's
// parameters schema.
func ValidateArguments(schema []byte, args map[string]any) error {
	compiled, err := CompileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}

	// Round-trip through JSON so the validator sees plain decoded values.
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode tool arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("tool arguments invalid: %w", err)
	}
	return nil
}
