package models

import "encoding/json"

// ToolDef is one entry of the canonical tool catalog: a name, a description,
// and a restricted JSON-Schema object for the parameters. The catalog is
// sourced from the MCP server's tools/list and rewritten per provider by the
// toolconv package.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ParametersMap decodes the parameters schema into a generic map, returning an
// empty object schema when the schema is absent or malformed.
func (t ToolDef) ParametersMap() map[string]any {
	schema := map[string]any{}
	if len(t.Parameters) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if err := json.Unmarshal(t.Parameters, &schema); err != nil || len(schema) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema
}
