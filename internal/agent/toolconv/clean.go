// Package toolconv rewrites the canonical MCP tool catalog into the schema
// dialect each provider accepts. All conversions are idempotent: running a
// converter over its own output yields the same result.
package toolconv

import (
	"encoding/json"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// schemaKeys is the restricted schema vocabulary the engine supports. Keys
// outside this set (notably additionalProperties) are stripped everywhere.
var schemaKeys = map[string]bool{
	"type":        true,
	"properties":  true,
	"items":       true,
	"required":    true,
	"enum":        true,
	"description": true,
	"anyOf":       true,
}

// CleanTools applies the provider-independent cleanups to a tool catalog and
// returns a new catalog; the input is not modified.
func CleanTools(tools []models.ToolDef) []models.ToolDef {
	if len(tools) == 0 {
		return nil
	}
	out := make([]models.ToolDef, 0, len(tools))
	for _, tool := range tools {
		cleaned := CleanSchema(tool.ParametersMap(), tool.Name)
		payload, err := json.Marshal(cleaned)
		if err != nil {
			payload = []byte(`{"type":"object","properties":{}}`)
		}
		out = append(out, models.ToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  payload,
		})
	}
	return out
}

// CleanSchema normalizes one parameters schema:
//
//   - unknown keys are dropped recursively
//   - property values that are not objects, or are empty objects, become
//     {type: "string"}
//   - the update_data property of update_nifi_processor_config becomes an
//     anyOf accepting either an object or an array of strings
func CleanSchema(schema map[string]any, toolName string) map[string]any {
	cleaned := cleanNode(schema)
	if toolName == "update_nifi_processor_config" {
		if props, ok := cleaned["properties"].(map[string]any); ok {
			if _, ok := props["update_data"]; ok {
				props["update_data"] = map[string]any{
					"description": "Processor configuration update payload.",
					"anyOf": []any{
						map[string]any{"type": "object"},
						map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				}
			}
		}
	}
	return cleaned
}

func cleanNode(node map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range node {
		if !schemaKeys[key] {
			continue
		}
		switch key {
		case "properties":
			props, ok := value.(map[string]any)
			if !ok {
				continue
			}
			cleanedProps := map[string]any{}
			for name, prop := range props {
				propMap, ok := prop.(map[string]any)
				if !ok {
					cleanedProps[name] = map[string]any{"type": "string"}
					continue
				}
				cleanedProp := cleanNode(propMap)
				if len(cleanedProp) == 0 {
					cleanedProp = map[string]any{"type": "string"}
				}
				cleanedProps[name] = cleanedProp
			}
			out["properties"] = cleanedProps
		case "items":
			if itemsMap, ok := value.(map[string]any); ok {
				out["items"] = cleanNode(itemsMap)
			}
		case "anyOf":
			variants, ok := value.([]any)
			if !ok {
				continue
			}
			cleanedVariants := make([]any, 0, len(variants))
			for _, variant := range variants {
				if variantMap, ok := variant.(map[string]any); ok {
					cleanedVariants = append(cleanedVariants, cleanNode(variantMap))
				}
			}
			out["anyOf"] = cleanedVariants
		default:
			out[key] = value
		}
	}
	return out
}
