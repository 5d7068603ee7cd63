package toolconv

import (
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// Gemini's schema validator is strict and typed, so conversion does more than
// repackaging: types are uppercased, container types are forced from shape,
// missing array item schemas are inferred from the parameter name, and common
// NiFi parameter names correct mistyped string declarations.

// Array parameters that carry one object per batch operation.
var geminiObjectListParams = map[string]bool{
	"operations":          true,
	"objects":             true,
	"processors":          true,
	"ports":               true,
	"connections":         true,
	"controller_services": true,
	"process_groups":      true,
	"updates":             true,
}

// Array parameters that carry plain strings.
var geminiStringListParams = map[string]bool{
	"relationships":                 true,
	"auto_terminated_relationships": true,
	"property_names_to_delete":      true,
}

// Parameters that must be objects even when declared as strings.
var geminiObjectParams = map[string]bool{
	"properties":  true,
	"config":      true,
	"headers":     true,
	"update_data": true,
	"payload":     true,
	"variables":   true,
}

// Parameters that must be numeric.
var geminiNumberParams = map[string]bool{
	"timeout":          true,
	"position_x":       true,
	"position_y":       true,
	"max_wait_seconds": true,
}

var geminiIntegerParams = map[string]bool{
	"max_results":      true,
	"limit":            true,
	"offset":           true,
	"count":            true,
	"batch_size":       true,
	"concurrent_tasks": true,
}

// ToGeminiTools converts the canonical catalog to Gemini function
// declarations. A tool whose schema cannot be represented is skipped with a
// warning; the remaining tools are still returned.
func ToGeminiTools(tools []models.ToolDef, logger *slog.Logger) []*genai.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := CleanTools(tools)
	if len(cleaned) == 0 {
		return nil
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(cleaned))
	for _, tool := range cleaned {
		schema := ToGeminiSchema(tool.ParametersMap(), "")
		if schema == nil {
			logger.Warn("skipping tool with unrepresentable schema", "tool", tool.Name)
			continue
		}
		if schema.Type != genai.TypeObject {
			schema.Type = genai.TypeObject
		}
		if schema.Properties == nil {
			schema.Properties = map[string]*genai.Schema{}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}

	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// ToGeminiSchema converts a JSON-Schema map into Gemini's typed Schema.
// propName is the name of the property this schema describes; it drives item
// inference and type correction and is empty at the top level.
func ToGeminiSchema(schemaMap map[string]any, propName string) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	// Gemini has no anyOf; collapse to the first object-typed variant.
	if variants, ok := schemaMap["anyOf"].([]any); ok && len(variants) > 0 {
		chosen, _ := variants[0].(map[string]any)
		for _, variant := range variants {
			if m, ok := variant.(map[string]any); ok {
				if t, _ := m["type"].(string); strings.EqualFold(t, "object") {
					chosen = m
					break
				}
			}
		}
		if chosen != nil {
			merged := map[string]any{}
			for k, v := range chosen {
				merged[k] = v
			}
			if desc, ok := schemaMap["description"].(string); ok {
				merged["description"] = desc
			}
			return ToGeminiSchema(merged, propName)
		}
	}

	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				if converted := ToGeminiSchema(propMap, name); converted != nil {
					schema.Properties[name] = converted
				}
			}
		}
		// A node with properties is an object no matter what it claimed.
		schema.Type = genai.TypeObject
	}

	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = ToGeminiSchema(items, propName)
		schema.Type = genai.TypeArray
	}

	// Enum values are strings; never retype an enum-carrying property.
	if len(schema.Enum) == 0 {
		if corrected := correctedGeminiType(propName, schema.Type); corrected != "" {
			schema.Type = corrected
		}
	}

	if schema.Type == genai.TypeArray && schema.Items == nil {
		schema.Items = inferredItemSchema(propName)
	}

	return schema
}

// correctedGeminiType fixes parameters whose upstream schema declares string
// (or nothing) but whose name implies another type. Returns "" when no
// correction applies.
func correctedGeminiType(name string, current genai.Type) genai.Type {
	if name == "" {
		return ""
	}
	if current != "" && current != genai.TypeString {
		return ""
	}

	switch {
	case geminiObjectParams[name]:
		return genai.TypeObject
	case geminiObjectListParams[name], geminiStringListParams[name]:
		return genai.TypeArray
	case geminiNumberParams[name],
		strings.HasSuffix(name, "_timeout"),
		strings.HasSuffix(name, "_seconds"):
		return genai.TypeNumber
	case geminiIntegerParams[name],
		strings.HasSuffix(name, "_port"),
		strings.HasSuffix(name, "_count"):
		return genai.TypeInteger
	case strings.HasPrefix(name, "include_"),
		strings.HasSuffix(name, "_enabled"),
		name == "disconnected_node_acknowledged":
		return genai.TypeBoolean
	}
	return ""
}

// inferredItemSchema picks an item type for an array that declared none.
// Batch-operation parameters hold objects, known scalar lists hold strings,
// and anything else defaults to objects.
func inferredItemSchema(name string) *genai.Schema {
	if geminiStringListParams[name] {
		return &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{Type: genai.TypeObject}
}
