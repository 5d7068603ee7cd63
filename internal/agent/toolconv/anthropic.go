package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// ToAnthropicTools converts the canonical catalog to Anthropic tool
// definitions. The cleaned parameters schema is repackaged as input_schema.
func ToAnthropicTools(tools []models.ToolDef) ([]anthropic.ToolUnionParam, error) {
	cleaned := CleanTools(tools)
	if len(cleaned) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(cleaned))
	for _, tool := range cleaned {
		param, err := toAnthropicTool(tool)
		if err != nil {
			return nil, err
		}
		result = append(result, param)
	}
	return result, nil
}

func toAnthropicTool(tool models.ToolDef) (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
	}

	param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	if param.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
	}
	if tool.Description != "" {
		param.OfTool.Description = anthropic.String(tool.Description)
	}
	return param, nil
}
