package toolconv

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// ToOpenAITools converts the canonical catalog to OpenAI function-tool format.
// Perplexity consumes the same shape.
func ToOpenAITools(tools []models.ToolDef) []openai.Tool {
	cleaned := CleanTools(tools)
	if len(cleaned) == 0 {
		return nil
	}

	result := make([]openai.Tool, 0, len(cleaned))
	for _, tool := range cleaned {
		var params map[string]any
		if err := json.Unmarshal(tool.Parameters, &params); err != nil || len(params) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}
