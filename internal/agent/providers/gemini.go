package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/agent/toolconv"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey string
	Models []string

	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// GeminiProvider talks to the Gemini API through the genai SDK. Gemini has
// no tool-call ids of its own, so canonical ids are minted on the way out and
// resolved back to function names on the way in.
type GeminiProvider struct {
	base   BaseProvider
	client *genai.Client
	models []string
}

// NewGeminiProvider creates the adapter.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiProvider{
		base:   NewBaseProvider("gemini", cfg.MaxRetries, cfg.RetryDelay, cfg.Logger),
		client: client,
		models: cfg.Models,
	}, nil
}

func (p *GeminiProvider) Name() string     { return "gemini" }
func (p *GeminiProvider) Models() []string { return p.models }

// Complete performs one generateContent call.
func (p *GeminiProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	contents := p.convertMessages(req.Messages)
	config := p.buildConfig(req)

	var resp *genai.GenerateContentResponse
	err := p.base.RetryWithBackoff(ctx, func() error {
		var callErr error
		resp, callErr = p.client.Models.GenerateContent(ctx, req.Model, contents, config)
		if callErr != nil {
			return NewProviderError("gemini", req.Model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.fromWire(resp, req)
}

// fromWire collects text and function-call parts from the first candidate and
// maps failure finish reasons onto typed errors.
func (p *GeminiProvider) fromWire(resp *genai.GenerateContentResponse, req *agent.CompletionRequest) (*agent.Completion, error) {
	completion := &agent.Completion{}
	if resp == nil {
		return completion, nil
	}

	if resp.UsageMetadata != nil {
		completion.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		completion.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 {
		return completion, nil
	}
	candidate := resp.Candidates[0]

	switch string(candidate.FinishReason) {
	case "MALFORMED_FUNCTION_CALL":
		return nil, &ProviderError{
			Provider: "gemini",
			Model:    req.Model,
			Kind:     KindMalformedFunctionCall,
			Message: fmt.Sprintf("model emitted a malformed function call; suspect tool schemas: %s",
				strings.Join(toolNames(req.Tools), ", ")),
		}
	case "SAFETY":
		return nil, &ProviderError{
			Provider: "gemini",
			Model:    req.Model,
			Kind:     KindSafetyBlocked,
			Message:  "response blocked by safety filters",
		}
	case "MAX_TOKENS":
		return nil, &ProviderError{
			Provider: "gemini",
			Model:    req.Model,
			Kind:     KindMaxTokens,
			Message:  "response truncated at the output token limit",
		}
	}

	if candidate.Content == nil {
		return completion, nil
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
				ID:    generateToolCallID(part.FunctionCall.Name),
				Name:  part.FunctionCall.Name,
				Input: MarshalArguments(part.FunctionCall.Args),
			})
		}
	}
	completion.Content = text.String()
	return completion, nil
}

// convertMessages maps canonical messages onto Gemini contents: assistant
// becomes the model role, tool results become function_response parts on the
// user side, and the system message is skipped (it travels as the system
// instruction).
func (p *GeminiProvider) convertMessages(messages []models.Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{}

		switch msg.Role {
		case models.RoleSystem:
			continue
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Role != models.RoleTool && msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: tc.Name,
					Args: args,
				},
			})
		}

		if msg.Role == models.RoleTool {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNameForCallID(msg.ToolCallID, messages),
					Response: wrapFunctionResponse(msg.Content),
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

// wrapFunctionResponse shapes a tool result for Gemini, which requires a JSON
// object. Objects pass through, lists are wrapped as {"results": ...}, and
// everything else as {"result": ...}.
func wrapFunctionResponse(content string) map[string]any {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return map[string]any{"result": content}
	}
	switch v := decoded.(type) {
	case map[string]any:
		return v
	case []any:
		return map[string]any{"results": v}
	default:
		return map[string]any{"result": v}
	}
}

func (p *GeminiProvider) buildConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(req.MaxTokens, 1<<31-1))
	}
	if tools := toolconv.ToGeminiTools(req.Tools, p.base.Logger()); len(tools) > 0 {
		config.Tools = tools
	}
	return config
}

// toolNameForCallID resolves a canonical tool-call id back to its function
// name by scanning the assistant messages that minted the id.
func toolNameForCallID(callID string, messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID == callID {
				return tc.Name
			}
		}
	}
	return "unknown_function"
}

// generateToolCallID mints an id for a Gemini function call, which carries
// none of its own.
func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}

func toolNames(tools []models.ToolDef) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
