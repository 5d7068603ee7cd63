package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/agent/toolconv"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// defaultAnthropicMaxTokens caps responses when the request doesn't say.
// Anthropic requires max_tokens on every call.
const defaultAnthropicMaxTokens = 4096

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Models  []string

	MaxRetries  int
	RetryDelay  time.Duration
	HTTPTimeout time.Duration

	Logger *slog.Logger
}

// AnthropicProvider talks to the Anthropic Messages API. The system prompt is
// a top-level parameter rather than a message, and both directions use typed
// content blocks.
type AnthropicProvider struct {
	base   BaseProvider
	client anthropic.Client
	models []string
}

// NewAnthropicProvider creates the adapter.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.HTTPTimeout),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		base:   NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay, cfg.Logger),
		client: anthropic.NewClient(options...),
		models: cfg.Models,
	}, nil
}

func (p *AnthropicProvider) Name() string     { return "anthropic" }
func (p *AnthropicProvider) Models() []string { return p.models }

// Complete performs one Messages API call.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	converted, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if tools, err := toolconv.ToAnthropicTools(req.Tools); err != nil {
		return nil, fmt.Errorf("anthropic: convert tools: %w", err)
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	var message *anthropic.Message
	err = p.base.RetryWithBackoff(ctx, func() error {
		var callErr error
		message, callErr = p.client.Messages.New(ctx, params)
		if callErr != nil {
			return p.wrapError(callErr, req.Model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.fromWire(message), nil
}

// fromWire flattens the response content blocks: text blocks concatenate into
// Content, tool_use blocks become canonical tool calls.
func (p *AnthropicProvider) fromWire(message *anthropic.Message) *agent.Completion {
	completion := &agent.Completion{
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			input, err := json.Marshal(b.Input)
			if err != nil {
				input = []byte(`{}`)
			}
			completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}
	completion.Content = text.String()
	return completion
}

// convertMessages maps canonical messages onto Anthropic message params.
// The system message is skipped (it travels in params.System), assistant
// messages become block lists, and tool results ride in user messages.
func (p *AnthropicProvider) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}
	return result, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
				pe = pe.WithMessage(payload.Error.Message)
			}
		}
		return pe
	}
	return NewProviderError("anthropic", model, err)
}
