package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/agent/toolconv"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// PerplexityBaseURL is the OpenAI-compatible endpoint Perplexity exposes.
const PerplexityBaseURL = "https://api.perplexity.ai"

// OpenAIConfig configures an OpenAI-dialect adapter.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint. Used for Perplexity and for
	// OpenAI-compatible test servers.
	BaseURL string

	// Models is the ordered list of allowed model identifiers.
	Models []string

	MaxRetries  int
	RetryDelay  time.Duration
	HTTPTimeout time.Duration

	Logger *slog.Logger
}

// OpenAIProvider talks to OpenAI's chat completions API, or to any endpoint
// speaking the same dialect.
type OpenAIProvider struct {
	base   BaseProvider
	client *openai.Client
	name   string
	models []string
}

// NewOpenAIProvider creates an adapter named "openai".
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	return newOpenAIDialect("openai", cfg)
}

// NewPerplexityProvider creates an adapter named "perplexity" pointed at
// Perplexity's OpenAI-compatible endpoint unless a base URL is supplied.
func NewPerplexityProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = PerplexityBaseURL
	}
	return newOpenAIDialect("perplexity", cfg)
}

func newOpenAIDialect(name string, cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(name + ": API key is required")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	return &OpenAIProvider{
		base:   NewBaseProvider(name, cfg.MaxRetries, cfg.RetryDelay, cfg.Logger),
		client: openai.NewClientWithConfig(clientCfg),
		name:   name,
		models: cfg.Models,
	}, nil
}

func (p *OpenAIProvider) Name() string     { return p.name }
func (p *OpenAIProvider) Models() []string { return p.models }

// Complete performs one chat-completions call.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: p.convertMessages(req),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if tools := toolconv.ToOpenAITools(req.Tools); len(tools) > 0 {
		chatReq.Tools = tools
		chatReq.ToolChoice = "auto"
	}

	var resp openai.ChatCompletionResponse
	err := p.base.RetryWithBackoff(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil {
			return p.wrapError(callErr, req.Model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return &agent.Completion{
			TokensIn:  resp.Usage.PromptTokens,
			TokensOut: resp.Usage.CompletionTokens,
		}, nil
	}

	message := resp.Choices[0].Message
	completion := &agent.Completion{
		Content:   message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
	for _, tc := range message.ToolCalls {
		input := json.RawMessage(tc.Function.Arguments)
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return completion, nil
}

// convertMessages maps the canonical history onto the OpenAI wire shape and
// guarantees a leading system message when a system prompt is configured.
func (p *OpenAIProvider) convertMessages(req *agent.CompletionRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	hasSystem := len(req.Messages) > 0 && req.Messages[0].Role == models.RoleSystem
	if req.System != "" && !hasSystem {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case models.RoleAssistant:
			converted := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			out = append(out, converted)
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				Name:       msg.Name,
			})
		}
	}
	return out
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError(p.name, model, err).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			pe = pe.WithMessage(apiErr.Message)
		}
		return pe
	}
	return NewProviderError(p.name, model, err)
}
