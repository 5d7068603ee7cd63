package providers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stackoverflowed/nifimcp/internal/agent"
)

// Options is the provider-independent construction input.
type Options struct {
	APIKey  string
	BaseURL string
	Models  []string

	MaxRetries  int
	RetryDelay  time.Duration
	HTTPTimeout time.Duration

	Logger *slog.Logger
}

// New builds the named adapter. Construction validates the credential but
// performs no network call, so it is safe to repeat.
func New(name string, opts Options) (agent.Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      opts.APIKey,
			BaseURL:     opts.BaseURL,
			Models:      opts.Models,
			MaxRetries:  opts.MaxRetries,
			RetryDelay:  opts.RetryDelay,
			HTTPTimeout: opts.HTTPTimeout,
			Logger:      opts.Logger,
		})
	case "perplexity":
		return NewPerplexityProvider(OpenAIConfig{
			APIKey:      opts.APIKey,
			BaseURL:     opts.BaseURL,
			Models:      opts.Models,
			MaxRetries:  opts.MaxRetries,
			RetryDelay:  opts.RetryDelay,
			HTTPTimeout: opts.HTTPTimeout,
			Logger:      opts.Logger,
		})
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:      opts.APIKey,
			BaseURL:     opts.BaseURL,
			Models:      opts.Models,
			MaxRetries:  opts.MaxRetries,
			RetryDelay:  opts.RetryDelay,
			HTTPTimeout: opts.HTTPTimeout,
			Logger:      opts.Logger,
		})
	case "gemini":
		return NewGeminiProvider(GeminiConfig{
			APIKey:     opts.APIKey,
			Models:     opts.Models,
			MaxRetries: opts.MaxRetries,
			RetryDelay: opts.RetryDelay,
			Logger:     opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
