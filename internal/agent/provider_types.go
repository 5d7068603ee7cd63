// Package agent implements the iteration loop that drives an LLM against the
// NiFi tool catalog, plus the dispatcher that routes completion requests to
// the configured provider adapters.
package agent

import (
	"context"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// CompletionRequest is a provider-independent completion request. Messages
// are canonical; the adapter translates them to the provider wire format.
type CompletionRequest struct {
	// Model identifier understood by the provider.
	Model string

	// System prompt. Adapters place it wherever the provider expects it
	// (leading message, top-level parameter, or system instruction).
	System string

	// Conversation history, invariants already enforced by the caller.
	Messages []models.Message

	// Canonical tool catalog; adapters run it through toolconv.
	Tools []models.ToolDef

	// MaxTokens caps the response length. Zero means the adapter default.
	MaxTokens int
}

// Completion is the uniform response shape every adapter produces.
type Completion struct {
	Content   string
	ToolCalls []models.ToolCall
	TokensIn  int
	TokensOut int
}

// Provider is a single LLM backend.
type Provider interface {
	// Complete performs one blocking model call.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the stable lowercase provider identifier.
	Name() string

	// Models returns the configured model identifiers for this provider.
	Models() []string
}
