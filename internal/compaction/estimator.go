// Package compaction reduces conversation history to fit a provider token
// budget while preserving the structural invariants of the message sequence.
package compaction

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// CharsPerToken is the approximation used where no real tokenizer exists.
// Roughly 4 characters per token for English text and JSON.
const CharsPerToken = 4

// Estimator computes input-token estimates for one provider/model pair.
// OpenAI-dialect providers use a real tokenizer when its vocabulary can be
// loaded; everything else uses the character approximation.
type Estimator struct {
	provider string
	model    string
}

// NewEstimator returns an estimator for the given provider and model.
func NewEstimator(provider, model string) *Estimator {
	return &Estimator{provider: provider, model: model}
}

// CountText estimates tokens for a text fragment.
func (e *Estimator) CountText(text string) int {
	if text == "" {
		return 0
	}
	switch e.provider {
	case "openai", "perplexity":
		if enc := encoderFor(e.model); enc != nil {
			return len(enc.EncodeOrdinary(text))
		}
		// Heuristic fallback: punctuation-heavy text tokenizes denser than
		// a word count suggests, so take the larger of the two estimates.
		wordBased := (len(strings.Fields(text))*4 + 2) / 3
		charBased := approxTokens(text)
		if wordBased > charBased {
			return wordBased
		}
		return charBased
	default:
		return approxTokens(text)
	}
}

// CountMessages estimates tokens for a message list. Tool results and
// serialized tool-call payloads always use the character approximation; only
// plain message text goes through the real tokenizer.
func (e *Estimator) CountMessages(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		if msg.Role == models.RoleTool {
			total += approxTokens(msg.Content)
		} else if msg.Content != "" {
			total += e.CountText(msg.Content)
		}
		if len(msg.ToolCalls) > 0 {
			if payload, err := json.Marshal(msg.ToolCalls); err == nil {
				total += approxTokens(string(payload))
			}
		}
	}
	return total
}

// CountTools estimates tokens for the tool catalog using a compact JSON
// encoding of each definition.
func (e *Estimator) CountTools(tools []models.ToolDef) int {
	total := 0
	for _, tool := range tools {
		compact := struct {
			Name        string          `json:"name"`
			Description string          `json:"description,omitempty"`
			Parameters  json.RawMessage `json:"parameters,omitempty"`
		}{tool.Name, tool.Description, tool.Parameters}
		if payload, err := json.Marshal(compact); err == nil {
			total += e.CountText(string(payload))
		}
	}
	return total
}

// CountContext estimates the full prompt cost: messages plus tool catalog.
func (e *Estimator) CountContext(messages []models.Message, tools []models.ToolDef) int {
	return e.CountMessages(messages) + e.CountTools(tools)
}

func approxTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

var (
	encoderMu    sync.Mutex
	encoderCache = map[string]*tiktoken.Tiktoken{}
)

// encoderFor returns a cached tiktoken encoder for the model, falling back to
// cl100k_base for unknown models and nil when no vocabulary can be loaded
// (air-gapped hosts with a cold cache).
func encoderFor(model string) *tiktoken.Tiktoken {
	encoderMu.Lock()
	defer encoderMu.Unlock()

	if enc, ok := encoderCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	encoderCache[model] = enc
	return enc
}
