// Package models defines the canonical, provider-independent data types shared
// across the agent engine: conversation messages, the tool catalog, and
// workflow events.
package models

import (
	"encoding/json"
	"fmt"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the canonical conversation message. A conversation is an ordered
// sequence of messages; provider adapters translate to and from their wire
// formats, so nothing outside the adapters ever sees a provider shape.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Assistant messages may carry tool calls.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool messages reference the call they answer. Name is optional and
	// provider-dependent.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// Bookkeeping populated by the engine.
	TokenCountIn  int    `json:"token_count_in,omitempty"`
	TokenCountOut int    `json:"token_count_out,omitempty"`
	ActionID      string `json:"action_id,omitempty"`
	WorkflowID    string `json:"workflow_id,omitempty"`
	StepID        string `json:"step_id,omitempty"`
	UserRequestID string `json:"user_request_id,omitempty"`

	// IsStatusReport marks the best-effort summary appended when the
	// iteration budget runs out.
	IsStatusReport bool `json:"is_status_report,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool. Input is the raw
// JSON arguments object as the model produced it.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Arguments returns the call's input as a decoded object, defaulting to an
// empty map when the input is empty or malformed.
func (tc ToolCall) Arguments() map[string]any {
	args := map[string]any{}
	if len(tc.Input) == 0 {
		return args
	}
	if err := json.Unmarshal(tc.Input, &args); err != nil {
		return map[string]any{}
	}
	return args
}

// ValidateSequence checks the structural invariants of a conversation:
//
//   - at most one system message, and only at position 0
//   - every tool message answers a call id from the nearest preceding
//     assistant message that carries tool calls
//   - an assistant message with tool calls is fully answered before the next
//     user or non-tool-bearing assistant message
//   - no user message appears while tool calls are unresolved
//
// It returns the first violation found, or nil for a well-formed sequence.
func ValidateSequence(messages []Message) error {
	pending := map[string]bool{}

	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if i != 0 {
				return fmt.Errorf("system message at position %d (must be first)", i)
			}

		case RoleUser:
			if len(pending) > 0 {
				return fmt.Errorf("user message at position %d with %d unresolved tool calls", i, len(pending))
			}

		case RoleAssistant:
			if len(pending) > 0 {
				return fmt.Errorf("assistant message at position %d with %d unresolved tool calls", i, len(pending))
			}
			for _, tc := range msg.ToolCalls {
				pending[tc.ID] = true
			}

		case RoleTool:
			if msg.ToolCallID == "" {
				return fmt.Errorf("tool message at position %d without tool_call_id", i)
			}
			if !pending[msg.ToolCallID] {
				return fmt.Errorf("tool message at position %d answers unknown call %q", i, msg.ToolCallID)
			}
			delete(pending, msg.ToolCallID)

		default:
			return fmt.Errorf("message at position %d has unknown role %q", i, msg.Role)
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("conversation ends with %d unresolved tool calls", len(pending))
	}
	return nil
}

// CloneMessages returns a deep-enough copy of a message list: the slice and
// each message's tool-call slice are copied so the caller's view cannot be
// mutated by the engine.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	for i := range out {
		if len(out[i].ToolCalls) > 0 {
			calls := make([]ToolCall, len(out[i].ToolCalls))
			copy(calls, out[i].ToolCalls)
			out[i].ToolCalls = calls
		}
	}
	return out
}
