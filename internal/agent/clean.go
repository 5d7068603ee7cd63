package agent

import (
	"log/slog"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// CleanHistory enforces the conversation invariants before the history is
// handed to a provider:
//
//   - only the leading system message survives
//   - an assistant message whose tool calls are not all answered by the
//     immediately following tool messages is dropped, together with any
//     partial answers it did receive
//   - tool messages that answer nothing are dropped
//
// The result of CleanHistory is a fixed point: cleaning it again changes
// nothing.
func CleanHistory(messages []models.Message, logger *slog.Logger) []models.Message {
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]models.Message, 0, len(messages))
	i := 0
	for i < len(messages) {
		msg := messages[i]

		switch msg.Role {
		case models.RoleSystem:
			if len(out) == 0 {
				out = append(out, msg)
			} else {
				logger.Warn("dropping misplaced system message", "position", i)
			}
			i++

		case models.RoleUser:
			out = append(out, msg)
			i++

		case models.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, msg)
				i++
				continue
			}

			// Collect the contiguous tool responses answering this batch.
			need := make(map[string]bool, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				need[tc.ID] = true
			}
			j := i + 1
			var answers []models.Message
			for j < len(messages) && messages[j].Role == models.RoleTool && need[messages[j].ToolCallID] {
				delete(need, messages[j].ToolCallID)
				answers = append(answers, messages[j])
				j++
			}

			if len(need) == 0 {
				out = append(out, msg)
				out = append(out, answers...)
			} else {
				logger.Warn("dropping assistant message with unresolved tool calls",
					"position", i,
					"unresolved", len(need))
			}
			i = j

		case models.RoleTool:
			logger.Warn("dropping orphan tool message",
				"position", i,
				"tool_call_id", msg.ToolCallID)
			i++

		default:
			logger.Warn("dropping message with unknown role", "position", i, "role", msg.Role)
			i++
		}
	}
	return out
}
