package compaction

import (
	"log/slog"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// PruneResult reports what pruning removed and kept.
type PruneResult struct {
	Messages        []models.Message
	DroppedGroups   int
	DroppedMessages int
	KeptTokens      int
	BudgetTokens    int
	// Aborted is set when a removal would have broken the message sequence
	// structure; the offending group was restored and pruning stopped.
	Aborted bool
}

// turnGroup is a half-open index range [start, end) over the message list
// covering one user turn: the user message plus every assistant message and
// its tool responses before the next user message.
type turnGroup struct {
	start int
	end   int
}

// PruneToBudget drops the oldest complete user turns until the estimated
// context cost fits the budget. The system message and the most recent K
// turns are always kept, where K is 1 when the context is more than twice
// over budget and 2 otherwise. Groups are recomputed after every removal and
// each removal is structurally revalidated; a removal that breaks the
// sequence is rolled back and pruning stops.
func PruneToBudget(messages []models.Message, budget int, est *Estimator, tools []models.ToolDef, logger *slog.Logger) PruneResult {
	if logger == nil {
		logger = slog.Default()
	}

	result := PruneResult{Messages: messages, BudgetTokens: budget}
	total := est.CountContext(messages, tools)
	result.KeptTokens = total
	if budget <= 0 || total <= budget {
		return result
	}

	keep := 2
	if total > 2*budget {
		keep = 1
	}

	working := models.CloneMessages(messages)
	for total > budget {
		groups := splitTurnGroups(working)
		if len(groups) <= keep {
			break
		}

		oldest := groups[0]
		candidate := make([]models.Message, 0, len(working)-(oldest.end-oldest.start))
		candidate = append(candidate, working[:oldest.start]...)
		candidate = append(candidate, working[oldest.end:]...)

		if err := models.ValidateSequence(candidate); err != nil {
			logger.Warn("pruning would break message structure, keeping remaining history",
				"error", err,
				"group_start", oldest.start,
				"group_end", oldest.end)
			result.Aborted = true
			break
		}

		result.DroppedGroups++
		result.DroppedMessages += oldest.end - oldest.start
		working = candidate
		total = est.CountContext(working, tools)
	}

	result.Messages = working
	result.KeptTokens = total
	if total > budget {
		logger.Debug("history still over budget after pruning",
			"kept_tokens", total,
			"budget_tokens", budget,
			"kept_turns", len(splitTurnGroups(working)))
	}
	return result
}

// splitTurnGroups identifies user-turn boundaries. Messages before the first
// user message (the system prompt) are never part of a group.
func splitTurnGroups(messages []models.Message) []turnGroup {
	var groups []turnGroup
	start := -1
	for i, msg := range messages {
		if msg.Role == models.RoleUser {
			if start >= 0 {
				groups = append(groups, turnGroup{start: start, end: i})
			}
			start = i
		}
	}
	if start >= 0 {
		groups = append(groups, turnGroup{start: start, end: len(messages)})
	}
	return groups
}
