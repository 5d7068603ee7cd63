package agent

import (
	"testing"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

func TestCleanHistoryKeepsWellFormedConversation(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "t"}}},
		{Role: models.RoleTool, ToolCallID: "c1", Content: "{}"},
		{Role: models.RoleAssistant, Content: "done"},
	}
	out := CleanHistory(messages, nil)
	if len(out) != len(messages) {
		t.Fatalf("CleanHistory dropped %d messages from a valid conversation", len(messages)-len(out))
	}
}

func TestCleanHistoryDropsOrphanToolMessage(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleTool, ToolCallID: "ghost", Content: "{}"},
		{Role: models.RoleAssistant, Content: "done"},
	}
	out := CleanHistory(messages, nil)
	if len(out) != 2 {
		t.Fatalf("CleanHistory() kept %d messages, want 2", len(out))
	}
	for _, m := range out {
		if m.Role == models.RoleTool {
			t.Fatalf("orphan tool message survived")
		}
	}
}

func TestCleanHistoryDropsPartiallyAnsweredBatch(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "a"},
			{ID: "c2", Name: "b"},
		}},
		{Role: models.RoleTool, ToolCallID: "c1", Content: "{}"},
		{Role: models.RoleUser, Content: "next"},
	}
	out := CleanHistory(messages, nil)
	if err := models.ValidateSequence(out); err != nil {
		t.Fatalf("cleaned history is invalid: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("CleanHistory() kept %d messages, want 2 (both users)", len(out))
	}
}

func TestCleanHistoryDropsMisplacedSystemMessage(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleSystem, Content: "late system"},
	}
	out := CleanHistory(messages, nil)
	if len(out) != 1 || out[0].Role != models.RoleUser {
		t.Fatalf("CleanHistory() = %+v", out)
	}
}

func TestCleanHistoryIsFixedPoint(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "a"}, {ID: "c2", Name: "b"}}},
		{Role: models.RoleTool, ToolCallID: "c1", Content: "{}"},
		{Role: models.RoleTool, ToolCallID: "unknown", Content: "{}"},
		{Role: models.RoleAssistant, Content: "done"},
		{Role: models.RoleSystem, Content: "late"},
	}
	once := CleanHistory(messages, nil)
	twice := CleanHistory(once, nil)
	if len(once) != len(twice) {
		t.Fatalf("second clean changed the history: %d -> %d", len(once), len(twice))
	}
	if err := models.ValidateSequence(once); err != nil {
		t.Fatalf("cleaned history is invalid: %v", err)
	}
}
