package events

import (
	"testing"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

func TestSummarizeRunTrail(t *testing.T) {
	trail := []models.Event{
		{Type: models.EventWorkflowStart},
		{Type: models.EventLLMComplete, Data: map[string]any{"tokens_in": 100, "tokens_out": 40}},
		{Type: models.EventToolComplete, Data: map[string]any{"tool": "list_nifi_objects"}},
		{Type: models.EventToolError, Data: map[string]any{"tool": "delete_nifi_object"}},
		{Type: models.EventLLMComplete, Data: map[string]any{"tokens_in": float64(80), "tokens_out": float64(20)}},
		{Type: models.EventWorkflowComplete, Data: map[string]any{"termination_reason": "task_complete"}},
	}

	stats := Summarize(trail)
	if stats.Iterations != 2 {
		t.Fatalf("Iterations = %d, want 2", stats.Iterations)
	}
	if stats.ToolCalls != 2 || stats.ToolFailures != 1 {
		t.Fatalf("tool calls = %d/%d failed", stats.ToolCalls, stats.ToolFailures)
	}
	if stats.TokensIn != 180 || stats.TokensOut != 60 {
		t.Fatalf("tokens = %d/%d", stats.TokensIn, stats.TokensOut)
	}
	if stats.Termination != "task_complete" {
		t.Fatalf("Termination = %q", stats.Termination)
	}
}

func TestSummarizeEmptyTrail(t *testing.T) {
	if got := Summarize(nil); got != (RunStats{}) {
		t.Fatalf("Summarize(nil) = %+v", got)
	}
}
