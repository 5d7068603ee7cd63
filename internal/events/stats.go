package events

import "github.com/stackoverflowed/nifimcp/pkg/models"

// RunStats aggregates one workflow run's totals from its event trail.
type RunStats struct {
	Iterations   int
	ToolCalls    int
	ToolFailures int
	TokensIn     int
	TokensOut    int
	Termination  string
}

// Summarize folds an event slice (typically Bus.EventsFor output) into totals.
func Summarize(trail []models.Event) RunStats {
	var stats RunStats
	for _, e := range trail {
		switch e.Type {
		case models.EventLLMComplete:
			stats.Iterations++
			stats.TokensIn += intField(e.Data, "tokens_in")
			stats.TokensOut += intField(e.Data, "tokens_out")
		case models.EventToolComplete:
			stats.ToolCalls++
		case models.EventToolError:
			stats.ToolCalls++
			stats.ToolFailures++
		case models.EventWorkflowComplete:
			if reason, ok := e.Data["termination_reason"].(string); ok {
				stats.Termination = reason
			}
		}
	}
	return stats
}

// intField tolerates the numeric types an event payload round-trips through.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
