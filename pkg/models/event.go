package models

import "time"

// EventType identifies a workflow event.
type EventType string

const (
	EventWorkflowStart    EventType = "workflow_start"
	EventWorkflowComplete EventType = "workflow_complete"
	EventWorkflowError    EventType = "workflow_error"
	EventStepStart        EventType = "step_start"
	EventStepComplete     EventType = "step_complete"
	EventStepError        EventType = "step_error"
	EventLLMStart         EventType = "llm_start"
	EventLLMComplete      EventType = "llm_complete"
	EventLLMError         EventType = "llm_error"
	EventToolStart        EventType = "tool_start"
	EventToolComplete     EventType = "tool_complete"
	EventToolError        EventType = "tool_error"
	EventMessageAdded     EventType = "message_added"
	EventProgressUpdate   EventType = "progress_update"
)

// Event is one append-only record emitted by the workflow runtime. Sequence
// numbers are assigned by the bus and are strictly increasing per process, so
// consumers can order events without comparing timestamps.
type Event struct {
	ID            string         `json:"id"`
	Sequence      uint64         `json:"sequence"`
	Timestamp     time.Time      `json:"timestamp"`
	Type          EventType      `json:"event_type"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	StepID        string         `json:"step_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	UserRequestID string         `json:"user_request_id,omitempty"`
}
