package events

import (
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// Sink scopes bus emission to one workflow run. It satisfies the engine's
// event sink interface, filling in the run identity the engine does not
// carry itself.
type Sink struct {
	bus           *Bus
	workflowID    string
	stepID        string
	userRequestID string
}

// NewSink binds a bus to one workflow run.
func NewSink(bus *Bus, workflowID, stepID, userRequestID string) *Sink {
	return &Sink{
		bus:           bus,
		workflowID:    workflowID,
		stepID:        stepID,
		userRequestID: userRequestID,
	}
}

// WithStep returns a sink for a different step of the same run.
func (s *Sink) WithStep(stepID string) *Sink {
	return &Sink{
		bus:           s.bus,
		workflowID:    s.workflowID,
		stepID:        stepID,
		userRequestID: s.userRequestID,
	}
}

// Emit publishes one event on the underlying bus.
func (s *Sink) Emit(eventType models.EventType, data map[string]any) {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Emit(models.Event{
		Type:          eventType,
		WorkflowID:    s.workflowID,
		StepID:        s.stepID,
		Data:          data,
		UserRequestID: s.userRequestID,
	})
}
