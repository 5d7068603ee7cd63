package events

import (
	"testing"
	"time"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

func TestEmitAssignsIdentityAndSequence(t *testing.T) {
	bus := NewBus(nil)

	first := bus.Emit(models.Event{Type: models.EventWorkflowStart, WorkflowID: "wf-1"})
	second := bus.Emit(models.Event{Type: models.EventStepStart, WorkflowID: "wf-1"})

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("event ids = %q, %q", first.ID, second.ID)
	}
	if second.Sequence <= first.Sequence {
		t.Fatalf("sequence not increasing: %d then %d", first.Sequence, second.Sequence)
	}
	if first.Timestamp.IsZero() {
		t.Fatalf("timestamp not assigned")
	}
}

func TestSubscribersReceiveEventsInOrder(t *testing.T) {
	bus := NewBus(nil)

	var seen []models.EventType
	id := bus.Subscribe(SubscriberFunc(func(e models.Event) {
		seen = append(seen, e.Type)
	}))

	bus.Emit(models.Event{Type: models.EventWorkflowStart})
	bus.Emit(models.Event{Type: models.EventLLMStart})
	bus.Unsubscribe(id)
	bus.Emit(models.Event{Type: models.EventWorkflowComplete})

	if len(seen) != 2 || seen[0] != models.EventWorkflowStart || seen[1] != models.EventLLMStart {
		t.Fatalf("subscriber saw %v", seen)
	}
}

func TestEventsForFiltersByWorkflow(t *testing.T) {
	bus := NewBus(nil)
	bus.Emit(models.Event{Type: models.EventWorkflowStart, WorkflowID: "a"})
	bus.Emit(models.Event{Type: models.EventWorkflowStart, WorkflowID: "b"})
	bus.Emit(models.Event{Type: models.EventWorkflowComplete, WorkflowID: "a"})

	got := bus.EventsFor("a")
	if len(got) != 2 {
		t.Fatalf("EventsFor(a) = %d events, want 2", len(got))
	}
	for _, e := range got {
		if e.WorkflowID != "a" {
			t.Fatalf("wrong workflow leaked: %+v", e)
		}
	}
}

func TestEventsSince(t *testing.T) {
	bus := NewBus(nil)
	bus.Emit(models.Event{Type: models.EventWorkflowStart, Timestamp: time.Now().Add(-time.Hour)})
	bus.Emit(models.Event{Type: models.EventWorkflowComplete})

	got := bus.EventsSince(time.Now().Add(-time.Minute))
	if len(got) != 1 || got[0].Type != models.EventWorkflowComplete {
		t.Fatalf("EventsSince() = %+v", got)
	}
}

func TestPruneDropsOldEntries(t *testing.T) {
	bus := NewBus(nil)
	bus.Emit(models.Event{Type: models.EventWorkflowStart, Timestamp: time.Now().Add(-2 * time.Hour)})
	bus.Emit(models.Event{Type: models.EventWorkflowComplete})

	if dropped := bus.Prune(time.Hour); dropped != 1 {
		t.Fatalf("Prune() = %d, want 1", dropped)
	}
	if events := bus.Events(); len(events) != 1 || events[0].Type != models.EventWorkflowComplete {
		t.Fatalf("Events() after prune = %+v", events)
	}
}

func TestEventsReturnsCopy(t *testing.T) {
	bus := NewBus(nil)
	bus.Emit(models.Event{Type: models.EventWorkflowStart, WorkflowID: "a"})

	snapshot := bus.Events()
	snapshot[0].WorkflowID = "mutated"
	if bus.Events()[0].WorkflowID != "a" {
		t.Fatalf("snapshot mutation leaked into the log")
	}
}
