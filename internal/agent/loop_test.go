package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// scriptedProvider returns its completions in order and fails when the
// script runs out.
type scriptedProvider struct {
	name        string
	modelList   []string
	completions []*Completion
	requests    []*CompletionRequest
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Models() []string { return p.modelList }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	p.requests = append(p.requests, req)
	if len(p.completions) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := p.completions[0]
	p.completions = p.completions[1:]
	return next, nil
}

type executorFunc func(ctx context.Context, inv ToolInvocation) ToolOutcome

func (f executorFunc) ExecuteTool(ctx context.Context, inv ToolInvocation) ToolOutcome {
	return f(ctx, inv)
}

func newTestDispatcher(t *testing.T, p Provider) *Dispatcher {
	t.Helper()
	d := NewDispatcher(nil)
	d.Register(p)
	return d
}

func userTurn(content string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: content}}
}

func TestLoopTerminatesOnContentOnlyCompletion(t *testing.T) {
	provider := &scriptedProvider{
		name:      "openai",
		modelList: []string{"gpt-4o"},
		completions: []*Completion{
			{Content: "All processors inspected. TASK COMPLETE", TokensIn: 10, TokensOut: 5},
		},
	}
	loop := NewLoop(newTestDispatcher(t, provider), nil, nil, nil)

	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 5,
	}, userTurn("inspect"), nil)

	if result.TerminationReason != TerminationTaskComplete {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationTaskComplete)
	}
	if result.LoopCount != 1 {
		t.Fatalf("LoopCount = %d, want 1", result.LoopCount)
	}
	if len(result.NewMessages) != 1 || result.NewMessages[0].Role != models.RoleAssistant {
		t.Fatalf("NewMessages = %+v, want single assistant message", result.NewMessages)
	}
	if result.TokensIn != 10 || result.TokensOut != 5 {
		t.Fatalf("tokens = %d/%d, want 10/5", result.TokensIn, result.TokensOut)
	}
}

func TestLoopExecutesToolBatchInOrder(t *testing.T) {
	provider := &scriptedProvider{
		name:      "anthropic",
		modelList: []string{"claude-sonnet-4-0"},
		completions: []*Completion{
			{ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "list_nifi_objects", Input: json.RawMessage(`{"object_type":"processors"}`)},
				{ID: "c2", Name: "get_process_group_status", Input: json.RawMessage(`{}`)},
			}},
			{Content: "TASK COMPLETE"},
		},
	}

	var order []string
	executor := executorFunc(func(ctx context.Context, inv ToolInvocation) ToolOutcome {
		order = append(order, inv.Name)
		return ToolOutcome{Content: `{"tool_output_content":[]}`}
	})

	loop := NewLoop(newTestDispatcher(t, provider), executor, nil, nil)
	initial := userTurn("inspect the flow")
	result := loop.Run(context.Background(), LoopConfig{
		Provider: "anthropic", Model: "claude-sonnet-4-0", MaxIterations: 5, NiFiServerID: "nifi-dev",
	}, initial, nil)

	if result.TerminationReason != TerminationTaskComplete {
		t.Fatalf("TerminationReason = %q", result.TerminationReason)
	}
	if len(order) != 2 || order[0] != "list_nifi_objects" || order[1] != "get_process_group_status" {
		t.Fatalf("execution order = %v", order)
	}

	full := append(models.CloneMessages(initial), result.NewMessages...)
	if err := models.ValidateSequence(full); err != nil {
		t.Fatalf("produced history is invalid: %v", err)
	}
	// assistant + 2 tool results + final assistant
	if len(result.NewMessages) != 4 {
		t.Fatalf("NewMessages = %d messages, want 4", len(result.NewMessages))
	}
	if result.NewMessages[1].ToolCallID != "c1" || result.NewMessages[2].ToolCallID != "c2" {
		t.Fatalf("tool results out of order: %+v", result.NewMessages[1:3])
	}
	if len(result.ExecutedTools) != 2 {
		t.Fatalf("ExecutedTools = %v", result.ExecutedTools)
	}
}

func TestLoopStopsAfterConsecutiveToolFailures(t *testing.T) {
	failingCall := func(id string) *Completion {
		return &Completion{ToolCalls: []models.ToolCall{
			{ID: id, Name: "update_nifi_processor_config", Input: json.RawMessage(`{}`)},
		}}
	}
	provider := &scriptedProvider{
		name:      "openai",
		modelList: []string{"gpt-4o"},
		completions: []*Completion{
			failingCall("c1"), failingCall("c2"), failingCall("c3"), failingCall("c4"),
		},
	}
	executor := executorFunc(func(ctx context.Context, inv ToolInvocation) ToolOutcome {
		return ToolOutcome{Content: `{"error":"processor is running"}`, Failed: true}
	})

	loop := NewLoop(newTestDispatcher(t, provider), executor, nil, nil)
	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 10,
	}, userTurn("update config"), nil)

	if result.TerminationReason != TerminationToolFailures {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationToolFailures)
	}
	if result.LoopCount != 3 {
		t.Fatalf("LoopCount = %d, want 3", result.LoopCount)
	}
}

func TestLoopFailureCounterResetsOnSuccess(t *testing.T) {
	call := func(id string) *Completion {
		return &Completion{ToolCalls: []models.ToolCall{{ID: id, Name: "t", Input: json.RawMessage(`{}`)}}}
	}
	provider := &scriptedProvider{
		name:      "openai",
		modelList: []string{"gpt-4o"},
		completions: []*Completion{
			call("c1"), call("c2"), call("c3"), call("c4"),
			{Content: "TASK COMPLETE"},
		},
	}

	n := 0
	executor := executorFunc(func(ctx context.Context, inv ToolInvocation) ToolOutcome {
		n++
		// Two failures, one success, one failure: never three in a row.
		if n == 3 {
			return ToolOutcome{Content: `{"tool_output_content":[]}`}
		}
		return ToolOutcome{Content: `{"error":"nope"}`, Failed: true}
	})

	loop := NewLoop(newTestDispatcher(t, provider), executor, nil, nil)
	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 10,
	}, userTurn("go"), nil)

	if result.TerminationReason != TerminationTaskComplete {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationTaskComplete)
	}
}

func TestLoopMaxIterationsAppendsStatusReport(t *testing.T) {
	call := func(id string) *Completion {
		return &Completion{ToolCalls: []models.ToolCall{{ID: id, Name: "t", Input: json.RawMessage(`{}`)}}}
	}
	provider := &scriptedProvider{
		name:      "openai",
		modelList: []string{"gpt-4o"},
		completions: []*Completion{
			call("c1"), call("c2"),
			{Content: "Reached two of five processors; three remain."},
		},
	}
	executor := executorFunc(func(ctx context.Context, inv ToolInvocation) ToolOutcome {
		return ToolOutcome{Content: `{"tool_output_content":[]}`}
	})

	loop := NewLoop(newTestDispatcher(t, provider), executor, nil, nil)
	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 2, StatusReport: true,
	}, userTurn("go"), nil)

	if result.TerminationReason != TerminationMaxIterations {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationMaxIterations)
	}
	last := result.NewMessages[len(result.NewMessages)-1]
	if !last.IsStatusReport || last.Role != models.RoleAssistant {
		t.Fatalf("last message = %+v, want status report", last)
	}

	// The status report call must not offer tools.
	final := provider.requests[len(provider.requests)-1]
	if len(final.Tools) != 0 {
		t.Fatalf("status report request carried %d tools", len(final.Tools))
	}
}

func TestLoopStatusReportFailureIsSilent(t *testing.T) {
	call := func(id string) *Completion {
		return &Completion{ToolCalls: []models.ToolCall{{ID: id, Name: "t", Input: json.RawMessage(`{}`)}}}
	}
	provider := &scriptedProvider{
		name:        "openai",
		modelList:   []string{"gpt-4o"},
		completions: []*Completion{call("c1")},
	}
	executor := executorFunc(func(ctx context.Context, inv ToolInvocation) ToolOutcome {
		return ToolOutcome{Content: `{"tool_output_content":[]}`}
	})

	loop := NewLoop(newTestDispatcher(t, provider), executor, nil, nil)
	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 1, StatusReport: true,
	}, userTurn("go"), nil)

	if result.TerminationReason != TerminationMaxIterations {
		t.Fatalf("TerminationReason = %q", result.TerminationReason)
	}
	for _, msg := range result.NewMessages {
		if msg.IsStatusReport {
			t.Fatalf("status report appended despite failed call")
		}
	}
}

func TestLoopDeadlineExpiryIsFatalNotUserStop(t *testing.T) {
	provider := &scriptedProvider{name: "openai", modelList: []string{"gpt-4o"}}
	loop := NewLoop(newTestDispatcher(t, provider), nil, nil, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	result := loop.Run(ctx, LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 5,
	}, userTurn("inspect"), nil)

	if result.TerminationReason != TerminationFatalError {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationFatalError)
	}
	if !errors.Is(result.Err, context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want deadline exceeded", result.Err)
	}
	if len(provider.requests) != 0 {
		t.Fatalf("provider called %d times on spent deadline", len(provider.requests))
	}
}

func TestLoopCancelledContextIsUserStop(t *testing.T) {
	provider := &scriptedProvider{name: "openai", modelList: []string{"gpt-4o"}}
	loop := NewLoop(newTestDispatcher(t, provider), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := loop.Run(ctx, LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 5,
	}, userTurn("inspect"), nil)

	if result.TerminationReason != TerminationUserStopped {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationUserStopped)
	}
	if len(provider.requests) != 0 {
		t.Fatalf("provider called %d times after cancellation", len(provider.requests))
	}
}

func TestLoopUserStopBeforeFirstIteration(t *testing.T) {
	provider := &scriptedProvider{name: "openai", modelList: []string{"gpt-4o"}}
	loop := NewLoop(newTestDispatcher(t, provider), nil, nil, nil)
	loop.Stop()

	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 5,
	}, userTurn("go"), nil)

	if result.TerminationReason != TerminationUserStopped {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationUserStopped)
	}
	if len(result.NewMessages) != 0 {
		t.Fatalf("NewMessages = %+v, want none", result.NewMessages)
	}
	if len(provider.requests) != 0 {
		t.Fatalf("provider was called %d times after stop", len(provider.requests))
	}
}

func TestLoopStopMidBatchCancelsRemainingCalls(t *testing.T) {
	provider := &scriptedProvider{
		name:      "openai",
		modelList: []string{"gpt-4o"},
		completions: []*Completion{
			{ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "first", Input: json.RawMessage(`{}`)},
				{ID: "c2", Name: "second", Input: json.RawMessage(`{}`)},
			}},
		},
	}

	var loop *Loop
	executor := executorFunc(func(ctx context.Context, inv ToolInvocation) ToolOutcome {
		loop.Stop()
		return ToolOutcome{Content: `{"tool_output_content":[]}`}
	})
	loop = NewLoop(newTestDispatcher(t, provider), executor, nil, nil)

	initial := userTurn("go")
	result := loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 5,
	}, initial, nil)

	if result.TerminationReason != TerminationUserStopped {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationUserStopped)
	}

	// Both calls must still have tool results so the history stays valid.
	full := append(models.CloneMessages(initial), result.NewMessages...)
	if err := models.ValidateSequence(full); err != nil {
		t.Fatalf("produced history is invalid: %v", err)
	}
	second := result.NewMessages[2]
	if second.ToolCallID != "c2" || !strings.Contains(second.Content, "cancelled") {
		t.Fatalf("second tool result = %+v, want cancellation", second)
	}
}

func TestLoopDispatchErrorIsFatal(t *testing.T) {
	provider := &scriptedProvider{name: "openai", modelList: []string{"gpt-4o"}}
	loop := NewLoop(newTestDispatcher(t, provider), nil, nil, nil)

	result := loop.Run(context.Background(), LoopConfig{
		Provider: "gemini", Model: "gemini-2.5-flash", MaxIterations: 5,
	}, userTurn("go"), nil)

	if result.TerminationReason != TerminationFatalError {
		t.Fatalf("TerminationReason = %q, want %q", result.TerminationReason, TerminationFatalError)
	}
	var loopErr *LoopError
	if !errors.As(result.Err, &loopErr) || loopErr.Phase != PhaseDispatch {
		t.Fatalf("Err = %v, want dispatch-phase LoopError", result.Err)
	}
	if !errors.Is(result.Err, ErrProviderNotConfigured) {
		t.Fatalf("Err = %v, want ErrProviderNotConfigured", result.Err)
	}
}

func TestLoopDoesNotMutateCallerMessages(t *testing.T) {
	provider := &scriptedProvider{
		name:        "openai",
		modelList:   []string{"gpt-4o"},
		completions: []*Completion{{Content: "TASK COMPLETE"}},
	}
	loop := NewLoop(newTestDispatcher(t, provider), nil, nil, nil)

	initial := userTurn("go")
	before := len(initial)
	loop.Run(context.Background(), LoopConfig{
		Provider: "openai", Model: "gpt-4o", MaxIterations: 5,
	}, initial, nil)

	if len(initial) != before {
		t.Fatalf("caller slice grew to %d messages", len(initial))
	}
}
