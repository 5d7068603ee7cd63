package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/events"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// ChatStepID identifies the single step of the chat workflow.
const ChatStepID = "chat"

// ChatNode drives one agent turn inside a workflow: it hands the shared
// message history and tool catalog to the iteration engine and appends the
// produced tail back onto the state.
type ChatNode struct {
	BaseNode

	dispatcher *agent.Dispatcher
	executor   agent.ToolExecutor
	bus        *events.Bus
	logger     *slog.Logger
}

// NewChatNode builds the node. bus may be nil when no event consumers
// exist.
func NewChatNode(dispatcher *agent.Dispatcher, executor agent.ToolExecutor, bus *events.Bus, logger *slog.Logger) *ChatNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatNode{
		dispatcher: dispatcher,
		executor:   executor,
		bus:        bus,
		logger:     logger.With("component", "chat-node"),
	}
}

type chatPrep struct {
	cfg      agent.LoopConfig
	messages []models.Message
	tools    []models.ToolDef
	sink     *events.Sink
}

// Prep snapshots the inputs the engine needs from the shared state.
func (n *ChatNode) Prep(ctx context.Context, state *State) (any, error) {
	if state.Config.Provider == "" || state.Config.Model == "" {
		return nil, fmt.Errorf("chat node requires provider and model")
	}

	cfg := state.Config
	cfg.StepID = ChatStepID

	var sink *events.Sink
	if n.bus != nil {
		sink = events.NewSink(n.bus, cfg.WorkflowID, cfg.StepID, cfg.UserRequestID)
		sink.Emit(models.EventStepStart, map[string]any{"step": ChatStepID})
	}

	return &chatPrep{
		cfg:      cfg,
		messages: state.Messages,
		tools:    state.Tools,
		sink:     sink,
	}, nil
}

// Exec runs the iteration engine to termination.
func (n *ChatNode) Exec(ctx context.Context, prepRes any) (any, error) {
	prep, ok := prepRes.(*chatPrep)
	if !ok {
		return nil, fmt.Errorf("chat node: unexpected prep result %T", prepRes)
	}

	var sink agent.EventSink
	if prep.sink != nil {
		sink = prep.sink
	}
	loop := agent.NewLoop(n.dispatcher, n.executor, sink, n.logger)
	result := loop.Run(ctx, prep.cfg, prep.messages, prep.tools)
	return result, nil
}

// Post appends the turn's tail to the shared history and reports the step
// outcome. The terminal label is the termination reason, so flows can wire
// per-reason successors; unwired reasons terminate the flow.
func (n *ChatNode) Post(ctx context.Context, state *State, prepRes, execRes any) (string, error) {
	prep := prepRes.(*chatPrep)
	result, ok := execRes.(*agent.LoopResult)
	if !ok {
		return "", fmt.Errorf("chat node: unexpected exec result %T", execRes)
	}

	state.Messages = append(state.Messages, result.NewMessages...)
	state.Result = result

	if prep.sink != nil {
		if result.TerminationReason == agent.TerminationFatalError {
			data := map[string]any{"step": ChatStepID}
			if result.Err != nil {
				data["error"] = result.Err.Error()
			}
			prep.sink.Emit(models.EventStepError, data)
		} else {
			prep.sink.Emit(models.EventStepComplete, map[string]any{
				"step":               ChatStepID,
				"iterations":         result.LoopCount,
				"termination_reason": string(result.TerminationReason),
			})
		}
	}

	return string(result.TerminationReason), nil
}

// RegisterChatWorkflow installs the single-node chat workflow definition.
func RegisterChatWorkflow(registry *Registry, dispatcher *agent.Dispatcher, executor agent.ToolExecutor, bus *events.Bus, logger *slog.Logger) error {
	return registry.Register(&Definition{
		Name:        "chat",
		DisplayName: "NiFi Chat",
		Description: "Single-turn agent loop against the configured NiFi MCP servers.",
		Category:    "chat",
		Phases:      []string{ChatStepID},
		IsAsync:     true,
		Factory: func() *Flow {
			return NewFlow(NewChatNode(dispatcher, executor, bus, logger), logger)
		},
	})
}
