package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stackoverflowed/nifimcp/internal/compaction"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// TaskCompleteMarker is the completion phrase the system prompt instructs the
// model to emit. Detection is a case-insensitive substring match.
const TaskCompleteMarker = "TASK COMPLETE"

// maxConsecutiveToolFailures stops the loop after this many iterations in a
// row where every tool call failed.
const maxConsecutiveToolFailures = 3

// TerminationReason says why a loop run ended.
type TerminationReason string

const (
	TerminationTaskComplete  TerminationReason = "task_complete"
	TerminationMaxIterations TerminationReason = "max_iterations"
	TerminationFatalError    TerminationReason = "fatal_error"
	TerminationToolFailures  TerminationReason = "consecutive_tool_failures"
	TerminationUserStopped   TerminationReason = "user_stopped"
)

// ToolInvocation is one tool execution request.
type ToolInvocation struct {
	Name          string
	Arguments     map[string]any
	ServerID      string
	UserRequestID string
	ActionID      string
}

// ToolOutcome is the executor's answer. Content is JSON-encoded and always
// safe to feed back to the model, including for failures.
type ToolOutcome struct {
	Content string
	Failed  bool
}

// ToolExecutor executes named NiFi tools. Implemented by the MCP bridge.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, inv ToolInvocation) ToolOutcome
}

// EventSink receives progress events. The workflow runtime installs one that
// forwards to the event bus; a nil sink disables emission.
type EventSink interface {
	Emit(eventType models.EventType, data map[string]any)
}

// LoopConfig is the immutable per-turn configuration.
type LoopConfig struct {
	Provider     string
	Model        string
	SystemPrompt string

	MaxIterations int
	TokenBudget   int
	AutoPrune     bool

	NiFiServerID  string
	UserRequestID string

	// Set when running under the workflow runtime; used for action ids and
	// event correlation.
	WorkflowID string
	StepID     string

	// StatusReport enables the best-effort summary call when the iteration
	// budget runs out.
	StatusReport bool
}

// LoopResult is what one Run returns to the caller. NewMessages is the tail
// produced this turn; the caller owns the original list and appends the tail
// itself.
type LoopResult struct {
	NewMessages       []models.Message
	LoopCount         int
	TokensIn          int
	TokensOut         int
	Duration          time.Duration
	TerminationReason TerminationReason
	ExecutedTools     []string

	// Err is set for fatal_error terminations and carries the provider
	// error kind for the UI. Nothing is thrown across this boundary.
	Err error
}

// Loop is the iteration engine: it alternates model calls and tool dispatch
// until the model declares completion or a budget is exhausted. One Loop
// value serves one user turn.
type Loop struct {
	dispatcher *Dispatcher
	executor   ToolExecutor
	sink       EventSink
	logger     *slog.Logger
	stop       atomic.Bool
}

// NewLoop wires an engine. executor may be nil for tool-less turns; sink may
// be nil when no event consumers exist.
func NewLoop(dispatcher *Dispatcher, executor ToolExecutor, sink EventSink, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		dispatcher: dispatcher,
		executor:   executor,
		sink:       sink,
		logger:     logger,
	}
}

// Stop requests a clean termination. It is polled at the top of every
// iteration and before each tool dispatch.
func (l *Loop) Stop() { l.stop.Store(true) }

// Run executes the turn. The initial messages are copied and cleaned; the
// caller's slice is never mutated.
func (l *Loop) Run(ctx context.Context, cfg LoopConfig, initial []models.Message, tools []models.ToolDef) *LoopResult {
	start := time.Now()
	result := &LoopResult{}

	maxIterations := cfg.MaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}

	messages := CleanHistory(models.CloneMessages(initial), l.logger)
	baseLen := len(messages)
	estimator := compaction.NewEstimator(cfg.Provider, cfg.Model)
	consecutiveFailures := 0
	executed := map[string]bool{}

	finish := func(reason TerminationReason, err error) *LoopResult {
		result.NewMessages = messages[baseLen:]
		result.TerminationReason = reason
		result.Duration = time.Since(start)
		result.Err = err
		for name := range executed {
			result.ExecutedTools = append(result.ExecutedTools, name)
		}
		return result
	}

	for {
		if l.stopped(ctx) {
			return finish(TerminationUserStopped, nil)
		}
		// A spent deadline is not a user stop.
		if err := ctx.Err(); err != nil {
			return finish(TerminationFatalError, &LoopError{
				Phase:     PhaseInit,
				Iteration: result.LoopCount,
				Cause:     err,
			})
		}
		if result.LoopCount >= maxIterations {
			l.statusReport(ctx, cfg, &messages, result)
			return finish(TerminationMaxIterations, nil)
		}
		result.LoopCount++

		callContext := messages
		if cfg.AutoPrune && cfg.TokenBudget > 0 {
			pruned := compaction.PruneToBudget(messages, cfg.TokenBudget, estimator, tools, l.logger)
			callContext = pruned.Messages
			if pruned.DroppedGroups > 0 {
				l.logger.Info("pruned history for token budget",
					"dropped_turns", pruned.DroppedGroups,
					"dropped_messages", pruned.DroppedMessages,
					"kept_tokens", pruned.KeptTokens,
					"budget_tokens", pruned.BudgetTokens)
				l.emit(cfg, models.EventProgressUpdate, map[string]any{
					"stage":         "pruned_history",
					"dropped_turns": pruned.DroppedGroups,
					"kept_tokens":   pruned.KeptTokens,
					"budget_tokens": pruned.BudgetTokens,
				})
			}
		}

		actionID := l.newActionID(cfg, "llm")
		l.emit(cfg, models.EventLLMStart, map[string]any{
			"provider":  cfg.Provider,
			"model":     cfg.Model,
			"iteration": result.LoopCount,
			"action_id": actionID,
		})

		completion, err := l.dispatcher.Dispatch(ctx, cfg.Provider, cfg.Model, &CompletionRequest{
			System:   cfg.SystemPrompt,
			Messages: callContext,
			Tools:    tools,
		})
		if err != nil {
			l.emit(cfg, models.EventLLMError, map[string]any{
				"iteration": result.LoopCount,
				"error":     err.Error(),
			})
			return finish(TerminationFatalError, &LoopError{
				Phase:     PhaseDispatch,
				Iteration: result.LoopCount,
				Cause:     err,
			})
		}

		result.TokensIn += completion.TokensIn
		result.TokensOut += completion.TokensOut
		l.emit(cfg, models.EventLLMComplete, map[string]any{
			"provider":   cfg.Provider,
			"model":      cfg.Model,
			"iteration":  result.LoopCount,
			"tokens_in":  completion.TokensIn,
			"tokens_out": completion.TokensOut,
			"tool_calls": len(completion.ToolCalls),
		})

		assistant := models.Message{
			Role:          models.RoleAssistant,
			Content:       completion.Content,
			ToolCalls:     completion.ToolCalls,
			TokenCountIn:  completion.TokensIn,
			TokenCountOut: completion.TokensOut,
			ActionID:      actionID,
			WorkflowID:    cfg.WorkflowID,
			StepID:        cfg.StepID,
		}
		messages = append(messages, assistant)
		l.emit(cfg, models.EventMessageAdded, map[string]any{
			"role":       string(models.RoleAssistant),
			"tool_calls": len(completion.ToolCalls),
		})

		if len(completion.ToolCalls) == 0 {
			// No tools requested terminates the turn whether or not the
			// completion marker is present.
			if containsTaskComplete(completion.Content) {
				l.logger.Debug("model declared task complete", "iteration", result.LoopCount)
			}
			return finish(TerminationTaskComplete, nil)
		}

		failed, stopped := l.executeToolCalls(ctx, cfg, completion.ToolCalls, &messages, executed)
		if stopped {
			return finish(TerminationUserStopped, nil)
		}
		if failed == len(completion.ToolCalls) {
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveToolFailures {
				l.logger.Warn("stopping after repeated tool failures",
					"consecutive_iterations", consecutiveFailures)
				return finish(TerminationToolFailures, nil)
			}
		} else {
			consecutiveFailures = 0
		}
	}
}

// executeToolCalls runs the batch sequentially, appending one tool message
// per call in request order. When a stop arrives mid-batch the remaining
// calls receive cancellation results so the history stays well-formed.
func (l *Loop) executeToolCalls(ctx context.Context, cfg LoopConfig, calls []models.ToolCall, messages *[]models.Message, executed map[string]bool) (failed int, stopped bool) {
	for _, tc := range calls {
		var outcome ToolOutcome

		switch {
		case stopped || l.stopped(ctx):
			stopped = true
			outcome = ToolOutcome{Content: `{"error":"tool execution cancelled by user stop"}`, Failed: true}
		case l.executor == nil:
			outcome = ToolOutcome{Content: `{"error":"no tool executor configured"}`, Failed: true}
		default:
			actionID := l.newActionID(cfg, "tool")
			l.emit(cfg, models.EventToolStart, map[string]any{
				"tool":      tc.Name,
				"action_id": actionID,
			})
			outcome = l.executor.ExecuteTool(ctx, ToolInvocation{
				Name:          tc.Name,
				Arguments:     tc.Arguments(),
				ServerID:      cfg.NiFiServerID,
				UserRequestID: cfg.UserRequestID,
				ActionID:      actionID,
			})
			if outcome.Failed {
				l.emit(cfg, models.EventToolError, map[string]any{"tool": tc.Name})
			} else {
				l.emit(cfg, models.EventToolComplete, map[string]any{"tool": tc.Name})
			}
			executed[tc.Name] = true
		}

		if outcome.Failed {
			failed++
		}
		*messages = append(*messages, models.Message{
			Role:       models.RoleTool,
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    outcome.Content,
			WorkflowID: cfg.WorkflowID,
			StepID:     cfg.StepID,
		})
		l.emit(cfg, models.EventMessageAdded, map[string]any{
			"role": string(models.RoleTool),
			"tool": tc.Name,
		})
	}
	return failed, stopped
}

// statusReportPrompt asks for a brief self-report when the iteration budget
// runs out. The call uses no tools and its failure is silent.
const statusReportPrompt = "The iteration limit was reached before the task finished. " +
	"Briefly summarize what was accomplished, what remains to be done, and any " +
	"problems encountered. Do not call any tools."

func (l *Loop) statusReport(ctx context.Context, cfg LoopConfig, messages *[]models.Message, result *LoopResult) {
	if !cfg.StatusReport {
		return
	}

	prompt := append(models.CloneMessages(*messages), models.Message{
		Role:    models.RoleUser,
		Content: statusReportPrompt,
	})
	completion, err := l.dispatcher.Dispatch(ctx, cfg.Provider, cfg.Model, &CompletionRequest{
		System:   cfg.SystemPrompt,
		Messages: prompt,
	})
	if err != nil {
		l.logger.Warn("status report call failed", "error", err)
		return
	}

	result.TokensIn += completion.TokensIn
	result.TokensOut += completion.TokensOut
	*messages = append(*messages, models.Message{
		Role:           models.RoleAssistant,
		Content:        completion.Content,
		TokenCountIn:   completion.TokensIn,
		TokenCountOut:  completion.TokensOut,
		ActionID:       l.newActionID(cfg, "llm"),
		WorkflowID:     cfg.WorkflowID,
		StepID:         cfg.StepID,
		IsStatusReport: true,
	})
}

func (l *Loop) stopped(ctx context.Context) bool {
	return l.stop.Load() || errors.Is(ctx.Err(), context.Canceled)
}

func (l *Loop) emit(cfg LoopConfig, eventType models.EventType, data map[string]any) {
	if l.sink == nil {
		return
	}
	if cfg.UserRequestID != "" {
		data["user_request_id"] = cfg.UserRequestID
	}
	l.sink.Emit(eventType, data)
}

// newActionID mints a correlation id. Under the workflow runtime the id
// embeds the workflow and step so UI captions and log lines line up.
func (l *Loop) newActionID(cfg LoopConfig, kind string) string {
	id := uuid.NewString()
	if cfg.WorkflowID != "" {
		return "wf-" + cfg.WorkflowID + "-" + cfg.StepID + "-" + kind + "-" + id
	}
	return kind + "-" + id
}

func containsTaskComplete(content string) bool {
	return strings.Contains(strings.ToUpper(content), TaskCompleteMarker)
}
