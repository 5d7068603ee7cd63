package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stackoverflowed/nifimcp/internal/events"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// defaultWallClockCap bounds a single workflow run end to end.
const defaultWallClockCap = 5 * time.Minute

// ErrWallClockExceeded reports a run cut off by the wall-clock cap.
var ErrWallClockExceeded = errors.New("workflow wall-clock cap exceeded")

// Executor runs one workflow synchronously on the calling goroutine.
type Executor struct {
	def     *Definition
	bus     *events.Bus
	logger  *slog.Logger
	timeout time.Duration
}

// NewExecutor builds a synchronous executor for a definition.
func NewExecutor(def *Definition, bus *events.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		def:     def,
		bus:     bus,
		logger:  logger.With("component", "workflow-executor", "workflow", def.Name),
		timeout: defaultWallClockCap,
	}
}

// SetTimeout overrides the wall-clock cap.
func (e *Executor) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// Run executes the workflow and blocks until it terminates. The run gets a
// fresh workflow id; the bus carries the start/complete/error events.
func (e *Executor) Run(ctx context.Context, state *State) (string, error) {
	runID := state.Config.WorkflowID
	if runID == "" {
		runID = uuid.NewString()
		state.Config.WorkflowID = runID
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.emit(runID, models.EventWorkflowStart, map[string]any{"workflow": e.def.Name})
	started := time.Now()

	flow := e.def.Factory()
	label, err := flow.Run(runCtx, state)

	// A spent runCtx with a live parent means the wall-clock cap fired, not a
	// caller cancellation. The cap is a workflow error even when the flow
	// itself unwound without one.
	if runCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", ErrWallClockExceeded, e.timeout)
	}

	if err != nil {
		e.emit(runID, models.EventWorkflowError, map[string]any{
			"workflow": e.def.Name,
			"error":    err.Error(),
		})
		e.logger.Error("workflow failed",
			"run_id", runID,
			"duration", time.Since(started),
			"error", err)
		return label, err
	}

	data := map[string]any{
		"workflow": e.def.Name,
		"label":    label,
	}
	if state.Result != nil {
		data["termination_reason"] = string(state.Result.TerminationReason)
	}
	e.emit(runID, models.EventWorkflowComplete, data)
	e.logger.Info("workflow complete",
		"run_id", runID,
		"duration", time.Since(started),
		"label", label)
	return label, nil
}

func (e *Executor) emit(runID string, eventType models.EventType, data map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(models.Event{
		Type:       eventType,
		WorkflowID: runID,
		Data:       data,
	})
}

// RunHandle tracks one asynchronous workflow run.
type RunHandle struct {
	RunID string

	done   chan struct{}
	cancel context.CancelFunc

	label string
	err   error
}

// Done is closed when the run finishes.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Stop cancels the run.
func (h *RunHandle) Stop() { h.cancel() }

// Wait blocks until the run finishes and returns its terminal label.
func (h *RunHandle) Wait() (string, error) {
	<-h.done
	return h.label, h.err
}

// AsyncExecutor runs workflows off the calling goroutine. Synchronous flows
// are off-loaded the same way, so callers never block on node work.
type AsyncExecutor struct {
	inner *Executor
}

// NewAsyncExecutor wraps a synchronous executor.
func NewAsyncExecutor(def *Definition, bus *events.Bus, logger *slog.Logger) *AsyncExecutor {
	return &AsyncExecutor{inner: NewExecutor(def, bus, logger)}
}

// SetTimeout overrides the wall-clock cap.
func (a *AsyncExecutor) SetTimeout(d time.Duration) { a.inner.SetTimeout(d) }

// Start launches the run and returns a handle immediately.
func (a *AsyncExecutor) Start(ctx context.Context, state *State) *RunHandle {
	if state.Config.WorkflowID == "" {
		state.Config.WorkflowID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &RunHandle{
		RunID:  state.Config.WorkflowID,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(h.done)
		defer cancel()
		h.label, h.err = a.inner.Run(runCtx, state)
	}()
	return h
}
