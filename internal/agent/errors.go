package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the dispatcher and loop.
var (
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrModelNotAllowed       = errors.New("model is not in the provider's configured list")
	ErrMaxIterations         = errors.New("maximum iterations reached")
	ErrUserStopped           = errors.New("stopped by user request")
	ErrToolFailureLimit      = errors.New("consecutive tool failure limit reached")
)

// LoopPhase identifies where in an iteration a failure occurred.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhasePrune        LoopPhase = "prune"
	PhaseDispatch     LoopPhase = "dispatch"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseComplete     LoopPhase = "complete"
)

// LoopError wraps a failure with its phase and iteration number.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("loop failed in %s phase (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

func (e *LoopError) Unwrap() error { return e.Cause }
