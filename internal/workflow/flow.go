package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// Flow walks a node graph from its start node, running each node's three
// phases and following the successor edge the post phase selects. A label
// with no wired successor terminates the flow.
type Flow struct {
	start  Node
	logger *slog.Logger
}

// NewFlow builds a flow rooted at start.
func NewFlow(start Node, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{start: start, logger: logger.With("component", "workflow")}
}

// Run executes the flow to termination. The terminal label is returned.
func (f *Flow) Run(ctx context.Context, state *State) (string, error) {
	if f.start == nil {
		return "", fmt.Errorf("flow has no start node")
	}

	node := f.start
	label := DefaultLabel
	step := 0
	for node != nil {
		if err := ctx.Err(); err != nil {
			return label, err
		}
		step++

		prepRes, err := node.Prep(ctx, state)
		if err != nil {
			return label, fmt.Errorf("step %d prep: %w", step, err)
		}
		execRes, err := node.Exec(ctx, prepRes)
		if err != nil {
			return label, fmt.Errorf("step %d exec: %w", step, err)
		}
		label, err = node.Post(ctx, state, prepRes, execRes)
		if err != nil {
			return label, fmt.Errorf("step %d post: %w", step, err)
		}
		if label == "" {
			label = DefaultLabel
		}

		next, ok := node.Successor(label)
		if !ok {
			f.logger.Debug("flow terminated", "steps", step, "label", label)
			return label, nil
		}
		node = next
	}
	return label, nil
}
