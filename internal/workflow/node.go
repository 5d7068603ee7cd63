// Package workflow implements the node/flow runtime: workflows are finite
// directed graphs of nodes, each node runs a prep/exec/post cycle, and the
// label returned by post selects the successor edge to follow.
package workflow

import (
	"context"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// DefaultLabel is the successor edge taken when post returns no explicit
// label.
const DefaultLabel = "default"

// State is the shared store a flow threads through its nodes. The chat
// workflow reads and writes the typed fields; custom nodes may use Values.
type State struct {
	Messages []models.Message
	Tools    []models.ToolDef
	Config   agent.LoopConfig
	Result   *agent.LoopResult
	Values   map[string]any
}

// NewState returns an empty state with Values allocated.
func NewState() *State {
	return &State{Values: map[string]any{}}
}

// Node is one unit of work in a flow. The three phases run in order:
// Prep gathers inputs from the shared state, Exec does the work, Post
// writes results back and picks the successor edge.
type Node interface {
	Prep(ctx context.Context, state *State) (any, error)
	Exec(ctx context.Context, prepRes any) (any, error)
	Post(ctx context.Context, state *State, prepRes, execRes any) (string, error)

	Successor(label string) (Node, bool)
	Connect(label string, next Node)
}

// BaseNode carries the successor map. Embed it and override the phases that
// matter; the zero-value phases are pass-through.
type BaseNode struct {
	successors map[string]Node
}

func (n *BaseNode) Prep(ctx context.Context, state *State) (any, error) { return nil, nil }

func (n *BaseNode) Exec(ctx context.Context, prepRes any) (any, error) { return prepRes, nil }

func (n *BaseNode) Post(ctx context.Context, state *State, prepRes, execRes any) (string, error) {
	return DefaultLabel, nil
}

// Successor looks up the node wired to a label.
func (n *BaseNode) Successor(label string) (Node, bool) {
	next, ok := n.successors[label]
	return next, ok
}

// Connect wires a successor under a label, replacing any previous one.
func (n *BaseNode) Connect(label string, next Node) {
	if n.successors == nil {
		n.successors = map[string]Node{}
	}
	n.successors[label] = next
}

// Then wires next under the default label and returns it for chaining.
func Then(from, next Node) Node {
	from.Connect(DefaultLabel, next)
	return next
}
