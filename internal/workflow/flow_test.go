package workflow

import (
	"context"
	"errors"
	"testing"
)

// labelNode records its execution and returns a fixed label.
type labelNode struct {
	BaseNode
	name  string
	label string
	trace *[]string
}

func (n *labelNode) Exec(ctx context.Context, prepRes any) (any, error) {
	*n.trace = append(*n.trace, n.name)
	return nil, nil
}

func (n *labelNode) Post(ctx context.Context, state *State, prepRes, execRes any) (string, error) {
	return n.label, nil
}

func TestFlowFollowsDefaultEdges(t *testing.T) {
	var trace []string
	a := &labelNode{name: "a", label: DefaultLabel, trace: &trace}
	b := &labelNode{name: "b", label: DefaultLabel, trace: &trace}
	c := &labelNode{name: "c", label: "done", trace: &trace}
	Then(a, b)
	Then(b, c)

	flow := NewFlow(a, nil)
	label, err := flow.Run(context.Background(), NewState())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if label != "done" {
		t.Fatalf("terminal label = %q, want done", label)
	}
	if len(trace) != 3 || trace[0] != "a" || trace[1] != "b" || trace[2] != "c" {
		t.Fatalf("execution order = %v", trace)
	}
}

func TestFlowBranchesOnLabel(t *testing.T) {
	var trace []string
	router := &labelNode{name: "router", label: "retry", trace: &trace}
	happy := &labelNode{name: "happy", label: DefaultLabel, trace: &trace}
	retry := &labelNode{name: "retry", label: DefaultLabel, trace: &trace}
	router.Connect(DefaultLabel, happy)
	router.Connect("retry", retry)

	flow := NewFlow(router, nil)
	if _, err := flow.Run(context.Background(), NewState()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(trace) != 2 || trace[1] != "retry" {
		t.Fatalf("execution order = %v, want router then retry", trace)
	}
}

type failingNode struct {
	BaseNode
}

func (n *failingNode) Exec(ctx context.Context, prepRes any) (any, error) {
	return nil, errors.New("exec blew up")
}

func TestFlowPropagatesNodeErrors(t *testing.T) {
	flow := NewFlow(&failingNode{}, nil)
	if _, err := flow.Run(context.Background(), NewState()); err == nil {
		t.Fatalf("Run() = nil, want error")
	}
}

func TestFlowHonorsContextCancellation(t *testing.T) {
	var trace []string
	a := &labelNode{name: "a", label: DefaultLabel, trace: &trace}
	Then(a, a) // self loop, would run forever

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flow := NewFlow(a, nil)
	if _, err := flow.Run(ctx, NewState()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
