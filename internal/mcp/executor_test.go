package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stackoverflowed/nifimcp/internal/agent"
)

func newTestExecutor(t *testing.T, transport *fakeTransport) *Executor {
	t.Helper()
	client := NewClient(testServerConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	executor := NewExecutor(nil)
	executor.AddClient(client)
	return executor
}

func TestExecutorToolsReshapesCatalog(t *testing.T) {
	executor := newTestExecutor(t, newFakeTransport())

	tools, err := executor.Tools("nifi-dev")
	if err != nil {
		t.Fatalf("Tools() error = %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("Tools() = %d, want 2", len(tools))
	}
	// Sorted by name.
	if tools[0].Name != "get_process_group_status" || tools[1].Name != "list_nifi_objects" {
		t.Fatalf("tool order = %s, %s", tools[0].Name, tools[1].Name)
	}
	if len(tools[1].Parameters) == 0 {
		t.Fatalf("inputSchema not carried into Parameters")
	}

	if _, err := executor.Tools("unknown"); err == nil {
		t.Fatalf("Tools(unknown) = nil error")
	}
}

func TestExecuteToolWrapsContent(t *testing.T) {
	transport := newFakeTransport()
	transport.results["tools/call"] = json.RawMessage(`{
		"content": [{"type": "text", "text": "{\"processors\": [{\"id\": \"p-1\"}]}"}]
	}`)
	executor := newTestExecutor(t, transport)

	outcome := executor.ExecuteTool(context.Background(), agent.ToolInvocation{
		Name:      "list_nifi_objects",
		Arguments: map[string]any{"object_type": "processors"},
		ServerID:  "nifi-dev",
	})
	if outcome.Failed {
		t.Fatalf("outcome failed: %s", outcome.Content)
	}

	var wrapped map[string]any
	if err := json.Unmarshal([]byte(outcome.Content), &wrapped); err != nil {
		t.Fatalf("outcome content is not JSON: %v", err)
	}
	items, ok := wrapped["tool_output_content"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("wrapped content = %v", wrapped)
	}
	// JSON text payloads are passed through structured.
	item := items[0].(map[string]any)
	if _, ok := item["text"].(map[string]any); !ok {
		t.Fatalf("text payload not parsed: %v", item)
	}
}

func TestExecuteToolServerReportedError(t *testing.T) {
	transport := newFakeTransport()
	transport.results["tools/call"] = json.RawMessage(`{
		"content": [{"type": "text", "text": "processor not found"}],
		"isError": true
	}`)
	executor := newTestExecutor(t, transport)

	outcome := executor.ExecuteTool(context.Background(), agent.ToolInvocation{
		Name:      "list_nifi_objects",
		Arguments: map[string]any{"object_type": "processors"},
		ServerID:  "nifi-dev",
	})
	if !outcome.Failed {
		t.Fatalf("isError result not marked failed")
	}
	if !strings.Contains(outcome.Content, "tool_output_content") {
		t.Fatalf("failed result lost its content: %s", outcome.Content)
	}
}

func TestExecuteToolValidationFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.results["tools/list"] = json.RawMessage(`{"tools": [
		{"name": "delete_nifi_object", "inputSchema": {
			"type": "object",
			"properties": {"object_id": {"type": "string"}},
			"required": ["object_id"]
		}}
	]}`)
	executor := newTestExecutor(t, transport)

	outcome := executor.ExecuteTool(context.Background(), agent.ToolInvocation{
		Name:      "delete_nifi_object",
		Arguments: map[string]any{},
		ServerID:  "nifi-dev",
	})
	if !outcome.Failed {
		t.Fatalf("missing required argument accepted")
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(outcome.Content), &payload); err != nil {
		t.Fatalf("error content is not JSON: %v", err)
	}
	if !strings.Contains(payload["error"], "invalid arguments") {
		t.Fatalf("error content = %q", payload["error"])
	}
	// The invalid call never reaches the server.
	for _, method := range transport.calls {
		if method == "tools/call" {
			t.Fatalf("invalid call was sent to the server")
		}
	}
}

func TestExecuteToolUnknownServerAndTool(t *testing.T) {
	executor := newTestExecutor(t, newFakeTransport())

	unknownServer := executor.ExecuteTool(context.Background(), agent.ToolInvocation{
		Name: "list_nifi_objects", ServerID: "nope",
	})
	if !unknownServer.Failed || !strings.Contains(unknownServer.Content, "unknown mcp server") {
		t.Fatalf("unknown server outcome = %+v", unknownServer)
	}

	unknownTool := executor.ExecuteTool(context.Background(), agent.ToolInvocation{
		Name: "no_such_tool", ServerID: "nifi-dev",
	})
	if !unknownTool.Failed {
		t.Fatalf("unknown tool outcome = %+v", unknownTool)
	}
}

func TestSafetyHeaders(t *testing.T) {
	headers := SafetyHeaders(true, false, true)
	if headers[HeaderAutoStop] != "true" || headers[HeaderAutoDelete] != "false" || headers[HeaderAutoPurge] != "true" {
		t.Fatalf("SafetyHeaders() = %v", headers)
	}
}
