package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// fakeTransport answers calls from a canned method -> result table and
// records traffic.
type fakeTransport struct {
	connected bool
	results   map[string]json.RawMessage
	errs      map[string]error
	calls     []string
	notifies  []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		results: map[string]json.RawMessage{
			"initialize": json.RawMessage(`{
				"protocolVersion": "2024-11-05",
				"capabilities": {"tools": {}},
				"serverInfo": {"name": "nifi-mcp", "version": "0.9.0"}
			}`),
			"tools/list": json.RawMessage(`{"tools": [
				{"name": "list_nifi_objects", "description": "List flow objects.",
				 "inputSchema": {"type": "object", "properties": {"object_type": {"type": "string"}}}},
				{"name": "get_process_group_status", "description": "Status snapshot."}
			]}`),
		},
		errs: map[string]error{},
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error { t.connected = true; return nil }

func (t *fakeTransport) Close() error { t.connected = false; return nil }

func (t *fakeTransport) Connected() bool { return t.connected }

func (t *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.calls = append(t.calls, method)
	if err := t.errs[method]; err != nil {
		return nil, err
	}
	res, ok := t.results[method]
	if !ok {
		return nil, wrapRPCError(&JSONRPCError{Code: ErrCodeMethodNotFound, Message: "no such method"})
	}
	return res, nil
}

func (t *fakeTransport) Notify(ctx context.Context, method string, params any) error {
	t.notifies = append(t.notifies, method)
	return nil
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{ID: "nifi-dev", Transport: TransportStdio, Command: "nifi-mcp-server"}
}

func TestClientConnectHandshake(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient(testServerConfig(), transport, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.Connected() {
		t.Fatalf("Connected() = false after handshake")
	}

	if len(transport.calls) < 2 || transport.calls[0] != "initialize" || transport.calls[1] != "tools/list" {
		t.Fatalf("call order = %v", transport.calls)
	}
	if len(transport.notifies) != 1 || transport.notifies[0] != "notifications/initialized" {
		t.Fatalf("notifications = %v", transport.notifies)
	}

	tools := client.ListTools()
	if len(tools) != 2 {
		t.Fatalf("ListTools() = %d tools, want 2", len(tools))
	}
	if _, ok := client.Tool("list_nifi_objects"); !ok {
		t.Fatalf("tool catalog missing list_nifi_objects")
	}
}

func TestClientConnectInitializeFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.errs["initialize"] = transportError(errors.New("connection refused"))
	client := NewClient(testServerConfig(), transport, nil)

	if err := client.Connect(context.Background()); err == nil {
		t.Fatalf("Connect() = nil, want error")
	}
	if transport.Connected() {
		t.Fatalf("transport left open after failed handshake")
	}
}

func TestClientCallToolUnknownTool(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient(testServerConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	_, err := client.CallTool(context.Background(), "no_such_tool", nil)
	var mcpErr *Error
	if !errors.As(err, &mcpErr) || mcpErr.Code != ErrCodeToolNotFound {
		t.Fatalf("CallTool() error = %v, want tool-not-found", err)
	}
}

func TestClientCallToolResult(t *testing.T) {
	transport := newFakeTransport()
	transport.results["tools/call"] = json.RawMessage(`{
		"content": [{"type": "text", "text": "{\"processors\": []}"}],
		"isError": false
	}`)
	client := NewClient(testServerConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	result, err := client.CallTool(context.Background(), "list_nifi_objects", json.RawMessage(`{"object_type":"processors"}`))
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if result.IsError || len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("CallTool() result = %+v", result)
	}
}

func TestClientCallToolBeforeConnect(t *testing.T) {
	client := NewClient(testServerConfig(), newFakeTransport(), nil)
	if _, err := client.CallTool(context.Background(), "list_nifi_objects", nil); err == nil {
		t.Fatalf("CallTool() before Connect = nil, want error")
	}
}

func TestWrapRPCErrorClassification(t *testing.T) {
	notFound := wrapRPCError(&JSONRPCError{Code: ErrCodeMethodNotFound, Message: "nope"})
	if notFound.Type != ErrorMethodNotFound {
		t.Fatalf("Type = %q, want method-not-found", notFound.Type)
	}
	toolErr := wrapRPCError(&JSONRPCError{Code: ErrCodeInternalError, Message: "boom"})
	if toolErr.Type != ErrorTool {
		t.Fatalf("Type = %q, want tool-error", toolErr.Type)
	}
}

func TestServerConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"valid stdio", ServerConfig{ID: "a", Transport: TransportStdio, Command: "server"}, false},
		{"default transport is stdio", ServerConfig{ID: "a", Command: "server"}, false},
		{"valid http", ServerConfig{ID: "a", Transport: TransportHTTP, URL: "http://localhost:8099/mcp"}, false},
		{"missing id", ServerConfig{Transport: TransportStdio, Command: "server"}, true},
		{"stdio without command", ServerConfig{ID: "a", Transport: TransportStdio}, true},
		{"http without url", ServerConfig{ID: "a", Transport: TransportHTTP}, true},
		{"shell metacharacters", ServerConfig{ID: "a", Command: "server; rm -rf /"}, true},
		{"unknown transport", ServerConfig{ID: "a", Transport: "grpc"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
