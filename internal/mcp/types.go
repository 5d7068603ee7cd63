// Package mcp implements the Model-Context-Protocol client the engine uses
// to reach the NiFi tool surface: a JSON-RPC transport (stdio subprocess or
// HTTP), capability discovery, and the tool executor consumed by the agent
// loop.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransportKind selects how the client reaches the server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// ServerConfig describes one MCP server.
type ServerConfig struct {
	// ID is the engine-side identity of the server (the NiFi server id).
	ID string `yaml:"id"`

	Transport TransportKind `yaml:"transport"`

	// Stdio transport.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty"`

	// HTTP transport.
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks the configuration for the selected transport.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("mcp server id is required")
	}
	switch c.Transport {
	case TransportHTTP:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("mcp server %s: url is required for http transport", c.ID)
		}
	case TransportStdio, "":
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("mcp server %s: command is required for stdio transport", c.ID)
		}
		if strings.ContainsAny(c.Command, "&|;<>$`") {
			return fmt.Errorf("mcp server %s: command contains shell metacharacters", c.ID)
		}
	default:
		return fmt.Errorf("mcp server %s: unknown transport %q", c.ID, c.Transport)
	}
	return nil
}

// MCPTool is a tool as the server advertises it.
type MCPTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolResultContent is one typed item of a tool call result.
type ToolResultContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCallResult is the server's answer to tools/call.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// CallToolParams is the request body for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ListToolsResult is the response body for tools/list.
type ListToolsResult struct {
	Tools []*MCPTool `json:"tools"`
}

// ServerInfo identifies the connected server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the response to the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// JSON-RPC framing.

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// JSON-RPC error codes the engine distinguishes.
const (
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeToolNotFound   = -32002
)

// ErrorType classifies MCP failures for callers.
type ErrorType string

const (
	ErrorMethodNotFound ErrorType = "method-not-found"
	ErrorTool           ErrorType = "tool-error"
	ErrorTransport      ErrorType = "transport-error"
)

// Error is the typed MCP failure.
type Error struct {
	Type    ErrorType
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("mcp %s (%d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("mcp %s: %s", e.Type, e.Message)
}

// wrapRPCError maps a JSON-RPC error onto the typed taxonomy.
func wrapRPCError(rpcErr *JSONRPCError) *Error {
	errType := ErrorTool
	if rpcErr.Code == ErrCodeMethodNotFound {
		errType = ErrorMethodNotFound
	}
	return &Error{
		Type:    errType,
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
		Data:    rpcErr.Data,
	}
}

// transportError wraps a transport-level failure.
func transportError(err error) *Error {
	return &Error{Type: ErrorTransport, Message: err.Error()}
}
