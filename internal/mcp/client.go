package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const protocolVersion = "2024-11-05"

// Client manages one MCP server connection: handshake, capability discovery,
// and tool invocation.
type Client struct {
	cfg       *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu          sync.RWMutex
	initialized bool
	serverInfo  ServerInfo
	tools       map[string]*MCPTool
}

// NewClient builds a client for the server config. The transport may be nil,
// in which case the config selects it.
func NewClient(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if transport == nil {
		transport = NewTransport(cfg)
	}
	return &Client{
		cfg:       cfg,
		transport: transport,
		logger:    logger.With("component", "mcp-client", "server", cfg.ID),
		tools:     map[string]*MCPTool{},
	}
}

// ServerID returns the engine-side server identity.
func (c *Client) ServerID() string { return c.cfg.ID }

// Connect establishes the transport, performs the initialize handshake and
// loads the tool catalog.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.ID, err)
	}

	initParams := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "nifimcp",
			"version": "1.0.0",
		},
	}
	raw, err := c.transport.Call(ctx, "initialize", initParams)
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize %s: %w", c.cfg.ID, err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(raw, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize %s: decode result: %w", c.cfg.ID, err)
	}

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.transport.Close()
		return fmt.Errorf("initialized notification %s: %w", c.cfg.ID, err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info("mcp server connected",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	return c.RefreshCapabilities(ctx)
}

// RefreshCapabilities reloads the tool catalog from the server.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	raw, err := c.transport.Call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return fmt.Errorf("tools/list %s: %w", c.cfg.ID, err)
	}

	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("tools/list %s: decode result: %w", c.cfg.ID, err)
	}

	tools := make(map[string]*MCPTool, len(result.Tools))
	for _, tool := range result.Tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		tools[tool.Name] = tool
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()

	c.logger.Debug("tool catalog refreshed", "tools", len(tools))
	return nil
}

// ListTools returns the cached tool catalog.
func (c *Client) ListTools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*MCPTool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// Tool looks up one cached tool by name.
func (c *Client) Tool(name string) (*MCPTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// CallTool invokes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	c.mu.RLock()
	_, known := c.tools[name]
	initialized := c.initialized
	c.mu.RUnlock()

	if !initialized {
		return nil, &Error{Type: ErrorTransport, Message: fmt.Sprintf("server %s is not connected", c.cfg.ID)}
	}
	if !known {
		return nil, &Error{
			Type:    ErrorTool,
			Code:    ErrCodeToolNotFound,
			Message: fmt.Sprintf("tool %q is not provided by server %s", name, c.cfg.ID),
		}
	}

	raw, err := c.transport.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, transportError(fmt.Errorf("decode tools/call result: %w", err))
	}
	return &result, nil
}

// Connected reports whether the handshake completed and the transport is up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && c.transport.Connected()
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	c.initialized = false
	c.mu.Unlock()
	return c.transport.Close()
}
