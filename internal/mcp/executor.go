package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/agent/toolconv"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// Safety header names the NiFi MCP server honors on tools/call traffic.
const (
	HeaderAutoStop   = "X-Mcp-Auto-Stop-Enabled"
	HeaderAutoDelete = "X-Mcp-Auto-Delete-Enabled"
	HeaderAutoPurge  = "X-Mcp-Auto-Purge-Enabled"
)

// SafetyHeaders renders the destructive-operation gates as HTTP headers for
// an HTTP server config.
func SafetyHeaders(stop, del, purge bool) map[string]string {
	flag := func(b bool) string {
		if b {
			return "true"
		}
		return "false"
	}
	return map[string]string{
		HeaderAutoStop:   flag(stop),
		HeaderAutoDelete: flag(del),
		HeaderAutoPurge:  flag(purge),
	}
}

// Executor bridges MCP servers to the agent loop. It holds one client per
// configured server, exposes their combined tool catalogs, validates
// arguments against the advertised schemas and shapes results so the model
// always receives JSON.
type Executor struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewExecutor returns an executor with no servers attached.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger:  logger.With("component", "mcp-executor"),
		clients: map[string]*Client{},
	}
}

// AddClient attaches a connected client under its server id.
func (e *Executor) AddClient(c *Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[c.ServerID()] = c
}

// Client looks up the client for a server id.
func (e *Executor) Client(serverID string) (*Client, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.clients[serverID]
	return c, ok
}

// ServerIDs returns the attached server ids, sorted.
func (e *Executor) ServerIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.clients))
	for id := range e.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close shuts every client down. The first error wins.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for id, c := range e.clients {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", id, err)
		}
		delete(e.clients, id)
	}
	return first
}

// Tools returns the model-facing tool definitions for one server, sorted by
// name.
func (e *Executor) Tools(serverID string) ([]models.ToolDef, error) {
	c, ok := e.Client(serverID)
	if !ok {
		return nil, fmt.Errorf("unknown mcp server %q", serverID)
	}

	mcpTools := c.ListTools()
	defs := make([]models.ToolDef, 0, len(mcpTools))
	for _, t := range mcpTools {
		defs = append(defs, models.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// ExecuteTool implements agent.ToolExecutor. The outcome content is always
// JSON, including for failures, so the model can consume it either way.
func (e *Executor) ExecuteTool(ctx context.Context, inv agent.ToolInvocation) agent.ToolOutcome {
	c, ok := e.Client(inv.ServerID)
	if !ok {
		return failOutcome(fmt.Sprintf("unknown mcp server %q", inv.ServerID))
	}

	tool, ok := c.Tool(inv.Name)
	if !ok {
		return failOutcome(fmt.Sprintf("tool %q is not provided by server %s", inv.Name, inv.ServerID))
	}

	if len(tool.InputSchema) > 0 {
		if err := e.validateArguments(tool, inv.Arguments); err != nil {
			e.logger.Warn("tool arguments rejected by schema",
				"tool", inv.Name,
				"server", inv.ServerID,
				"error", err)
			return failOutcome(fmt.Sprintf("invalid arguments for %s: %v", inv.Name, err))
		}
	}

	args, err := json.Marshal(inv.Arguments)
	if err != nil {
		return failOutcome(fmt.Sprintf("encode arguments for %s: %v", inv.Name, err))
	}

	e.logger.Debug("calling mcp tool",
		"tool", inv.Name,
		"server", inv.ServerID,
		"action_id", inv.ActionID)

	result, err := c.CallTool(ctx, inv.Name, args)
	if err != nil {
		return failOutcome(fmt.Sprintf("tool %s failed: %v", inv.Name, err))
	}

	content := renderResult(result)
	return agent.ToolOutcome{Content: content, Failed: result.IsError}
}

// validateArguments checks the call against the advertised input schema.
// Schemas that do not compile are logged and skipped rather than blocking
// the call.
func (e *Executor) validateArguments(tool *MCPTool, args map[string]any) error {
	if _, err := toolconv.CompileSchema(tool.InputSchema); err != nil {
		e.logger.Warn("tool schema does not compile, skipping validation",
			"tool", tool.Name,
			"error", err)
		return nil
	}
	return toolconv.ValidateArguments(tool.InputSchema, args)
}

// renderResult folds the typed content list into the JSON envelope the
// system prompt teaches the model to read.
func renderResult(result *ToolCallResult) string {
	items := make([]map[string]any, 0, len(result.Content))
	for _, c := range result.Content {
		item := map[string]any{"type": c.Type}
		if c.Text != "" {
			// Text payloads from NiFi tools are usually JSON themselves;
			// pass them through structured when they parse.
			var parsed any
			if err := json.Unmarshal([]byte(c.Text), &parsed); err == nil {
				item["text"] = parsed
			} else {
				item["text"] = c.Text
			}
		}
		if c.Data != "" {
			item["data"] = c.Data
		}
		if c.MimeType != "" {
			item["mimeType"] = c.MimeType
		}
		items = append(items, item)
	}

	out, err := json.Marshal(map[string]any{"tool_output_content": items})
	if err != nil {
		return `{"tool_output_content":[]}`
	}
	return string(out)
}

func failOutcome(message string) agent.ToolOutcome {
	out, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		out = []byte(`{"error":"tool execution failed"}`)
	}
	return agent.ToolOutcome{Content: string(out), Failed: true}
}
