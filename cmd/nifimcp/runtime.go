package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/agent/providers"
	"github.com/stackoverflowed/nifimcp/internal/config"
	"github.com/stackoverflowed/nifimcp/internal/events"
	"github.com/stackoverflowed/nifimcp/internal/mcp"
	"github.com/stackoverflowed/nifimcp/internal/metrics"
	"github.com/stackoverflowed/nifimcp/internal/workflow"
)

// systemPrompt teaches the model the NiFi tool protocol and the completion
// marker the loop watches for.
const systemPrompt = `You are a NiFi flow engineer operating Apache NiFi through tools.

Tool results arrive as JSON objects with a "tool_output_content" list; failed
calls arrive as {"error": ...}. Inspect before you mutate: list process
groups and processors before changing configuration. When the task is done,
reply with a summary ending in TASK COMPLETE. If you cannot make progress,
say so and end with TASK COMPLETE.`

// runtime bundles everything a command handler needs.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *agent.Dispatcher
	executor   *mcp.Executor
	bus        *events.Bus
	registry   *workflow.Registry
}

// newRuntime loads the config and assembles the engine. Servers in the
// config are connected eagerly; a server that fails to connect is logged
// and skipped so one broken server does not take the session down.
func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	dispatcher := agent.NewDispatcher(logger)
	for name, pc := range cfg.Providers {
		if strings.TrimSpace(pc.APIKey) == "" {
			continue
		}
		p, err := providers.New(name, providers.Options{
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			Models:      pc.Models,
			MaxRetries:  pc.MaxRetries,
			RetryDelay:  pc.RetryDelay,
			HTTPTimeout: pc.HTTPTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		dispatcher.Register(p)
	}

	executor := mcp.NewExecutor(logger)
	for i := range cfg.MCP.Servers {
		sc := cfg.MCP.Servers[i]
		if sc.Transport == mcp.TransportHTTP {
			if sc.Headers == nil {
				sc.Headers = map[string]string{}
			}
			for k, v := range cfg.SafetyHeaders() {
				if _, set := sc.Headers[k]; !set {
					sc.Headers[k] = v
				}
			}
		}
		client := mcp.NewClient(&sc, nil, logger)
		if err := client.Connect(ctx); err != nil {
			logger.Error("mcp server unavailable", "server", sc.ID, "error", err)
			continue
		}
		executor.AddClient(client)
	}

	bus := events.NewBus(logger)
	bus.Subscribe(metrics.NewCollector(prometheus.NewRegistry()))

	registry := workflow.NewRegistry(bus, logger)
	if err := workflow.RegisterChatWorkflow(registry, dispatcher, executor, bus, logger); err != nil {
		return nil, err
	}
	if cfg.Workflows.Enabled != nil {
		registry.SetEnabled(cfg.Workflows.Enabled)
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		executor:   executor,
		bus:        bus,
		registry:   registry,
	}, nil
}

// Close shuts the MCP connections down.
func (r *runtime) Close() {
	if err := r.executor.Close(); err != nil {
		r.logger.Warn("mcp shutdown", "error", err)
	}
}

// serverID resolves the --server flag against the configured servers.
func (r *runtime) serverID(flag string) (string, error) {
	ids := r.executor.ServerIDs()
	if flag != "" {
		for _, id := range ids {
			if id == flag {
				return id, nil
			}
		}
		return "", fmt.Errorf("mcp server %q is not connected (have: %s)", flag, strings.Join(ids, ", "))
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no mcp servers connected")
	}
	return ids[0], nil
}

// loadConfig reads the file when it exists and falls back to defaults when
// the default path is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && path == defaultConfigPath() {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config.Load(path)
}

func buildLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(lc.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
