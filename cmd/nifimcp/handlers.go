package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stackoverflowed/nifimcp/internal/agent"
	"github.com/stackoverflowed/nifimcp/internal/events"
	"github.com/stackoverflowed/nifimcp/internal/workflow"
	"github.com/stackoverflowed/nifimcp/pkg/models"
)

type chatOptions struct {
	configPath    string
	provider      string
	model         string
	serverID      string
	maxIterations int
	tokenBudget   int
	noPrune       bool
}

// runChat drives the interactive REPL. The session owns the canonical
// message list; each turn runs the chat workflow and appends the produced
// tail.
func runChat(cmd *cobra.Command, opts chatOptions) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	provider, model, err := resolveProviderModel(rt, opts.provider, opts.model)
	if err != nil {
		return err
	}
	serverID, err := rt.serverID(opts.serverID)
	if err != nil {
		rt.logger.Warn("running without tools", "error", err)
	}

	var tools []models.ToolDef
	if serverID != "" {
		tools, err = rt.executor.Tools(serverID)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nifimcp chat (%s/%s, server: %s)\n", provider, model, orNone(serverID))
	fmt.Fprintln(out, `Type a request, "exit" to quit. Ctrl-C interrupts a running turn.`)

	messages := []models.Message{}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		messages = append(messages, models.Message{
			Role:    models.RoleUser,
			Content: line,
		})

		state := workflow.NewState()
		state.Messages = models.CloneMessages(messages)
		state.Tools = tools
		state.Config = agent.LoopConfig{
			Provider:      provider,
			Model:         model,
			SystemPrompt:  systemPrompt,
			MaxIterations: rt.cfg.EffectiveMaxIterations(opts.maxIterations),
			TokenBudget:   rt.cfg.EffectiveTokenBudget(opts.tokenBudget),
			AutoPrune:     !opts.noPrune && rt.cfg.Engine.AutoPruneDefault,
			NiFiServerID:  serverID,
			UserRequestID: uuid.NewString(),
			StatusReport:  true,
		}

		exec, err := rt.registry.CreateAsyncExecutor("chat")
		if err != nil {
			return err
		}

		// Ctrl-C during a turn stops that turn only.
		turnCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		handle := exec.Start(turnCtx, state)
		_, runErr := handle.Wait()
		stopSignals()
		if runErr != nil {
			fmt.Fprintf(out, "workflow error: %v\n", runErr)
			continue
		}

		result := state.Result
		if result == nil {
			continue
		}
		messages = append(messages, result.NewMessages...)
		printTurn(out, result)
	}
}

func printTurn(out io.Writer, result *agent.LoopResult) {
	for _, msg := range result.NewMessages {
		if msg.Role == models.RoleAssistant && msg.Content != "" {
			fmt.Fprintln(out, msg.Content)
		}
	}
	fmt.Fprintf(out, "[%s | %d iterations | %d in / %d out tokens | %s]\n",
		result.TerminationReason,
		result.LoopCount,
		result.TokensIn,
		result.TokensOut,
		result.Duration.Round(time.Millisecond))
	if result.Err != nil {
		fmt.Fprintf(out, "error: %v\n", result.Err)
	}
}

// runToolsList prints the tool catalog of one server.
func runToolsList(cmd *cobra.Command, configPath, server string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	serverID, err := rt.serverID(server)
	if err != nil {
		return err
	}
	tools, err := rt.executor.Tools(serverID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d tools on %s:\n", len(tools), serverID)
	for _, t := range tools {
		fmt.Fprintf(out, "  %-40s %s\n", t.Name, firstLine(t.Description))
	}
	return nil
}

// runToolsCall invokes one tool and prints the raw result.
func runToolsCall(cmd *cobra.Command, configPath, server, tool, argsJSON string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	serverID, err := rt.serverID(server)
	if err != nil {
		return err
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	outcome := rt.executor.ExecuteTool(ctx, agent.ToolInvocation{
		Name:      tool,
		Arguments: args,
		ServerID:  serverID,
		ActionID:  "cli-" + uuid.NewString(),
	})

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, outcome.Content)
	if outcome.Failed {
		return fmt.Errorf("tool %s failed", tool)
	}
	return nil
}

// runWorkflowsList prints the enabled workflow definitions.
func runWorkflowsList(cmd *cobra.Command, configPath string) error {
	rt, err := newRuntime(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	for _, def := range rt.registry.List() {
		mode := "sync"
		if def.IsAsync {
			mode = "async"
		}
		fmt.Fprintf(out, "%-16s %-8s %-12s %s\n", def.Name, mode, def.Category, def.Description)
	}
	return nil
}

type workflowRunOptions struct {
	configPath string
	workflow   string
	provider   string
	model      string
	serverID   string
	prompt     string
}

// runWorkflowsRun executes one workflow non-interactively and prints the
// final assistant output plus the run's event trail.
func runWorkflowsRun(cmd *cobra.Command, opts workflowRunOptions) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if strings.TrimSpace(opts.prompt) == "" {
		return fmt.Errorf("--prompt is required")
	}

	rt, err := newRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	provider, model, err := resolveProviderModel(rt, opts.provider, opts.model)
	if err != nil {
		return err
	}
	serverID, err := rt.serverID(opts.serverID)
	if err != nil {
		rt.logger.Warn("running without tools", "error", err)
	}

	var tools []models.ToolDef
	if serverID != "" {
		if tools, err = rt.executor.Tools(serverID); err != nil {
			return err
		}
	}

	state := workflow.NewState()
	state.Messages = []models.Message{{Role: models.RoleUser, Content: opts.prompt}}
	state.Tools = tools
	state.Config = agent.LoopConfig{
		Provider:      provider,
		Model:         model,
		SystemPrompt:  systemPrompt,
		MaxIterations: rt.cfg.EffectiveMaxIterations(0),
		TokenBudget:   rt.cfg.EffectiveTokenBudget(0),
		AutoPrune:     rt.cfg.Engine.AutoPruneDefault,
		NiFiServerID:  serverID,
		UserRequestID: uuid.NewString(),
		StatusReport:  true,
	}

	exec, err := rt.registry.CreateAsyncExecutor(opts.workflow)
	if err != nil {
		return err
	}
	handle := exec.Start(ctx, state)
	if _, err := handle.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if state.Result != nil {
		printTurn(out, state.Result)
	}
	trail := rt.bus.EventsFor(handle.RunID)
	for _, e := range trail {
		fmt.Fprintf(out, "%s %-18s %s\n", e.Timestamp.Format(time.RFC3339), e.Type, compactData(e.Data))
	}
	stats := events.Summarize(trail)
	fmt.Fprintf(out, "run totals: %d iterations, %d tool calls (%d failed), %d in / %d out tokens\n",
		stats.Iterations, stats.ToolCalls, stats.ToolFailures, stats.TokensIn, stats.TokensOut)
	return nil
}

// runProvidersList prints the registered providers and their model lists.
func runProvidersList(cmd *cobra.Command, configPath string) error {
	rt, err := newRuntime(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	names := rt.dispatcher.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "no providers configured (set api_key in the config file)")
		return nil
	}
	for _, name := range names {
		p, _ := rt.dispatcher.Provider(name)
		fmt.Fprintf(out, "%-12s %s\n", name, strings.Join(p.Models(), ", "))
	}
	return nil
}

// resolveProviderModel fills provider and model from config defaults when
// flags are absent: the single registered provider and its first model.
func resolveProviderModel(rt *runtime, provider, model string) (string, string, error) {
	if provider == "" {
		names := rt.dispatcher.Names()
		if len(names) != 1 {
			return "", "", fmt.Errorf("--provider is required (configured: %s)", strings.Join(names, ", "))
		}
		provider = names[0]
	}
	p, ok := rt.dispatcher.Provider(provider)
	if !ok {
		return "", "", fmt.Errorf("provider %q is not configured", provider)
	}
	if model == "" {
		if len(p.Models()) == 0 {
			return "", "", fmt.Errorf("provider %q has no models configured", provider)
		}
		model = p.Models()[0]
	}
	return provider, model, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func compactData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}
