package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Chat Commands
// =============================================================================

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		model      string
		server     string
		iterations int
		budget     int
		noPrune    bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive agent session against a NiFi MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, chatOptions{
				configPath:    configPath,
				provider:      provider,
				model:         model,
				serverID:      server,
				maxIterations: iterations,
				tokenBudget:   budget,
				noPrune:       noPrune,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name (anthropic, openai, gemini, perplexity)")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier")
	cmd.Flags().StringVar(&server, "server", "", "MCP server id (default: first configured)")
	cmd.Flags().IntVar(&iterations, "max-iterations", 0, "Per-turn iteration cap (0 uses the config default)")
	cmd.Flags().IntVar(&budget, "token-budget", 0, "Context token budget (0 uses the config default)")
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "Disable automatic history pruning")
	return cmd
}

// =============================================================================
// Tools Commands
// =============================================================================

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call NiFi MCP tools",
	}
	cmd.AddCommand(
		buildToolsListCmd(),
		buildToolsCallCmd(),
	)
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	var (
		configPath string
		server     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tool catalog of an MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd, configPath, server)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	cmd.Flags().StringVar(&server, "server", "", "MCP server id (default: first configured)")
	return cmd
}

func buildToolsCallCmd() *cobra.Command {
	var (
		configPath string
		server     string
		argsJSON   string
	)
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call one MCP tool directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsCall(cmd, configPath, server, args[0], argsJSON)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	cmd.Flags().StringVar(&server, "server", "", "MCP server id (default: first configured)")
	cmd.Flags().StringVar(&argsJSON, "args", "{}", "Tool arguments as a JSON object")
	return cmd
}

// =============================================================================
// Workflows Commands
// =============================================================================

func buildWorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "List and run registered workflows",
	}
	cmd.AddCommand(
		buildWorkflowsListCmd(),
		buildWorkflowsRunCmd(),
	)
	return cmd
}

func buildWorkflowsListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowsList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	return cmd
}

func buildWorkflowsRunCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		model      string
		server     string
		prompt     string
	)
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run one workflow to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowsRun(cmd, workflowRunOptions{
				configPath: configPath,
				workflow:   args[0],
				provider:   provider,
				model:      model,
				serverID:   server,
				prompt:     prompt,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier")
	cmd.Flags().StringVar(&server, "server", "", "MCP server id (default: first configured)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "User prompt for the run")
	return cmd
}

// =============================================================================
// Providers Commands
// =============================================================================

func buildProvidersCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvidersList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	return cmd
}
