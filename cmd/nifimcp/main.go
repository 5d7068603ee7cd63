// Package main provides the CLI entry point for the NiFi agent engine.
//
// nifimcp drives Apache NiFi through MCP tools with a multi-provider LLM
// agent loop.
//
// # Basic Usage
//
// Start an interactive chat session:
//
//	nifimcp chat --config nifimcp.yaml --provider anthropic --model claude-sonnet-4-0
//
// Inspect the tool catalog of a configured server:
//
//	nifimcp tools list --server nifi-dev
//
// List and run registered workflows:
//
//	nifimcp workflows list
//	nifimcp workflows run chat --prompt "list the root process group"
//
// # Environment Variables
//
//   - NIFIMCP_CONFIG: Path to configuration file (default: nifimcp.yaml)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, PERPLEXITY_API_KEY:
//     provider credentials, referenced from the config file via ${VAR}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nifimcp",
		Short: "nifimcp - LLM agent engine for Apache NiFi",
		Long: `nifimcp drives Apache NiFi through MCP tools with an LLM agent loop.

Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini), Perplexity (Sonar)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildToolsCmd(),
		buildWorkflowsCmd(),
		buildProvidersCmd(),
	)
	return rootCmd
}

// defaultConfigPath honors NIFIMCP_CONFIG before falling back to the working
// directory.
func defaultConfigPath() string {
	if p := os.Getenv("NIFIMCP_CONFIG"); p != "" {
		return p
	}
	return "nifimcp.yaml"
}
