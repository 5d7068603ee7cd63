// Package config loads and validates the engine configuration from YAML or
// JSON5 files, with $include composition and environment variable expansion.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stackoverflowed/nifimcp/internal/mcp"
)

// Engine defaults applied when the file leaves a knob unset.
const (
	DefaultMaxIterations = 10
	DefaultTokenBudget   = 120000
	MinTokenBudget       = 1000
)

// Config is the root configuration.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Engine    EngineConfig              `yaml:"engine"`
	Workflows WorkflowsConfig           `yaml:"workflows"`
	MCP       MCPConfig                 `yaml:"mcp"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// ProviderConfig enables one model provider. A provider with no API key is
// not registered at all.
type ProviderConfig struct {
	APIKey  string   `yaml:"api_key"`
	Models  []string `yaml:"models"`
	BaseURL string   `yaml:"base_url"`

	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// EngineConfig carries the iteration loop defaults and the NiFi safety
// gates.
type EngineConfig struct {
	MaxIterationsDefault int  `yaml:"max_iterations_default"`
	TokenBudgetDefault   int  `yaml:"token_budget_default"`
	AutoPruneDefault     bool `yaml:"auto_prune_default"`

	AutoStopEnabled   bool `yaml:"auto_stop_enabled"`
	AutoDeleteEnabled bool `yaml:"auto_delete_enabled"`
	AutoPurgeEnabled  bool `yaml:"auto_purge_enabled"`
}

// WorkflowsConfig restricts which registered workflows may run. A nil list
// enables everything.
type WorkflowsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// MCPConfig lists the NiFi MCP servers the engine connects to.
type MCPConfig struct {
	Servers []mcp.ServerConfig `yaml:"servers"`
}

// LoggingConfig selects the slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration file, resolves includes, expands environment
// variables, applies defaults and validates.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration with only defaults applied, for callers
// running without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Engine.MaxIterationsDefault == 0 {
		c.Engine.MaxIterationsDefault = DefaultMaxIterations
	}
	if c.Engine.TokenBudgetDefault == 0 {
		c.Engine.TokenBudgetDefault = DefaultTokenBudget
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxIterationsDefault < 1 {
		return fmt.Errorf("engine.max_iterations_default must be >= 1")
	}
	if c.Engine.TokenBudgetDefault < MinTokenBudget {
		return fmt.Errorf("engine.token_budget_default must be >= %d", MinTokenBudget)
	}

	for name, p := range c.Providers {
		if strings.TrimSpace(p.APIKey) == "" {
			continue
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("providers.%s: models list is required when api_key is set", name)
		}
	}

	seen := map[string]bool{}
	for i := range c.MCP.Servers {
		s := &c.MCP.Servers[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("mcp.servers: duplicate server id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// EnabledProviders returns the names of providers with a credential, sorted
// order is not guaranteed.
func (c *Config) EnabledProviders() []string {
	var out []string
	for name, p := range c.Providers {
		if strings.TrimSpace(p.APIKey) != "" {
			out = append(out, name)
		}
	}
	return out
}

// EffectiveMaxIterations clamps a per-turn override onto the default.
func (c *Config) EffectiveMaxIterations(override int) int {
	if override >= 1 {
		return override
	}
	return c.Engine.MaxIterationsDefault
}

// EffectiveTokenBudget clamps a per-turn override onto the default.
func (c *Config) EffectiveTokenBudget(override int) int {
	if override >= MinTokenBudget {
		return override
	}
	return c.Engine.TokenBudgetDefault
}

// SafetyHeaders renders the engine safety gates for HTTP MCP servers.
func (c *Config) SafetyHeaders() map[string]string {
	return mcp.SafetyHeaders(
		c.Engine.AutoStopEnabled,
		c.Engine.AutoDeleteEnabled,
		c.Engine.AutoPurgeEnabled,
	)
}
